package transcribe

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/leafline-ai/voiced/internal/config"
)

func TestMockRecognizerReportsDuration(t *testing.T) {
	rec := NewMockRecognizer(config.TranscribeConfig{Language: "en"})
	pcm := make([]byte, 16000*2) // one second at 16kHz
	res, err := rec.Transcribe(context.Background(), pcm, 16000, 1)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if res.Text != "[transcript duration=1000ms]" {
		t.Fatalf("unexpected text %q", res.Text)
	}
	if res.Language != "en" {
		t.Fatalf("unexpected language %q", res.Language)
	}
}

func TestNewRecognizerRejectsUnknownMode(t *testing.T) {
	if _, err := NewRecognizer(config.TranscribeConfig{Mode: "telepathy"}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestNewExecRecognizerValidatesCommand(t *testing.T) {
	if _, err := NewExecRecognizer(config.TranscribeConfig{Command: ""}); err == nil {
		t.Fatal("expected error for empty command")
	}
	if _, err := NewExecRecognizer(config.TranscribeConfig{Command: "whisper --fast"}); err != nil {
		t.Fatalf("valid command rejected: %v", err)
	}
}

func sinePCM(freq float64, amplitude float64, sampleRate, ms int) []byte {
	n := sampleRate * ms / 1000
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v*32767)))
	}
	return out
}

func TestDetectSpeechOnTone(t *testing.T) {
	report := DetectSpeech(sinePCM(220, 0.3, 16000, 500))
	if !report.Speech {
		t.Fatalf("expected speech, got %+v", report)
	}
}

func TestDetectSpeechOnSilence(t *testing.T) {
	report := DetectSpeech(make([]byte, 16000))
	if report.Speech {
		t.Fatalf("silence flagged as speech: %+v", report)
	}
	if report.RMS != 0 {
		t.Fatalf("expected zero rms, got %f", report.RMS)
	}
}

func TestDetectSpeechEmptyBuffer(t *testing.T) {
	if report := DetectSpeech(nil); report.Speech {
		t.Fatalf("empty buffer flagged as speech: %+v", report)
	}
}
