package transcribe

import (
	"encoding/binary"
	"math"
)

// SpeechReport summarises an energy scan over raw s16le PCM.
type SpeechReport struct {
	Speech     bool    `json:"speech"`
	RMS        float64 `json:"rms"`
	PeakRatio  float64 `json:"peak_ratio"`
	ActiveSpan float64 `json:"active_span"`
}

const (
	rmsSpeechFloor  = 0.010
	activeSpanFloor = 0.05
	frameSamples    = 320 // 20ms at 16kHz
)

// DetectSpeech reports whether the buffer plausibly contains voice.
// It combines overall RMS with the fraction of 20ms frames whose
// energy clears the floor, which keeps a single pop from counting.
func DetectSpeech(pcm []byte) SpeechReport {
	n := len(pcm) / 2
	if n == 0 {
		return SpeechReport{}
	}

	var sumSq float64
	peak := 0.0
	activeFrames := 0
	totalFrames := 0
	frameSq := 0.0
	frameLen := 0

	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
		sumSq += s * s
		if a := math.Abs(s); a > peak {
			peak = a
		}
		frameSq += s * s
		frameLen++
		if frameLen == frameSamples {
			totalFrames++
			if math.Sqrt(frameSq/float64(frameLen)) > rmsSpeechFloor {
				activeFrames++
			}
			frameSq = 0
			frameLen = 0
		}
	}
	if frameLen > 0 {
		totalFrames++
		if math.Sqrt(frameSq/float64(frameLen)) > rmsSpeechFloor {
			activeFrames++
		}
	}

	rms := math.Sqrt(sumSq / float64(n))
	span := float64(activeFrames) / float64(totalFrames)
	ratio := 0.0
	if rms > 0 {
		ratio = peak / rms
	}
	return SpeechReport{
		Speech:     rms > rmsSpeechFloor && span > activeSpanFloor,
		RMS:        rms,
		PeakRatio:  ratio,
		ActiveSpan: span,
	}
}
