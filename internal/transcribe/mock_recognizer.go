package transcribe

import (
	"context"
	"fmt"

	"github.com/leafline-ai/voiced/internal/config"
)

type mockRecognizer struct {
	language string
}

func NewMockRecognizer(cfg config.TranscribeConfig) Recognizer {
	lang := cfg.Language
	if lang == "" {
		lang = "en"
	}
	return &mockRecognizer{language: lang}
}

func (m *mockRecognizer) Transcribe(_ context.Context, pcm []byte, sampleRate int, _ int) (Result, error) {
	ms := 0
	if sampleRate > 0 {
		ms = len(pcm) / 2 * 1000 / sampleRate
	}
	return Result{
		Text:       fmt.Sprintf("[transcript duration=%dms]", ms),
		Language:   m.language,
		Confidence: 0.5,
	}, nil
}
