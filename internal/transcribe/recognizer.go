package transcribe

import (
	"context"
	"fmt"

	"github.com/leafline-ai/voiced/internal/config"
)

// Result captures recognizer output for a single utterance.
type Result struct {
	Text       string
	Language   string
	Confidence float64
}

// Recognizer abstracts speech-to-text backends.
type Recognizer interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int, channels int) (Result, error)
}

// NewRecognizer builds the backend selected by cfg.Mode.
func NewRecognizer(cfg config.TranscribeConfig) (Recognizer, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockRecognizer(cfg), nil
	case "exec":
		return NewExecRecognizer(cfg)
	default:
		return nil, fmt.Errorf("unknown transcribe mode %q", cfg.Mode)
	}
}
