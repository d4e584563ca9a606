package synth

import "context"

// Request contains parameters to synthesize speech.
type Request struct {
	SessionID string
	Text      string
	VoiceID   string
	Language  string
	Speed     float64
	Pitch     float64
	Quality   string
}

// PCM is raw mono 16-bit little-endian audio at a known rate.
type PCM struct {
	Data       []byte
	SampleRate int
}

// Strategy is one synthesis path in the fallback chain.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, req Request) (PCM, error)
}
