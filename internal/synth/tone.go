package synth

import (
	"context"
	"encoding/binary"
	"math"
)

// toneStrategy generates a short audible beep. It sits at the end of the
// fallback chain so a caller can tell "degraded audio" apart from "no audio".
type toneStrategy struct {
	sampleRate int
	durationMS int
	freqHz     float64
}

func NewToneStrategy(sampleRate int) Strategy {
	return &toneStrategy{sampleRate: sampleRate, durationMS: 500, freqHz: 440}
}

func (t *toneStrategy) Name() string { return "tone" }

func (t *toneStrategy) Attempt(_ context.Context, _ Request) (PCM, error) {
	samples := t.sampleRate * t.durationMS / 1000
	data := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		// fade in/out over 20ms to avoid clicks
		amp := 0.30
		fade := t.sampleRate / 50
		if i < fade {
			amp *= float64(i) / float64(fade)
		} else if remaining := samples - i; remaining < fade {
			amp *= float64(remaining) / float64(fade)
		}
		v := int16(amp * math.MaxInt16 * math.Sin(2*math.Pi*t.freqHz*float64(i)/float64(t.sampleRate)))
		binary.LittleEndian.PutUint16(data[i*2:], uint16(v))
	}
	return PCM{Data: data, SampleRate: t.sampleRate}, nil
}

// Silence returns a fixed-duration silent buffer, the absolute last resort
// when even tone generation failed. Always well-formed, never errors.
func Silence(sampleRate, durationMS int) PCM {
	if sampleRate <= 0 {
		sampleRate = 22050
	}
	if durationMS <= 0 {
		durationMS = 500
	}
	return PCM{
		Data:       make([]byte, sampleRate*durationMS/1000*2),
		SampleRate: sampleRate,
	}
}
