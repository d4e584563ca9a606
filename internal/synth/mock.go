package synth

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"math"
)

// mockStrategy produces deterministic audio derived from the text so tests
// and dev setups work without a model on disk. Different texts get audibly
// different pitches.
type mockStrategy struct {
	sampleRate int
}

func NewMockStrategy(sampleRate int) Strategy {
	return &mockStrategy{sampleRate: sampleRate}
}

func (m *mockStrategy) Name() string { return "mock" }

func (m *mockStrategy) Attempt(_ context.Context, req Request) (PCM, error) {
	h := fnv.New32a()
	h.Write([]byte(req.Text))
	freq := 220 + float64(h.Sum32()%440)

	durationMS := 100 + len(req.Text)*20
	if durationMS > 2000 {
		durationMS = 2000
	}
	samples := m.sampleRate * durationMS / 1000
	data := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(0.25 * math.MaxInt16 * math.Sin(2*math.Pi*freq*float64(i)/float64(m.sampleRate)))
		binary.LittleEndian.PutUint16(data[i*2:], uint16(v))
	}
	return PCM{Data: data, SampleRate: m.sampleRate}, nil
}
