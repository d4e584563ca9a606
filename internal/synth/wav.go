package synth

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// memWriteSeeker adapts an in-memory buffer to io.WriteSeeker for the wav
// encoder, which seeks back to patch the RIFF header.
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	if need := m.pos + len(p); need > len(m.buf) {
		grown := make([]byte, need)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.pos:], p)
	m.pos += len(p)
	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var next int
	switch whence {
	case io.SeekStart:
		next = int(offset)
	case io.SeekCurrent:
		next = m.pos + int(offset)
	case io.SeekEnd:
		next = len(m.buf) + int(offset)
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("negative seek position %d", next)
	}
	m.pos = next
	return int64(next), nil
}

// EncodeWAV wraps raw mono 16-bit PCM in the canonical WAV envelope.
func EncodeWAV(pcm PCM) ([]byte, error) {
	if pcm.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", pcm.SampleRate)
	}
	samples := make([]int, len(pcm.Data)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm.Data[i*2:])))
	}

	w := &memWriteSeeker{}
	enc := wav.NewEncoder(w, pcm.SampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: pcm.SampleRate},
		SourceBitDepth: 16,
		Data:           samples,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalize wav: %w", err)
	}
	return w.buf, nil
}

// DecodeWAV extracts mono 16-bit PCM from a WAV payload. Multichannel input
// is downmixed by taking the first channel.
func DecodeWAV(data []byte) (PCM, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return PCM{}, fmt.Errorf("decode wav: %w", err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 {
		return PCM{}, fmt.Errorf("wav payload missing format header")
	}

	channels := buf.Format.NumChannels
	if channels <= 0 {
		channels = 1
	}
	frames := len(buf.Data) / channels
	out := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(buf.Data[i*channels])))
	}
	return PCM{Data: out, SampleRate: buf.Format.SampleRate}, nil
}

// DurationMS reports the playback length of a PCM buffer.
func DurationMS(pcm PCM) int {
	if pcm.SampleRate <= 0 {
		return 0
	}
	samples := len(pcm.Data) / 2
	return samples * 1000 / pcm.SampleRate
}
