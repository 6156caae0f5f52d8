package providers

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"time"
)

const (
	silenceSampleRate = 16000
	silenceMinimum    = time.Second
	silenceMaximum    = 15 * time.Minute
)

// Silence writes a silent mono WAV as long as the transcript. It lets the
// pipeline complete when no speech engine is configured.
type Silence struct{}

func (Silence) Name() string { return "silence" }

func (Silence) Speak(_ context.Context, req SpeechRequest) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(SilentWAV(req.Duration))), nil
}

// SilentWAV renders 16 kHz 16-bit mono PCM silence, clamped to [1s, 15m].
func SilentWAV(d time.Duration) []byte {
	d = max(silenceMinimum, min(d, silenceMaximum))
	samples := int(d.Seconds() * silenceSampleRate)
	dataSize := uint32(samples * 2)

	var buf bytes.Buffer
	buf.Grow(44 + int(dataSize))
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, 36+dataSize)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	_ = binary.Write(&buf, binary.LittleEndian, uint32(silenceSampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(silenceSampleRate*2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, dataSize)
	buf.Write(make([]byte, dataSize))
	return buf.Bytes()
}
