package audio

import "time"

// Frame is a block of mono microphone audio handed to a provider.
// Providers only ever need the PCM16 view.
type Frame interface {
	PCM16() []int16
}

// Float32Frame holds samples in [-1, 1], as produced by most capture APIs.
type Float32Frame []float32

// PCM16 quantizes the frame.
func (f Float32Frame) PCM16() []int16 { return Float32ToPCM16(f) }

// PCM16Frame holds already quantized samples.
type PCM16Frame []int16

// PCM16 returns the samples unchanged.
func (f PCM16Frame) PCM16() []int16 { return f }

// Chunk is a block of decoded assistant audio tagged with its sample rate.
type Chunk struct {
	Samples    []int16
	SampleRate int
}

// Duration returns the playback length of the chunk.
func (c Chunk) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// Bytes returns the chunk as little-endian PCM16.
func (c Chunk) Bytes() []byte { return PCM16ToBytes(c.Samples) }

// PCM16 lets a Chunk be sent as a Frame.
func (c Chunk) PCM16() []int16 { return c.Samples }

// Rate returns the chunk sample rate.
func (c Chunk) Rate() int { return c.SampleRate }

// RatedFrame is a Frame that knows its sample rate. Providers resample rated
// frames to the session input rate; plain frames are assumed to match it.
type RatedFrame interface {
	Frame
	Rate() int
}
