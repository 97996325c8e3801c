// Package audio converts between the sample formats used by capture devices
// and the PCM16 wire format spoken by realtime voice vendors.
//
// All helpers are pure functions over mono audio. PCM16 is signed 16-bit
// little-endian, which is what both Gemini Live and OpenAI Realtime expect.
package audio

import (
	"encoding/base64"
	"fmt"
	"math"
)

// Float32ToPCM16 quantizes float samples in [-1, 1] to signed 16-bit PCM.
// Values outside the range are clamped and NaN becomes silence.
func Float32ToPCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if math.IsNaN(float64(s)) {
			continue
		}
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		if s < 0 {
			out[i] = int16(s * 32768)
		} else {
			out[i] = int16(s * 32767)
		}
	}
	return out
}

// PCM16ToFloat32 converts signed 16-bit PCM to floats in [-1, 1).
func PCM16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768
	}
	return out
}

// PCM16ToBytes serializes samples as little-endian bytes.
func PCM16ToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return data
}

// BytesToPCM16 parses little-endian bytes into samples.
// A trailing odd byte is ignored.
func BytesToPCM16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// EncodeBase64 encodes bytes with the standard alphabet.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 decodes a standard-alphabet string.
func DecodeBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("audio: decode base64: %w", err)
	}
	return data, nil
}

// EncodePCM16Base64 is the outbound path: samples to a base64 payload.
func EncodePCM16Base64(samples []int16) string {
	return EncodeBase64(PCM16ToBytes(samples))
}

// DecodePCM16Base64 is the inbound path: a base64 payload to samples.
func DecodePCM16Base64(s string) ([]int16, error) {
	data, err := DecodeBase64(s)
	if err != nil {
		return nil, err
	}
	return BytesToPCM16(data), nil
}

// Resample converts audio between sample rates using linear interpolation.
// Good enough for speech; it does not low-pass before decimating.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 || len(samples) == 0 {
		return samples
	}

	ratio := float64(fromRate) / float64(toRate)
	n := int(float64(len(samples)) / ratio)
	if n == 0 {
		return []int16{}
	}

	out := make([]int16, n)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(idx)
		s1 := float64(samples[idx])
		s2 := float64(samples[idx+1])
		out[i] = int16(s1 + frac*(s2-s1))
	}
	return out
}
