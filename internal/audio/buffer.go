// Package audio turns captured PCM into the shapes transcription backends consume:
// normalized float32 samples for the local engine and a WAV container for uploads.
package audio

import (
	"encoding/binary"
	"fmt"
	"time"

	. "github.com/roelfdiedericks/voxpaste/internal/logging"
)

const (
	// SampleRate is the only rate the transcription core works at.
	SampleRate = 16000
	// BitDepth of the canonical PCM representation.
	BitDepth = 16

	// MinDuration is the shortest buffer the local engine reliably recognizes.
	MinDuration = 1100 * time.Millisecond
	// MinSamples is MinDuration expressed in samples at SampleRate.
	MinSamples = SampleRate * int(MinDuration/time.Millisecond) / 1000
)

// Buffer is one utterance in every representation the backends need.
type Buffer struct {
	PCM     []int16   // 16 kHz mono, padded to at least MinSamples
	Samples []float32 // PCM / 32768, range [-1, 1]
	WAV     []byte    // 44-byte header + PCM
}

// Duration returns the audio length of the buffer.
func (b *Buffer) Duration() time.Duration {
	return SamplesDuration(len(b.PCM))
}

// SamplesDuration converts a 16 kHz sample count to a duration.
func SamplesDuration(n int) time.Duration {
	return time.Duration(n) * time.Second / SampleRate
}

// Normalize takes little-endian 16-bit mono PCM at 16 kHz and produces a Buffer.
// Short input is zero-padded to MinDuration; nothing is ever truncated.
func Normalize(pcm []byte) (*Buffer, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("audio: pcm16 buffer has odd length %d", len(pcm))
	}
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:])) // #nosec G115 - reinterpreting sample bits
	}
	return NormalizeSamples(samples)
}

// NormalizeSamples is Normalize for already-decoded samples.
func NormalizeSamples(samples []int16) (*Buffer, error) {
	padded := Pad(samples)
	if len(padded) != len(samples) {
		L_debug("audio: padded short utterance",
			"from", SamplesDuration(len(samples)),
			"to", SamplesDuration(len(padded)))
	}

	wav, err := EncodeWAV(padded)
	if err != nil {
		return nil, err
	}

	return &Buffer{
		PCM:     padded,
		Samples: Int16ToFloat32(padded),
		WAV:     wav,
	}, nil
}

// Pad returns samples extended with silence to exactly MinSamples when shorter.
// Longer input is returned as-is.
func Pad(samples []int16) []int16 {
	if len(samples) >= MinSamples {
		return samples
	}
	out := make([]int16, MinSamples)
	copy(out, samples)
	return out
}

// Int16ToFloat32 converts int16 samples to float32 normalized to [-1, 1].
func Int16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}
