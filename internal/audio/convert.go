package audio

import (
	"fmt"

	. "github.com/roelfdiedericks/voxpaste/internal/logging"
	"github.com/zeozeozeo/gomplerate"
)

// Convert brings interleaved PCM16 captured at any rate and channel count to
// 16 kHz mono, the format the rest of the core expects.
func Convert(samples []int16, sampleRate, channels int) ([]int16, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("audio: invalid sample rate %d", sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("audio: invalid channel count %d", channels)
	}

	mono := toMono(samples, channels)
	if sampleRate == SampleRate {
		return mono, nil
	}
	return resample(mono, sampleRate, SampleRate)
}

// toMono downmixes interleaved frames by averaging channels.
func toMono(samples []int16, channels int) []int16 {
	if channels == 1 {
		return samples
	}

	mono := make([]int16, len(samples)/channels)
	for i := range mono {
		var sum int32
		for ch := 0; ch < channels; ch++ {
			sum += int32(samples[i*channels+ch])
		}
		mono[i] = int16(sum / int32(channels)) // #nosec G115 - average of int16 values fits int16
	}
	return mono
}

func resample(samples []int16, fromRate, toRate int) ([]int16, error) {
	r, err := gomplerate.NewResampler(1, fromRate, toRate)
	if err != nil {
		return nil, fmt.Errorf("audio: create resampler %d->%d: %w", fromRate, toRate, err)
	}
	out := r.ResampleInt16(samples)
	L_trace("audio: resampled", "from", fromRate, "to", toRate, "in", len(samples), "out", len(out))
	return out, nil
}
