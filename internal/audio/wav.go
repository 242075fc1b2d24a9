package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVHeaderSize is the size of the canonical PCM header written by EncodeWAV.
const WAVHeaderSize = 44

const wavFormatPCM = 1

// EncodeWAV wraps 16 kHz mono PCM16 samples in a canonical WAV container.
func EncodeWAV(samples []int16) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("audio: cannot encode empty audio samples")
	}

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	out := &writeSeeker{}
	enc := wav.NewEncoder(out, SampleRate, BitDepth, 1, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: SampleRate},
		Data:           data,
		SourceBitDepth: BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("audio: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("audio: finalize wav: %w", err)
	}
	return out.buf, nil
}

// DecodeWAV reads a PCM WAV container and returns its samples as 16-bit values
// along with the source sample rate and channel count.
func DecodeWAV(r io.ReadSeeker) (samples []int16, sampleRate, channels int, err error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, 0, fmt.Errorf("audio: not a valid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("audio: decode wav: %w", err)
	}

	// Rescale anything that is not 16-bit into int16 range.
	shift := int(dec.BitDepth) - BitDepth
	samples = make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		switch {
		case shift > 0:
			v >>= uint(shift)
		case shift < 0:
			v <<= uint(-shift)
		}
		if dec.BitDepth == 8 {
			v -= 1 << 15 // 8-bit wav is unsigned
		}
		samples[i] = clampInt16(v)
	}

	return samples, int(dec.SampleRate), int(dec.NumChans), nil
}

// DecodeWAVBytes is DecodeWAV over an in-memory file.
func DecodeWAVBytes(b []byte) ([]int16, int, int, error) {
	return DecodeWAV(bytes.NewReader(b))
}

func clampInt16(v int) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// writeSeeker is an in-memory io.WriteSeeker; the wav encoder seeks back to
// patch chunk sizes once all samples are written.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	end := w.pos + len(p)
	if end > len(w.buf) {
		w.buf = append(w.buf, make([]byte, end-len(w.buf))...)
	}
	copy(w.buf[w.pos:end], p)
	w.pos = end
	return len(p), nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var base int
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = w.pos
	case io.SeekEnd:
		base = len(w.buf)
	default:
		return 0, errors.New("audio: invalid whence")
	}
	next := base + int(offset)
	if next < 0 {
		return 0, errors.New("audio: negative seek position")
	}
	w.pos = next
	return int64(next), nil
}
