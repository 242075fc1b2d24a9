package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pion/opus"
	"github.com/pion/opus/pkg/oggreader"
	. "github.com/roelfdiedericks/voxpaste/internal/logging"
)

const maxOpusFrameSize = 5760 // 120ms at 48kHz

// LoadFile reads an audio file and returns 16 kHz mono PCM16 samples.
// WAV and OGG/Opus are decoded in-process; other formats need ffmpeg.
func LoadFile(path string) ([]int16, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("audio: read %s: %w", path, err)
	}

	mime := mimetype.Detect(data)
	L_debug("audio: loading file", "path", path, "mime", mime.String(), "bytes", len(data))

	switch {
	case mime.Is("audio/wav"):
		samples, rate, channels, err := DecodeWAVBytes(data)
		if err != nil {
			return nil, err
		}
		return Convert(samples, rate, channels)

	case mime.Is("audio/ogg") || mime.Is("audio/opus"):
		if ffmpegAvailable() {
			return convertWithFFmpeg(path)
		}
		samples, rate, channels, err := decodeOggOpusSafe(data)
		if err != nil {
			return nil, fmt.Errorf("audio: ogg decoding failed (%v) - install ffmpeg for reliable conversion", err)
		}
		return Convert(samples, rate, channels)
	}

	if ffmpegAvailable() {
		return convertWithFFmpeg(path)
	}
	return nil, fmt.Errorf("audio: unsupported format %s (install ffmpeg for non-wav/ogg input)", mime.String())
}

// decodeOggOpusSafe recovers from decoder panics; pion/opus panics on some streams.
func decodeOggOpusSafe(data []byte) (samples []int16, rate, channels int, err error) {
	defer func() {
		if r := recover(); r != nil {
			L_warn("audio: opus decoder panicked, recovered", "panic", r)
			samples, rate, channels = nil, 0, 0
			err = fmt.Errorf("decoder panic: %v", r)
		}
	}()
	return decodeOggOpus(data)
}

func decodeOggOpus(data []byte) ([]int16, int, int, error) {
	ogg, header, err := oggreader.NewWith(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("parse ogg container: %w", err)
	}

	channels := int(header.Channels)
	decoder := opus.NewDecoder()
	frame := make([]byte, maxOpusFrameSize*2*2)

	var out []int16
	stereo := false
	for {
		segments, _, err := ogg.ParseNextPage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, 0, fmt.Errorf("parse ogg page: %w", err)
		}
		for _, packet := range segments {
			if len(packet) == 0 {
				continue
			}
			clear(frame)
			_, isStereo, err := decoder.Decode(packet, frame)
			if err != nil {
				// header and comment packets land here
				L_trace("audio: skipping opus packet", "error", err, "len", len(packet))
				continue
			}
			stereo = isStereo
			out = append(out, trimTrailingSilence(frame)...)
		}
	}

	if len(out) == 0 {
		return nil, 0, 0, fmt.Errorf("no audio samples decoded")
	}
	if stereo {
		channels = 2
	} else if channels == 0 {
		channels = 1
	}

	rate := int(header.SampleRate)
	if rate == 0 {
		rate = 48000
	}
	return out, rate, channels, nil
}

// trimTrailingSilence reads little-endian int16 samples from a decode buffer,
// stopping where the remainder of the buffer is unused (all zero).
func trimTrailingSilence(buf []byte) []int16 {
	end := len(buf) &^ 1
	for end >= 2 && buf[end-1] == 0 && buf[end-2] == 0 {
		end -= 2
	}
	samples := make([]int16, end/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2:])) // #nosec G115 - reinterpreting sample bits
	}
	return samples
}

func ffmpegAvailable() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// convertWithFFmpeg asks ffmpeg for 16 kHz mono s16le on stdout.
func convertWithFFmpeg(path string) ([]int16, error) {
	// #nosec G204 - path comes from the CLI argument of the invoking user
	cmd := exec.Command("ffmpeg",
		"-loglevel", "error",
		"-i", path,
		"-ar", strconv.Itoa(SampleRate),
		"-ac", "1",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		L_debug("audio: ffmpeg output", "stderr", strings.TrimSpace(stderr.String()))
		return nil, fmt.Errorf("audio: ffmpeg conversion failed: %w", err)
	}

	raw := stdout.Bytes()
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:])) // #nosec G115 - reinterpreting sample bits
	}
	return samples, nil
}
