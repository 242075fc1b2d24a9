// Package whispercpp implements the stt engine boundary on whisper.cpp.
package whispercpp

import (
	"errors"
	"fmt"
	"io"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	. "github.com/roelfdiedericks/voxpaste/internal/logging"
	"github.com/roelfdiedericks/voxpaste/internal/stt"
)

// Engine loads ggml model files with whisper.cpp.
type Engine struct{}

// New returns a whisper.cpp engine.
func New() *Engine {
	return &Engine{}
}

// Load initializes a model context from a ggml file. The Go bindings pick the
// compute backend when libwhisper is built, so useGPU is informational here.
func (e *Engine) Load(path string, useGPU bool) (stt.EngineContext, error) {
	model, err := whisper.New(path)
	if err != nil {
		return nil, fmt.Errorf("whisper init: %w", err)
	}
	L_debug("whispercpp: model initialized",
		"path", path,
		"multilingual", model.IsMultilingual(),
		"gpuRequested", useGPU)
	return &modelContext{model: model}, nil
}

type modelContext struct {
	model whisper.Model
}

// Transcribe runs one full decode. A fresh decoding context per call keeps
// state from leaking between utterances; the model weights stay loaded.
func (m *modelContext) Transcribe(samples []float32, opts stt.DecodeOptions) ([]stt.Segment, error) {
	ctx, err := m.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("create whisper context: %w", err)
	}

	if opts.Language != "" {
		if err := ctx.SetLanguage(opts.Language); err != nil {
			L_warn("whispercpp: failed to set language", "language", opts.Language, "error", err)
		}
	}
	if opts.Threads > 0 {
		ctx.SetThreads(uint(opts.Threads))
	}
	if opts.Prompt != "" {
		ctx.SetInitialPrompt(opts.Prompt)
	}

	if err := ctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper process: %w", err)
	}

	var segments []stt.Segment
	for {
		seg, err := ctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("get segment: %w", err)
		}
		segments = append(segments, stt.Segment{
			Text:    seg.Text,
			StartMs: seg.Start.Milliseconds(),
			EndMs:   seg.End.Milliseconds(),
		})
	}
	return segments, nil
}

func (m *modelContext) Free() error {
	return m.model.Close()
}
