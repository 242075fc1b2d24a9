package stt

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	. "github.com/roelfdiedericks/voxpaste/internal/logging"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIBackend transcribes with OpenAI's audio API through go-openai.
// Any OpenAI-compatible endpoint works via BaseURL.
type OpenAIBackend struct {
	client *openai.Client
	model  string
}

// NewOpenAIBackend creates a new OpenAI transcription backend.
func NewOpenAIBackend(cfg OpenAIConfig) (*OpenAIBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key not configured")
	}

	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	L_debug("stt: openai backend initialized", "model", model, "baseURL", config.BaseURL)

	return &OpenAIBackend{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

// Transcribe uploads the utterance WAV and returns the plain-text transcript.
func (o *OpenAIBackend) Transcribe(ctx context.Context, req *Request) (string, error) {
	L_debug("stt: sending to openai", "model", o.model, "bytes", len(req.WAV))

	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.model,
		FilePath: "utterance.wav",
		Reader:   bytes.NewReader(req.WAV),
		Prompt:   req.HintPrompt(),
		Language: req.LanguageOrDefault(),
		Format:   openai.AudioResponseFormatText,
	})
	if err != nil {
		return "", fmt.Errorf("openai transcription: %w", err)
	}

	return strings.TrimSpace(resp.Text), nil
}

// Name returns the backend name.
func (o *OpenAIBackend) Name() string {
	return "openai"
}
