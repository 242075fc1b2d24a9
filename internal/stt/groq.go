package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	. "github.com/roelfdiedericks/voxpaste/internal/logging"
)

const groqDefaultBaseURL = "https://api.groq.com/openai/v1"

// GroqBackend transcribes with Groq's Whisper API over a plain multipart upload.
type GroqBackend struct {
	config GroqConfig
	client *http.Client
}

// NewGroqBackend creates a new Groq Whisper backend.
func NewGroqBackend(cfg GroqConfig) (*GroqBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("groq API key not configured")
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-large-v3-turbo"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = groqDefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	L_debug("stt: groq backend initialized", "model", cfg.Model)

	return &GroqBackend{
		config: cfg,
		client: &http.Client{},
	}, nil
}

// Transcribe uploads the utterance WAV and returns the plain-text transcript.
func (g *GroqBackend) Transcribe(ctx context.Context, req *Request) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(req.WAV); err != nil {
		return "", fmt.Errorf("write audio to form: %w", err)
	}

	fields := [][2]string{
		{"model", g.config.Model},
		{"response_format", "text"},
		{"language", req.LanguageOrDefault()},
	}
	if prompt := req.HintPrompt(); prompt != "" {
		fields = append(fields, [2]string{"prompt", prompt})
	}
	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return "", fmt.Errorf("write %s field: %w", f[0], err)
		}
	}

	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.BaseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.config.APIKey)
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	L_debug("stt: sending to groq", "model", g.config.Model, "bytes", len(req.WAV))

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", apiError("groq", resp.StatusCode, body)
	}

	return strings.TrimSpace(string(body)), nil
}

// Name returns the backend name.
func (g *GroqBackend) Name() string {
	return "groq"
}

// apiError builds an error from an OpenAI-style error body, falling back to
// the status code.
func apiError(vendor string, status int, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		return fmt.Errorf("%s API error (status %d): %s", vendor, status, errResp.Error.Message)
	}
	return fmt.Errorf("%s API error: status %d", vendor, status)
}
