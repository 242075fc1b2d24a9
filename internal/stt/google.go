package stt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	. "github.com/roelfdiedericks/voxpaste/internal/logging"
)

const googleDefaultBaseURL = "https://speech.googleapis.com/v1"

// GoogleBackend transcribes with the Google Cloud Speech-to-Text REST API.
type GoogleBackend struct {
	config GoogleConfig
	client *http.Client
}

// NewGoogleBackend creates a new Google Cloud STT backend.
func NewGoogleBackend(cfg GoogleConfig) (*GoogleBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("google API key not configured")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = googleDefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	L_debug("stt: google backend initialized", "language", cfg.LanguageCode)

	return &GoogleBackend{config: cfg, client: &http.Client{}}, nil
}

type googleRecognizeRequest struct {
	Config googleRecognitionConfig `json:"config"`
	Audio  struct {
		Content string `json:"content"`
	} `json:"audio"`
}

type googleRecognitionConfig struct {
	Encoding                   string                `json:"encoding"`
	SampleRateHertz            int                   `json:"sampleRateHertz"`
	LanguageCode               string                `json:"languageCode"`
	EnableAutomaticPunctuation bool                  `json:"enableAutomaticPunctuation"`
	SpeechContexts             []googleSpeechContext `json:"speechContexts,omitempty"`
}

type googleSpeechContext struct {
	Phrases []string `json:"phrases"`
}

// Transcribe sends the WAV as LINEAR16. The recognition vocabulary travels as
// speechContexts phrases, which the API only uses to bias recognition.
func (g *GoogleBackend) Transcribe(ctx context.Context, req *Request) (string, error) {
	lang := g.config.LanguageCode
	if lang == "" {
		lang = req.LanguageOrDefault()
	}

	body := googleRecognizeRequest{
		Config: googleRecognitionConfig{
			Encoding:                   "LINEAR16",
			SampleRateHertz:            16000,
			LanguageCode:               lang,
			EnableAutomaticPunctuation: true,
		},
	}
	body.Audio.Content = base64.StdEncoding.EncodeToString(req.WAV)
	if hints := SanitizeHints(req.Hints); len(hints) > 0 {
		body.Config.SpeechContexts = []googleSpeechContext{{Phrases: hints}}
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.BaseURL+"/speech:recognize", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", g.config.APIKey)

	L_debug("stt: sending to google", "language", lang, "bytes", len(req.WAV))

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", apiError("google", resp.StatusCode, respBody)
	}

	var result struct {
		Results []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"results"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}

	var transcripts []string
	for _, r := range result.Results {
		if len(r.Alternatives) > 0 {
			transcripts = append(transcripts, strings.TrimSpace(r.Alternatives[0].Transcript))
		}
	}
	return strings.Join(transcripts, " "), nil
}

// Name returns the backend name.
func (g *GoogleBackend) Name() string {
	return "google"
}
