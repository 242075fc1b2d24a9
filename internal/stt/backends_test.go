package stt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var testWAV = []byte("RIFF....WAVEfmt fake-audio")

func TestGroqBackend(t *testing.T) {
	var gotAuth, gotModel, gotLang, gotPrompt, gotFormat string
	var gotFile []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
			return
		}
		gotModel = r.FormValue("model")
		gotLang = r.FormValue("language")
		gotPrompt = r.FormValue("prompt")
		gotFormat = r.FormValue("response_format")
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer f.Close()
		if hdr.Filename != "utterance.wav" {
			t.Errorf("filename = %s", hdr.Filename)
		}
		gotFile, _ = io.ReadAll(f)
		io.WriteString(w, " hello world \n")
	}))
	defer srv.Close()

	b, err := NewGroqBackend(GroqConfig{APIKey: "gsk-test", BaseURL: srv.URL + "/"})
	if err != nil {
		t.Fatalf("NewGroqBackend failed: %v", err)
	}
	text, err := b.Transcribe(context.Background(), &Request{WAV: testWAV, Hints: []string{"Kubernetes"}})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if text != "hello world" {
		t.Errorf("text = %q", text)
	}
	if gotAuth != "Bearer gsk-test" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotModel != "whisper-large-v3-turbo" {
		t.Errorf("model = %q, want default", gotModel)
	}
	if gotLang != "en" || gotFormat != "text" {
		t.Errorf("language = %q format = %q", gotLang, gotFormat)
	}
	if gotPrompt != "This audio may contain these terms: Kubernetes." {
		t.Errorf("prompt = %q", gotPrompt)
	}
	if string(gotFile) != string(testWAV) {
		t.Error("uploaded audio does not match")
	}
}

func TestGroqBackendAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"message":"rate limit reached"}}`)
	}))
	defer srv.Close()

	b, _ := NewGroqBackend(GroqConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := b.Transcribe(context.Background(), &Request{WAV: testWAV})
	if err == nil || !strings.Contains(err.Error(), "rate limit reached") || !strings.Contains(err.Error(), "429") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestGroqBackendNoPromptWithoutHints(t *testing.T) {
	hasPrompt := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(1 << 20)
		_, hasPrompt = r.MultipartForm.Value["prompt"]
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	b, _ := NewGroqBackend(GroqConfig{APIKey: "k", BaseURL: srv.URL})
	if _, err := b.Transcribe(context.Background(), &Request{WAV: testWAV}); err != nil {
		t.Fatal(err)
	}
	if hasPrompt {
		t.Error("prompt field should be omitted when there are no hints")
	}
}

func TestOpenAIBackend(t *testing.T) {
	var gotModel, gotPrompt, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("auth = %q", r.Header.Get("Authorization"))
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotModel = r.FormValue("model")
		gotPrompt = r.FormValue("prompt")
		gotLang = r.FormValue("language")
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, "Hello there.\n")
	}))
	defer srv.Close()

	b, err := NewOpenAIBackend(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewOpenAIBackend failed: %v", err)
	}
	text, err := b.Transcribe(context.Background(), &Request{WAV: testWAV, Language: "fr", Hints: []string{"Qdrant"}})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "Hello there." {
		t.Errorf("text = %q", text)
	}
	if gotModel != "whisper-1" {
		t.Errorf("model = %q", gotModel)
	}
	if gotLang != "fr" {
		t.Errorf("language = %q", gotLang)
	}
	if gotPrompt != "This audio may contain these terms: Qdrant." {
		t.Errorf("prompt = %q", gotPrompt)
	}
}

func TestGoogleBackend(t *testing.T) {
	var got googleRecognizeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/speech:recognize" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("X-Goog-Api-Key") != "AIza-test" {
			t.Errorf("api key header = %q", r.Header.Get("X-Goog-Api-Key"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		io.WriteString(w, `{"results":[
			{"alternatives":[{"transcript":"Hello","confidence":0.9},{"transcript":"Yellow"}]},
			{"alternatives":[{"transcript":" world "}]},
			{"alternatives":[]}
		]}`)
	}))
	defer srv.Close()

	b, err := NewGoogleBackend(GoogleConfig{APIKey: "AIza-test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewGoogleBackend failed: %v", err)
	}
	text, err := b.Transcribe(context.Background(), &Request{WAV: testWAV, Hints: []string{"Nguyen", "nguyen"}})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "Hello world" {
		t.Errorf("text = %q", text)
	}

	if got.Config.Encoding != "LINEAR16" || got.Config.SampleRateHertz != 16000 {
		t.Errorf("unexpected audio config: %+v", got.Config)
	}
	if got.Config.LanguageCode != "en" {
		t.Errorf("language = %q, want request default", got.Config.LanguageCode)
	}
	if len(got.Config.SpeechContexts) != 1 || len(got.Config.SpeechContexts[0].Phrases) != 1 || got.Config.SpeechContexts[0].Phrases[0] != "Nguyen" {
		t.Errorf("speech contexts = %+v", got.Config.SpeechContexts)
	}
	audio, _ := base64.StdEncoding.DecodeString(got.Audio.Content)
	if string(audio) != string(testWAV) {
		t.Error("audio content does not round-trip")
	}
}

func TestGoogleBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"error":{"message":"API key not valid"}}`)
	}))
	defer srv.Close()

	b, _ := NewGoogleBackend(GoogleConfig{APIKey: "bad", BaseURL: srv.URL, LanguageCode: "en-ZA"})
	_, err := b.Transcribe(context.Background(), &Request{WAV: testWAV})
	if err == nil || !strings.Contains(err.Error(), "API key not valid") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBackendsRequireAPIKey(t *testing.T) {
	if _, err := NewGroqBackend(GroqConfig{}); err == nil {
		t.Error("groq: expected error without API key")
	}
	if _, err := NewOpenAIBackend(OpenAIConfig{}); err == nil {
		t.Error("openai: expected error without API key")
	}
	if _, err := NewGoogleBackend(GoogleConfig{}); err == nil {
		t.Error("google: expected error without API key")
	}
}

func TestBuildChain(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "ggml-base.en.bin"), []byte("ggml"), 0600); err != nil {
		t.Fatal(err)
	}
	cache := NewModelCache(&fakeEngine{}, 0)

	cfg := Config{
		Order:  []string{"groq", "OpenAI", "google", "local"},
		Groq:   GroqConfig{APIKey: "g", TimeoutMs: 3000},
		OpenAI: OpenAIConfig{},
		Google: GoogleConfig{APIKey: "k"},
		Local:  LocalConfig{ModelsDir: dir, Model: "ggml-base.en.bin"},
	}
	chain, local, err := BuildChain(cfg, cache)
	if err != nil {
		t.Fatalf("BuildChain failed: %v", err)
	}
	if got := strings.Join(chain.Backends(), ","); got != "groq,google,local" {
		t.Errorf("backends = %s, want groq,google,local", got)
	}
	if local == nil {
		t.Fatal("expected local backend")
	}
	if chain.backends[0].Timeout.Milliseconds() != 3000 {
		t.Errorf("groq timeout = %v", chain.backends[0].Timeout)
	}
	if chain.backends[1].Timeout != DefaultBackendTimeout {
		t.Errorf("google timeout = %v", chain.backends[1].Timeout)
	}
	if err := local.Warm(); err != nil {
		t.Errorf("Warm failed: %v", err)
	}
}

func TestBuildChainErrors(t *testing.T) {
	if _, _, err := BuildChain(Config{Order: []string{"azure"}}, nil); err == nil {
		t.Error("expected error for unknown backend")
	}
	if _, _, err := BuildChain(Config{Order: []string{"groq", "local"}}, nil); err == nil {
		t.Error("expected error when nothing usable is configured")
	}
	if _, _, err := BuildChain(Config{Order: []string{"groq", "groq"}, Groq: GroqConfig{APIKey: "k"}}, nil); err == nil {
		t.Error("expected error for duplicate backend")
	}
}
