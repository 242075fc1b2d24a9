package paste

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func requireCommand(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available", name)
	}
}

func TestScriptCopyTimeoutKillsCommand(t *testing.T) {
	requireCommand(t, "sleep")
	s := NewScript(ScriptConfig{Copy: []string{"sleep", "5"}, Paste: []string{"true"}})

	start := time.Now()
	err := s.Copy(context.Background(), "hello")
	elapsed := time.Since(start)

	var terr *CopyTimeoutError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want *CopyTimeoutError", err)
	}
	if terr.Timeout != CopyTimeout {
		t.Errorf("timeout = %v, want %v", terr.Timeout, CopyTimeout)
	}
	if elapsed > 2*time.Second {
		t.Errorf("copy took %v, command was not killed", elapsed)
	}
}

func TestScriptPasteTimeoutKillsCommand(t *testing.T) {
	requireCommand(t, "sleep")
	s := NewScript(ScriptConfig{Copy: []string{"true"}, Paste: []string{"sleep", "5"}})

	start := time.Now()
	err := s.Paste(context.Background())
	elapsed := time.Since(start)

	var terr *PasteTimeoutError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want *PasteTimeoutError", err)
	}
	if elapsed < PasteTimeout {
		t.Errorf("paste returned after %v, before its timeout", elapsed)
	}
	if elapsed > 2*time.Second {
		t.Errorf("paste took %v, command was not killed", elapsed)
	}
}

func TestScriptCopyWritesStdin(t *testing.T) {
	requireCommand(t, "sh")
	out := filepath.Join(t.TempDir(), "clip.txt")
	s := NewScript(ScriptConfig{Copy: []string{"sh", "-c", "cat > " + out}, Paste: []string{"true"}})
	// shell startup can be slow on loaded CI machines
	s.copyTimeout = 5 * time.Second

	if err := s.Copy(context.Background(), "hello world"); err != nil {
		t.Fatalf("Copy failed: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello world" {
		t.Errorf("copied %q, want %q", data, "hello world")
	}
}

func TestScriptCommandFailure(t *testing.T) {
	requireCommand(t, "sh")
	s := NewScript(ScriptConfig{Copy: []string{"true"}, Paste: []string{"sh", "-c", "echo no display >&2; exit 3"}})
	s.pasteTimeout = 5 * time.Second

	err := s.Paste(context.Background())
	var cerr *CommandError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want *CommandError", err)
	}
	if cerr.Step != "paste" || cerr.Stderr != "no display" {
		t.Errorf("unexpected error fields: %+v", cerr)
	}
	if !strings.Contains(err.Error(), "exit status 3") {
		t.Errorf("error = %v", err)
	}
}

func TestScriptParentCancelIsNotTimeout(t *testing.T) {
	requireCommand(t, "sleep")
	s := NewScript(ScriptConfig{Copy: []string{"sleep", "5"}, Paste: []string{"true"}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Copy(ctx, "x")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestDefaultScriptConfig(t *testing.T) {
	env := func(vals map[string]string) func(string) string {
		return func(k string) string { return vals[k] }
	}
	tests := []struct {
		goos      string
		env       map[string]string
		wantCopy  string
		wantPaste string
	}{
		{"darwin", nil, "pbcopy", "osascript"},
		{"windows", nil, "clip", "powershell"},
		{"linux", map[string]string{"WAYLAND_DISPLAY": "wayland-0"}, "wl-copy", "wtype"},
		{"linux", map[string]string{"DISPLAY": ":0"}, "xclip", "xdotool"},
		{"freebsd", nil, "xclip", "xdotool"},
	}
	for _, tt := range tests {
		cfg := defaultScriptConfig(tt.goos, env(tt.env))
		if cfg.Copy[0] != tt.wantCopy || cfg.Paste[0] != tt.wantPaste {
			t.Errorf("%s %v: got %v / %v", tt.goos, tt.env, cfg.Copy, cfg.Paste)
		}
	}
}

func TestNewScriptFillsDefaults(t *testing.T) {
	s := NewScript(ScriptConfig{Copy: []string{"mycopy"}})
	if s.copyCmd[0] != "mycopy" {
		t.Errorf("copy = %v", s.copyCmd)
	}
	if len(s.pasteCmd) == 0 {
		t.Error("paste command should default")
	}
	if s.copyTimeout != 200*time.Millisecond || s.pasteTimeout != 500*time.Millisecond {
		t.Errorf("timeouts = %v / %v", s.copyTimeout, s.pasteTimeout)
	}
}
