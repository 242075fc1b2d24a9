package stt

import (
	"os"
	"path/filepath"
	"testing"
)

func TestModelPath(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		model   string
		wantErr bool
	}{
		{"bare name", "ggml-base.en.bin", false},
		{"empty", "", true},
		{"traversal", "../ggml-base.en.bin", true},
		{"subdir", "sub/ggml.bin", true},
		{"backslash", `sub\ggml.bin`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ModelPath(dir, tt.model)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ModelPath(%q) error = %v, wantErr %v", tt.model, err, tt.wantErr)
			}
			if !tt.wantErr && got != filepath.Join(dir, tt.model) {
				t.Errorf("ModelPath = %q", got)
			}
		})
	}
}

func TestListModels(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "ggml-tiny.en.bin"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ggml-base.en.bin"), nil, 0600); err != nil {
		t.Fatal(err)
	}

	present := map[string]bool{}
	for _, m := range ListModels(dir) {
		present[m.Name] = m.Present
	}
	if !present["ggml-tiny.en.bin"] {
		t.Error("tiny.en should be present")
	}
	if present["ggml-base.en.bin"] {
		t.Error("empty file must not count as present")
	}
	if GetModel("ggml-tiny.en.bin") == nil || GetModel("nope.bin") != nil {
		t.Error("GetModel lookup mismatch")
	}
}
