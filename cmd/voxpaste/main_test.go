package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/roelfdiedericks/voxpaste/internal/dictation"
	"github.com/roelfdiedericks/voxpaste/internal/paste"
)

type result struct {
	rep *dictation.Report
	err error
}

// fakeProcessor answers by input name; stdin is keyed as "-".
type fakeProcessor struct {
	results map[string]result
	stdin   []byte
}

func (f *fakeProcessor) Process(ctx context.Context, pcm []byte) (*dictation.Report, error) {
	f.stdin = pcm
	r := f.results["-"]
	return r.rep, r.err
}

func (f *fakeProcessor) ProcessFile(ctx context.Context, path string) (*dictation.Report, error) {
	r := f.results[path]
	return r.rep, r.err
}

func pasted(text string) result {
	return result{rep: &dictation.Report{Outcome: paste.OutcomePasted, Pasted: text}}
}

func copiedOnly(text string, err error) result {
	return result{rep: &dictation.Report{Outcome: paste.OutcomeCopiedOnly, Pasted: text, PasteErr: err}}
}

func TestDictateInputsAllPasted(t *testing.T) {
	p := &fakeProcessor{results: map[string]result{
		"a.wav": pasted("Hello."),
		"b.wav": pasted(" World."),
	}}

	delivered, err := dictateInputs(context.Background(), p, []string{"a.wav", "b.wav"}, strings.NewReader(""))
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if !delivered {
		t.Error("delivered = false")
	}
}

func TestDictateInputsCopiedOnlyIsAnError(t *testing.T) {
	p := &fakeProcessor{results: map[string]result{
		"a.wav": copiedOnly("Hello.", paste.ErrNoFocusedInput),
	}}

	delivered, err := dictateInputs(context.Background(), p, []string{"a.wav"}, strings.NewReader(""))
	if !delivered {
		t.Error("copied-only text should count as delivered")
	}
	if err == nil {
		t.Fatal("expected an error for a copied-only utterance")
	}
	if !errors.Is(err, paste.ErrNoFocusedInput) {
		t.Errorf("err = %v, want it to wrap ErrNoFocusedInput", err)
	}
	if !strings.Contains(err.Error(), "1 of 1 only copied") {
		t.Errorf("err = %q", err)
	}
}

func TestDictateInputsFailuresContinue(t *testing.T) {
	boom := errors.New("no speech")
	p := &fakeProcessor{results: map[string]result{
		"bad.wav":  {err: boom},
		"good.wav": pasted("Fine."),
	}}

	delivered, err := dictateInputs(context.Background(), p, []string{"bad.wav", "good.wav"}, strings.NewReader(""))
	if !delivered {
		t.Error("the second input should still be delivered")
	}
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if !strings.Contains(err.Error(), "1 of 2 failed") {
		t.Errorf("err = %q", err)
	}
}

func TestDictateInputsEveryInputFails(t *testing.T) {
	p := &fakeProcessor{results: map[string]result{
		"a.wav": {err: errors.New("decode")},
		"b.wav": {err: errors.New("decode")},
	}}

	delivered, err := dictateInputs(context.Background(), p, []string{"a.wav", "b.wav"}, strings.NewReader(""))
	if delivered {
		t.Error("nothing should be delivered")
	}
	if err == nil || !strings.Contains(err.Error(), "2 of 2 failed") {
		t.Errorf("err = %v", err)
	}
}

func TestDictateInputsReadsStdin(t *testing.T) {
	p := &fakeProcessor{results: map[string]result{"-": pasted("Hi.")}}

	_, err := dictateInputs(context.Background(), p, []string{"-"}, strings.NewReader("\x01\x02\x03\x04"))
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if string(p.stdin) != "\x01\x02\x03\x04" {
		t.Errorf("stdin = %q", p.stdin)
	}
}

func TestDeliveryTally(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []paste.Outcome
		wantErr  string
	}{
		{"all pasted", []paste.Outcome{paste.OutcomePasted, paste.OutcomePasted}, ""},
		{"copied", []paste.Outcome{paste.OutcomePasted, paste.OutcomeCopiedOnly}, "1 of 2 only copied"},
		{"failed", []paste.Outcome{paste.OutcomeFailed, paste.OutcomeCopiedOnly}, "1 of 2 failed, 1 only copied"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tally deliveryTally
			for _, o := range tt.outcomes {
				tally.add(o, nil)
			}
			err := tally.err()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("err = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}
