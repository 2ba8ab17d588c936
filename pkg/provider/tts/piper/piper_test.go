package piper

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/speakez/pkg/audio"
	"github.com/MrWong99/speakez/pkg/provider/tts"
)

func writeStub(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs are not supported on windows")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "piper")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestNew_EmptyModel(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty model")
	}
}

func TestArgs(t *testing.T) {
	p, _ := New("en_US-lessac-medium.onnx")

	got := p.args(tts.Options{})
	want := []string{"--model", "en_US-lessac-medium.onnx", "--output-raw", "--quiet"}
	if !slices.Equal(got, want) {
		t.Errorf("args = %v, want %v", got, want)
	}

	got = p.args(tts.Options{Voice: "3", Speed: 2})
	joined := strings.Join(got, " ")
	if !strings.Contains(joined, "--speaker 3") || !strings.Contains(joined, "--length_scale 0.500") {
		t.Errorf("args = %v", got)
	}
}

func TestSynthesize_ReadsStdout(t *testing.T) {
	// The stub echoes the text it receives, so the output length depends on it.
	stub := writeStub(t, "cat\n")
	p, _ := New("model.onnx", WithBinary(stub), WithSampleRate(16000))

	clip, err := p.Synthesize(context.Background(), "hello", tts.Options{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if clip.Encoding != audio.EncodingPCM || clip.Format.SampleRate != 16000 || clip.Format.Channels != 1 {
		t.Errorf("clip = %s %v", clip.Encoding, clip.Format)
	}
	// "hello\n" is 6 bytes, already even.
	if string(clip.Data) != "hello\n" {
		t.Errorf("Data = %q", clip.Data)
	}
}

func TestSynthesize_Failure(t *testing.T) {
	stub := writeStub(t, "echo 'model not found' >&2\nexit 2\n")
	p, _ := New("missing.onnx", WithBinary(stub))

	_, err := p.Synthesize(context.Background(), "hello", tts.Options{})
	if err == nil || !strings.Contains(err.Error(), "model not found") {
		t.Fatalf("err = %v, want stderr in message", err)
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	p, _ := New("model.onnx")
	if _, err := p.Synthesize(context.Background(), "  ", tts.Options{}); !errors.Is(err, tts.ErrEmptyText) {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
}
