package vosk

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/MrWong99/speakez/pkg/audio"
	"github.com/MrWong99/speakez/pkg/provider/stt"
)

func TestParseResult(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`{"text" : "hello world"}`, "hello world"},
		{`{"text" : ""}`, ""},
		{"{\n  \"text\" : \" padded \"\n}", "padded"},
	}
	for _, tc := range tests {
		got, err := parseResult(tc.raw)
		if err != nil {
			t.Errorf("parseResult(%q): %v", tc.raw, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseResult(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
	if _, err := parseResult("not json"); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestNew_EmptyPath(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty model path")
	}
}

func TestTranscribe_Model(t *testing.T) {
	path := os.Getenv("VOSK_MODEL_PATH")
	if path == "" {
		t.Skip("VOSK_MODEL_PATH not set; skipping vosk model test")
	}
	p, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	if _, err := p.Transcribe(context.Background(), stt.Request{}); !errors.Is(err, stt.ErrEmptyAudio) {
		t.Errorf("err = %v, want ErrEmptyAudio", err)
	}

	silence := audio.EncodeWAV(make([]byte, 32000), audio.Format{SampleRate: 16000, Channels: 1})
	tr, err := p.Transcribe(context.Background(), stt.Request{Audio: silence})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "" {
		t.Errorf("Text = %q, want empty for silence", tr.Text)
	}
}
