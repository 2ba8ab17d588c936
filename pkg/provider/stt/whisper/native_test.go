package whisper_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/MrWong99/speakez/pkg/provider/stt"
	"github.com/MrWong99/speakez/pkg/provider/stt/whisper"
)

func TestNewNative_BadModelPath(t *testing.T) {
	for _, path := range []string{"", "/nonexistent/ggml-base.bin"} {
		if p, err := whisper.NewNative(path); err == nil {
			p.Close()
			t.Errorf("NewNative(%q): expected error", path)
		}
	}
}

// The remaining checks need a real ggml model, e.g. ggml-tiny.en.bin.
func TestNativeProvider_WithModel(t *testing.T) {
	model := os.Getenv("WHISPER_MODEL_PATH")
	if model == "" {
		t.Skip("WHISPER_MODEL_PATH not set")
	}
	p, err := whisper.NewNative(model, whisper.WithNativeLanguage("en"), whisper.WithNativeConcurrency(2))
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	t.Cleanup(func() { p.Close() })

	t.Run("silence skips inference", func(t *testing.T) {
		got, err := p.Transcribe(context.Background(), stt.Request{Audio: makeWAV(makeSilencePCM(16000), 16000)})
		if err != nil {
			t.Fatalf("Transcribe: %v", err)
		}
		if got.Text != "" || got.Language != "en" {
			t.Errorf("transcript = %+v, want empty English result", got)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := p.Transcribe(ctx, stt.Request{Audio: makeWAV(makeSpeechPCM(16000), 16000)})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	})

	t.Run("closed", func(t *testing.T) {
		if err := p.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if err := p.Close(); err != nil {
			t.Fatalf("second Close: %v", err)
		}
		_, err := p.Transcribe(context.Background(), stt.Request{Audio: makeWAV(makeSpeechPCM(16000), 16000)})
		if !errors.Is(err, whisper.ErrClosed) {
			t.Fatalf("err = %v, want ErrClosed", err)
		}
	})
}
