package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/speakez/pkg/audio"
	"github.com/MrWong99/speakez/pkg/provider/tts"
	ttsmock "github.com/MrWong99/speakez/pkg/provider/tts/mock"
)

// plainTTS is a provider without a voice catalogue.
type plainTTS struct{}

func (plainTTS) Synthesize(context.Context, string, tts.Options) (*tts.Audio, error) {
	return &tts.Audio{}, nil
}

func TestTTSFallback_PrimarySuccess(t *testing.T) {
	primary := &ttsmock.Provider{Result: &tts.Audio{Data: []byte("mp3"), Encoding: audio.EncodingMP3}}
	secondary := &ttsmock.Provider{}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{})
	fb.AddFallback("secondary", secondary)

	got, err := fb.Synthesize(context.Background(), "hello", tts.Options{Language: "en"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got.Data) != "mp3" || got.Encoding != audio.EncodingMP3 {
		t.Errorf("audio = %+v", got)
	}
	if primary.LastText() != "hello" || secondary.CallCount() != 0 {
		t.Errorf("unexpected calls: primary %q, secondary %d", primary.LastText(), secondary.CallCount())
	}
}

func TestTTSFallback_Failover(t *testing.T) {
	primary := &ttsmock.Provider{Err: errors.New("quota exceeded")}
	secondary := &ttsmock.Provider{Result: &tts.Audio{Data: []byte("wav"), Encoding: audio.EncodingWAV}}

	fb := NewTTSFallback(primary, "primary", FallbackConfig{})
	fb.AddFallback("secondary", secondary)

	got, err := fb.Synthesize(context.Background(), "hello", tts.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Encoding != audio.EncodingWAV {
		t.Errorf("encoding = %q, want wav", got.Encoding)
	}
	if primary.CallCount() != 1 || secondary.CallCount() != 1 {
		t.Errorf("calls = %d/%d, want 1/1", primary.CallCount(), secondary.CallCount())
	}
}

func TestTTSFallback_AllFail(t *testing.T) {
	fb := NewTTSFallback(&ttsmock.Provider{Err: errTest}, "primary", FallbackConfig{})
	fb.AddFallback("secondary", &ttsmock.Provider{Err: errTest})

	if _, err := fb.Synthesize(context.Background(), "hello", tts.Options{}); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestTTSFallback_EmptyText(t *testing.T) {
	primary := &ttsmock.Provider{}
	fb := NewTTSFallback(primary, "primary", FallbackConfig{})

	if _, err := fb.Synthesize(context.Background(), "  \n", tts.Options{}); !errors.Is(err, tts.ErrEmptyText) {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
	if primary.CallCount() != 0 {
		t.Error("provider called for blank text")
	}
}

func TestTTSFallback_ListVoices(t *testing.T) {
	voices := []tts.Voice{{ID: "en", Name: "English", Provider: "mock"}}
	fb := NewTTSFallback(plainTTS{}, "plain", FallbackConfig{})
	fb.AddFallback("mock", &ttsmock.Provider{Voices: voices})

	got, err := fb.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(got) != 1 || got[0].ID != "en" {
		t.Errorf("voices = %v, want the mock catalogue", got)
	}

	fb = NewTTSFallback(&ttsmock.Provider{ListVoicesErr: errTest}, "broken", FallbackConfig{})
	fb.AddFallback("mock", &ttsmock.Provider{Voices: voices})
	got, err = fb.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(got) != 1 || got[0].ID != "en" {
		t.Errorf("voices = %v", got)
	}

	fb = NewTTSFallback(plainTTS{}, "plain", FallbackConfig{})
	if got, err := fb.ListVoices(context.Background()); err != nil || got != nil {
		t.Errorf("ListVoices = %v, %v; want nil, nil", got, err)
	}
}
