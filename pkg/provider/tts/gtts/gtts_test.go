package gtts

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/MrWong99/speakez/pkg/audio"
	"github.com/MrWong99/speakez/pkg/provider/tts"
)

func TestSplitText(t *testing.T) {
	if got := splitText("   ", 100); len(got) != 0 {
		t.Errorf("splitText(blank) = %v, want none", got)
	}
	if got := splitText("hello   world", 100); len(got) != 1 || got[0] != "hello world" {
		t.Errorf("splitText(short) = %v", got)
	}

	long := strings.Repeat("word ", 60)
	chunks := splitText(long, 100)
	if len(chunks) < 3 {
		t.Fatalf("expected at least 3 chunks, got %d", len(chunks))
	}
	var words int
	for _, c := range chunks {
		if utf8.RuneCountInString(c) > 100 {
			t.Errorf("chunk exceeds limit: %d runes", utf8.RuneCountInString(c))
		}
		words += len(strings.Fields(c))
	}
	if words != 60 {
		t.Errorf("words across chunks = %d, want 60", words)
	}

	huge := strings.Repeat("x", 250)
	chunks = splitText(huge, 100)
	if len(chunks) != 3 || len(chunks[2]) != 50 {
		t.Errorf("splitText(huge) = %d chunks", len(chunks))
	}
}

func TestSplitText_PrefersSentenceBreaks(t *testing.T) {
	text := "This is the first sentence of the practice text here. And this is a second one that follows it."
	chunks := splitText(text, 100)
	if len(chunks) != 2 {
		t.Fatalf("chunks = %q", chunks)
	}
	if !strings.HasSuffix(chunks[0], "here.") {
		t.Errorf("first chunk = %q, want break after sentence", chunks[0])
	}
}

func TestNormaliseLanguage(t *testing.T) {
	tests := map[string]string{
		"en":      "en",
		"en-US":   "en",
		"de":      "de",
		"zh":      "zh-CN",
		"zh-TW":   "zh-TW",
		"zh-Hant": "zh-CN",
	}
	for in, want := range tests {
		got, err := normaliseLanguage(in)
		if err != nil {
			t.Errorf("normaliseLanguage(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("normaliseLanguage(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := normaliseLanguage("not a tag!"); err == nil {
		t.Error("expected error for invalid tag")
	}
}

func TestSynthesize(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/translate_tts" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		if q.Get("client") != "tw-ob" || q.Get("tl") != "en" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		calls.Add(1)
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("MP3" + q.Get("idx")))
	}))
	defer srv.Close()

	p, err := New(WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clip, err := p.Synthesize(context.Background(), strings.Repeat("hello ", 30), tts.Options{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if clip.Encoding != audio.EncodingMP3 {
		t.Errorf("Encoding = %q, want mp3", clip.Encoding)
	}
	if calls.Load() != 2 || string(clip.Data) != "MP30MP31" {
		t.Errorf("calls = %d, data = %q", calls.Load(), clip.Data)
	}
}

func TestSynthesize_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p, _ := New(WithBaseURL(srv.URL))
	if _, err := p.Synthesize(context.Background(), "hello", tts.Options{}); err == nil {
		t.Error("expected error for HTTP 429")
	}
	if _, err := p.Synthesize(context.Background(), " ", tts.Options{}); !errors.Is(err, tts.ErrEmptyText) {
		t.Errorf("err = %v, want ErrEmptyText", err)
	}
	if _, err := p.Synthesize(context.Background(), "hi", tts.Options{Language: "??"}); err == nil {
		t.Error("expected error for invalid language")
	}
}
