package openai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/speakez/pkg/audio"
	"github.com/MrWong99/speakez/pkg/provider/stt"
)

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestPrimarySubtag(t *testing.T) {
	tests := map[string]string{
		"en":    "en",
		"en-US": "en",
		"pt_BR": "pt",
		"DE":    "de",
	}
	for in, want := range tests {
		if got := primarySubtag(in); got != want {
			t.Errorf("primarySubtag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTranscribe(t *testing.T) {
	var gotModel, gotLang, gotFile string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			http.Error(w, "unexpected path "+r.URL.Path, http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotModel = r.FormValue("model")
		gotLang = r.FormValue("language")
		if _, hdr, err := r.FormFile("file"); err == nil {
			gotFile = hdr.Filename
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":" How are you today? "}`))
	}))
	defer srv.Close()

	p, err := New("sk-test", WithBaseURL(srv.URL+"/v1/"), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	wav := audio.EncodeWAV(make([]byte, 32000), audio.Format{SampleRate: 16000, Channels: 1})
	tr, err := p.Transcribe(context.Background(), stt.Request{Audio: wav, Language: "en-GB"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "How are you today?" {
		t.Errorf("Text = %q", tr.Text)
	}
	if tr.Duration.Seconds() != 1 {
		t.Errorf("Duration = %v, want 1s", tr.Duration)
	}
	if gotModel != "whisper-1" {
		t.Errorf("model = %q, want whisper-1", gotModel)
	}
	if gotLang != "en" {
		t.Errorf("language = %q, want en", gotLang)
	}
	if gotFile != "audio.wav" {
		t.Errorf("filename = %q, want audio.wav", gotFile)
	}
}

func TestTranscribe_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid file format.","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	p, _ := New("sk-test", WithBaseURL(srv.URL+"/v1/"), WithMaxRetries(0))
	_, err := p.Transcribe(context.Background(), stt.Request{Audio: []byte("garbage")})
	if err == nil {
		t.Fatal("expected error for HTTP 400")
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	p, _ := New("sk-test")
	if _, err := p.Transcribe(context.Background(), stt.Request{}); !errors.Is(err, stt.ErrEmptyAudio) {
		t.Fatalf("err = %v, want ErrEmptyAudio", err)
	}
}
