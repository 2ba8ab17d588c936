// Package whisper provides whisper.cpp-backed STT providers.
//
// Provider connects to a running whisper-server binary, which exposes a REST
// API at POST /inference. NativeProvider links the whisper.cpp library through
// its Go bindings and runs inference in-process.
//
// Both providers normalise the submitted WAV to 16 kHz mono, which is what
// whisper.cpp expects, and skip inference entirely when the recording is
// silent: whisper tends to hallucinate text on silence.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("en"),
//	    whisper.WithModel("base"),
//	)
//	t, err := p.Transcribe(ctx, stt.Request{Audio: wav})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/speakez/pkg/audio"
	"github.com/MrWong99/speakez/pkg/provider/stt"
)

const (
	// 300 of 32767 is just above room noise on a laptop microphone.
	defaultRMSThreshold = 300.0

	silenceWindow   = 30 * time.Millisecond
	defaultLanguage = "en"
	maxResponse     = 1 << 20
)

// whisperFormat is the only input format whisper.cpp models accept.
var whisperFormat = audio.Format{SampleRate: 16000, Channels: 1}

var _ stt.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithModel names the model the server should use. Empty keeps the model the
// server was started with.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the fallback language. Default "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.gate.language = lang }
}

// WithRMSThreshold sets the energy below which a recording counts as
// silent. Zero disables the check.
func WithRMSThreshold(rms float64) Option {
	return func(p *Provider) { p.gate.threshold = rms }
}

// WithHTTPClient replaces the default client, which times out after 30s.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// Provider sends recordings to a whisper-server over HTTP.
type Provider struct {
	baseURL string
	model   string
	gate    gate
	client  *http.Client
}

// New returns a Provider for the whisper-server at baseURL.
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("whisper: server URL must not be empty")
	}
	p := &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		gate:    gate{language: defaultLanguage, threshold: defaultRMSThreshold},
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	in, err := p.gate.open(ctx, req)
	if err != nil || in.silent {
		return in.transcript(""), err
	}
	text, err := p.infer(ctx, audio.EncodeWAV(in.pcm, whisperFormat), in.lang)
	if err != nil {
		return stt.Transcript{}, err
	}
	return in.transcript(text), nil
}

// infer posts wav to /inference as multipart form data.
func (p *Provider) infer(ctx context.Context, wav []byte, lang string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "audio.wav")
	if err == nil {
		_, err = part.Write(wav)
	}
	fields := [][2]string{{"response_format", "json"}, {"language", lang}, {"model", p.model}}
	for _, f := range fields {
		if err == nil && f[1] != "" {
			err = mw.WriteField(f[0], f[1])
		}
	}
	if err == nil {
		err = mw.Close()
	}
	if err != nil {
		return "", fmt.Errorf("whisper: build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: inference: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return "", fmt.Errorf("whisper: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: inference: status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var out struct {
		Text  string `json:"text"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("whisper: decode response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("whisper: server: %s", out.Error)
	}
	return out.Text, nil
}

// ── Input gate ──────────────────────────────────────────────────────────────

// gate holds the input handling both providers share: decoding, resampling
// to 16 kHz mono and skipping silent recordings, on which whisper
// hallucinates text.
type gate struct {
	language  string
	threshold float64
}

type input struct {
	pcm    []byte
	lang   string
	dur    time.Duration
	silent bool
}

func (in input) transcript(text string) stt.Transcript {
	return stt.Transcript{Text: strings.TrimSpace(text), Language: in.lang, Duration: in.dur}
}

func (g gate) open(ctx context.Context, req stt.Request) (input, error) {
	if err := ctx.Err(); err != nil {
		return input{}, fmt.Errorf("whisper: %w", err)
	}
	if len(req.Audio) == 0 {
		return input{}, fmt.Errorf("whisper: %w", stt.ErrEmptyAudio)
	}
	pcm, f, err := audio.DecodeWAV(req.Audio)
	if err != nil {
		return input{}, fmt.Errorf("whisper: decode audio: %w", err)
	}
	in := input{
		pcm:  audio.ConvertPCM(pcm, f, whisperFormat),
		lang: req.Language,
		dur:  f.Duration(len(pcm)),
	}
	if in.lang == "" {
		in.lang = g.language
	}
	in.silent = !hasSpeech(in.pcm, g.threshold)
	return in, nil
}

// hasSpeech reports whether any 30 ms window of 16 kHz mono pcm reaches the
// RMS threshold. A non-positive threshold only requires some audio.
func hasSpeech(pcm []byte, threshold float64) bool {
	if threshold <= 0 {
		return len(pcm) > 0
	}
	window := int(int64(whisperFormat.BytesPerSecond()) * int64(silenceWindow) / int64(time.Second))
	for off := 0; off < len(pcm); off += window {
		if audio.ComputeRMS(pcm[off:min(off+window, len(pcm))]) >= threshold {
			return true
		}
	}
	return false
}
