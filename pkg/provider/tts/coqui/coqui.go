// Package coqui synthesises speech with a self-hosted Coqui TTS server.
//
// Two server flavours are supported. The stock Coqui server
// (ghcr.io/coqui-ai/tts) is driven through GET /api/tts and lists speakers
// at GET /details. The XTTS v2 API server takes POST /tts_to_audio/ and
// lists studio speakers at GET /studio_speakers. Both answer with WAV.
//
//	p, err := coqui.New("http://localhost:5002", coqui.WithLanguage("de"))
//	clip, err := p.Synthesize(ctx, "Guten Morgen", tts.Options{})
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/speakez/pkg/audio"
	"github.com/MrWong99/speakez/pkg/provider/tts"
)

var (
	_ tts.Provider    = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)

const (
	providerName = "coqui"

	apiTTSEndpoint         = "/api/tts"
	detailsEndpoint        = "/details"
	ttsEndpoint            = "/tts_to_audio/"
	studioSpeakersEndpoint = "/studio_speakers"

	maxResponseBytes = 64 << 20
)

// APIMode selects the server flavour.
type APIMode string

const (
	APIModeStandard APIMode = "standard"
	APIModeXTTS     APIMode = "xtts"
)

// Option configures a Provider.
type Option func(*Provider)

// WithLanguage sets the fallback language. Default "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithTimeout bounds every request to the server. Default 30s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.client.Timeout = d }
}

// WithAPIMode picks the server flavour. Default [APIModeStandard].
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) { p.mode = mode }
}

// WithDefaultVoice sets the speaker used when the caller names none. The XTTS
// server refuses requests without a speaker.
func WithDefaultVoice(voice string) Option {
	return func(p *Provider) { p.voice = voice }
}

// Provider talks to one Coqui server.
type Provider struct {
	baseURL  string
	language string
	voice    string
	mode     APIMode
	client   *http.Client
	api      api
}

// api hides the differences between the two server flavours.
type api interface {
	synthRequest(ctx context.Context, text, voice, lang string) (*http.Request, error)
	voices(ctx context.Context) ([]tts.Voice, error)
}

// New returns a Provider for the server at baseURL.
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("coqui: server URL must not be empty")
	}
	p := &Provider{
		baseURL:  strings.TrimRight(baseURL, "/"),
		language: "en",
		mode:     APIModeStandard,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	switch p.mode {
	case APIModeStandard:
		p.api = standardAPI{p}
	case APIModeXTTS:
		p.api = xttsAPI{p}
	default:
		return nil, fmt.Errorf("coqui: unknown api mode %q", p.mode)
	}
	return p, nil
}

// Synthesize implements tts.Provider. Speed is not supported by either
// server and is ignored.
func (p *Provider) Synthesize(ctx context.Context, text string, opts tts.Options) (*tts.Audio, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("coqui: %w", tts.ErrEmptyText)
	}
	voice := orDefault(opts.Voice, p.voice)
	lang := orDefault(opts.Language, p.language)

	req, err := p.api.synthRequest(ctx, text, voice, lang)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: synthesize: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: %s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	wav, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("coqui: read audio: %w", err)
	}
	_, f, err := audio.DecodeWAV(wav)
	if err != nil {
		return nil, fmt.Errorf("coqui: %w", err)
	}
	return &tts.Audio{Data: wav, Encoding: audio.EncodingWAV, Format: f}, nil
}

// ListVoices implements tts.VoiceLister. Voices are sorted by ID.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	voices, err := p.api.voices(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(voices, func(a, b tts.Voice) int { return strings.Compare(a.ID, b.ID) })
	return voices, nil
}

func (p *Provider) getJSON(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("coqui: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("coqui: GET %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coqui: GET %s: status %d", endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("coqui: decode %s: %w", endpoint, err)
	}
	return nil
}

func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

// ── Stock server ─────────────────────────────────────────────────────────

type standardAPI struct{ p *Provider }

func (s standardAPI) synthRequest(ctx context.Context, text, voice, lang string) (*http.Request, error) {
	q := url.Values{"text": {text}}
	if voice != "" {
		q.Set("speaker_id", voice)
	}
	if lang != "" {
		q.Set("language_id", lang)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.p.baseURL+apiTTSEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: %w", err)
	}
	return req, nil
}

// details is the body of GET /details. Single-speaker models leave Speakers
// empty.
type details struct {
	ModelName string   `json:"model_name"`
	Language  string   `json:"language"`
	Speakers  []string `json:"speakers"`
}

func (s standardAPI) voices(ctx context.Context) ([]tts.Voice, error) {
	var d details
	if err := s.p.getJSON(ctx, detailsEndpoint, &d); err != nil {
		return nil, err
	}
	model := orDefault(d.ModelName, "default")
	if len(d.Speakers) == 0 {
		return []tts.Voice{{
			ID: model, Name: model, Provider: providerName, Language: d.Language,
			Metadata: map[string]string{"type": "single-speaker", "model_name": model},
		}}, nil
	}
	out := make([]tts.Voice, 0, len(d.Speakers))
	for _, spk := range d.Speakers {
		out = append(out, tts.Voice{
			ID: spk, Name: spk, Provider: providerName, Language: d.Language,
			Metadata: map[string]string{"type": "speaker", "model_name": model},
		})
	}
	return out, nil
}

// ── XTTS v2 API server ──────────────────────────────────────────────────

type xttsAPI struct{ p *Provider }

type xttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

func (x xttsAPI) synthRequest(ctx context.Context, text, voice, lang string) (*http.Request, error) {
	if voice == "" {
		return nil, errors.New("coqui: xtts mode needs a voice")
	}
	body, err := json.Marshal(xttsRequest{Text: text, SpeakerWav: voice, Language: lang})
	if err != nil {
		return nil, fmt.Errorf("coqui: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.p.baseURL+ttsEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("coqui: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (x xttsAPI) voices(ctx context.Context) ([]tts.Voice, error) {
	// Only the keys matter; values hold speaker embeddings.
	var speakers map[string]json.RawMessage
	if err := x.p.getJSON(ctx, studioSpeakersEndpoint, &speakers); err != nil {
		return nil, err
	}
	out := make([]tts.Voice, 0, len(speakers))
	for name := range speakers {
		out = append(out, tts.Voice{
			ID: name, Name: name, Provider: providerName,
			Metadata: map[string]string{"type": "studio"},
		})
	}
	return out, nil
}
