// Package openai provides a TTS provider backed by the OpenAI speech API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/speakez/pkg/audio"
	"github.com/MrWong99/speakez/pkg/provider/tts"
)

const (
	defaultModel = "gpt-4o-mini-tts"
	defaultVoice = "alloy"

	// speechFormat is the PCM format the API returns for response_format=pcm.
	speechRate = 24000
)

// voices lists the built-in voices of the speech endpoint.
var voices = []string{"alloy", "ash", "ballad", "coral", "echo", "fable", "nova", "onyx", "sage", "shimmer"}

// Compile-time interface assertions.
var (
	_ tts.Provider    = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)

// Provider implements tts.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
	voice  string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	model   string
	voice   string
	timeout time.Duration
	retries int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithModel sets the speech model. Defaults to "gpt-4o-mini-tts".
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithVoice sets the default voice. Defaults to "alloy".
func WithVoice(voice string) Option {
	return func(c *config) {
		c.voice = voice
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithMaxRetries sets how often the client retries failed requests.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.retries = n
	}
}

// New constructs a new OpenAI TTS Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}

	cfg := &config{model: defaultModel, voice: defaultVoice, retries: -1}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}
	if cfg.retries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.retries))
	}

	return &Provider{
		client: oai.NewClient(reqOpts...),
		model:  cfg.model,
		voice:  cfg.voice,
	}, nil
}

// Synthesize implements tts.Provider. The result is raw 24 kHz mono PCM. The
// speech models detect the language from the text, so Options.Language is
// not sent.
func (p *Provider) Synthesize(ctx context.Context, text string, opts tts.Options) (*tts.Audio, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("openai: %w", tts.ErrEmptyText)
	}
	voice := opts.Voice
	if voice == "" {
		voice = p.voice
	}

	params := oai.AudioSpeechNewParams{
		Input:          text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if opts.Speed > 0 {
		params.Speed = oai.Float(opts.Speed)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: synthesize: %w", err)
	}
	defer resp.Body.Close()

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read speech: %w", err)
	}
	if len(pcm) == 0 {
		return nil, errors.New("openai: empty speech response")
	}
	return &tts.Audio{
		Data:     pcm,
		Encoding: audio.EncodingPCM,
		Format:   audio.Format{SampleRate: speechRate, Channels: 1},
	}, nil
}

// ListVoices implements tts.VoiceLister with the fixed built-in voice set.
func (p *Provider) ListVoices(context.Context) ([]tts.Voice, error) {
	out := make([]tts.Voice, len(voices))
	for i, v := range voices {
		out[i] = tts.Voice{ID: v, Name: v, Provider: "openai"}
	}
	return out, nil
}
