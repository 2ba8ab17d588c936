// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// pre-recorded audio REST API. It implements the stt.Provider interface.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/speakez/pkg/provider/stt"
)

const (
	listenURL       = "https://api.deepgram.com/v1/listen"
	defaultModel    = "nova-3"
	defaultLanguage = "en"
	maxResponse     = 4 << 20
)

var _ stt.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithModel selects the recognition model. Default "nova-3".
func WithModel(model string) Option { return func(p *Provider) { p.model = model } }

// WithLanguage sets the fallback BCP-47 language. Default "en".
func WithLanguage(language string) Option { return func(p *Provider) { p.language = language } }

// WithEndpoint points the provider at a self-hosted listen endpoint.
func WithEndpoint(endpoint string) Option { return func(p *Provider) { p.endpoint = endpoint } }

// WithHTTPClient replaces the default client, which times out after 30s.
func WithHTTPClient(c *http.Client) Option { return func(p *Provider) { p.client = c } }

// Provider transcribes through Deepgram's pre-recorded audio API.
type Provider struct {
	apiKey   string
	model    string
	language string
	endpoint string
	client   *http.Client
}

// New returns a Provider authenticating with apiKey.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: api key must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: listenURL,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider. The WAV payload is sent as-is; Deepgram
// reads the sample rate from its header.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if len(req.Audio) == 0 {
		return stt.Transcript{}, fmt.Errorf("deepgram: %w", stt.ErrEmptyAudio)
	}
	lang := req.Language
	if lang == "" {
		lang = p.language
	}
	u, err := p.buildURL(lang)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: endpoint: %w", err)
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(req.Audio))
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: %w", err)
	}
	hreq.Header.Set("Authorization", "Token "+p.apiKey)
	hreq.Header.Set("Content-Type", "audio/wav")

	resp, err := p.client.Do(hreq)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: listen: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return stt.Transcript{}, fmt.Errorf("deepgram: listen: status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	tr, err := parseDeepgramResponse(data)
	if err != nil {
		return stt.Transcript{}, err
	}
	if tr.Language == "" {
		tr.Language = lang
	}
	return tr, nil
}

// buildURL adds the recognition parameters to the endpoint. An empty
// language uses the configured default.
func (p *Provider) buildURL(language string) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	if language == "" {
		language = p.language
	}
	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", language)
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the subset of the pre-recorded response we consume.
type deepgramResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			DetectedLanguage string `json:"detected_language"`
			Alternatives     []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// parseDeepgramResponse extracts the best alternative of the first channel.
// A response with no channels or alternatives yields an empty transcript.
func parseDeepgramResponse(data []byte) (stt.Transcript, error) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: parse response: %w", err)
	}
	tr := stt.Transcript{
		Duration: time.Duration(resp.Metadata.Duration * float64(time.Second)),
	}
	if len(resp.Results.Channels) == 0 {
		return tr, nil
	}
	ch := resp.Results.Channels[0]
	tr.Language = ch.DetectedLanguage
	if len(ch.Alternatives) == 0 {
		return tr, nil
	}
	tr.Text = strings.TrimSpace(ch.Alternatives[0].Transcript)
	tr.Confidence = ch.Alternatives[0].Confidence
	return tr, nil
}
