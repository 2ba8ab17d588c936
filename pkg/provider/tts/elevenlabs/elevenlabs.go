// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs streaming WebSocket API. It implements the tts.Provider and
// tts.VoiceLister interfaces.
//
// Text is sent in one message followed by an empty flush message; the PCM
// chunks streamed back are concatenated into a single clip.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/speakez/pkg/audio"
	"github.com/MrWong99/speakez/pkg/provider/tts"
)

const (
	defaultWSBase    = "wss://api.elevenlabs.io"
	defaultHTTPBase  = "https://api.elevenlabs.io"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_16000"

	// maxClipBytes caps the PCM accumulated for a single synthesis.
	maxClipBytes = 32 << 20
)

var (
	_ tts.Provider    = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the audio output format. Only raw PCM formats
// ("pcm_16000", "pcm_22050", "pcm_24000", "pcm_44100") are accepted.
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithDefaultVoice sets the voice used when Options.Voice is empty.
func WithDefaultVoice(voiceID string) Option {
	return func(p *Provider) {
		p.voice = voiceID
	}
}

// WithBaseURLs overrides the WebSocket and REST API base URLs.
func WithBaseURLs(wsBase, httpBase string) Option {
	return func(p *Provider) {
		p.wsBase = strings.TrimRight(wsBase, "/")
		p.httpBase = strings.TrimRight(httpBase, "/")
	}
}

// Provider synthesises through the ElevenLabs stream-input WebSocket.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	rate         int
	voice        string
	wsBase       string
	httpBase     string
	httpClient   *http.Client
}

// New returns a Provider authenticating with apiKey.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: api key must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		wsBase:       defaultWSBase,
		httpBase:     defaultHTTPBase,
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	rate, err := sampleRateOf(p.outputFormat)
	if err != nil {
		return nil, err
	}
	p.rate = rate
	return p, nil
}

// streamMessage is every frame the client sends. The first frame carries the
// key and voice settings; an empty Text closes the input.
type streamMessage struct {
	Text                 string         `json:"text"`
	VoiceSettings        *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey             string         `json:"xi_api_key,omitempty"`
	TryTriggerGeneration bool           `json:"try_trigger_generation,omitempty"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// audioResponse is every frame the server sends.
type audioResponse struct {
	Audio   string `json:"audio"` // base64 PCM
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Synthesize implements tts.Provider. Each call uses its own connection and
// returns mono PCM at the output format's sample rate.
func (p *Provider) Synthesize(ctx context.Context, text string, opts tts.Options) (*tts.Audio, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("elevenlabs: %w", tts.ErrEmptyText)
	}
	voice := opts.Voice
	if voice == "" {
		voice = p.voice
	}
	if voice == "" {
		return nil, errors.New("elevenlabs: no voice configured")
	}

	conn, _, err := websocket.Dial(ctx, p.buildURL(voice, opts.Language), nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	conn.SetReadLimit(1 << 20)

	if err := p.send(ctx, conn, text, opts.Speed); err != nil {
		return nil, err
	}
	pcm, err := receive(ctx, conn)
	if err != nil {
		return nil, err
	}
	return &tts.Audio{
		Data:     pcm,
		Encoding: audio.EncodingPCM,
		Format:   audio.Format{SampleRate: p.rate, Channels: 1},
	}, nil
}

// send writes the opening frame, the text and the end-of-input marker.
func (p *Provider) send(ctx context.Context, conn *websocket.Conn, text string, speed float64) error {
	frames := []streamMessage{
		// The opening frame must hold a non-empty text.
		{Text: " ", XiAPIKey: p.apiKey, VoiceSettings: &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75, Speed: speed}},
		{Text: text + " ", TryTriggerGeneration: true},
		{},
	}
	for _, f := range frames {
		b, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("elevenlabs: encode frame: %w", err)
		}
		if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
			return fmt.Errorf("elevenlabs: write: %w", err)
		}
	}
	return nil
}

// receive concatenates audio frames until the final one or a normal close.
func receive(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	var pcm []byte
	for {
		_, msg, err := conn.Read(ctx)
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("elevenlabs: read: %w", err)
		}

		var r audioResponse
		if json.Unmarshal(msg, &r) != nil {
			continue
		}
		if r.Error != "" {
			return nil, fmt.Errorf("elevenlabs: %s: %s", r.Error, r.Message)
		}
		if r.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(r.Audio)
			if err != nil {
				return nil, fmt.Errorf("elevenlabs: decode audio: %w", err)
			}
			if len(pcm)+len(chunk) > maxClipBytes {
				return nil, fmt.Errorf("elevenlabs: clip larger than %d bytes", maxClipBytes)
			}
			pcm = append(pcm, chunk...)
		}
		if r.IsFinal {
			break
		}
	}
	if len(pcm) == 0 {
		return nil, errors.New("elevenlabs: no audio received")
	}
	return pcm, nil
}

// buildURL constructs the WebSocket URL for a given voice and language.
func (p *Provider) buildURL(voiceID, language string) string {
	q := url.Values{}
	q.Set("model_id", p.model)
	q.Set("output_format", p.outputFormat)
	if language != "" {
		q.Set("language_code", language)
	}
	return fmt.Sprintf("%s/v1/text-to-speech/%s/stream-input?%s", p.wsBase, url.PathEscape(voiceID), q.Encode())
}

// sampleRateOf extracts the sample rate from a "pcm_<rate>" output format.
func sampleRateOf(format string) (int, error) {
	rate, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("elevenlabs: unsupported output format %q, want pcm_<rate>", format)
	}
	n, err := strconv.Atoi(rate)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("elevenlabs: invalid sample rate in output format %q", format)
	}
	return n, nil
}

type voiceList struct {
	Voices []struct {
		VoiceID  string            `json:"voice_id"`
		Name     string            `json:"name"`
		Category string            `json:"category"`
		Labels   map[string]string `json:"labels"`
	} `json:"voices"`
}

// ListVoices implements tts.VoiceLister with GET /v1/voices. Voice labels
// become metadata; the "language" label, when present, fills Language.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.httpBase+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: status %d", resp.StatusCode)
	}

	var list voiceList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("elevenlabs: decode voices: %w", err)
	}
	voices := make([]tts.Voice, 0, len(list.Voices))
	for _, v := range list.Voices {
		meta := maps.Clone(v.Labels)
		if meta == nil {
			meta = map[string]string{}
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		voices = append(voices, tts.Voice{
			ID:       v.VoiceID,
			Name:     v.Name,
			Provider: "elevenlabs",
			Language: v.Labels["language"],
			Metadata: meta,
		})
	}
	return voices, nil
}
