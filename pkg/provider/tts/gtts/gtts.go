// Package gtts provides a TTS provider backed by the Google Translate
// text-to-speech endpoint, the same service the gTTS Python library uses.
//
// No API key is needed. The endpoint accepts at most 100 characters per
// request, so longer text is split on word boundaries and the MP3 responses
// are concatenated; MPEG audio frames are self-delimiting, so the result
// plays as one clip.
package gtts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/language"

	"github.com/MrWong99/speakez/pkg/audio"
	"github.com/MrWong99/speakez/pkg/provider/tts"
)

const (
	defaultTLD      = "com"
	defaultLanguage = "en"
	defaultTimeout  = 15 * time.Second

	// maxChunkRunes is the per-request character limit of the endpoint.
	maxChunkRunes = 100

	maxResponseBytes = 8 << 20
)

// Compile-time assertion that Provider implements tts.Provider.
var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the default language. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithTLD sets the Google top-level domain used, which selects the accent for
// some languages (e.g., "co.uk", "com.au", "ca"). Defaults to "com".
func WithTLD(tld string) Option {
	return func(p *Provider) { p.baseURL = "https://translate.google." + tld }
}

// WithBaseURL overrides the endpoint host entirely.
func WithBaseURL(base string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(base, "/") }
}

// WithSlow requests the slower speaking rate.
func WithSlow(slow bool) Option {
	return func(p *Provider) { p.slow = slow }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements tts.Provider using Google Translate TTS.
type Provider struct {
	baseURL    string
	language   string
	slow       bool
	httpClient *http.Client
}

// New creates a Provider. It never fails today; the error return keeps the
// constructor shape uniform with the other providers.
func New(opts ...Option) (*Provider, error) {
	p := &Provider{
		baseURL:    "https://translate.google." + defaultTLD,
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	if _, err := normaliseLanguage(p.language); err != nil {
		return nil, err
	}
	return p, nil
}

// Synthesize implements tts.Provider. The result is MP3.
func (p *Provider) Synthesize(ctx context.Context, text string, opts tts.Options) (*tts.Audio, error) {
	chunks := splitText(text, maxChunkRunes)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("gtts: %w", tts.ErrEmptyText)
	}
	lang := opts.Language
	if lang == "" {
		lang = p.language
	}
	tl, err := normaliseLanguage(lang)
	if err != nil {
		return nil, err
	}
	slow := p.slow || (opts.Speed > 0 && opts.Speed < 1)

	var mp3 []byte
	for i, chunk := range chunks {
		b, err := p.fetch(ctx, chunk, tl, slow, i, len(chunks))
		if err != nil {
			return nil, err
		}
		mp3 = append(mp3, b...)
	}
	return &tts.Audio{Data: mp3, Encoding: audio.EncodingMP3}, nil
}

func (p *Provider) fetch(ctx context.Context, chunk, tl string, slow bool, idx, total int) ([]byte, error) {
	speed := "1"
	if slow {
		speed = "0.3"
	}
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("q", chunk)
	q.Set("tl", tl)
	q.Set("client", "tw-ob")
	q.Set("ttsspeed", speed)
	q.Set("total", fmt.Sprint(total))
	q.Set("idx", fmt.Sprint(idx))
	q.Set("textlen", fmt.Sprint(utf8.RuneCountInString(chunk)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/translate_tts?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("gtts: create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Referer", p.baseURL+"/")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gtts: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gtts: chunk %d/%d: server returned HTTP %d", idx+1, total, resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("gtts: read response: %w", err)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("gtts: chunk %d/%d: empty response", idx+1, total)
	}
	return b, nil
}

// normaliseLanguage maps a BCP-47 tag to the form the endpoint expects:
// the base language, plus the region for Chinese and Portuguese variants.
func normaliseLanguage(lang string) (string, error) {
	tag, err := language.Parse(lang)
	if err != nil {
		return "", fmt.Errorf("gtts: invalid language %q: %w", lang, err)
	}
	base, _ := tag.Base()
	switch base.String() {
	case "zh":
		if region, conf := tag.Region(); conf == language.Exact && region.String() == "TW" {
			return "zh-TW", nil
		}
		return "zh-CN", nil
	case "und":
		return "", errors.New("gtts: language must not be undetermined")
	}
	return base.String(), nil
}

// splitText splits text into whitespace-normalised chunks of at most max
// runes. It prefers to break after sentence punctuation, then on spaces, and
// only cuts words that are longer than max on their own.
func splitText(text string, max int) []string {
	words := strings.Fields(text)
	var (
		chunks []string
		cur    strings.Builder
		n      int
	)
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			n = 0
		}
	}
	for _, w := range words {
		for utf8.RuneCountInString(w) > max {
			flush()
			r := []rune(w)
			chunks = append(chunks, string(r[:max]))
			w = string(r[max:])
		}
		wl := utf8.RuneCountInString(w)
		if n > 0 && n+1+wl > max {
			flush()
		}
		if n > 0 {
			cur.WriteByte(' ')
			n++
		}
		cur.WriteString(w)
		n += wl
		if last, _ := utf8.DecodeLastRuneInString(w); n > max/2 && isSentenceEnd(last) {
			flush()
		}
	}
	flush()
	return chunks
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == ';' || r == ':' || (unicode.Is(unicode.Po, r) && r != ',' && r != '\'')
}
