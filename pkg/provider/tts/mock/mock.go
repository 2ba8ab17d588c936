// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to return controlled clips to consumers and to verify that the
// correct text and options are passed to the TTS backend.
//
// Example:
//
//	p := &mock.Provider{
//	    Result: &tts.Audio{Data: wav, Encoding: audio.EncodingWAV},
//	    Voices: []tts.Voice{{ID: "v1", Name: "Alice"}},
//	}
//	clip, _ := p.Synthesize(ctx, "hello", tts.Options{})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/speakez/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Text is the text passed to Synthesize.
	Text string
	// Opts is the options value passed to Synthesize.
	Opts tts.Options
}

// Provider is a mock implementation of tts.Provider and tts.VoiceLister.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Result is returned by Synthesize when Err is nil. A nil Result yields an
	// empty clip.
	Result *tts.Audio

	// Err, if non-nil, is returned as the error from Synthesize.
	Err error

	// SynthesizeFunc, if set, overrides Result and Err.
	SynthesizeFunc func(ctx context.Context, text string, opts tts.Options) (*tts.Audio, error)

	// Voices is returned by ListVoices.
	Voices []tts.Voice

	// ListVoicesErr, if non-nil, is returned as the error from ListVoices.
	ListVoicesErr error

	// --- Call records ---

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call and returns the configured response.
func (p *Provider) Synthesize(ctx context.Context, text string, opts tts.Options) (*tts.Audio, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Text: text, Opts: opts})
	fn, res, err := p.SynthesizeFunc, p.Result, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, text, opts)
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		return &tts.Audio{}, nil
	}
	cp := *res
	return &cp, nil
}

// ListVoices returns Voices, ListVoicesErr.
func (p *Provider) ListVoices(context.Context) ([]tts.Voice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ListVoicesErr != nil {
		return nil, p.ListVoicesErr
	}
	return p.Voices, nil
}

// CallCount returns the number of Synthesize calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeCalls)
}

// LastText returns the text of the most recent Synthesize call, or "".
func (p *Provider) LastText() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.SynthesizeCalls) == 0 {
		return ""
	}
	return p.SynthesizeCalls[len(p.SynthesizeCalls)-1].Text
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}

// Compile-time interface assertions.
var (
	_ tts.Provider    = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)
