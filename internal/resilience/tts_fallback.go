package resilience

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/speakez/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with automatic failover across multiple
// TTS backends. Each backend has its own circuit breaker.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

// Compile-time interface assertions.
var (
	_ tts.Provider    = (*TTSFallback)(nil)
	_ tts.VoiceLister = (*TTSFallback)(nil)
)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional TTS provider as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Status reports the circuit state of every backend.
func (f *TTSFallback) Status() []EntryStatus { return f.group.Status() }

// Synthesize speaks text with the first healthy provider. Fallbacks may
// return a different encoding than the primary; callers convert as needed.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, opts tts.Options) (*tts.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("resilience: %w", tts.ErrEmptyText)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ExecuteWithResult(f.group, func(p tts.Provider) (*tts.Audio, error) {
		return p.Synthesize(ctx, text, opts)
	})
}

// ListVoices returns voices from the first healthy provider that can list
// them. Providers without a voice catalogue are skipped without touching
// their breaker. It returns nil when no provider has a catalogue.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	var lastErr error
	for i := range f.group.members {
		entry := &f.group.members[i]
		vl, ok := entry.value.(tts.VoiceLister)
		if !ok {
			continue
		}
		var voices []tts.Voice
		err := entry.breaker.Execute(func() error {
			var innerErr error
			voices, innerErr = vl.ListVoices(ctx)
			return innerErr
		})
		if err == nil {
			return voices, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
	}
	return nil, nil
}
