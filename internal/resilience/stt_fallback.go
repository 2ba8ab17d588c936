package resilience

import (
	"context"
	"fmt"

	"github.com/MrWong99/speakez/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across multiple
// STT backends. Each backend has its own circuit breaker.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

// Compile-time interface assertion.
var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional STT provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Status reports the circuit state of every backend.
func (f *STTFallback) Status() []EntryStatus { return f.group.Status() }

// Transcribe sends req to the first healthy provider, moving on to the next
// one when a provider fails. Empty audio and a cancelled context are
// returned immediately so they never count against a backend.
func (f *STTFallback) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if len(req.Audio) == 0 {
		return stt.Transcript{}, fmt.Errorf("resilience: %w", stt.ErrEmptyAudio)
	}
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, err
	}
	return ExecuteWithResult(f.group, func(p stt.Provider) (stt.Transcript, error) {
		return p.Transcribe(ctx, req)
	})
}
