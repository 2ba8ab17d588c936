// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider turns one piece of text into one complete audio clip. The
// clip's encoding is whatever the backend produces natively (MP3 from Google
// Translate, WAV from Coqui, raw PCM from ElevenLabs or Piper); callers that
// need a specific encoding run the result through an audio.Converter.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"

	"github.com/MrWong99/speakez/pkg/audio"
)

// ErrEmptyText is returned when Synthesize is called with blank text.
var ErrEmptyText = errors.New("tts: empty text")

// Options controls a single synthesis.
type Options struct {
	// Language is the BCP-47 language tag to speak in (e.g., "en", "de").
	// An empty string uses the provider's configured default.
	Language string

	// Voice is a provider-specific voice identifier. An empty string uses the
	// provider's default voice.
	Voice string

	// Speed is a playback speed multiplier where supported. Zero means 1.0.
	Speed float64
}

// Audio is a synthesised clip.
type Audio struct {
	// Data holds the encoded audio bytes.
	Data []byte

	// Encoding identifies the container/codec of Data.
	Encoding audio.Encoding

	// Format is the PCM format of Data. It is always set for EncodingPCM and
	// EncodingWAV and may be zero for compressed encodings.
	Format audio.Format
}

// Voice describes a voice offered by a provider.
type Voice struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Provider string            `json:"provider"`
	Language string            `json:"language,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize speaks text and returns the complete clip.
	//
	// Returns ErrEmptyText (wrapped) for blank text, or an error if the
	// backend cannot be reached or rejects the request.
	Synthesize(ctx context.Context, text string, opts Options) (*Audio, error)
}

// VoiceLister is implemented by providers that can enumerate their voices.
type VoiceLister interface {
	ListVoices(ctx context.Context) ([]Voice, error)
}
