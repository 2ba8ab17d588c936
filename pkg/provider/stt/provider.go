// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a batch transcription engine (a whisper.cpp server,
// the whisper.cpp bindings, Vosk, OpenAI or Deepgram) and exposes a uniform
// request/response interface: a complete WAV recording goes in, one
// Transcript comes out.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"time"
)

// ErrEmptyAudio is returned when a Request carries no audio bytes.
var ErrEmptyAudio = errors.New("stt: empty audio")

// Request is a single transcription job.
type Request struct {
	// Audio is a complete RIFF/WAV recording with 16-bit PCM samples. Any
	// sample rate and channel count is accepted; providers that need a specific
	// format convert internally.
	Audio []byte

	// Language is the BCP-47 language tag for recognition (e.g., "en", "de").
	// An empty string uses the provider's configured default.
	Language string
}

// Transcript is the result of transcribing one Request.
type Transcript struct {
	// Text is the recognised speech with surrounding whitespace trimmed. It is
	// empty when the recording contained no intelligible speech.
	Text string

	// Language is the language the provider recognised in, when reported.
	Language string

	// Confidence is the overall confidence (0.0-1.0). Zero when the provider
	// does not report confidence.
	Confidence float64

	// Duration is the length of the submitted audio, when known.
	Duration time.Duration
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts the speech in req.Audio to text.
	//
	// Returns an error if the backend cannot be reached, rejects the audio, or
	// ctx is cancelled. An empty Transcript.Text with a nil error means the
	// backend ran but heard nothing.
	Transcribe(ctx context.Context, req Request) (Transcript, error)
}
