// Package vosk provides an offline STT provider backed by the Vosk speech
// recognition toolkit (CGO bindings to libvosk).
//
// A Vosk model is tied to one language; the Request language is ignored.
// libvosk must be available at link time.
package vosk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	vosk "github.com/alphacep/vosk-api/go"

	"github.com/MrWong99/speakez/pkg/audio"
	"github.com/MrWong99/speakez/pkg/provider/stt"
)

// voskFormat is the format audio is converted to before recognition.
var voskFormat = audio.Format{SampleRate: 16000, Channels: 1}

// chunkBytes is how much PCM is fed to the recogniser per AcceptWaveform call.
const chunkBytes = 8000

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider with a locally loaded Vosk model.
type Provider struct {
	model    *vosk.VoskModel
	language string

	closeOnce sync.Once
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage records the language of the loaded model. It is reported back
// in every Transcript.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// New loads the Vosk model directory at modelPath. The caller must call Close
// when the provider is no longer needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("vosk: modelPath must not be empty")
	}
	model, err := vosk.NewModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("vosk: load model %q: %w", modelPath, err)
	}
	p := &Provider{model: model, language: "en"}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close frees the model. Calling Close more than once is safe.
func (p *Provider) Close() error {
	p.closeOnce.Do(func() {
		if p.model != nil {
			p.model.Free()
		}
	})
	return nil
}

// Transcribe implements stt.Provider. A recogniser is created per call; the
// model is shared.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if len(req.Audio) == 0 {
		return stt.Transcript{}, fmt.Errorf("vosk: %w", stt.ErrEmptyAudio)
	}
	pcm, f, err := audio.DecodeWAV(req.Audio)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("vosk: decode audio: %w", err)
	}
	dur := f.Duration(len(pcm))
	pcm = audio.ConvertPCM(pcm, f, voskFormat)

	rec, err := vosk.NewRecognizer(p.model, float64(voskFormat.SampleRate))
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("vosk: create recognizer: %w", err)
	}
	defer rec.Free()

	// Intermediate utterance results are collected so long recordings that
	// Vosk segments internally are not truncated to the final utterance.
	var parts []string
	for off := 0; off < len(pcm); off += chunkBytes {
		if err := ctx.Err(); err != nil {
			return stt.Transcript{}, fmt.Errorf("vosk: %w", err)
		}
		end := min(off+chunkBytes, len(pcm))
		if rec.AcceptWaveform(pcm[off:end]) != 0 {
			if text, err := parseResult(string(rec.Result())); err == nil && text != "" {
				parts = append(parts, text)
			}
		}
	}
	text, err := parseResult(string(rec.FinalResult()))
	if err != nil {
		return stt.Transcript{}, err
	}
	if text != "" {
		parts = append(parts, text)
	}

	return stt.Transcript{
		Text:     strings.Join(parts, " "),
		Language: p.language,
		Duration: dur,
	}, nil
}

// parseResult extracts the "text" field from a Vosk JSON result.
func parseResult(raw string) (string, error) {
	var res struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return "", fmt.Errorf("vosk: parse result: %w", err)
	}
	return strings.TrimSpace(res.Text), nil
}
