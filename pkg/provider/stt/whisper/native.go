// Building NativeProvider links libwhisper.a; point LIBRARY_PATH and
// C_INCLUDE_PATH at a whisper.cpp build.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/speakez/pkg/audio"
	"github.com/MrWong99/speakez/pkg/provider/stt"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

var _ stt.Provider = (*NativeProvider)(nil)

// ErrClosed is returned by Transcribe after Close.
var ErrClosed = errors.New("whisper: provider closed")

// NativeProvider runs whisper.cpp in-process through its cgo bindings. The
// model weights are loaded once and shared by every call.
type NativeProvider struct {
	model whisperlib.Model
	gate  gate

	// Each inference context allocates its own working buffers, so the
	// number of concurrent calls is capped.
	sem chan struct{}

	closeOnce sync.Once
	closed    atomic.Bool
}

// NativeOption configures a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the fallback language. Default "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.gate.language = lang }
}

// WithNativeRMSThreshold sets the silence threshold; zero disables it.
func WithNativeRMSThreshold(rms float64) NativeOption {
	return func(p *NativeProvider) { p.gate.threshold = rms }
}

// WithNativeConcurrency limits how many inferences run at once. Defaults to 1.
func WithNativeConcurrency(n int) NativeOption {
	return func(p *NativeProvider) {
		if n > 0 {
			p.sem = make(chan struct{}, n)
		}
	}
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// the given file path. The caller must call Close when the provider is no
// longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: model path must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{
		model: model,
		gate:  gate{language: defaultLanguage, threshold: defaultRMSThreshold},
		sem:   make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model. Calling Close more than once is safe.
func (p *NativeProvider) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		if p.model != nil {
			err = p.model.Close()
		}
	})
	return err
}

// Transcribe implements stt.Provider.
func (p *NativeProvider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if p.closed.Load() {
		return stt.Transcript{}, ErrClosed
	}
	in, err := p.gate.open(ctx, req)
	if err != nil || in.silent {
		return in.transcript(""), err
	}

	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-ctx.Done():
		return stt.Transcript{}, fmt.Errorf("whisper: %w", ctx.Err())
	}

	text, err := p.infer(audio.PCMToFloat32Mono(in.pcm, 1), in.lang)
	if err != nil {
		return stt.Transcript{}, err
	}
	return in.transcript(text), nil
}

// infer runs whisper.cpp inference using a fresh context and returns the
// concatenated segment text.
func (p *NativeProvider) infer(samples []float32, lang string) (string, error) {
	// Contexts are single-goroutine; the model is not.
	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}
