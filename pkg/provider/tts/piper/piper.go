// Package piper provides a local TTS provider that runs the piper binary.
//
// Text is written to piper's stdin and raw 16-bit mono PCM is read back from
// stdout (--output-raw), so nothing touches the disk. Each voice model has a
// fixed sample rate, 22050 Hz for the common "medium" models.
package piper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/MrWong99/speakez/pkg/audio"
	"github.com/MrWong99/speakez/pkg/provider/tts"
)

const (
	defaultBinary     = "piper"
	defaultSampleRate = 22050
)

var _ tts.Provider = (*Provider)(nil)

// Provider runs piper once per Synthesize call.
type Provider struct {
	binary     string
	model      string
	sampleRate int
	speaker    int
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithBinary sets the piper executable. Defaults to "piper" resolved via PATH.
func WithBinary(path string) Option {
	return func(p *Provider) {
		if path != "" {
			p.binary = path
		}
	}
}

// WithSampleRate declares the sample rate of the model's output. Defaults to
// 22050.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		if rate > 0 {
			p.sampleRate = rate
		}
	}
}

// WithSpeaker selects a speaker id for multi-speaker models.
func WithSpeaker(id int) Option {
	return func(p *Provider) { p.speaker = id }
}

// New returns a Provider for the given .onnx voice model.
func New(model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, errors.New("piper: model must not be empty")
	}
	p := &Provider{binary: defaultBinary, model: model, sampleRate: defaultSampleRate, speaker: -1}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Binary returns the piper executable used by p.
func (p *Provider) Binary() string { return p.binary }

// Synthesize implements tts.Provider. piper voices are single-language, so
// Options.Language is ignored; Options.Voice, when numeric, overrides the
// speaker id.
func (p *Provider) Synthesize(ctx context.Context, text string, opts tts.Options) (*tts.Audio, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("piper: %w", tts.ErrEmptyText)
	}

	cmd := exec.CommandContext(ctx, p.binary, p.args(opts)...) //nolint:gosec
	cmd.Stdin = strings.NewReader(text + "\n")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("piper: synthesize: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	pcm := stdout.Bytes()
	if len(pcm) < 2 {
		return nil, errors.New("piper: no audio produced")
	}
	return &tts.Audio{
		Data:     pcm[:len(pcm)&^1],
		Encoding: audio.EncodingPCM,
		Format:   audio.Format{SampleRate: p.sampleRate, Channels: 1},
	}, nil
}

func (p *Provider) args(opts tts.Options) []string {
	args := []string{"--model", p.model, "--output-raw", "--quiet"}
	speaker := p.speaker
	if id, err := strconv.Atoi(opts.Voice); err == nil {
		speaker = id
	}
	if speaker >= 0 {
		args = append(args, "--speaker", strconv.Itoa(speaker))
	}
	if opts.Speed > 0 && opts.Speed != 1 {
		// piper's length scale is the inverse of speed.
		args = append(args, "--length_scale", strconv.FormatFloat(1/opts.Speed, 'f', 3, 64))
	}
	return args
}
