// Package ffmpeg implements audio.Converter and audio.Recorder by shelling out
// to the ffmpeg binary.
//
// Conversions stream the input through stdin and read the result from stdout,
// so no temporary files are created. Recording reads from a platform capture
// device (ALSA, PulseAudio, AVFoundation or DirectShow) and writes a 16-bit
// WAV file.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/speakez/pkg/audio"
)

const defaultBinary = "ffmpeg"

var (
	_ audio.Converter = (*Converter)(nil)
	_ audio.Recorder  = (*Recorder)(nil)
)

// Option configures a Converter or Recorder.
type Option func(*options)

type options struct {
	binary      string
	inputFormat string
	device      string
}

// WithBinary sets the ffmpeg executable. Defaults to "ffmpeg" resolved via PATH.
func WithBinary(path string) Option {
	return func(o *options) {
		if path != "" {
			o.binary = path
		}
	}
}

// WithInputFormat sets the capture input format passed to -f (e.g. "alsa",
// "pulse", "avfoundation", "dshow"). Defaults to the platform's usual choice.
func WithInputFormat(format string) Option {
	return func(o *options) {
		if format != "" {
			o.inputFormat = format
		}
	}
}

// WithDevice sets the capture device name passed to -i. Defaults to the
// platform's default input device.
func WithDevice(device string) Option {
	return func(o *options) {
		if device != "" {
			o.device = device
		}
	}
}

func newOptions(opts []Option) options {
	o := options{binary: defaultBinary}
	o.inputFormat, o.device = platformDefaults(runtime.GOOS)
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// platformDefaults returns the capture input format and default device for goos.
func platformDefaults(goos string) (string, string) {
	switch goos {
	case "darwin":
		return "avfoundation", ":0"
	case "windows":
		return "dshow", "audio=default"
	default:
		return "pulse", "default"
	}
}

// Converter converts audio payloads by piping them through ffmpeg.
type Converter struct {
	binary string
}

// NewConverter returns a Converter using the configured ffmpeg binary.
func NewConverter(opts ...Option) *Converter {
	o := newOptions(opts)
	return &Converter{binary: o.binary}
}

// Binary returns the ffmpeg executable used by c.
func (c *Converter) Binary() string { return c.binary }

// Convert implements audio.Converter.
func (c *Converter) Convert(ctx context.Context, data []byte, src audio.Source, dst audio.Target) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("ffmpeg: empty input")
	}
	args, err := convertArgs(src, dst)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, c.binary, args...) //nolint:gosec
	cmd.Stdin = bytes.NewReader(data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg convert %s to %s: %w: %s", src.Encoding, dst.Encoding, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg convert %s to %s: no output", src.Encoding, dst.Encoding)
	}
	return stdout.Bytes(), nil
}

// convertArgs builds the ffmpeg command line for a stdin to stdout conversion.
func convertArgs(src audio.Source, dst audio.Target) ([]string, error) {
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}

	switch src.Encoding {
	case audio.EncodingPCM:
		if src.Format.SampleRate <= 0 || src.Format.Channels <= 0 {
			return nil, fmt.Errorf("ffmpeg: raw PCM source needs a format, got %s", src.Format)
		}
		args = append(args,
			"-f", "s16le",
			"-ar", strconv.Itoa(src.Format.SampleRate),
			"-ac", strconv.Itoa(src.Format.Channels),
		)
	case "":
		return nil, errors.New("ffmpeg: source encoding must be set")
	}
	args = append(args, "-i", "pipe:0", "-vn")

	if dst.Format.Channels > 0 {
		args = append(args, "-ac", strconv.Itoa(dst.Format.Channels))
	}
	if dst.Format.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(dst.Format.SampleRate))
	}

	switch dst.Encoding {
	case audio.EncodingWAV:
		args = append(args, "-c:a", "pcm_s16le", "-f", "wav")
	case audio.EncodingPCM:
		args = append(args, "-c:a", "pcm_s16le", "-f", "s16le")
	case audio.EncodingMP3:
		args = append(args, "-c:a", "libmp3lame", "-f", "mp3")
	case audio.EncodingOGG:
		args = append(args, "-c:a", "libopus", "-f", "ogg")
	case audio.EncodingFLAC:
		args = append(args, "-c:a", "flac", "-f", "flac")
	default:
		return nil, fmt.Errorf("%w: ffmpeg cannot write %q", audio.ErrUnsupportedConversion, dst.Encoding)
	}
	return append(args, "pipe:1"), nil
}

// Recorder captures audio from a local input device with ffmpeg.
type Recorder struct {
	binary      string
	inputFormat string
	device      string
}

// NewRecorder returns a Recorder for the configured device.
func NewRecorder(opts ...Option) *Recorder {
	o := newOptions(opts)
	return &Recorder{binary: o.binary, inputFormat: o.inputFormat, device: o.device}
}

// Binary returns the ffmpeg executable used by r.
func (r *Recorder) Binary() string { return r.binary }

// Record implements audio.Recorder.
func (r *Recorder) Record(ctx context.Context, d time.Duration, f audio.Format, dest string) error {
	if d <= 0 {
		return fmt.Errorf("ffmpeg record: invalid duration %s", d)
	}
	if dest == "" {
		return errors.New("ffmpeg record: destination must not be empty")
	}
	cmd := exec.CommandContext(ctx, r.binary, recordArgs(r.inputFormat, r.device, d, f, dest)...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg record: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

func recordArgs(inputFormat, device string, d time.Duration, f audio.Format, dest string) []string {
	if f.SampleRate <= 0 {
		f.SampleRate = 44100
	}
	if f.Channels <= 0 {
		f.Channels = 1
	}
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-f", inputFormat,
		"-i", device,
		"-t", strconv.FormatFloat(d.Seconds(), 'f', 3, 64),
		"-vn",
		"-ac", strconv.Itoa(f.Channels),
		"-ar", strconv.Itoa(f.SampleRate),
		"-c:a", "pcm_s16le",
		dest,
	}
}
