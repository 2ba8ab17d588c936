package audio

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnsupportedConversion is returned by a Converter that cannot translate
// between the requested encodings.
var ErrUnsupportedConversion = errors.New("audio: unsupported conversion")

// Target describes the desired output of a conversion.
type Target struct {
	Encoding Encoding
	Format   Format
}

// Source describes an input payload. Format is only consulted for
// EncodingPCM, which carries no header.
type Source struct {
	Encoding Encoding
	Format   Format
}

// Converter translates audio payloads between encodings and PCM formats.
//
// Implementations must be safe for concurrent use.
type Converter interface {
	// Convert decodes data according to src and re-encodes it as dst. A zero
	// dst.Format keeps the source sample rate and channel count.
	Convert(ctx context.Context, data []byte, src Source, dst Target) ([]byte, error)
}

// Recorder captures audio from a local input device.
//
// Implementations must be safe for concurrent use, although most devices only
// support one capture at a time.
type Recorder interface {
	// Record captures d of audio from the default input device and writes it as
	// a 16-bit WAV file at dest with the requested format. Cancelling ctx stops
	// the capture early.
	Record(ctx context.Context, d time.Duration, f Format, dest string) error
}

// NativeConverter converts between WAV and raw PCM without external tools. It
// returns ErrUnsupportedConversion for compressed encodings.
type NativeConverter struct{}

var _ Converter = NativeConverter{}

// Convert implements Converter.
func (NativeConverter) Convert(ctx context.Context, data []byte, src Source, dst Target) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		pcm []byte
		in  Format
		err error
	)
	switch src.Encoding {
	case EncodingWAV:
		pcm, in, err = DecodeWAV(data)
		if err != nil {
			return nil, err
		}
	case EncodingPCM:
		if src.Format.SampleRate <= 0 || src.Format.Channels <= 0 {
			return nil, fmt.Errorf("audio: raw PCM source needs a format, got %s", src.Format)
		}
		pcm, in = data, src.Format
	default:
		return nil, fmt.Errorf("%w: %s to %s", ErrUnsupportedConversion, src.Encoding, dst.Encoding)
	}

	out := dst.Format
	if out.SampleRate <= 0 {
		out.SampleRate = in.SampleRate
	}
	if out.Channels <= 0 {
		out.Channels = in.Channels
	}
	pcm = ConvertPCM(pcm, in, out)

	switch dst.Encoding {
	case EncodingWAV:
		return EncodeWAV(pcm, out), nil
	case EncodingPCM:
		return pcm, nil
	}
	return nil, fmt.Errorf("%w: %s to %s", ErrUnsupportedConversion, src.Encoding, dst.Encoding)
}

// ChainConverter tries the native converter first and falls back to Next for
// encodings it cannot handle. Next may be nil.
type ChainConverter struct {
	Next Converter
}

var _ Converter = ChainConverter{}

// Convert implements Converter.
func (c ChainConverter) Convert(ctx context.Context, data []byte, src Source, dst Target) ([]byte, error) {
	out, err := NativeConverter{}.Convert(ctx, data, src, dst)
	if err == nil || !errors.Is(err, ErrUnsupportedConversion) || c.Next == nil {
		return out, err
	}
	return c.Next.Convert(ctx, data, src, dst)
}
