// Package audio holds the audio primitives shared by the practice service and
// the speech providers: PCM formats, encodings, a WAV codec and the
// Converter and Recorder abstractions.
//
// Compressed encodings (MP3, OGG, WebM, FLAC) are handled by the ffmpeg
// subpackage; everything else is converted natively.
package audio

import (
	"fmt"
	"mime"
	"strings"
	"time"
)

// Encoding identifies the container or codec of an audio payload.
type Encoding string

const (
	// EncodingWAV is a RIFF/WAVE container holding 16-bit signed PCM.
	EncodingWAV Encoding = "wav"

	// EncodingPCM is headerless 16-bit signed little-endian PCM. The sample rate
	// and channel count travel out of band in a Format.
	EncodingPCM Encoding = "pcm"

	EncodingMP3  Encoding = "mp3"
	EncodingOGG  Encoding = "ogg"
	EncodingWebM Encoding = "webm"
	EncodingFLAC Encoding = "flac"
)

// Format describes the sample rate and channel count of PCM audio.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable description such as "16000Hz mono".
func (f Format) String() string {
	switch f.Channels {
	case 1:
		return fmt.Sprintf("%dHz mono", f.SampleRate)
	case 2:
		return fmt.Sprintf("%dHz stereo", f.SampleRate)
	}
	return fmt.Sprintf("%dHz %dch", f.SampleRate, f.Channels)
}

// BytesPerSecond returns the number of bytes one second of 16-bit PCM in this
// format occupies. Returns 0 for an invalid format.
func (f Format) BytesPerSecond() int {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	return f.SampleRate * f.Channels * 2
}

// Duration returns the playback length of pcmBytes bytes of 16-bit PCM in this
// format.
func (f Format) Duration(pcmBytes int) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(int64(pcmBytes) * int64(time.Second) / int64(bps))
}

// MIMEType returns the media type served for e.
func (e Encoding) MIMEType() string {
	switch e {
	case EncodingWAV:
		return "audio/wav"
	case EncodingMP3:
		return "audio/mpeg"
	case EncodingOGG:
		return "audio/ogg"
	case EncodingWebM:
		return "audio/webm"
	case EncodingFLAC:
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}

// Extension returns the file extension, including the dot, used when e is
// written to disk.
func (e Encoding) Extension() string {
	if e == EncodingPCM {
		return ".raw"
	}
	return "." + string(e)
}

// ParseEncoding maps a MIME type (parameters allowed) or a bare encoding name
// to an Encoding.
func ParseEncoding(s string) (Encoding, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if mt, _, err := mime.ParseMediaType(s); err == nil {
		s = mt
	}
	switch s {
	case "audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave", "wav":
		return EncodingWAV, nil
	case "audio/l16", "audio/pcm", "pcm", "raw":
		return EncodingPCM, nil
	case "audio/mpeg", "audio/mp3", "mp3":
		return EncodingMP3, nil
	case "audio/ogg", "audio/opus", "ogg", "opus":
		return EncodingOGG, nil
	case "audio/webm", "video/webm", "webm":
		return EncodingWebM, nil
	case "audio/flac", "audio/x-flac", "flac":
		return EncodingFLAC, nil
	}
	return "", fmt.Errorf("audio: unsupported encoding %q", s)
}
