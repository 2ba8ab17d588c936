package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const wavHeaderSize = 44

// ErrNotWAV is returned by DecodeWAV when the payload is not a RIFF/WAVE
// container holding 16-bit PCM.
var ErrNotWAV = errors.New("audio: not a 16-bit PCM WAV payload")

// EncodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container.
func EncodeWAV(pcm []byte, f Format) []byte {
	const bps = 16
	byteRate := f.SampleRate * f.Channels * bps / 8
	blockAlign := f.Channels * bps / 8
	dataSize := len(pcm)

	buf := make([]byte, wavHeaderSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bps)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// DecodeWAV extracts the PCM samples and format from a WAV payload. Chunks
// other than "fmt " and "data" (LIST, fact, ...) are skipped. A data chunk
// whose declared size overruns the payload is truncated to what is present,
// which is what streaming encoders such as ffmpeg produce when writing to a
// pipe.
func DecodeWAV(data []byte) ([]byte, Format, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, Format{}, ErrNotWAV
	}

	var (
		f      Format
		gotFmt bool
		off    = 12
	)
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return nil, Format{}, fmt.Errorf("audio: short fmt chunk: %w", ErrNotWAV)
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			// 0xFFFE is WAVE_FORMAT_EXTENSIBLE, used by some encoders for plain PCM.
			if (format != 1 && format != 0xFFFE) || bits != 16 {
				return nil, Format{}, fmt.Errorf("audio: format %d with %d bits: %w", format, bits, ErrNotWAV)
			}
			f.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			if f.Channels <= 0 || f.SampleRate <= 0 {
				return nil, Format{}, fmt.Errorf("audio: fmt chunk declares %s: %w", f, ErrNotWAV)
			}
			gotFmt = true
		case "data":
			if !gotFmt {
				return nil, Format{}, fmt.Errorf("audio: data chunk before fmt chunk: %w", ErrNotWAV)
			}
			end := body + size
			if end > len(data) || size == 0 || size == 0xFFFFFFFF {
				end = len(data)
			}
			pcm := data[body:end]
			if len(pcm)%2 != 0 {
				pcm = pcm[:len(pcm)-1]
			}
			return pcm, f, nil
		}

		off = body + size
		if size%2 == 1 {
			off++ // chunks are word aligned
		}
	}
	return nil, Format{}, fmt.Errorf("audio: missing data chunk: %w", ErrNotWAV)
}

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}
