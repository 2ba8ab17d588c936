package audio

import (
	"encoding/binary"
	"math"
)

// Everything in this file works on signed 16-bit little-endian PCM with
// interleaved channels. A trailing odd byte is ignored.

func decode16(pcm []byte) []int16 {
	s := make([]int16, len(pcm)/2)
	for i := range s {
		s[i] = int16(binary.LittleEndian.Uint16(pcm[2*i:]))
	}
	return s
}

func encode16(s []int16) []byte {
	out := make([]byte, 2*len(s))
	for i, v := range s {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

// ConvertPCM resamples and remixes pcm from one format to another. Matching
// formats return pcm itself. Zero fields in to keep the source value. A
// source without a positive sample rate cannot be converted and is returned
// as is.
func ConvertPCM(pcm []byte, from, to Format) []byte {
	pcm = pcm[:len(pcm)&^1]
	if from == to || from.SampleRate <= 0 {
		return pcm
	}
	ch := max(from.Channels, 1)
	dstCh := to.Channels
	if dstCh <= 0 {
		dstCh = ch
	}

	s := decode16(pcm)
	// Fold surround down before resampling so only one channel is interpolated.
	if ch > 2 {
		s, ch = remix(s, ch, 1), 1
	}
	if to.SampleRate > 0 && from.SampleRate != to.SampleRate {
		s = resample(s, ch, from.SampleRate, to.SampleRate)
	}
	return encode16(remix(s, ch, dstCh))
}

// MonoToStereo copies every sample into both channels.
func MonoToStereo(pcm []byte) []byte {
	return encode16(remix(decode16(pcm), 1, 2))
}

// StereoToMono averages left and right.
func StereoToMono(pcm []byte) []byte {
	return encode16(remix(decode16(pcm), 2, 1))
}

// Resample converts pcm with the given channel count between sample rates by
// linear interpolation. Non-positive rates return pcm unchanged.
func Resample(pcm []byte, channels, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return pcm
	}
	return encode16(resample(decode16(pcm), max(channels, 1), srcRate, dstRate))
}

func resample(s []int16, ch, srcRate, dstRate int) []int16 {
	srcFrames := len(s) / ch
	if srcFrames == 0 {
		return nil
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	out := make([]int16, dstFrames*ch)
	step := float64(srcRate) / float64(dstRate)
	for i := range dstFrames {
		pos := float64(i) * step
		a := int(pos)
		b := min(a+1, srcFrames-1)
		frac := pos - float64(a)
		for c := range ch {
			s0, s1 := float64(s[a*ch+c]), float64(s[b*ch+c])
			out[i*ch+c] = int16(s0 + (s1-s0)*frac)
		}
	}
	return out
}

// remix changes the channel count. Reducing to mono averages the channels;
// widening from mono duplicates. Anything else goes through mono.
func remix(s []int16, from, to int) []int16 {
	if from == to || from <= 0 || to <= 0 {
		return s
	}
	if from != 1 && to != 1 {
		return remix(remix(s, from, 1), 1, to)
	}
	frames := len(s) / from
	out := make([]int16, frames*to)
	for i := range frames {
		if to == 1 {
			var sum int32
			for _, v := range s[i*from : (i+1)*from] {
				sum += int32(v)
			}
			out[i] = int16(sum / int32(from))
			continue
		}
		for c := range to {
			out[i*to+c] = s[i]
		}
	}
	return out
}

// ComputeRMS is the root-mean-square amplitude of pcm in sample units
// (0 to 32767).
func ComputeRMS(pcm []byte) float64 {
	s := decode16(pcm)
	if len(s) == 0 {
		return 0
	}
	var sq float64
	for _, v := range s {
		sq += float64(v) * float64(v)
	}
	return math.Sqrt(sq / float64(len(s)))
}

// PCMToFloat32Mono averages the channels of pcm into mono samples scaled to
// [-1, 1), the input format speech models expect.
func PCMToFloat32Mono(pcm []byte, channels int) []float32 {
	ch := max(channels, 1)
	s := decode16(pcm)
	out := make([]float32, len(s)/ch)
	for i := range out {
		var sum float32
		for _, v := range s[i*ch : (i+1)*ch] {
			sum += float32(v) / 32768
		}
		out[i] = sum / float32(ch)
	}
	return out
}
