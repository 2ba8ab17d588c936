package audio_test

import (
	"encoding/binary"
	"math"
	"slices"
	"testing"

	"github.com/MrWong99/speakez/pkg/audio"
)

func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestChannelHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fn   func([]byte) []byte
		in   []byte
		want []int16
	}{
		{"mono to stereo", audio.MonoToStereo, samplesToBytes([]int16{100, -7, 300}), []int16{100, 100, -7, -7, 300, 300}},
		{"mono to stereo drops odd byte", audio.MonoToStereo, []byte{0x64, 0x00, 0xC8, 0x00, 0xFF}, []int16{100, 100, 200, 200}},
		{"stereo to mono", audio.StereoToMono, samplesToBytes([]int16{100, 200, -100, -200}), []int16{150, -150}},
		{"stereo to mono at full scale", audio.StereoToMono, samplesToBytes([]int16{32767, 32767, -32768, -32768}), []int16{32767, -32768}},
		{"stereo to mono partial frame", audio.StereoToMono, samplesToBytes([]int16{10, 20, 30}), []int16{15}},
	}
	for _, tc := range tests {
		if got := bytesToSamples(tc.fn(tc.in)); !slices.Equal(got, tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestResample(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		in              []int16
		channels        int
		srcRate, dstRate int
		wantLen         int
	}{
		{"same rate", []int16{1, 2, 3}, 1, 48000, 48000, 3},
		{"upsample mono", []int16{1000, 2000}, 1, 16000, 48000, 6},
		{"downsample mono", []int16{100, 200, 300, 400, 500, 600}, 1, 48000, 16000, 2},
		{"upsample stereo", []int16{100, 200, 300, 400}, 2, 16000, 48000, 12},
		{"zero source rate", []int16{1, 2}, 1, 0, 48000, 2},
		{"zero target rate", []int16{1, 2}, 1, 48000, 0, 2},
		{"negative rate", []int16{1, 2}, 2, -1, 16000, 2},
	}
	for _, tc := range tests {
		got := bytesToSamples(audio.Resample(samplesToBytes(tc.in), tc.channels, tc.srcRate, tc.dstRate))
		if len(got) != tc.wantLen {
			t.Errorf("%s: %d samples, want %d", tc.name, len(got), tc.wantLen)
		}
	}
}

func TestResample_Interpolates(t *testing.T) {
	t.Parallel()

	got := bytesToSamples(audio.Resample(samplesToBytes([]int16{0, 300}), 1, 8000, 16000))
	want := []int16{0, 150, 300, 300}
	if !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	// Channels are interpolated independently.
	got = bytesToSamples(audio.Resample(samplesToBytes([]int16{0, 1000, 200, -1000}), 2, 8000, 16000))
	want = []int16{0, 1000, 100, 0, 200, -1000, 200, -1000}
	if !slices.Equal(got, want) {
		t.Errorf("stereo: got %v, want %v", got, want)
	}
}

func TestConvertPCM(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       []int16
		from, to audio.Format
		want     []int16
	}{
		{
			name: "widen to stereo",
			in:   []int16{100, 200, 300},
			from: audio.Format{SampleRate: 48000, Channels: 1},
			to:   audio.Format{SampleRate: 48000, Channels: 2},
			want: []int16{100, 100, 200, 200, 300, 300},
		},
		{
			name: "quad to mono",
			in:   []int16{100, 200, 300, 400, -100, -100, -100, -100},
			from: audio.Format{SampleRate: 16000, Channels: 4},
			to:   audio.Format{SampleRate: 16000, Channels: 1},
			want: []int16{250, -100},
		},
		{
			name: "quad to stereo",
			in:   []int16{100, 200, 300, 400},
			from: audio.Format{SampleRate: 16000, Channels: 4},
			to:   audio.Format{SampleRate: 16000, Channels: 2},
			want: []int16{250, 250},
		},
		{
			name: "zero target keeps source",
			in:   []int16{5, 6},
			from: audio.Format{SampleRate: 16000, Channels: 2},
			to:   audio.Format{},
			want: []int16{5, 6},
		},
		{
			name: "unknown source rate",
			in:   []int16{7, 8},
			from: audio.Format{Channels: 1},
			to:   audio.Format{SampleRate: 16000, Channels: 1},
			want: []int16{7, 8},
		},
	}
	for _, tc := range tests {
		got := bytesToSamples(audio.ConvertPCM(samplesToBytes(tc.in), tc.from, tc.to))
		if !slices.Equal(got, tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestConvertPCM_MicrophoneToRecognizer(t *testing.T) {
	t.Parallel()

	// One second of 44.1 kHz stereo capture.
	out := audio.ConvertPCM(samplesToBytes(make([]int16, 44100*2)),
		audio.Format{SampleRate: 44100, Channels: 2},
		audio.Format{SampleRate: 16000, Channels: 1})
	if got := len(out) / 2; got != 16000 {
		t.Errorf("got %d samples, want 16000", got)
	}
}

func TestConvertPCM_SameFormat(t *testing.T) {
	t.Parallel()

	f := audio.Format{SampleRate: 16000, Channels: 1}
	pcm := []byte{1, 2, 3}
	out := audio.ConvertPCM(pcm, f, f)
	if len(out) != 2 || &out[0] != &pcm[0] {
		t.Errorf("expected the input trimmed to whole samples, got %v", out)
	}
}

func TestComputeRMS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   []int16
		want float64
	}{
		{nil, 0},
		{[]int16{300, -300, 300, -300}, 300},
		{[]int16{3, 4, 0, 0}, 2.5},
	}
	for _, tc := range tests {
		if got := audio.ComputeRMS(samplesToBytes(tc.in)); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("ComputeRMS(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestPCMToFloat32Mono(t *testing.T) {
	t.Parallel()

	got := audio.PCMToFloat32Mono(samplesToBytes([]int16{16384, 0, -32768, -32768}), 2)
	if want := []float32{0.25, -1}; !slices.Equal(got, want) {
		t.Errorf("stereo: got %v, want %v", got, want)
	}
	got = audio.PCMToFloat32Mono(samplesToBytes([]int16{-16384}), 0)
	if want := []float32{-0.5}; !slices.Equal(got, want) {
		t.Errorf("zero channels: got %v, want %v", got, want)
	}
}
