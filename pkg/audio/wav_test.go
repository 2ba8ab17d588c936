package audio_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/speakez/pkg/audio"
)

func TestWAVRoundTrip(t *testing.T) {
	t.Parallel()

	pcm := samplesToBytes([]int16{0, 1000, -1000, 32767, -32768})
	f := audio.Format{SampleRate: 44100, Channels: 1}

	wav := audio.EncodeWAV(pcm, f)
	if !audio.IsWAV(wav) {
		t.Fatal("IsWAV = false for encoded payload")
	}
	if len(wav) != 44+len(pcm) {
		t.Fatalf("len(wav) = %d, want %d", len(wav), 44+len(pcm))
	}

	got, gotFmt, err := audio.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if gotFmt != f {
		t.Errorf("format = %v, want %v", gotFmt, f)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("pcm mismatch: got %v, want %v", got, pcm)
	}
}

func TestDecodeWAV_SkipsExtraChunks(t *testing.T) {
	t.Parallel()

	pcm := samplesToBytes([]int16{1, 2, 3})
	plain := audio.EncodeWAV(pcm, audio.Format{SampleRate: 16000, Channels: 1})

	// Insert an odd-sized LIST chunk between fmt and data.
	list := []byte("LIST\x03\x00\x00\x00abc\x00")
	var b bytes.Buffer
	b.Write(plain[:36])
	b.Write(list)
	b.Write(plain[36:])
	data := b.Bytes()
	binary.LittleEndian.PutUint32(data[4:8], uint32(len(data)-8))

	got, _, err := audio.DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("pcm mismatch: got %v, want %v", got, pcm)
	}
}

func TestDecodeWAV_StreamedDataSize(t *testing.T) {
	t.Parallel()

	pcm := samplesToBytes([]int16{5, 6})
	wav := audio.EncodeWAV(pcm, audio.Format{SampleRate: 16000, Channels: 1})
	binary.LittleEndian.PutUint32(wav[40:44], 0xFFFFFFFF)

	got, _, err := audio.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("pcm mismatch: got %v, want %v", got, pcm)
	}
}

func TestDecodeWAV_Rejects(t *testing.T) {
	t.Parallel()

	// fmt chunk fields: channels at 22, sample rate at 24.
	zeroed := func(off, n int) []byte {
		wav := audio.EncodeWAV(make([]byte, 3200), audio.Format{SampleRate: 16000, Channels: 1})
		clear(wav[off : off+n])
		return wav
	}
	tests := map[string][]byte{
		"empty":         nil,
		"mp3":           []byte("ID3\x03\x00\x00\x00\x00\x00\x00\x00\x00"),
		"no data":       audio.EncodeWAV(nil, audio.Format{SampleRate: 8000, Channels: 1})[:36],
		"zero rate":     zeroed(24, 4),
		"zero channels": zeroed(22, 2),
	}
	for name, data := range tests {
		if _, _, err := audio.DecodeWAV(data); !errors.Is(err, audio.ErrNotWAV) {
			t.Errorf("%s: err = %v, want ErrNotWAV", name, err)
		}
	}
}

func TestParseEncoding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want audio.Encoding
	}{
		{"audio/wav", audio.EncodingWAV},
		{"audio/x-wav", audio.EncodingWAV},
		{"audio/mpeg", audio.EncodingMP3},
		{"audio/webm;codecs=opus", audio.EncodingWebM},
		{"audio/ogg; codecs=opus", audio.EncodingOGG},
		{"MP3", audio.EncodingMP3},
		{"pcm", audio.EncodingPCM},
	}
	for _, tc := range tests {
		got, err := audio.ParseEncoding(tc.in)
		if err != nil {
			t.Errorf("ParseEncoding(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseEncoding(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
	if _, err := audio.ParseEncoding("video/mp4"); err == nil {
		t.Error("ParseEncoding(video/mp4): expected error")
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	f := audio.Format{SampleRate: 16000, Channels: 1}
	if got := f.Duration(32000); got != time.Second {
		t.Errorf("Duration(32000) = %v, want 1s", got)
	}
	if got := (audio.Format{}).Duration(100); got != 0 {
		t.Errorf("zero format Duration = %v, want 0", got)
	}
}

func TestNativeConverter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pcm := samplesToBytes(make([]int16, 48000))
	wav := audio.EncodeWAV(pcm, audio.Format{SampleRate: 48000, Channels: 1})

	out, err := audio.NativeConverter{}.Convert(ctx, wav,
		audio.Source{Encoding: audio.EncodingWAV},
		audio.Target{Encoding: audio.EncodingPCM, Format: audio.Format{SampleRate: 16000}})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if len(out) != 32000 {
		t.Errorf("len(out) = %d, want 32000", len(out))
	}

	back, err := audio.NativeConverter{}.Convert(ctx, out,
		audio.Source{Encoding: audio.EncodingPCM, Format: audio.Format{SampleRate: 16000, Channels: 1}},
		audio.Target{Encoding: audio.EncodingWAV})
	if err != nil {
		t.Fatalf("Convert back: %v", err)
	}
	if _, f, err := audio.DecodeWAV(back); err != nil || f.SampleRate != 16000 {
		t.Errorf("DecodeWAV(back) = %v, %v", f, err)
	}

	_, err = audio.NativeConverter{}.Convert(ctx, []byte("ID3"),
		audio.Source{Encoding: audio.EncodingMP3},
		audio.Target{Encoding: audio.EncodingWAV})
	if !errors.Is(err, audio.ErrUnsupportedConversion) {
		t.Errorf("mp3 err = %v, want ErrUnsupportedConversion", err)
	}
}

type stubConverter struct{ called bool }

func (s *stubConverter) Convert(context.Context, []byte, audio.Source, audio.Target) ([]byte, error) {
	s.called = true
	return []byte("converted"), nil
}

func TestChainConverter(t *testing.T) {
	t.Parallel()

	next := &stubConverter{}
	c := audio.ChainConverter{Next: next}

	out, err := c.Convert(context.Background(), []byte("ID3"),
		audio.Source{Encoding: audio.EncodingMP3},
		audio.Target{Encoding: audio.EncodingWAV})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if !next.called || string(out) != "converted" {
		t.Errorf("expected fallback to Next, got %q (called=%v)", out, next.called)
	}

	next.called = false
	wav := audio.EncodeWAV(samplesToBytes([]int16{1}), audio.Format{SampleRate: 8000, Channels: 1})
	if _, err := c.Convert(context.Background(), wav,
		audio.Source{Encoding: audio.EncodingWAV},
		audio.Target{Encoding: audio.EncodingWAV}); err != nil {
		t.Fatalf("Convert wav: %v", err)
	}
	if next.called {
		t.Error("Next called for a natively supported conversion")
	}
}
