// Package mock provides in-memory implementations of [audio.Converter] and
// [audio.Recorder] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every call so tests can
// assert on arguments, and expose exported fields that control return values.
package mock

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/speakez/pkg/audio"
)

// ConvertCall records a single invocation of Converter.Convert.
type ConvertCall struct {
	Data []byte
	Src  audio.Source
	Dst  audio.Target
}

// Converter is a mock implementation of [audio.Converter].
type Converter struct {
	mu sync.Mutex

	// Result is returned by Convert. When nil the input data is echoed back.
	Result []byte

	// Err, if non-nil, is returned by Convert.
	Err error

	// Calls records every call to Convert.
	Calls []ConvertCall
}

var _ audio.Converter = (*Converter)(nil)

// Convert records the call and returns Result or Err.
func (c *Converter) Convert(_ context.Context, data []byte, src audio.Source, dst audio.Target) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	c.Calls = append(c.Calls, ConvertCall{Data: cp, Src: src, Dst: dst})
	if c.Err != nil {
		return nil, c.Err
	}
	if c.Result != nil {
		return c.Result, nil
	}
	return data, nil
}

// CallCount returns the number of Convert calls.
func (c *Converter) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}

// RecordCall records a single invocation of Recorder.Record.
type RecordCall struct {
	Duration time.Duration
	Format   audio.Format
	Dest     string
}

// Recorder is a mock implementation of [audio.Recorder]. On success it writes
// a WAV file of silence at the destination, sized to the requested duration.
type Recorder struct {
	mu sync.Mutex

	// Err, if non-nil, is returned by Record and nothing is written.
	Err error

	// Calls records every call to Record.
	Calls []RecordCall
}

var _ audio.Recorder = (*Recorder)(nil)

// Record records the call and writes a silent WAV file to dest.
func (r *Recorder) Record(ctx context.Context, d time.Duration, f audio.Format, dest string) error {
	r.mu.Lock()
	r.Calls = append(r.Calls, RecordCall{Duration: d, Format: f, Dest: dest})
	err := r.Err
	r.mu.Unlock()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	pcm := make([]byte, int(d.Seconds()*float64(f.BytesPerSecond()))&^1)
	return os.WriteFile(dest, audio.EncodeWAV(pcm, f), 0o600)
}

// CallCount returns the number of Record calls.
func (r *Recorder) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Calls)
}
