package config

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay coalesces the burst of events an editor save produces.
const settleDelay = 100 * time.Millisecond

// Watcher keeps the latest valid configuration loaded from a file. It reacts
// to fsnotify events on the file's directory, which catches rename-based
// saves, and polls the modification time as a fallback. Invalid edits are
// logged and ignored.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu      sync.Mutex
	current *Config
	seen    fingerprint

	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// fingerprint identifies one version of the file.
type fingerprint struct {
	modTime time.Time
	sum     [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Default 5s.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and starts watching it. onChange, if set, runs on
// the watcher goroutine after every accepted reload.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     filepath.Clean(path),
		interval: 5 * time.Second,
		onChange: onChange,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, fp, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", w.path, err)
	}
	w.current, w.seen = cfg, fp

	go w.loop(w.notifier())
	return w, nil
}

// notifier subscribes to the config directory, or returns nil when the
// platform cannot deliver events.
func (w *Watcher) notifier() *fsnotify.Watcher {
	fw, err := fsnotify.NewWatcher()
	if err == nil {
		if err = fw.Add(filepath.Dir(w.path)); err == nil {
			return fw
		}
		fw.Close()
	}
	slog.Warn("config watcher: notifications unavailable, polling only", "path", w.path, "err", err)
	return nil
}

// Current returns the most recently accepted config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends watching and waits for the goroutine to exit. It is safe to call
// more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.stopped
}

func (w *Watcher) loop(fw *fsnotify.Watcher) {
	defer close(w.stopped)

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if fw != nil {
		defer fw.Close()
		events, errs = fw.Events, fw.Errors
	}

	poll := time.NewTicker(w.interval)
	defer poll.Stop()

	settle := time.NewTimer(settleDelay)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-poll.C:
			w.reload(false)
		case <-settle.C:
			w.reload(true)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				settle.Reset(settleDelay)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("config watcher: notification error", "path", w.path, "err", err)
		}
	}
}

// reload re-reads the file and publishes it when the content changed. Unless
// force is set, an unchanged modification time skips the read.
func (w *Watcher) reload(force bool) {
	if !force {
		info, err := os.Stat(w.path)
		if err != nil {
			// Rename-based saves briefly remove the file.
			if !os.IsNotExist(err) {
				slog.Warn("config watcher: stat failed", "path", w.path, "err", err)
			}
			return
		}
		w.mu.Lock()
		same := info.ModTime().Equal(w.seen.modTime)
		w.mu.Unlock()
		if same {
			return
		}
	}

	cfg, fp, err := w.read()
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
		}
		return
	}

	w.mu.Lock()
	changed := fp.sum != w.seen.sum
	w.seen = fp
	old := w.current
	if changed {
		w.current = cfg
	}
	w.mu.Unlock()

	if !changed {
		return
	}
	slog.Info("config watcher: configuration reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

// read parses and validates the file.
func (w *Watcher) read() (*Config, fingerprint, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fingerprint{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fingerprint{}, err
	}
	cfg, err := Parse(data, FormatFor(w.path))
	if err != nil {
		return nil, fingerprint{}, err
	}
	return cfg, fingerprint{modTime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
