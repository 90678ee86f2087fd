package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// ErrUnchanged is returned by [Watcher.Reload] when the file content matches
// the active configuration.
var ErrUnchanged = errors.New("config: file unchanged")

// fileStamp identifies one observed revision of the config file.
type fileStamp struct {
	mod  time.Time
	size int64
	sum  [sha256.Size]byte
}

// Watcher keeps a config file and the running process in sync. It polls the
// file's modification time and size; a change triggers a full load, and the
// callback fires only when the content hash differs and the new document
// validates. Invalid edits leave the last good config active.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)
	loadOpts []LoadOption

	// reloadMu serializes loads from Run and Reload.
	reloadMu sync.Mutex

	mu      sync.Mutex
	current *Config
	stamp   fileStamp

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 2 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithLoadOptions applies opts to every load, including the initial one.
func WithLoadOptions(opts ...LoadOption) WatcherOption {
	return func(w *Watcher) { w.loadOpts = append(w.loadOpts, opts...) }
}

// NewWatcher loads the config at path and returns a watcher for it. Polling
// starts with [Watcher.Run].
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 2 * time.Second,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, stamp, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current, w.stamp = cfg, stamp
	return w, nil
}

// Current returns the active config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls until ctx is cancelled or [Watcher.Stop] is called. It always
// returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.done:
			return nil
		case <-ticker.C:
			if !w.touched() {
				continue
			}
			switch err := w.Reload(); {
			case err == nil, errors.Is(err, ErrUnchanged):
			default:
				slog.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
			}
		}
	}
}

// Stop ends [Watcher.Run]. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

// Reload reads the file now, regardless of its modification time. It returns
// [ErrUnchanged] when the content is identical to the active config and the
// load or validation error when the new document is rejected. On success the
// change callback has run before Reload returns.
func (w *Watcher) Reload() error {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	cfg, stamp, err := w.read()
	if err != nil {
		// Remember the stamp so a broken file is not re-parsed every tick.
		if info, serr := os.Stat(w.path); serr == nil {
			w.mu.Lock()
			w.stamp.mod, w.stamp.size = info.ModTime(), info.Size()
			w.mu.Unlock()
		}
		return err
	}

	w.mu.Lock()
	if stamp.sum == w.stamp.sum {
		w.stamp = stamp
		w.mu.Unlock()
		return ErrUnchanged
	}
	old := w.current
	w.current, w.stamp = cfg, stamp
	w.mu.Unlock()

	slog.Info("config watcher: configuration reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
	return nil
}

// touched reports whether the file's modification time or size moved since
// the last read.
func (w *Watcher) touched() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return !info.ModTime().Equal(w.stamp.mod) || info.Size() != w.stamp.size
}

func (w *Watcher) read() (*Config, fileStamp, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data), w.loadOpts...)
	if err != nil {
		return nil, fileStamp{}, err
	}
	return cfg, fileStamp{mod: info.ModTime(), size: int64(len(data)), sum: sha256.Sum256(data)}, nil
}
