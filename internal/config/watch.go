package config

import (
	"context"
	"fmt"
	"os"
	"time"
)

// RoomsWatcher polls rooms.yaml and applies every valid revision. Load must
// succeed once before Run is started.
type RoomsWatcher struct {
	path     string
	interval time.Duration
	apply    func(context.Context, *RoomsConfig) error
	onError  func(error)

	lastMod time.Time
}

// NewRoomsWatcher builds a watcher. apply receives each parsed catalog; onError
// receives reload and apply failures seen by Run and may be nil.
func NewRoomsWatcher(path string, interval time.Duration, apply func(context.Context, *RoomsConfig) error, onError func(error)) *RoomsWatcher {
	if path == "" {
		path = "configs/rooms.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if onError == nil {
		onError = func(error) {}
	}
	return &RoomsWatcher{path: path, interval: interval, apply: apply, onError: onError}
}

// Load reads and applies the catalog once. Unlike Run it returns every
// failure, including one from apply.
func (w *RoomsWatcher) Load(ctx context.Context) (*RoomsConfig, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, err
	}
	cfg, err := LoadRoomsConfig(w.path)
	if err != nil {
		return nil, err
	}
	if err := w.apply(ctx, cfg); err != nil {
		return nil, fmt.Errorf("apply room catalog: %w", err)
	}
	w.lastMod = info.ModTime()
	return cfg, nil
}

// Run polls the file until ctx is done. An invalid edit is reported and the
// previous catalog stays in effect until the file changes again.
func (w *RoomsWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *RoomsWatcher) poll(ctx context.Context) {
	info, err := os.Stat(w.path)
	if err != nil {
		return // editors replace the file; try again next tick
	}
	if !info.ModTime().After(w.lastMod) {
		return
	}
	w.lastMod = info.ModTime()

	cfg, err := LoadRoomsConfig(w.path)
	if err != nil {
		w.onError(err)
		return
	}
	if err := w.apply(ctx, cfg); err != nil {
		w.onError(fmt.Errorf("apply room catalog: %w", err))
	}
}
