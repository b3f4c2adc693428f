package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// OnChange is invoked with the newly-loaded config whenever the watched
// file changes and reparses to a config that differs from the last one
// applied.
type OnChange func(ChannelConfig)

// Watcher reloads a channel config file on change and reports it to
// OnChange, without disturbing anything else in the process. Grounded on
// the fsnotify.Watcher pattern: watch the containing directory rather
// than the file itself, since editors and config-management tools
// commonly replace a file via rename-into-place rather than an in-place
// write, which a direct file watch would miss.
type Watcher struct {
	path     string
	w        *fsnotify.Watcher
	log      *slog.Logger
	onChange OnChange
	last     ChannelConfig
	debounce time.Duration
}

// NewWatcher loads path once synchronously (returning its initial
// config) and prepares a Watcher that will call onChange on subsequent
// changes once Run is started.
func NewWatcher(path string, onChange OnChange, log *slog.Logger) (*Watcher, ChannelConfig, error) {
	if log == nil {
		log = slog.Default()
	}
	initial, err := Load(path)
	if err != nil {
		return nil, ChannelConfig{}, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ChannelConfig{}, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, ChannelConfig{}, err
	}

	return &Watcher{
		path:     path,
		w:        fw,
		log:      log.With("component", "config_watcher", "path", path),
		onChange: onChange,
		last:     initial,
		debounce: 200 * time.Millisecond,
	}, initial, nil
}

// Run processes filesystem events until ctx is canceled. It debounces
// bursts of events for the same file (editors often emit several events
// per save) by coalescing anything within debounce into one reload.
func (w *Watcher) Run(ctx context.Context) {
	defer w.w.Close()

	var pending *time.Timer
	reload := func() {
		cfg, err := Load(w.path)
		if err != nil {
			w.log.Warn("config reload failed, keeping previous config", "error", err)
			return
		}
		if cfg.Equal(w.last) {
			return
		}
		w.last = cfg
		w.log.Info("config reloaded", "channel_id", cfg.ChannelID)
		if w.onChange != nil {
			w.onChange(cfg)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if pending != nil {
				pending.Stop()
			}
			return
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(w.debounce, reload)
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watcher error", "error", err)
		}
	}
}
