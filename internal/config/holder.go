package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

const reloadDebounce = 300 * time.Millisecond

// Holder serves the current settings and reloads them when the file
// changes. Recordings take a snapshot with Get when they start, so a reload
// only affects the next recording.
type Holder struct {
	mu      sync.RWMutex
	current Settings
	path    string
	log     zerolog.Logger

	listenMu  sync.Mutex
	listeners []chan<- Settings
}

func NewHolder(initial Settings, path string, log zerolog.Logger) *Holder {
	return &Holder{current: initial, path: path, log: log}
}

// Get returns the current settings.
func (h *Holder) Get() Settings {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Path returns the settings file location.
func (h *Holder) Path() string { return h.path }

// Set replaces the settings after validating them and persists them when
// the holder has a file.
func (h *Holder) Set(s Settings) error {
	if err := Validate(s); err != nil {
		return err
	}
	if h.path != "" {
		if err := Save(h.path, s); err != nil {
			return err
		}
	}
	h.swap(s)
	return nil
}

// Reload re-reads the file. Invalid content leaves the current settings in
// place.
func (h *Holder) Reload() error {
	s, err := Load(h.path)
	if err != nil {
		h.log.Error().Err(err).Str("event", "config.reload_failed").Msg("config reload failed")
		return fmt.Errorf("reload config: %w", err)
	}
	h.swap(s)
	return nil
}

func (h *Holder) swap(s Settings) {
	h.mu.Lock()
	old := h.current
	h.current = s
	h.mu.Unlock()

	if diff := cmp.Diff(old, s); diff != "" {
		h.log.Info().Str("event", "config.changed").Str("diff", diff).Msg("settings changed")
		h.notify(s)
	}
}

// Subscribe registers ch for change notifications. Sends never block; a
// full channel misses the update.
func (h *Holder) Subscribe(ch chan<- Settings) {
	h.listenMu.Lock()
	defer h.listenMu.Unlock()
	h.listeners = append(h.listeners, ch)
}

func (h *Holder) notify(s Settings) {
	h.listenMu.Lock()
	defer h.listenMu.Unlock()
	for _, ch := range h.listeners {
		select {
		case ch <- s:
		default:
			h.log.Warn().Str("event", "config.listener_skip").Msg("settings listener is full")
		}
	}
}

// Watch reloads the settings whenever the file is written until ctx is
// done. The directory is watched rather than the file so that editors which
// replace the file on save are picked up.
func (h *Holder) Watch(ctx context.Context) error {
	if h.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(h.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}
	h.log.Info().Str("path", h.path).Msg("watching config file")

	go func() {
		defer watcher.Close()
		var debounce *time.Timer
		defer func() {
			if debounce != nil {
				debounce.Stop()
			}
		}()
		target := filepath.Clean(h.path)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(reloadDebounce, func() {
					if ctx.Err() == nil {
						_ = h.Reload()
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				h.log.Error().Err(err).Msg("config watcher error")
			}
		}
	}()
	return nil
}
