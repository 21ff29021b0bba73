package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"reflect"

	"github.com/fsnotify/fsnotify"
)

// MutableConfig is the subset of Config that hot-reloads without a
// restart: the admin list, and each plugin's enabled default and
// access-control rules. Server connection parameters are deliberately
// excluded — changing host, port, token, or TLS requires restarting
// the process, since the transport is already dialed against the old
// values.
type MutableConfig struct {
	Admin   AdminConfig
	Plugins map[string]PluginConfig
}

func mutableOf(cfg *Config) MutableConfig {
	return MutableConfig{Admin: cfg.Admin, Plugins: cfg.Plugins}
}

// Watcher watches a config file for writes and re-loads it, invoking
// OnChange with only the mutable subset whenever that subset actually
// differs from what was last applied. Server parameters are read once
// at startup and never propagated through OnChange.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	done      chan struct{}
}

// Watch starts watching path's parent directory for changes to path
// and calls onChange with the new mutable config whenever it differs
// from current. onChange is never called for a change that touches
// only ServerConfig.
func Watch(path string, current MutableConfig, onChange func(MutableConfig)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating config watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching directory %s: %w", dir, err)
	}

	w := &Watcher{fsWatcher: fw, done: make(chan struct{})}
	go w.processEvents(path, current, onChange)

	slog.Info("config watcher started", "path", path)
	return w, nil
}

// processEvents reads fsnotify events for dir, re-loading path and
// diffing the mutable subset whenever path itself is written.
func (w *Watcher) processEvents(path string, last MutableConfig, onChange func(MutableConfig)) {
	target := filepath.Base(path)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if filepath.Base(event.Name) != target {
				continue
			}

			cfg, err := Load(path)
			if err != nil {
				slog.Error("config reload failed, keeping previous config", "error", err)
				continue
			}

			next := mutableOf(cfg)
			if reflect.DeepEqual(next, last) {
				continue
			}
			slog.Info("config changed, applying mutable subset")
			last = next
			onChange(next)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			slog.Error("config watcher error", "error", err)

		case <-w.done:
			return
		}
	}
}

// Close stops the watcher goroutine and releases the underlying
// fsnotify watcher. Safe to call multiple times.
func (w *Watcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
		close(w.done)
	}
	return w.fsWatcher.Close()
}
