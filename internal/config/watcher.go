package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watch monitors the config file for changes and invokes onReload with the
// freshly parsed configuration. Editors often replace the file (rename +
// create) instead of writing in place, so the parent directory is watched and
// events are filtered by name. The watcher stops when ctx is cancelled.
func Watch(ctx context.Context, configFile string, onReload func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(configFile)
	if err = watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return err
	}

	go func() {
		defer func() { _ = watcher.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(configFile) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				cfg, errLoad := LoadConfig(configFile)
				if errLoad != nil {
					log.Warnf("config reload failed, keeping previous configuration: %v", errLoad)
					continue
				}
				log.Infof("config file %s reloaded", configFile)
				onReload(cfg)
			case errWatch, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("config watcher error: %v", errWatch)
			}
		}
	}()

	return nil
}
