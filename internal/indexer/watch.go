package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// watchDebounce is how long the folder must stay quiet before a rebuild.
var watchDebounce = 2 * time.Second

// Watch calls rebuild once a burst of changes to supported documents in
// folder has settled. It returns when ctx is done.
func Watch(ctx context.Context, folder string, exts []string, rebuild func(context.Context) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	err = filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watching %s: %w", folder, err)
	}
	log.Info().Str("folder", folder).Msg("Watching documents for changes")

	timer := time.NewTimer(watchDebounce)
	timer.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if isDir(ev.Name) {
					if err := watcher.Add(ev.Name); err != nil {
						log.Warn().Err(err).Str("dir", ev.Name).Msg("Cannot watch new folder")
					}
					continue
				}
			}
			if ev.Has(fsnotify.Chmod) || !wanted(ev.Name, exts) {
				continue
			}
			log.Debug().Str("file", ev.Name).Str("op", ev.Op.String()).Msg("Document changed")
			timer.Reset(watchDebounce)
			pending = true

		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			log.Info().Msg("Documents changed, rebuilding index")
			if err := rebuild(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				log.Error().Err(err).Msg("Rebuilding index failed")
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Watcher error")
		}
	}
}
