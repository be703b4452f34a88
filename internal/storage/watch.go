package storage

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watch calls onChange whenever the document at path is written or created
// by another process. It blocks until ctx is done.
func (s *FileStore) Watch(ctx context.Context, path string, logger *zerolog.Logger, onChange func()) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// watch the directory: atomic replaces swap the inode under the file name
	if err := watcher.Add(s.root); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != full {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				logger.Debug().Str("event", event.Name).Msg("document changed on disk, reloading")
				onChange()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("document watcher error")
		}
	}
}
