package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/qiniu/alarmhook/internal/webhook"
	"github.com/rs/zerolog/log"
)

// targetsFile tracks one targets file for reloads. The parent directory is
// watched, not the file: atomic saves and ConfigMap updates replace the inode,
// and a watch on the old inode goes silent.
type targetsFile struct {
	path     string
	realPath string
	last     []byte
	onChange func(webhook.Targets)
}

// WatchFile reloads the targets file whenever it changes and hands the result
// to onChange. An empty, missing or unparsable file is logged and the previous
// targets stay active. WatchFile blocks until ctx is done.
func WatchFile(ctx context.Context, path string, onChange func(webhook.Targets)) error {
	path = filepath.Clean(path)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("watch webhook targets file: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch webhook targets dir: %w", err)
	}

	f := &targetsFile{path: path, onChange: onChange}
	f.realPath, _ = filepath.EvalSymlinks(path)
	f.last, _ = os.ReadFile(path)
	log.Info().Str("path", path).Msg("watching webhook targets file")

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if f.affectedBy(ev) {
				f.reload()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Str("path", path).Msg("webhook targets watcher error")
		}
	}
}

func (f *targetsFile) affectedBy(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) == f.path {
		return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
	}
	// a symlinked file (kubernetes ConfigMap) changes when its link target moves
	real, err := filepath.EvalSymlinks(f.path)
	if err != nil || real == f.realPath {
		return false
	}
	f.realPath = real
	return true
}

func (f *targetsFile) reload() {
	data, err := os.ReadFile(f.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Debug().Str("path", f.path).Msg("webhook targets file gone, waiting for replacement")
		return
	case err != nil:
		log.Error().Err(err).Str("path", f.path).Msg("webhook targets reload failed, keeping previous targets")
		return
	case len(bytes.TrimSpace(data)) == 0:
		// seen mid-rewrite after truncation
		log.Debug().Str("path", f.path).Msg("webhook targets file empty, keeping previous targets")
		return
	case bytes.Equal(data, f.last):
		return
	}

	targets, err := Parse(data)
	if err != nil {
		log.Error().Err(err).Str("path", f.path).Msg("webhook targets reload failed, keeping previous targets")
		return
	}
	f.last = data
	log.Info().
		Str("path", f.path).
		Int("groups", len(targets)).
		Int("urls", targets.Len()).
		Msg("webhook targets updated")
	f.onChange(targets)
}
