package workspace

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch keeps the index in step with the file system until ctx is done or
// the index is closed. Created, written and removed LG files under the root
// are indexed as by [Index.Create], [Index.Save] and [Index.Delete].
func (x *Index) Watch(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	x.mu.Lock()
	x.stop = cancel
	x.mu.Unlock()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return ErrWatch.Wrap(err)
	}
	defer w.Close()

	if err := x.watchTree(w, x.root); err != nil {
		return err
	}

	x.logger.Debug("watching workspace", slog.String("root", x.root))

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			x.handle(w, ev)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}

			x.logger.Warn("watch error", slog.Any("error", err))
		}
	}
}

func (x *Index) handle(w *fsnotify.Watcher, ev fsnotify.Event) {
	x.logger.Trace("file event",
		slog.String("path", ev.Name),
		slog.String("op", ev.Op.String()))

	switch {
	case ev.Has(fsnotify.Create):
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := x.watchTree(w, ev.Name); err != nil {
				x.logger.Warn("watch directory", slog.Any("error", err))
			}

			return
		}

		if isSource(ev.Name) {
			x.Create(ev.Name)
		}

	case ev.Has(fsnotify.Write):
		if isSource(ev.Name) {
			x.Save(ev.Name)
		}

	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if isSource(ev.Name) {
			x.Delete(ev.Name)
		}
	}
}

// watchTree watches dir and its subdirectories, skipping hidden ones.
func (x *Index) watchTree(w *fsnotify.Watcher, dir string) error {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		if path != x.root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}

		return w.Add(path)
	})
	if err != nil {
		return ErrWatch.Wrap(err).With(slog.String("dir", dir))
	}

	return nil
}
