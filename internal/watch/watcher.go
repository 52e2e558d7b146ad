// Package watch turns filesystem notifications on the monitored files into
// cache invalidations.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Handler is told about changes to a watched file.
type Handler interface {
	FileChanged(path string)
	FileRemoved(path string)
}

// Watcher watches the parent directories of a fixed set of files. Watching
// the directory rather than the file keeps notifications flowing across
// rename-based rewrites and log rotation.
type Watcher struct {
	files   map[string]struct{}
	handler Handler
	logger  *zap.Logger

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
}

func New(handler Handler, logger *zap.Logger, files ...string) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Watcher{
		files:   make(map[string]struct{}, len(files)),
		handler: handler,
		logger:  logger.Named("watch"),
	}
	for _, f := range files {
		if f != "" {
			w.files[filepath.Clean(f)] = struct{}{}
		}
	}
	return w
}

// Dirs returns the directories that need watching.
func (w *Watcher) Dirs() []string {
	seen := make(map[string]struct{})
	var dirs []string
	for f := range w.files {
		dir := filepath.Dir(f)
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}
	return dirs
}

// Start begins watching. Directories that do not exist yet are skipped;
// the readers still notice changes through size and mtime.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}

	watched := 0
	for _, dir := range w.Dirs() {
		if err := fw.Add(dir); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				w.logger.Debug("directory missing, not watched", zap.String("dir", dir))
				continue
			}
			fw.Close()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		watched++
		w.logger.Debug("watching", zap.String("dir", dir))
	}
	w.logger.Info("file watcher started", zap.Int("dirs", watched))

	ctx, cancel := context.WithCancel(ctx)
	w.watcher = fw
	w.cancel = cancel
	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.dispatch(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("fsnotify error", zap.Error(err))
		}
	}
}

func (w *Watcher) dispatch(event fsnotify.Event) {
	name := filepath.Clean(event.Name)
	if _, ok := w.files[name]; !ok {
		return
	}

	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		w.logger.Debug("file removed", zap.String("file", name), zap.Stringer("op", event.Op))
		w.handler.FileRemoved(name)
	case event.Has(fsnotify.Write) || event.Has(fsnotify.Create):
		w.logger.Debug("file changed", zap.String("file", name), zap.Stringer("op", event.Op))
		w.handler.FileChanged(name)
	}
}

// Close stops the watcher and waits for the event loop to exit. It is safe
// to call more than once and before Start.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
		if w.watcher != nil {
			err = w.watcher.Close()
		}
		w.wg.Wait()
	})
	return err
}
