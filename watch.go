package vkframe

import (
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// ShaderWatcher watches shader source files and raises a flag when any of
// them changes. The render loop polls the flag between frames with
// Changed; the watcher goroutine never touches GPU state.
type ShaderWatcher struct {
	watcher *fsnotify.Watcher
	files   map[string]bool
	dirty   atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// WatchShaders starts watching paths. Their parent directories are watched
// so editors that replace files by rename are still seen.
func WatchShaders(paths ...string) (*ShaderWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "shader watcher")
	}
	w := &ShaderWatcher{watcher: fw, files: map[string]bool{}, done: make(chan struct{})}
	dirs := map[string]bool{}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fw.Close()
			return nil, errors.WithStack(err)
		}
		w.files[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, errors.Wrapf(err, "watch %s", dir)
		}
	}
	w.wg.Add(1)
	go w.loop(w.done)
	return w, nil
}

func (w *ShaderWatcher) loop(done <-chan struct{}) {
	defer w.wg.Done()
	for {
		select {
		case <-done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.files[filepath.Clean(ev.Name)] {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				Logger().Debug("shader source changed", "path", ev.Name, "op", ev.Op.String())
				w.dirty.Store(true)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			Logger().Warn("shader watcher", "err", err)
		}
	}
}

// Changed reports whether a watched file changed since the last call.
func (w *ShaderWatcher) Changed() bool {
	return w.dirty.Swap(false)
}

func (w *ShaderWatcher) Close() error {
	if w.done == nil {
		return nil
	}
	close(w.done)
	w.done = nil
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
