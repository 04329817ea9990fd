package pgconfig

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"

	"github.com/pgframe/pgframe/pgerr"
)

// Watcher reloads a config file on write and invokes onChange with the
// newly parsed File, mirroring the teacher's config hot-reload pattern.
type Watcher struct {
	fsw *fsnotify.Watcher
	done chan struct{}
}

// Watch starts watching path for writes and calls onChange with each
// successfully reloaded File. Parse failures are logged and skipped —
// the previous, still-valid config keeps running rather than aborting.
func Watch(path string, onChange func(*File)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, pgerr.Wrap(pgerr.Io, "creating file watcher", err)
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, pgerr.Wrap(pgerr.Io, "watching config file", err)
	}

	w := &Watcher{fsw: fsw, done: make(chan struct{})}
	go w.loop(path, onChange)
	return w, nil
}

func (w *Watcher) loop(path string, onChange func(*File)) {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			f, err := Load(path)
			if err != nil {
				slog.Warn("config reload failed, keeping previous config", "path", path, "err", err)
				continue
			}
			onChange(f)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "err", err)
		case <-w.done:
			return
		}
	}
}

// Stop stops watching and releases the underlying file handle.
func (w *Watcher) Stop() {
	close(w.done)
	w.fsw.Close()
}
