package config

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/hoverselect/internal/debounce"
	"github.com/dshills/hoverselect/internal/logging"
)

// DefaultWatchDelay coalesces the burst of events editors produce on save.
const DefaultWatchDelay = 100 * time.Millisecond

// Watcher reports edits of a settings file made outside the process.
type Watcher struct {
	fsw      *fsnotify.Watcher
	name     string
	debounce *debounce.Debouncer
	logger   *logging.Logger

	closeOnce sync.Once
	closeCh   chan struct{}
	wg        sync.WaitGroup
}

// Watch starts watching path and calls onChange, at most once per quiet
// period of delay, after the file is written, created, renamed or removed.
// The parent directory is watched so that editors that save by renaming a
// temporary file are noticed. onChange runs on a background goroutine.
func Watch(path string, delay time.Duration, onChange func(), logger *logging.Logger) (*Watcher, error) {
	if onChange == nil {
		return nil, errors.New("config watch: nil callback")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		fsw:      fsw,
		name:     abs,
		debounce: debounce.New(delay, onChange),
		logger:   logging.OrNull(logger).WithComponent("config-watch"),
		closeCh:  make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.name {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.logger.Debug("settings file %s: %s", ev.Op, ev.Name)
			w.debounce.Call()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error: %v", err)
		}
	}
}

// Close stops watching and drops any pending notification. It is safe to
// call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.closeCh)
		err = w.fsw.Close()
		w.wg.Wait()
		w.debounce.Cancel()
	})
	return err
}
