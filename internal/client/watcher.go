package client

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"nxsync/pkg/models"
)

// debounceWindow collapses bursts of events for the same path. Editors tend
// to fire several writes per save; only the last one matters.
const debounceWindow = 500 * time.Millisecond

// Watcher monitors a folder tree and emits one FileEvent per settled change.
type Watcher struct {
	fsw    *fsnotify.Watcher
	root   string
	events chan models.FileEvent
	log    *logrus.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewWatcher starts watching root and every directory below it.
func NewWatcher(root string, log *logrus.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if log == nil {
		log = logrus.New()
	}
	w := &Watcher{
		fsw:    fsw,
		root:   root,
		events: make(chan models.FileEvent),
		log:    log,
		timers: make(map[string]*time.Timer),
	}
	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Events delivers debounced create/modify notifications.
func (w *Watcher) Events() <-chan models.FileEvent {
	return w.events
}

// Close stops the underlying watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) addTree(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if err := w.fsw.Add(path); err != nil {
				return fmt.Errorf("watch %s: %w", path, err)
			}
			w.log.WithField("dir", path).Debug("watching directory")
		}
		return nil
	})
}

// Run pumps fsnotify events until ctx is cancelled. New subdirectories are
// added to the watch set as they appear.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("watcher error")
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	var op string
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		op = "CREATE"
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.log.WithField("dir", event.Name).WithError(err).Warn("watch new directory")
			}
			return
		}
	case event.Op&fsnotify.Write == fsnotify.Write:
		op = "MODIFY"
	default:
		return
	}

	w.mu.Lock()
	if timer, ok := w.timers[event.Name]; ok {
		timer.Stop()
	}
	w.timers[event.Name] = time.AfterFunc(debounceWindow, func() {
		w.mu.Lock()
		delete(w.timers, event.Name)
		w.mu.Unlock()

		info, err := os.Stat(event.Name)
		if err != nil || info.IsDir() {
			return
		}
		select {
		case w.events <- models.FileEvent{Path: event.Name, Op: op, Timestamp: time.Now()}:
		case <-ctx.Done():
		}
	})
	w.mu.Unlock()
}
