// Package watch resubmits a schema file to the diagram engine whenever it
// changes on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"erdlive/internal/graph"
)

const DefaultDebounce = 150 * time.Millisecond

// Submitter receives the file's text. *graph.Engine satisfies it.
type Submitter interface {
	Submit(text string, preservePositions bool) error
}

type Option func(*Watcher)

func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(w *Watcher) { w.log = l }
}

// OnUpdate is called after every submit with its result.
func OnUpdate(fn func(error)) Option {
	return func(w *Watcher) { w.onUpdate = fn }
}

// Watcher watches the file's directory rather than the file itself so that
// editors that save by renaming a temp file over it are still seen.
type Watcher struct {
	path     string
	target   Submitter
	debounce time.Duration
	log      logrus.FieldLogger
	onUpdate func(error)
}

func New(path string, target Submitter, opts ...Option) *Watcher {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	w := &Watcher{
		path:     path,
		target:   target,
		debounce: DefaultDebounce,
		log:      discard,
		onUpdate: func(error) {},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run submits the file once, then again after every burst of changes,
// until ctx is done. Positions are always preserved. A submit rejected
// because a transform is still running is retried after the debounce
// interval.
func (w *Watcher) Run(ctx context.Context) error {
	path, err := filepath.Abs(w.path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", w.path, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}
	log := w.log.WithField("file", path)
	log.Info("watching schema file")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			log.WithField("op", ev.Op.String()).Debug("schema file changed")
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("watcher error")

		case <-timer.C:
			if w.reload(path, log) {
				timer.Reset(w.debounce)
			}
		}
	}
}

// reload submits the file and reports whether it has to be retried.
func (w *Watcher) reload(path string, log logrus.FieldLogger) (retry bool) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		// Renamed away mid-save; the replacement will raise its own event.
		log.Debug("schema file missing, waiting for it to reappear")
		return false
	}
	if err != nil {
		log.WithError(err).Warn("failed to read schema file")
		w.onUpdate(err)
		return false
	}

	err = w.target.Submit(string(data), true)
	if errors.Is(err, graph.ErrTransformInProgress) {
		log.Debug("transform in progress, retrying")
		return true
	}
	if err != nil {
		log.WithError(err).Warn("schema file rejected")
	} else {
		log.Info("diagram reloaded")
	}
	w.onUpdate(err)
	return false
}
