// Package watch reports changes to model records in a models directory,
// including changes made by other processes.
package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ucmodeler/modelstore/pkg/fsutil"
	"github.com/ucmodeler/modelstore/pkg/logging"
	"github.com/ucmodeler/modelstore/pkg/model"
)

// DefaultDebounce collapses the burst of events a single atomic write produces.
const DefaultDebounce = 100 * time.Millisecond

// Kind says what happened to a record.
type Kind string

const (
	KindChanged Kind = "changed"
	KindRemoved Kind = "removed"
)

// Change is one debounced change to a model record.
type Change struct {
	Model string    `json:"model"`
	Kind  Kind      `json:"kind"`
	Time  time.Time `json:"time"`
}

// Watcher watches one models directory.
type Watcher struct {
	dir      string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *logging.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long events for a record are collected before a
// Change is reported.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// New starts watching dir. Events that happen before Run are queued.
func New(dir string, opts ...Option) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, err
	}
	w := &Watcher{
		dir:      dir,
		debounce: DefaultDebounce,
		watcher:  fw,
		logger:   logging.WithFields(map[string]any{"component": "watch"}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run delivers changes to fn until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context, fn func(Change)) error {
	defer w.watcher.Close()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			name, ok := modelName(ev.Name)
			if !ok {
				continue
			}
			pending[name] = struct{}{}
			timer.Reset(w.debounce)

		case <-timer.C:
			names := make([]string, 0, len(pending))
			for name := range pending {
				names = append(names, name)
			}
			sort.Strings(names)
			clear(pending)
			for _, name := range names {
				fn(w.classify(name))
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Warn("watch event queue overflowed; changes may be missed")
				continue
			}
			return err
		}
	}
}

func (w *Watcher) classify(name string) Change {
	c := Change{Model: name, Kind: KindChanged, Time: time.Now()}
	if _, err := os.Stat(filepath.Join(w.dir, name+model.FileExt)); errors.Is(err, os.ErrNotExist) {
		c.Kind = KindRemoved
	}
	return c
}

func modelName(path string) (string, bool) {
	base := filepath.Base(path)
	if fsutil.IsTemp(base) || !strings.HasSuffix(base, model.FileExt) {
		return "", false
	}
	name := strings.TrimSuffix(base, model.FileExt)
	return name, name != ""
}
