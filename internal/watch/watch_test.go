package watch_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucmodeler/modelstore/internal/store"
	"github.com/ucmodeler/modelstore/internal/watch"
	"github.com/ucmodeler/modelstore/pkg/model"
)

type collector struct {
	mu      sync.Mutex
	changes []watch.Change
}

func (c *collector) add(ch watch.Change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes = append(c.changes, ch)
}

func (c *collector) last(name string) (watch.Change, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.changes) - 1; i >= 0; i-- {
		if c.changes[i].Model == name {
			return c.changes[i], true
		}
	}
	return watch.Change{}, false
}

func (c *collector) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, ch := range c.changes {
		out = append(out, ch.Model)
	}
	return out
}

func start(t *testing.T, dir string) *collector {
	t.Helper()
	w, err := watch.New(dir, watch.WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	c := &collector{}
	go func() { done <- w.Run(ctx, c.add) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	return c
}

func TestWatcher_ReportsStoreChanges(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(dir)
	require.NoError(t, err)
	c := start(t, dir)

	rec := model.NewRecord(map[string]any{"name": "Foo"}, "1", model.Lease{}, time.Now())
	require.NoError(t, s.Create("Foo", rec))

	require.Eventually(t, func() bool {
		ch, ok := c.last("Foo")
		return ok && ch.Kind == watch.KindChanged
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.RemoveIf("Foo", func(*model.Record) error { return nil }))
	require.Eventually(t, func() bool {
		ch, ok := c.last("Foo")
		return ok && ch.Kind == watch.KindRemoved
	}, 2*time.Second, 10*time.Millisecond)

	for _, name := range c.names() {
		assert.Equal(t, "Foo", name, "temp files are never reported")
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	c := start(t, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Bar.json"), []byte("{}"), 0644))

	require.Eventually(t, func() bool {
		_, ok := c.last("Bar")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"Bar"}, c.names()[:1])
	_, ok := c.last("notes")
	assert.False(t, ok)
}

func TestNew_MissingDir(t *testing.T) {
	_, err := watch.New(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
