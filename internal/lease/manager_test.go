package lease_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucmodeler/modelstore/internal/lease"
	"github.com/ucmodeler/modelstore/internal/store"
	"github.com/ucmodeler/modelstore/pkg/errclass"
	"github.com/ucmodeler/modelstore/pkg/metrics"
	"github.com/ucmodeler/modelstore/pkg/model"
	"github.com/ucmodeler/modelstore/pkg/webhook"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu     sync.Mutex
	events []webhook.Event
}

func (r *recorder) Notify(ev webhook.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []webhook.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []webhook.EventType
	for _, ev := range r.events {
		out = append(out, ev.Event)
	}
	return out
}

type fixture struct {
	store  *store.Store
	mgr    *lease.Manager
	clock  *clock
	events *recorder
}

func setup(t *testing.T) *fixture {
	t.Helper()
	s, err := store.Open(t.TempDir(), store.WithPoll(5*time.Millisecond, 4))
	require.NoError(t, err)
	c := &clock{now: time.Date(2024, 11, 6, 9, 0, 0, 0, time.UTC)}
	ev := &recorder{}
	mgr := lease.NewManager(s,
		lease.WithClock(c.Now),
		lease.WithModelVersion("1.3"),
		lease.WithMetrics(metrics.NewRegistry()),
		lease.WithNotifier(ev),
	)
	return &fixture{store: s, mgr: mgr, clock: c, events: ev}
}

var (
	alice    = model.NewLease("alice", "s1/t1")
	aliceTab = model.NewLease("alice", "s1/t2")
	bob      = model.NewLease("bob", "s9/t1")
)

func payload(name string) map[string]any {
	return map[string]any{"name": name, "parties": []any{}}
}

func TestCreateThenCheckoutBySelf(t *testing.T) {
	f := setup(t)

	created, err := f.mgr.Create("Foo", payload("Foo"), alice)
	require.NoError(t, err)
	assert.Empty(t, created.ReadOnly)
	assert.Equal(t, "1.3", created.ModelVersion)

	got, err := f.mgr.Checkout("Foo", alice)
	require.NoError(t, err)
	assert.Equal(t, created.ReadOnly, got.ReadOnly)
	assert.Equal(t, created.Payload, got.Payload)

	rec, err := f.store.Read("Foo")
	require.NoError(t, err)
	assert.Equal(t, alice, rec.Lease)
	assert.Equal(t, "1.3", rec.Payload["modelVersion"])
}

func TestCreate_Errors(t *testing.T) {
	f := setup(t)

	_, err := f.mgr.Create("foo", payload("foo"), alice)
	require.ErrorIs(t, err, errclass.ErrNameInvalid)
	_, err = f.mgr.Create("UC_Foo", payload("UC_Foo"), alice)
	require.ErrorIs(t, err, errclass.ErrNameInvalid)

	_, err = f.mgr.Create("Foo", payload("Foo"), alice)
	require.NoError(t, err)
	_, err = f.mgr.Create("Foo", payload("Foo"), bob)
	require.ErrorIs(t, err, errclass.ErrAlreadyExists)
}

func TestCreate_StampsIdentifierAsName(t *testing.T) {
	f := setup(t)
	view, err := f.mgr.Create("Foo", map[string]any{"readOnly": "x/y/z"}, alice)
	require.NoError(t, err)
	assert.Equal(t, "Foo", view.Name())
	assert.NotContains(t, view.Payload, "readOnly")
}

func TestCheckout_LeasedByOtherIsUnchanged(t *testing.T) {
	f := setup(t)
	_, err := f.mgr.Create("Foo", payload("Foo"), alice)
	require.NoError(t, err)
	before, _ := f.store.Read("Foo")

	for range 3 {
		f.clock.Advance(time.Minute)
		view, err := f.mgr.Checkout("Foo", bob)
		require.NoError(t, err)
		assert.Equal(t, "alice/s1/t1", view.ReadOnly)
	}

	after, _ := f.store.Read("Foo")
	assert.Equal(t, before.Lease, after.Lease)
	assert.True(t, before.LastModified.Equal(after.LastModified.Time))
}

func TestCheckout_OtherTabOfSameSessionSeesHolder(t *testing.T) {
	f := setup(t)
	_, err := f.mgr.Create("Foo", payload("Foo"), alice)
	require.NoError(t, err)

	view, err := f.mgr.Checkout("Foo", aliceTab)
	require.NoError(t, err)
	assert.Equal(t, "alice/s1/t1", view.ReadOnly)
}

func TestCheckout_AcquiresUnleased(t *testing.T) {
	f := setup(t)
	_, err := f.mgr.Create("Foo", payload("Foo"), alice)
	require.NoError(t, err)
	require.NoError(t, f.mgr.Release("Foo", ""))

	f.clock.Advance(time.Minute)
	view, err := f.mgr.Checkout("Foo", bob)
	require.NoError(t, err)
	assert.Empty(t, view.ReadOnly)

	rec, _ := f.store.Read("Foo")
	assert.Equal(t, bob, rec.Lease)
	assert.True(t, rec.LastModified.Equal(f.clock.Now()))
	assert.Contains(t, f.events.types(), webhook.EventModelCheckedOut)
}

func TestCheckout_IdempotentForHolder(t *testing.T) {
	f := setup(t)
	_, err := f.mgr.Create("Foo", payload("Foo"), alice)
	require.NoError(t, err)
	first, _ := f.store.Read("Foo")

	for range 3 {
		f.clock.Advance(10 * time.Minute)
		_, err := f.mgr.Checkout("Foo", alice)
		require.NoError(t, err)
	}
	after, _ := f.store.Read("Foo")
	assert.True(t, first.LastModified.Equal(after.LastModified.Time))
}

func TestCheckout_Concurrent(t *testing.T) {
	f := setup(t)
	_, err := f.mgr.Create("Foo", payload("Foo"), alice)
	require.NoError(t, err)
	require.NoError(t, f.mgr.Release("Foo", ""))

	const n = 12
	views := make([]*model.View, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := f.mgr.Checkout("Foo", model.NewLease(fmt.Sprintf("u%d", i), "s/t"))
			assert.NoError(t, err)
			views[i] = v
		}()
	}
	wg.Wait()

	writable := 0
	for _, v := range views {
		if v != nil && v.ReadOnly == "" {
			writable++
		}
	}
	assert.Equal(t, 1, writable, "exactly one reader may acquire the lease")
}

func TestCheckout_Errors(t *testing.T) {
	f := setup(t)
	_, err := f.mgr.Checkout("Missing", alice)
	require.ErrorIs(t, err, errclass.ErrNotFound)

	require.NoError(t, os.WriteFile(filepath.Join(f.store.Dir(), "Bad.json"), []byte("{"), 0644))
	_, err = f.mgr.Checkout("Bad", alice)
	require.ErrorIs(t, err, errclass.ErrCorrupted)
}

func TestRelease(t *testing.T) {
	f := setup(t)
	_, err := f.mgr.Create("Foo", payload("Foo"), alice)
	require.NoError(t, err)

	require.ErrorIs(t, f.mgr.Release("Foo", "alice/s1/t1"), errclass.ErrForbidden)
	rec, _ := f.store.Read("Foo")
	assert.Equal(t, alice, rec.Lease)

	f.clock.Advance(time.Minute)
	require.NoError(t, f.mgr.Release("Foo", ""))
	rec, _ = f.store.Read("Foo")
	assert.True(t, rec.Lease.IsZero())
	assert.True(t, rec.LastModified.Equal(f.clock.Now()))

	require.ErrorIs(t, f.mgr.Release("Missing", ""), errclass.ErrNotFound)
}

func TestRelease_MissingBeatsForbidden(t *testing.T) {
	f := setup(t)
	err := f.mgr.Release("Nope", "bob/s9/t1")
	require.ErrorIs(t, err, errclass.ErrNotFound)
	assert.NotErrorIs(t, err, errclass.ErrForbidden)
	assert.False(t, f.store.Exists("Nope"))
}

func TestDelete_ForbiddenIffLeased(t *testing.T) {
	f := setup(t)
	_, err := f.mgr.Create("Foo", payload("Foo"), alice)
	require.NoError(t, err)

	require.ErrorIs(t, f.mgr.Delete("Foo"), errclass.ErrForbidden)
	assert.True(t, f.store.Exists("Foo"))

	require.NoError(t, f.mgr.Release("Foo", ""))
	require.NoError(t, f.mgr.Delete("Foo"))
	assert.False(t, f.store.Exists("Foo"))

	require.ErrorIs(t, f.mgr.Delete("Foo"), errclass.ErrNotFound)
	require.ErrorIs(t, f.mgr.Delete("../Foo"), errclass.ErrNameInvalid)
}

func TestDelete_CorruptedIsKept(t *testing.T) {
	f := setup(t)
	path := filepath.Join(f.store.Dir(), "Bad.json")
	require.NoError(t, os.WriteFile(path, []byte("nope"), 0644))

	require.ErrorIs(t, f.mgr.Delete("Bad"), errclass.ErrCorrupted)
	assert.FileExists(t, path)
}

func TestScenario_CreateDeleteRelease(t *testing.T) {
	f := setup(t)
	_, err := f.mgr.Create("Foo", payload("Foo"), alice)
	require.NoError(t, err)
	_, err = f.mgr.Create("Foo", payload("Foo"), alice)
	require.ErrorIs(t, err, errclass.ErrAlreadyExists)
	require.ErrorIs(t, f.mgr.Delete("Foo"), errclass.ErrForbidden)
	require.NoError(t, f.mgr.Release("Foo", ""))
	require.NoError(t, f.mgr.Delete("Foo"))

	assert.Equal(t, []webhook.EventType{
		webhook.EventModelCreated,
		webhook.EventModelReleased,
		webhook.EventModelDeleted,
	}, f.events.types())
}

func TestUpdate_InPlace(t *testing.T) {
	f := setup(t)
	_, err := f.mgr.Create("Foo", payload("Foo"), alice)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	p := map[string]any{"name": "Foo", "parties": []any{"A"}, "modelVersion": "9.9", "readOnly": ""}
	view, err := f.mgr.Update(context.Background(), "Foo", p, bob)
	require.NoError(t, err)
	assert.Empty(t, view.ReadOnly)
	assert.Equal(t, "1.3", view.ModelVersion, "schema version comes from the stored record")

	rec, _ := f.store.Read("Foo")
	assert.Equal(t, bob, rec.Lease)
	assert.Equal(t, []any{"A"}, rec.Payload["parties"])
	assert.Equal(t, "1.3", rec.Payload["modelVersion"])
	assert.NotContains(t, rec.Payload, "readOnly")
	assert.True(t, rec.LastModified.Equal(f.clock.Now()))
}

func TestUpdate_MissingNameKeepsIdentifier(t *testing.T) {
	f := setup(t)
	_, err := f.mgr.Create("Foo", payload("Foo"), alice)
	require.NoError(t, err)

	view, err := f.mgr.Update(context.Background(), "Foo", map[string]any{"name": ""}, alice)
	require.NoError(t, err)
	assert.Equal(t, "Foo", view.Name())
	assert.True(t, f.store.Exists("Foo"))
}

func TestUpdate_Rename(t *testing.T) {
	f := setup(t)
	_, err := f.mgr.Create("Foo", payload("Foo"), alice)
	require.NoError(t, err)

	view, err := f.mgr.Update(context.Background(), "Foo", payload("Bar"), alice)
	require.NoError(t, err)
	assert.Equal(t, "Bar", view.Name())
	assert.False(t, f.store.Exists("Foo"))

	rec, err := f.store.Read("Bar")
	require.NoError(t, err)
	assert.Equal(t, "Bar", rec.Name())
	assert.Contains(t, f.events.types(), webhook.EventModelRenamed)
}

func TestUpdate_RenameConflictLeavesOriginal(t *testing.T) {
	f := setup(t)
	_, err := f.mgr.Create("Foo", payload("Foo"), alice)
	require.NoError(t, err)
	_, err = f.mgr.Create("Bar", payload("Bar"), bob)
	require.NoError(t, err)
	before, _ := f.store.Read("Foo")

	f.clock.Advance(time.Minute)
	_, err = f.mgr.Update(context.Background(), "Foo", map[string]any{"name": "Bar", "x": 1}, alice)
	require.ErrorIs(t, err, errclass.ErrNameConflict)

	after, err := f.store.Read("Foo")
	require.NoError(t, err)
	assert.Equal(t, before.Payload, after.Payload)
	assert.True(t, before.LastModified.Equal(after.LastModified.Time))

	bar, _ := f.store.Read("Bar")
	assert.Equal(t, bob, bar.Lease)
}

func TestUpdate_Errors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.mgr.Update(ctx, "Missing", payload("Missing"), alice)
	require.ErrorIs(t, err, errclass.ErrNotFound)

	_, err = f.mgr.Update(ctx, "bad name", payload("Foo"), alice)
	require.ErrorIs(t, err, errclass.ErrNameInvalid)

	_, err = f.mgr.Create("Foo", payload("Foo"), alice)
	require.NoError(t, err)
	_, err = f.mgr.Update(ctx, "Foo", payload("UC_Foo"), alice)
	require.ErrorIs(t, err, errclass.ErrNameInvalid)

	require.NoError(t, os.WriteFile(filepath.Join(f.store.Dir(), "Bad.json"), []byte("]"), 0644))
	_, err = f.mgr.Update(ctx, "Bad", payload("Bad"), alice)
	require.ErrorIs(t, err, errclass.ErrCorrupted)
}

func TestExpireStale(t *testing.T) {
	f := setup(t)
	_, err := f.mgr.Create("Foo", payload("Foo"), alice)
	require.NoError(t, err)

	f.clock.Advance(74 * time.Minute)
	_, expired, err := f.mgr.ExpireStale("Foo")
	require.NoError(t, err)
	assert.False(t, expired)

	f.clock.Advance(2 * time.Minute)
	rec, expired, err := f.mgr.ExpireStale("Foo")
	require.NoError(t, err)
	assert.True(t, expired)
	assert.True(t, rec.Lease.IsZero())
	assert.True(t, rec.LastModified.Equal(f.clock.Now()))

	_, expired, err = f.mgr.ExpireStale("Foo")
	require.NoError(t, err)
	assert.False(t, expired, "unleased records never expire")
}

func TestReleaseAll(t *testing.T) {
	f := setup(t)
	leases := map[string]model.Lease{
		"A": model.NewLease("alice", "s1/t1"),
		"B": model.NewLease("alice", "s1/t2"),
		"C": model.NewLease("alice", "s2/t1"),
		"D": model.NewLease("bob", "s1/t1"),
		"E": model.NewLease("alice", "s1"),
		"F": model.NewLease("alice", "s10/t1"),
		"G": {},
		"H": model.NewLease("alice", "s1/"),
	}
	for name, l := range leases {
		_, err := f.mgr.Create(name, payload(name), l)
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(f.store.Dir(), "Bad.json"), []byte("x"), 0644))

	count, err := f.mgr.ReleaseAll("alice", "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	for name, l := range leases {
		rec, err := f.store.Read(name)
		require.NoError(t, err)
		if name == "A" || name == "B" || name == "H" {
			assert.True(t, rec.Lease.IsZero(), name)
			continue
		}
		assert.Equal(t, l, rec.Lease, name)
	}

	again, err := f.mgr.ReleaseAll("alice", "s1")
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestReleaseAll_EmptyTabIsStillATab(t *testing.T) {
	f := setup(t)
	_, err := f.mgr.Create("Foo", payload("Foo"), model.NewLease("alice", "s1/"))
	require.NoError(t, err)

	rec, err := f.store.Read("Foo")
	require.NoError(t, err)
	assert.Equal(t, "alice/s1/", rec.Lease.String())

	count, err := f.mgr.ReleaseAll("alice", "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	rec, err = f.store.Read("Foo")
	require.NoError(t, err)
	assert.True(t, rec.Lease.IsZero())
}

func TestDefaults(t *testing.T) {
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	m := lease.NewManager(s)
	assert.Equal(t, lease.DefaultWindow, m.Window())
	assert.Same(t, s, m.Store())
	assert.WithinDuration(t, time.Now(), m.Now(), time.Minute)
}
