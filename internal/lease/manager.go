// Package lease implements the checkout state machine over stored model records.
//
// A record is either unleased or leased by one owner/session/tab. Reading an
// unleased record checks it out to the reader; leases end by explicit release,
// by bulk return of a session, or lazily when a listing finds them stale.
package lease

import (
	"context"
	"errors"
	"time"

	"github.com/ucmodeler/modelstore/internal/store"
	"github.com/ucmodeler/modelstore/pkg/errclass"
	"github.com/ucmodeler/modelstore/pkg/logging"
	"github.com/ucmodeler/modelstore/pkg/metrics"
	"github.com/ucmodeler/modelstore/pkg/model"
	"github.com/ucmodeler/modelstore/pkg/naming"
	"github.com/ucmodeler/modelstore/pkg/webhook"
)

// DefaultWindow is how long a lease survives without activity.
const DefaultWindow = 75 * time.Minute

// Notifier receives lease and content events.
type Notifier interface {
	Notify(webhook.Event)
}

// Manager applies lease transitions to records in a Store.
type Manager struct {
	store        *store.Store
	now          func() time.Time
	window       time.Duration
	modelVersion string
	logger       *logging.Logger
	metrics      *metrics.Registry
	notifier     Notifier
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithWindow sets the staleness window.
func WithWindow(d time.Duration) Option {
	return func(m *Manager) { m.window = d }
}

// WithModelVersion sets the schema version stamped into created records.
func WithModelVersion(v string) Option {
	return func(m *Manager) { m.modelVersion = v }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics sets the metrics registry.
func WithMetrics(r *metrics.Registry) Option {
	return func(m *Manager) { m.metrics = r }
}

// WithNotifier sets the event sink.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// NewManager creates a lease manager over s.
func NewManager(s *store.Store, opts ...Option) *Manager {
	m := &Manager{
		store:  s,
		now:    time.Now,
		window: DefaultWindow,
		logger: logging.WithFields(map[string]any{"component": "lease"}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the underlying store.
func (m *Manager) Store() *store.Store {
	return m.store
}

// Window returns the staleness window.
func (m *Manager) Window() time.Duration {
	return m.window
}

// Now returns the manager's current time.
func (m *Manager) Now() time.Time {
	return m.now()
}

// Checkout returns the record as seen by requester, leasing it to requester
// when it is unleased. A record leased by someone else is returned unchanged.
func (m *Manager) Checkout(name string, requester model.Lease) (*model.View, error) {
	start := time.Now()
	acquired := false
	rec, err := m.store.Update(name, func(rec *model.Record) (bool, error) {
		if !rec.Lease.IsZero() {
			return false, nil
		}
		rec.Lease = requester
		rec.Touch(m.now())
		acquired = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if acquired {
		m.record(metrics.TransitionCheckout, start, nil)
		m.logger.Info("model checked out", map[string]any{"model": name, "holder": requester.String()})
		m.notify(webhook.Event{Event: webhook.EventModelCheckedOut, Model: name, Holder: requester.String()})
	}
	return rec.ViewFor(requester), nil
}

// Release clears the lease on name. claimedReadOnly is the readOnly field of
// the caller's copy of the record: a caller whose copy says someone else holds
// the model may not clear it. A missing model is ErrNotFound whatever the claim.
func (m *Manager) Release(name, claimedReadOnly string) error {
	start := time.Now()
	var previous model.Lease
	_, err := m.store.Update(name, func(rec *model.Record) (bool, error) {
		if claimedReadOnly != "" {
			return false, errclass.ErrForbidden.WithMessagef("not authorized to unlock model %s", name)
		}
		previous = rec.Lease
		rec.Lease = model.Lease{}
		rec.Touch(m.now())
		return true, nil
	})
	m.record(metrics.TransitionRelease, start, err)
	if err != nil {
		return err
	}
	m.logger.Info("model released", map[string]any{"model": name, "previous": previous.String()})
	m.notify(webhook.Event{Event: webhook.EventModelReleased, Model: name, Holder: previous.String()})
	return nil
}

// Create stores a new model leased to its creator. The payload name is set to name.
func (m *Manager) Create(name string, payload map[string]any, requester model.Lease) (*model.View, error) {
	start := time.Now()
	if err := naming.ValidateModelName(name); err != nil {
		m.record(metrics.TransitionCreate, start, err)
		return nil, err
	}
	rec := model.NewRecord(payload, m.modelVersion, requester, m.now())
	rec.SetName(name)
	err := m.store.Create(name, rec)
	m.record(metrics.TransitionCreate, start, err)
	if err != nil {
		return nil, err
	}
	m.logger.Info("model created", map[string]any{"model": name, "holder": requester.String()})
	m.notify(webhook.Event{Event: webhook.EventModelCreated, Model: name, Holder: requester.String()})
	return rec.ViewFor(requester), nil
}

// Update replaces the payload of name and leases it to requester. When the
// payload declares a different non-empty name the record is renamed; if that
// name is taken nothing changes. The stored schema version is kept.
func (m *Manager) Update(ctx context.Context, name string, payload map[string]any, requester model.Lease) (*model.View, error) {
	start := time.Now()
	rec, renamed, err := m.update(ctx, name, payload, requester)
	m.record(metrics.TransitionUpdate, start, err)
	if err != nil {
		return nil, err
	}
	if renamed {
		m.logger.Info("model renamed", map[string]any{"model": name, "to": rec.Name(), "holder": requester.String()})
		m.notify(webhook.Event{Event: webhook.EventModelRenamed, Model: rec.Name(), Previous: name, Holder: requester.String()})
	} else {
		m.logger.Info("model updated", map[string]any{"model": name, "holder": requester.String()})
		m.notify(webhook.Event{Event: webhook.EventModelUpdated, Model: name, Holder: requester.String()})
	}
	return rec.ViewFor(requester), nil
}

func (m *Manager) update(ctx context.Context, name string, payload map[string]any, requester model.Lease) (*model.Record, bool, error) {
	if err := naming.ValidateModelName(name); err != nil {
		return nil, false, err
	}
	payload = model.StripViewFields(payload)
	newName, _ := payload[model.FieldName].(string)
	if newName == "" {
		newName = name
		payload[model.FieldName] = name
	}
	if newName != name {
		if err := naming.ValidateModelName(newName); err != nil {
			return nil, false, err
		}
	}
	if !m.store.WaitExists(ctx, name) {
		return nil, false, errclass.ErrNotFound.WithMessagef("no model named %s exists", name)
	}

	apply := func(rec *model.Record) {
		rec.Payload = payload
		rec.Payload[model.FieldModelVersion] = rec.ModelVersion
		rec.Lease = requester
		rec.Touch(m.now())
	}

	if newName == name {
		rec, err := m.store.Update(name, func(rec *model.Record) (bool, error) {
			apply(rec)
			return true, nil
		})
		return rec, false, err
	}

	rec, err := m.store.Rename(name, newName, func(rec *model.Record) error {
		apply(rec)
		return nil
	})
	return rec, true, err
}

// Delete removes name. A leased record is refused with ErrForbidden; corrupted
// records are reported and left in place.
func (m *Manager) Delete(name string) error {
	start := time.Now()
	if err := naming.ValidateModelName(name); err != nil {
		m.record(metrics.TransitionDelete, start, err)
		return err
	}
	err := m.store.RemoveIf(name, func(rec *model.Record) error {
		if !rec.Lease.IsZero() {
			return errclass.ErrForbidden.WithMessagef("model %s is checked out by %s", name, rec.Lease)
		}
		return nil
	})
	m.record(metrics.TransitionDelete, start, err)
	if err != nil {
		return err
	}
	m.logger.Info("model deleted", map[string]any{"model": name})
	m.notify(webhook.Event{Event: webhook.EventModelDeleted, Model: name})
	return nil
}

// ExpireStale clears the lease on name if it has outlived the staleness
// window. Staleness is re-evaluated under the exclusive lock. It returns the
// current record and whether a lease was cleared.
func (m *Manager) ExpireStale(name string) (*model.Record, bool, error) {
	var previous model.Lease
	expired := false
	rec, err := m.store.Update(name, func(rec *model.Record) (bool, error) {
		now := m.now()
		if !rec.IsStale(now, m.window) {
			return false, nil
		}
		previous = rec.Lease
		rec.Lease = model.Lease{}
		rec.Touch(now)
		expired = true
		return true, nil
	})
	if err != nil {
		return nil, false, err
	}
	if expired {
		m.metrics.RecordExpired(1)
		m.logger.Info("stale lease expired", map[string]any{"model": name, "previous": previous.String()})
		m.notify(webhook.Event{Event: webhook.EventModelExpired, Model: name, Holder: previous.String()})
	}
	return rec, expired, nil
}

// ReleaseAll clears every lease taken by a tab of owner's session and returns
// how many were released. Corrupted records are skipped.
func (m *Manager) ReleaseAll(owner, session string) (int, error) {
	start := time.Now()
	names, err := m.store.Names()
	if err != nil {
		m.record(metrics.TransitionReturn, start, err)
		return 0, err
	}

	count := 0
	for _, name := range names {
		released := false
		_, err := m.store.Update(name, func(rec *model.Record) (bool, error) {
			if !rec.Lease.HeldBySession(owner, session) {
				return false, nil
			}
			rec.Lease = model.Lease{}
			rec.Touch(m.now())
			released = true
			return true, nil
		})
		if err != nil {
			if errors.Is(err, errclass.ErrCorrupted) || errors.Is(err, errclass.ErrNotFound) {
				continue
			}
			m.record(metrics.TransitionReturn, start, err)
			return count, err
		}
		if released {
			count++
			m.logger.Debug("model returned", map[string]any{"model": name, "owner": owner, "session": session})
		}
	}

	m.record(metrics.TransitionReturn, start, nil)
	m.logger.Info("session returned", map[string]any{"owner": owner, "session": session, "count": count})
	m.notify(webhook.Event{
		Event:  webhook.EventSessionReturned,
		Holder: model.Lease{Owner: owner, Session: session}.String(),
		Count:  count,
	})
	return count, nil
}

func (m *Manager) record(transition string, start time.Time, err error) {
	m.metrics.RecordTransition(transition, err == nil, time.Since(start))
}

func (m *Manager) notify(ev webhook.Event) {
	if m.notifier == nil {
		return
	}
	ev.Timestamp = m.now().UTC().Format(time.RFC3339)
	m.notifier.Notify(ev)
}
