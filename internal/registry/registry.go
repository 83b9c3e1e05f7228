// Package registry enumerates stored models.
//
// Listing is where stale leases expire: each record is inspected as it is
// summarized and a lease older than the staleness window is cleared.
package registry

import (
	"errors"

	"github.com/ucmodeler/modelstore/internal/lease"
	"github.com/ucmodeler/modelstore/internal/store"
	"github.com/ucmodeler/modelstore/pkg/errclass"
	"github.com/ucmodeler/modelstore/pkg/logging"
	"github.com/ucmodeler/modelstore/pkg/metrics"
	"github.com/ucmodeler/modelstore/pkg/model"
)

// Registry lists models and answers catalog queries over their payloads.
type Registry struct {
	store   *store.Store
	leases  *lease.Manager
	logger  *logging.Logger
	metrics *metrics.Registry
}

// New creates a Registry over the manager's store.
func New(leases *lease.Manager, m *metrics.Registry) *Registry {
	return &Registry{
		store:   leases.Store(),
		leases:  leases,
		logger:  logging.WithFields(map[string]any{"component": "registry"}),
		metrics: m,
	}
}

// List summarizes every model sorted by name, expiring stale leases on the
// way. Corrupted records appear with the CORRUPTED marker; a record that
// cannot be read at all is logged and left out.
func (r *Registry) List() ([]model.Summary, error) {
	names, err := r.store.Names()
	if err != nil {
		return nil, err
	}

	now := r.leases.Now()
	out := make([]model.Summary, 0, len(names))
	leased, corrupted := 0, 0
	for _, name := range names {
		rec, err := r.store.Read(name)
		if err == nil && rec.IsStale(now, r.leases.Window()) {
			rec, _, err = r.leases.ExpireStale(name)
		}
		switch {
		case errors.Is(err, errclass.ErrCorrupted):
			corrupted++
			out = append(out, model.Summary{Name: name, ReadOnly: model.CorruptedMarker, Corrupted: true})
			continue
		case errors.Is(err, errclass.ErrNotFound):
			continue
		case err != nil:
			r.logger.ErrorErr("skipping unreadable model", err, map[string]any{"model": name})
			continue
		}

		if !rec.Lease.IsZero() {
			leased++
		}
		ts := rec.LastModified
		out = append(out, model.Summary{
			Name:         name,
			ReadOnly:     rec.Lease.String(),
			LastModified: &ts,
		})
	}

	r.metrics.RecordListing(leased, corrupted)
	return out, nil
}

// each calls fn with the payload of every readable model, skipping corrupted ones.
func (r *Registry) each(fn func(name string, payload map[string]any)) error {
	names, err := r.store.Names()
	if err != nil {
		return err
	}
	for _, name := range names {
		rec, err := r.store.Read(name)
		if err != nil {
			if !errors.Is(err, errclass.ErrCorrupted) && !errors.Is(err, errclass.ErrNotFound) {
				r.logger.ErrorErr("skipping unreadable model", err, map[string]any{"model": name})
			}
			continue
		}
		fn(name, rec.Payload)
	}
	return nil
}
