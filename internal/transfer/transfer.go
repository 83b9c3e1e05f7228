// Package transfer moves model records in and out of the store as files.
package transfer

import (
	"errors"
	"fmt"
	"time"

	"github.com/ucmodeler/modelstore/internal/lease"
	"github.com/ucmodeler/modelstore/internal/store"
	"github.com/ucmodeler/modelstore/pkg/errclass"
	"github.com/ucmodeler/modelstore/pkg/jsonutil"
	"github.com/ucmodeler/modelstore/pkg/logging"
	"github.com/ucmodeler/modelstore/pkg/metrics"
	"github.com/ucmodeler/modelstore/pkg/model"
	"github.com/ucmodeler/modelstore/pkg/naming"
	"github.com/ucmodeler/modelstore/pkg/webhook"
)

// ImportResult describes where an imported model ended up.
type ImportResult struct {
	OriginalName string
	AssignedName string
	View         *model.View
}

// Renamed reports whether the import had to pick a new name.
func (r *ImportResult) Renamed() bool {
	return r.OriginalName != r.AssignedName
}

// Transfer exports and imports whole model records.
type Transfer struct {
	store    *store.Store
	now      func() time.Time
	logger   *logging.Logger
	metrics  *metrics.Registry
	notifier lease.Notifier
}

// New creates a Transfer sharing the lease manager's store and clock.
func New(leases *lease.Manager, m *metrics.Registry, n lease.Notifier) *Transfer {
	return &Transfer{
		store:    leases.Store(),
		now:      leases.Now,
		logger:   logging.WithFields(map[string]any{"component": "transfer"}),
		metrics:  m,
		notifier: n,
	}
}

// Export returns the stored record for name in its persisted form. It has no
// effect on the lease.
func (t *Transfer) Export(name string) ([]byte, error) {
	rec, err := t.store.Read(name)
	if err != nil {
		return nil, err
	}
	data, err := jsonutil.CanonicalMarshalIndent(rec)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", name, err)
	}
	return data, nil
}

// Import stores a previously exported record. The record comes in unleased.
// If its declared name is taken, a timestamp suffix is appended (or an
// existing suffix replaced).
func (t *Transfer) Import(raw []byte) (*ImportResult, error) {
	start := time.Now()
	res, err := t.importRecord(raw)
	t.metrics.RecordTransition(metrics.TransitionImport, err == nil, time.Since(start))
	if err != nil {
		return nil, err
	}

	fields := map[string]any{"model": res.AssignedName}
	if res.Renamed() {
		fields["original"] = res.OriginalName
	}
	t.logger.Info("model imported", fields)
	if t.notifier != nil {
		t.notifier.Notify(webhook.Event{
			Event:     webhook.EventModelImported,
			Timestamp: t.now().UTC().Format(time.RFC3339),
			Model:     res.AssignedName,
			Previous:  res.OriginalName,
		})
	}
	return res, nil
}

func (t *Transfer) importRecord(raw []byte) (*ImportResult, error) {
	var rec model.Record
	if err := jsonutil.Decode(raw, &rec); err != nil {
		return nil, errclass.ErrCorrupted.WithMessagef("cannot import model: %v", err)
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	original := rec.Name()
	if original == "" {
		return nil, errclass.ErrNameInvalid.WithMessage("imported model declares no name")
	}

	now := t.now()
	rec.Payload = model.StripViewFields(rec.Payload)
	rec.Lease = model.Lease{}
	rec.LastModified = model.NewTimestamp(now)

	assigned := original
	if t.store.Exists(original) {
		assigned = naming.WithImportSuffix(original, now)
	}

	for attempt := 0; ; attempt++ {
		if err := naming.ValidateModelName(assigned); err != nil {
			return nil, err
		}
		rec.SetName(assigned)
		err := t.store.Create(assigned, &rec)
		if err == nil {
			break
		}
		if !errors.Is(err, errclass.ErrAlreadyExists) {
			return nil, err
		}
		// The declared name was taken between the check and the create.
		if assigned == original && attempt == 0 {
			assigned = naming.WithImportSuffix(original, now)
			continue
		}
		return nil, errclass.ErrNameConflict.WithMessagef("model %s already exists", assigned)
	}

	return &ImportResult{
		OriginalName: original,
		AssignedName: assigned,
		View:         rec.ViewFor(model.Lease{}),
	}, nil
}
