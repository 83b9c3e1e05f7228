package model

import (
	"encoding/json"
	"time"

	"github.com/ucmodeler/modelstore/pkg/errclass"
)

// Record is the persisted unit for one model, stored as <name>.json.
type Record struct {
	Payload      map[string]any `json:"model"`
	ModelVersion string         `json:"modelVersion"`
	Lease        Lease          `json:"readOnly"`
	LastModified Timestamp      `json:"lastModified"`
}

// NewRecord builds a record around payload, copying the schema version into it.
func NewRecord(payload map[string]any, modelVersion string, lease Lease, now time.Time) *Record {
	rec := &Record{
		Payload:      StripViewFields(payload),
		ModelVersion: modelVersion,
		Lease:        lease,
	}
	rec.Payload[FieldModelVersion] = modelVersion
	rec.Touch(now)
	return rec
}

// Name returns the identifier declared in the payload.
func (r *Record) Name() string {
	if r.Payload == nil {
		return ""
	}
	name, _ := r.Payload[FieldName].(string)
	return name
}

// SetName retargets the record to a new identifier.
func (r *Record) SetName(name string) {
	if r.Payload == nil {
		r.Payload = make(map[string]any)
	}
	r.Payload[FieldName] = name
}

// Touch stamps LastModified with now without ever moving it backwards.
func (r *Record) Touch(now time.Time) {
	ts := NewTimestamp(now)
	if ts.Before(r.LastModified.Time) {
		return
	}
	r.LastModified = ts
}

// IsStale reports whether a leased record has been untouched for longer than window.
func (r *Record) IsStale(now time.Time, window time.Duration) bool {
	if r.Lease.IsZero() {
		return false
	}
	return r.LastModified.Before(now.Add(-window))
}

// Validate checks the structural shape a record must have after decoding.
func (r *Record) Validate() error {
	if r.Payload == nil {
		return errclass.ErrCorrupted.WithMessage("record has no model payload")
	}
	return nil
}

// ViewFor renders the record as seen by requester. A lease held by the requester
// itself is reported as unlocked.
func (r *Record) ViewFor(requester Lease) *View {
	v := &View{
		Payload:      r.Payload,
		ModelVersion: r.ModelVersion,
		LastModified: r.LastModified,
	}
	if !r.Lease.IsZero() && !r.Lease.Equal(requester) {
		v.ReadOnly = r.Lease.String()
	}
	return v
}

// StripViewFields removes fields that only exist in holder-relative views.
func StripViewFields(payload map[string]any) map[string]any {
	if payload == nil {
		payload = make(map[string]any)
	}
	delete(payload, FieldReadOnly)
	return payload
}

// View is a holder-relative rendering of a record returned to callers.
// ReadOnly is empty when the requester may write.
type View struct {
	Payload      map[string]any
	ModelVersion string
	ReadOnly     string
	LastModified Timestamp
}

// Name returns the identifier declared in the payload.
func (v *View) Name() string {
	name, _ := v.Payload[FieldName].(string)
	return name
}

// MarshalJSON flattens the view into the payload object, the shape GUI clients edit.
func (v *View) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(v.Payload)+2)
	for k, val := range v.Payload {
		out[k] = val
	}
	out[FieldModelVersion] = v.ModelVersion
	out[FieldReadOnly] = v.ReadOnly
	return json.Marshal(out)
}

// Summary is one row of the model listing.
type Summary struct {
	Name         string     `json:"name"`
	ReadOnly     string     `json:"readOnly"`
	LastModified *Timestamp `json:"lastModified,omitempty"`
	Corrupted    bool       `json:"corrupted,omitempty"`
}
