// Package doctor inspects a models directory for problems without changing it.
package doctor

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ucmodeler/modelstore/internal/lease"
	"github.com/ucmodeler/modelstore/internal/store"
	"github.com/ucmodeler/modelstore/pkg/errclass"
	"github.com/ucmodeler/modelstore/pkg/fsutil"
	"github.com/ucmodeler/modelstore/pkg/jsonutil"
	"github.com/ucmodeler/modelstore/pkg/naming"
)

// Severities, from least to most serious.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Finding represents a detected issue.
type Finding struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Model       string `json:"model,omitempty"`
	Path        string `json:"path,omitempty"`
}

// Result contains doctor check results.
type Result struct {
	Healthy  bool      `json:"healthy"`
	Models   int       `json:"models"`
	Findings []Finding `json:"findings"`
}

func (r *Result) add(f Finding) {
	r.Findings = append(r.Findings, f)
	if f.Severity == SeverityCritical || f.Severity == SeverityError {
		r.Healthy = false
	}
}

// Doctor performs models directory health checks.
type Doctor struct {
	store        *store.Store
	window       time.Duration
	now          func() time.Time
	modelVersion string
}

// NewDoctor creates a doctor sharing the lease manager's store, clock and
// staleness window. modelVersion, when set, is the schema version records
// are expected to carry.
func NewDoctor(leases *lease.Manager, modelVersion string) *Doctor {
	return &Doctor{
		store:        leases.Store(),
		window:       leases.Window(),
		now:          leases.Now,
		modelVersion: modelVersion,
	}
}

// Check runs all diagnostic checks. Strict mode also reports records whose
// file is not in canonical form.
func (d *Doctor) Check(strict bool) (*Result, error) {
	result := &Result{Healthy: true, Findings: []Finding{}}

	if _, err := os.Stat(d.store.Dir()); err != nil {
		result.add(Finding{
			Category:    "directory",
			Description: fmt.Sprintf("models directory unreadable: %v", err),
			Severity:    SeverityCritical,
			Path:        d.store.Dir(),
		})
		return result, nil
	}

	names, err := d.store.Names()
	if err != nil {
		return nil, err
	}
	result.Models = len(names)
	for _, name := range names {
		d.checkModel(result, name, strict)
	}

	d.checkOrphanTmp(result)
	return result, nil
}

func (d *Doctor) checkModel(result *Result, name string, strict bool) {
	path, err := d.store.Path(name)
	if err != nil {
		result.add(Finding{Category: "name", Description: err.Error(), Severity: SeverityError, Model: name})
		return
	}

	rec, err := d.store.Read(name)
	switch {
	case errors.Is(err, errclass.ErrNotFound):
		return
	case errors.Is(err, errclass.ErrCorrupted):
		result.add(Finding{
			Category:    "corrupted",
			Description: "record is not valid JSON or has no model object",
			Severity:    SeverityCritical,
			Model:       name,
			Path:        path,
		})
		return
	case err != nil:
		result.add(Finding{Category: "read", Description: err.Error(), Severity: SeverityError, Model: name, Path: path})
		return
	}

	if err := naming.ValidateModelName(name); err != nil {
		result.add(Finding{
			Category:    "name",
			Description: fmt.Sprintf("file name is not a valid model name: %v", err),
			Severity:    SeverityWarning,
			Model:       name,
			Path:        path,
		})
	}
	if declared := rec.Name(); declared != name {
		result.add(Finding{
			Category:    "name",
			Description: fmt.Sprintf("record declares name %q", declared),
			Severity:    SeverityWarning,
			Model:       name,
			Path:        path,
		})
	}
	if d.modelVersion != "" && rec.ModelVersion != d.modelVersion {
		result.add(Finding{
			Category:    "version",
			Description: fmt.Sprintf("modelVersion %q, expected %q", rec.ModelVersion, d.modelVersion),
			Severity:    SeverityInfo,
			Model:       name,
		})
	}
	if rec.IsStale(d.now(), d.window) {
		result.add(Finding{
			Category:    "lease",
			Description: fmt.Sprintf("stale lease held by %s since %s", rec.Lease, rec.LastModified.Time.UTC().Format(time.RFC3339)),
			Severity:    SeverityInfo,
			Model:       name,
		})
	}

	if strict {
		d.checkCanonical(result, name, path)
	}
}

func (d *Doctor) checkCanonical(result *Result, name, path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return
	}
	rec, err := d.store.Read(name)
	if err != nil {
		return
	}
	want, err := jsonutil.CanonicalMarshalIndent(rec)
	if err != nil || bytes.Equal(raw, want) {
		return
	}
	result.add(Finding{
		Category:    "format",
		Description: "record is not in canonical form; it will be rewritten on next change",
		Severity:    SeverityInfo,
		Model:       name,
		Path:        path,
	})
}

func (d *Doctor) checkOrphanTmp(result *Result) {
	entries, err := os.ReadDir(d.store.Dir())
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !fsutil.IsTemp(entry.Name()) {
			continue
		}
		result.add(Finding{
			Category:    "tmp",
			Description: fmt.Sprintf("orphan temp file: %s", entry.Name()),
			Severity:    SeverityInfo,
			Path:        filepath.Join(d.store.Dir(), entry.Name()),
		})
	}
}
