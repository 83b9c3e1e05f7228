package doctor_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucmodeler/modelstore/internal/doctor"
	"github.com/ucmodeler/modelstore/internal/lease"
	"github.com/ucmodeler/modelstore/internal/store"
	"github.com/ucmodeler/modelstore/pkg/model"
)

var t0 = time.Date(2024, 11, 6, 9, 0, 0, 0, time.UTC)

func setup(t *testing.T, now *time.Time) (*lease.Manager, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(dir)
	require.NoError(t, err)
	mgr := lease.NewManager(s,
		lease.WithClock(func() time.Time { return *now }),
		lease.WithModelVersion("2"),
	)
	return mgr, dir
}

func categories(r *doctor.Result) []string {
	var out []string
	for _, f := range r.Findings {
		out = append(out, f.Category)
	}
	return out
}

func TestDoctor_Check_Healthy(t *testing.T) {
	now := t0
	mgr, _ := setup(t, &now)
	_, err := mgr.Create("Foo", map[string]any{}, model.Lease{})
	require.NoError(t, err)

	result, err := doctor.NewDoctor(mgr, "2").Check(true)
	require.NoError(t, err)
	assert.True(t, result.Healthy)
	assert.Equal(t, 1, result.Models)
	assert.Empty(t, result.Findings)
}

func TestDoctor_Check_Corrupted(t *testing.T) {
	now := t0
	mgr, dir := setup(t, &now)
	path := filepath.Join(dir, "Broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0644))

	result, err := doctor.NewDoctor(mgr, "").Check(false)
	require.NoError(t, err)
	assert.False(t, result.Healthy)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "corrupted", result.Findings[0].Category)
	assert.Equal(t, doctor.SeverityCritical, result.Findings[0].Severity)
	assert.Equal(t, "Broken", result.Findings[0].Model)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{", string(data), "doctor never rewrites records")
}

func TestDoctor_Check_StaleLease(t *testing.T) {
	now := t0
	mgr, _ := setup(t, &now)
	_, err := mgr.Create("Foo", map[string]any{}, model.NewLease("u1", "s1/t1"))
	require.NoError(t, err)

	now = t0.Add(lease.DefaultWindow + time.Minute)
	result, err := doctor.NewDoctor(mgr, "2").Check(false)
	require.NoError(t, err)
	assert.True(t, result.Healthy)
	assert.Equal(t, []string{"lease"}, categories(result))
	assert.Contains(t, result.Findings[0].Description, "u1/s1/t1")

	// The doctor only reports; the lease is still held.
	rec, err := mgr.Store().Read("Foo")
	require.NoError(t, err)
	assert.Equal(t, "u1/s1/t1", rec.Lease.String())
}

func TestDoctor_Check_NamesAndVersion(t *testing.T) {
	now := t0
	mgr, dir := setup(t, &now)
	_, err := mgr.Create("Foo", map[string]any{}, model.Lease{})
	require.NoError(t, err)

	// A copy under a different, invalid file name.
	data, err := os.ReadFile(filepath.Join(dir, "Foo.json"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lower.json"), data, 0644))

	result, err := doctor.NewDoctor(mgr, "3").Check(false)
	require.NoError(t, err)
	assert.True(t, result.Healthy)
	assert.ElementsMatch(t, []string{"version", "name", "name", "version"}, categories(result))
}

func TestDoctor_Check_Strict_NonCanonical(t *testing.T) {
	now := t0
	mgr, dir := setup(t, &now)
	raw := `{"model":{"name":"Foo"},"modelVersion":"2","readOnly":"","lastModified":1730883600}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Foo.json"), []byte(raw), 0644))

	result, err := doctor.NewDoctor(mgr, "2").Check(false)
	require.NoError(t, err)
	assert.Empty(t, result.Findings)

	result, err = doctor.NewDoctor(mgr, "2").Check(true)
	require.NoError(t, err)
	assert.Equal(t, []string{"format"}, categories(result))
	assert.True(t, result.Healthy)
}

func TestDoctor_Check_OrphanTmp(t *testing.T) {
	now := t0
	mgr, dir := setup(t, &now)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".modelstore-tmp-123"), []byte("x"), 0644))

	result, err := doctor.NewDoctor(mgr, "").Check(false)
	require.NoError(t, err)
	assert.True(t, result.Healthy)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "tmp", result.Findings[0].Category)
	assert.Equal(t, doctor.SeverityInfo, result.Findings[0].Severity)
}

func TestDoctor_Check_MissingDirectory(t *testing.T) {
	now := t0
	mgr, dir := setup(t, &now)
	require.NoError(t, os.RemoveAll(dir))

	result, err := doctor.NewDoctor(mgr, "").Check(false)
	require.NoError(t, err)
	assert.False(t, result.Healthy)
	assert.Equal(t, []string{"directory"}, categories(result))
}
