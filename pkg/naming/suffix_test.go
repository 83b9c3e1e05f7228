package naming_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ucmodeler/modelstore/pkg/naming"
)

var suffixed = regexp.MustCompile(`^Foo_\d{4}_\d{2}_\d{2}_\d{2}h\d{2}m\d{2}$`)

func TestTimestampSuffix(t *testing.T) {
	ts := time.Date(2024, 11, 6, 9, 47, 30, 0, time.UTC)
	assert.Equal(t, "2024_11_06_09h47m30", naming.TimestampSuffix(ts))
}

func TestTimestampSuffix_ConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	ts := time.Date(2024, 11, 6, 11, 47, 30, 0, loc)
	assert.Equal(t, "2024_11_06_09h47m30", naming.TimestampSuffix(ts))
}

func TestWithImportSuffix_Appends(t *testing.T) {
	ts := time.Date(2024, 11, 6, 9, 47, 30, 0, time.UTC)
	got := naming.WithImportSuffix("Foo", ts)
	assert.Equal(t, "Foo_2024_11_06_09h47m30", got)
	assert.Regexp(t, suffixed, got)
}

func TestWithImportSuffix_ReplacesExisting(t *testing.T) {
	first := time.Date(2024, 11, 6, 9, 47, 30, 0, time.UTC)
	second := first.Add(90 * time.Second)

	once := naming.WithImportSuffix("Foo", first)
	twice := naming.WithImportSuffix(once, second)

	assert.Equal(t, "Foo_2024_11_06_09h49m00", twice)
	assert.Regexp(t, suffixed, twice)
	assert.NotEqual(t, once, twice)
}

func TestHasImportSuffix(t *testing.T) {
	assert.True(t, naming.HasImportSuffix("Foo_2024_11_06_09h47m30"))
	assert.False(t, naming.HasImportSuffix("Foo"))
	assert.False(t, naming.HasImportSuffix("Foo_Bar"))
}
