package naming_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucmodeler/modelstore/pkg/errclass"
	"github.com/ucmodeler/modelstore/pkg/naming"
)

func TestValidateModelName_Valid(t *testing.T) {
	valid := []string{"Foo", "F", "Foo1", "FooBar", "Foo_Bar", "Foo_bar_9", "X_1_2", "Uc_Thing", "UCThing", "Foo_2024_11_06_09h47m30"}
	for _, name := range valid {
		assert.NoError(t, naming.ValidateModelName(name), "should accept: %s", name)
	}
}

func TestValidateModelName_Invalid(t *testing.T) {
	invalid := []string{
		"",
		"foo",
		"1Foo",
		"_Foo",
		"Foo__Bar",
		"Foo_",
		"UC_Foo",
		"UC_",
		"Foo-Bar",
		"Foo Bar",
		"Foo.json",
		"../Foo",
		"Foo/Bar",
		"Ünicode",
	}
	for _, name := range invalid {
		err := naming.ValidateModelName(name)
		require.ErrorIs(t, err, errclass.ErrNameInvalid, "should reject: %q", name)
	}
}

func TestIsValidModelName(t *testing.T) {
	assert.True(t, naming.IsValidModelName("Protocol"))
	assert.False(t, naming.IsValidModelName("protocol"))
}

func TestValidatePathSafety_UnderRoot(t *testing.T) {
	root := t.TempDir()
	assert.NoError(t, naming.ValidatePathSafety(root, filepath.Join(root, "Foo.json")))
}

func TestValidatePathSafety_Escape(t *testing.T) {
	root := t.TempDir()
	err := naming.ValidatePathSafety(root, filepath.Join(root, "..", "Foo.json"))
	require.ErrorIs(t, err, errclass.ErrPathEscape)
}

func TestValidatePathSafety_RootItself(t *testing.T) {
	root := t.TempDir()
	err := naming.ValidatePathSafety(root, root)
	require.ErrorIs(t, err, errclass.ErrPathEscape)
}

func TestValidatePathSafety_SymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(root, "Escape.json")
	require.NoError(t, os.Symlink(filepath.Join(outside, "x.json"), link))
	require.NoError(t, os.WriteFile(filepath.Join(outside, "x.json"), []byte("{}"), 0644))

	err := naming.ValidatePathSafety(root, link)
	require.ErrorIs(t, err, errclass.ErrPathEscape)
}
