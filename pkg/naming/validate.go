// Package naming provides model identifier validation and import-name derivation.
package naming

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/ucmodeler/modelstore/pkg/errclass"
)

// ReservedPrefix is reserved for generated identifiers and never accepted from callers.
const ReservedPrefix = "UC_"

// An identifier starts with an uppercase letter and is made of letters, digits and
// single underscores, never ending in one.
var modelNameRegex = regexp.MustCompile(`^[A-Z][A-Za-z0-9]*(_[A-Za-z0-9]+)*$`)

// ValidateModelName checks that name is an acceptable model identifier.
func ValidateModelName(name string) error {
	if name == "" {
		return errclass.ErrNameInvalid.WithMessage("name must not be empty")
	}

	if !norm.NFC.IsNormalString(name) {
		return errclass.ErrNameInvalid.WithMessagef("name must be NFC normalized: %q", name)
	}

	if strings.HasPrefix(name, ReservedPrefix) {
		return errclass.ErrNameInvalid.WithMessagef("name must not start with %s: %s", ReservedPrefix, name)
	}

	if strings.Contains(name, "__") {
		return errclass.ErrNameInvalid.WithMessagef("name must not contain consecutive underscores: %s", name)
	}

	if strings.HasSuffix(name, "_") {
		return errclass.ErrNameInvalid.WithMessagef("name must not end with an underscore: %s", name)
	}

	if !modelNameRegex.MatchString(name) {
		return errclass.ErrNameInvalid.WithMessagef("name must start with an uppercase letter and contain only letters, digits and underscores: %q", name)
	}

	return nil
}

// IsValidModelName reports whether ValidateModelName accepts name.
func IsValidModelName(name string) bool {
	return ValidateModelName(name) == nil
}

// ValidatePathSafety verifies target path does not escape root.
func ValidatePathSafety(root, targetPath string) error {
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return errclass.ErrPathEscape.WithMessagef("cannot resolve models directory: %v", err)
	}

	// Try resolving target; if it doesn't exist, resolve closest ancestor
	resolvedTarget, err := filepath.EvalSymlinks(targetPath)
	if err != nil {
		if os.IsNotExist(err) {
			resolvedTarget = resolveClosestAncestor(targetPath)
		} else {
			return errclass.ErrPathEscape.WithMessagef("cannot resolve target: %v", err)
		}
	}

	if !strings.HasPrefix(resolvedTarget+string(filepath.Separator), resolvedRoot+string(filepath.Separator)) ||
		resolvedTarget == resolvedRoot {
		return errclass.ErrPathEscape.WithMessagef("path escapes models directory: %s", targetPath)
	}

	return nil
}

// resolveClosestAncestor walks up from path to find the closest existing
// ancestor, resolves it, then appends the remaining components.
func resolveClosestAncestor(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		if os.IsNotExist(err) {
			resolved = resolveClosestAncestor(dir)
		} else {
			return filepath.Clean(path)
		}
	}
	return filepath.Join(resolved, base)
}
