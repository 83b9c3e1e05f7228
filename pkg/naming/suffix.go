package naming

import (
	"regexp"
	"time"
)

// SuffixLayout renders UTC timestamps as YYYY_MM_DD_HHhMMmSS.
const SuffixLayout = "2006_01_02_15h04m05"

// An existing import suffix; matched loosely so that hand-edited suffixes are also replaced.
var importSuffixRegex = regexp.MustCompile(`_([_0-9hm]{6,20})$`)

// TimestampSuffix formats t (converted to UTC) as an import suffix without the leading underscore.
func TimestampSuffix(t time.Time) string {
	return t.UTC().Format(SuffixLayout)
}

// WithImportSuffix derives the name an imported model takes when name is already in use.
// A suffix left by a previous import is replaced rather than stacked.
func WithImportSuffix(name string, t time.Time) string {
	suffix := TimestampSuffix(t)
	if loc := importSuffixRegex.FindStringSubmatchIndex(name); loc != nil {
		return name[:loc[2]] + suffix
	}
	return name + "_" + suffix
}

// HasImportSuffix reports whether name ends with an import suffix.
func HasImportSuffix(name string) bool {
	return importSuffixRegex.MatchString(name)
}
