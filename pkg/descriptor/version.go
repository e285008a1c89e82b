package descriptor

import (
	"strings"

	"golang.org/x/mod/semver"
)

const fallbackVersion = "v0.1.0"

// CanonicalVersion normalises a library version for comparison.
// Conforming semantic versions are used as-is; otherwise the first three
// dot-separated parts are taken and zero-padded; anything still unparsable
// becomes 0.1.0.
func CanonicalVersion(version string) string {
	if v := "v" + version; strictSemver(v) {
		return semver.Canonical(v)
	}

	parts := strings.Split(version, ".")
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	if v := "v" + strings.Join(parts[:3], "."); strictSemver(v) {
		return semver.Canonical(v)
	}
	return fallbackVersion
}

// CompareVersions compares two library versions after normalisation.
func CompareVersions(a, b string) int {
	return semver.Compare(CanonicalVersion(a), CanonicalVersion(b))
}

// strictSemver rejects the vMAJOR and vMAJOR.MINOR shorthands that
// x/mod/semver otherwise accepts.
func strictSemver(v string) bool {
	if !semver.IsValid(v) {
		return false
	}
	core := strings.TrimPrefix(v, "v")
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	return strings.Count(core, ".") == 2
}
