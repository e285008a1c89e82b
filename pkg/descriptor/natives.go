package descriptor

import (
	"path/filepath"
	"strings"
)

// DefaultLibraryBase is used for libraries that declare neither a download
// block nor a repository URL.
const DefaultLibraryBase = "https://libraries.minecraft.net/"

// ResolvedArtifact is a library paired with the concrete file it needs.
type ResolvedArtifact struct {
	Library  Library
	Artifact Artifact
	Native   bool
}

// NativeClassifier returns the classifier of l for p with ${arch}
// substituted, or "" when l has no natives for p.
func (l *Library) NativeClassifier(p Platform) string {
	if l.Natives == nil {
		return ""
	}
	classifier, ok := l.Natives[p.OS]
	if !ok {
		return ""
	}
	return strings.ReplaceAll(classifier, "${arch}", p.Bits())
}

// MainArtifact returns the non-native artifact of l. When the library has no
// download block one is derived from its repository URL and coordinate.
func (l *Library) MainArtifact() (Artifact, error) {
	c, err := ParseCoordinate(l.Name, "")
	if err != nil {
		return Artifact{}, err
	}
	if l.Downloads != nil && l.Downloads.Artifact != nil {
		a := *l.Downloads.Artifact
		if a.Path == "" {
			a.Path = c.Path()
		}
		return a, nil
	}
	return l.derivedArtifact(c), nil
}

// NativeArtifact returns the native artifact of l for p. ok is false when
// l carries no native for p.
func (l *Library) NativeArtifact(p Platform) (a Artifact, ok bool, err error) {
	classifier := l.NativeClassifier(p)
	if classifier == "" {
		return Artifact{}, false, nil
	}
	c, err := ParseCoordinate(l.Name, classifier)
	if err != nil {
		return Artifact{}, false, err
	}
	if l.Downloads != nil {
		if a, found := l.Downloads.Classifiers[classifier]; found {
			if a.Path == "" {
				a.Path = c.Path()
			}
			return a, true, nil
		}
		if l.Downloads.Classifiers != nil {
			return Artifact{}, false, nil
		}
	}
	return l.derivedArtifact(c), true, nil
}

func (l *Library) derivedArtifact(c Coordinate) Artifact {
	base := l.URL
	if base == "" {
		base = DefaultLibraryBase
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return Artifact{
		Path: c.Path(),
		URL:  base + c.Path(),
		SHA1: l.SHA1,
		Size: l.Size,
	}
}

// NonNativeArtifacts lists the allowed libraries that carry no native map.
// Entries are unique by artifact path and keep declaration order.
func (d *Descriptor) NonNativeArtifacts(p Platform) []ResolvedArtifact {
	var out []ResolvedArtifact
	seen := make(map[string]bool)
	for _, lib := range d.Libraries {
		if lib.Natives != nil || !lib.IsAllowed(p) {
			continue
		}
		a, err := lib.MainArtifact()
		if err != nil || seen[a.Path] {
			continue
		}
		seen[a.Path] = true
		out = append(out, ResolvedArtifact{Library: lib, Artifact: a})
	}
	return out
}

// NativeArtifacts lists the native archives of allowed libraries for p.
func (d *Descriptor) NativeArtifacts(p Platform) []ResolvedArtifact {
	var out []ResolvedArtifact
	seen := make(map[string]bool)
	for _, lib := range d.Libraries {
		if lib.Natives == nil || !lib.IsAllowed(p) {
			continue
		}
		a, ok, err := lib.NativeArtifact(p)
		if err != nil || !ok || seen[a.Path] {
			continue
		}
		seen[a.Path] = true
		out = append(out, ResolvedArtifact{Library: lib, Artifact: a, Native: true})
	}
	return out
}

// Classpath returns the local paths of the non-native libraries under
// libDir, in declaration order.
func (d *Descriptor) Classpath(libDir string, p Platform) []string {
	artifacts := d.NonNativeArtifacts(p)
	out := make([]string, 0, len(artifacts))
	for _, ra := range artifacts {
		out = append(out, filepath.Join(libDir, filepath.FromSlash(ra.Artifact.Path)))
	}
	return out
}
