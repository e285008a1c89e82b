package descriptor

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/provide-io/launchkit/pkg/launcherr"
)

// Coordinate is a parsed group:artifact:version[:classifier][@extension].
type Coordinate struct {
	GroupPath  string
	Artifact   string
	Version    string
	Classifier string
	Extension  string
}

// Key identifies a library independent of its version. Two declarations of
// the same library at different versions share a Key.
type Key struct {
	GroupPath  string
	Artifact   string
	Classifier string
	Extension  string
}

// ParseCoordinate parses a library name. native, when non-empty, is used as
// the classifier and overrides any classifier in name.
func ParseCoordinate(name, native string) (Coordinate, error) {
	base, ext, hasExt := strings.Cut(name, "@")
	if !hasExt || ext == "" {
		ext = "jar"
	}

	parts := strings.Split(base, ":")
	if len(parts) < 3 {
		return Coordinate{}, fmt.Errorf("%w: %q", launcherr.ErrInvalidCoordinate, name)
	}
	for _, p := range parts[:3] {
		if p == "" {
			return Coordinate{}, fmt.Errorf("%w: %q", launcherr.ErrInvalidCoordinate, name)
		}
	}

	c := Coordinate{
		GroupPath: strings.ReplaceAll(parts[0], ".", "/"),
		Artifact:  parts[1],
		Version:   parts[2],
		Extension: ext,
	}
	if len(parts) > 3 {
		c.Classifier = parts[3]
	}
	if native != "" {
		c.Classifier = native
	}
	return c, nil
}

// Key returns the version-free identity of c.
func (c Coordinate) Key() Key {
	return Key{
		GroupPath:  c.GroupPath,
		Artifact:   c.Artifact,
		Classifier: c.Classifier,
		Extension:  c.Extension,
	}
}

// FileName returns artifact-version[-classifier].ext.
func (c Coordinate) FileName() string {
	name := c.Artifact + "-" + c.Version
	if c.Classifier != "" {
		name += "-" + c.Classifier
	}
	return name + "." + c.Extension
}

// Path returns the slash-separated repository path of the artifact.
func (c Coordinate) Path() string {
	return strings.Join([]string{c.GroupPath, c.Artifact, c.Version, c.FileName()}, "/")
}

// String re-renders the coordinate.
func (c Coordinate) String() string {
	s := strings.ReplaceAll(c.GroupPath, "/", ".") + ":" + c.Artifact + ":" + c.Version
	if c.Classifier != "" {
		s += ":" + c.Classifier
	}
	if c.Extension != "jar" {
		s += "@" + c.Extension
	}
	return s
}

// LibraryPath converts a coordinate string into its repository path.
func LibraryPath(name, native string) (string, error) {
	c, err := ParseCoordinate(name, native)
	if err != nil {
		return "", err
	}
	return c.Path(), nil
}

// LocalPath joins the repository path of name under libDir. Coordinates
// whose path would leave libDir are rejected.
func LocalPath(libDir, name, native string) (string, error) {
	rel, err := LibraryPath(name, native)
	if err != nil {
		return "", err
	}
	rel = filepath.FromSlash(rel)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %s leaves the library directory", launcherr.ErrInvalidCoordinate, name)
	}
	return filepath.Join(libDir, rel), nil
}
