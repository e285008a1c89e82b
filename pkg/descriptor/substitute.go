package descriptor

import "strings"

// NativeSubstitution upgrades a library group on a platform that the
// declared version ships no natives for.
type NativeSubstitution struct {
	Platform   string // os-arch, see Platform.Key
	Group      string // dotted group id
	Below      string // versions strictly lower are replaced
	Version    string
	Classifier string
	BaseURL    string
}

// DefaultNativeSubstitutions covers LWJGL releases older than the first
// version with arm64 natives.
var DefaultNativeSubstitutions = []NativeSubstitution{
	{Platform: "osx-arm64", Group: "org.lwjgl", Below: "3.3.0", Version: "3.3.1", Classifier: "natives-macos-arm64", BaseURL: DefaultLibraryBase},
	{Platform: "linux-arm64", Group: "org.lwjgl", Below: "3.3.0", Version: "3.3.1", Classifier: "natives-linux-arm64", BaseURL: DefaultLibraryBase},
	{Platform: "windows-arm64", Group: "org.lwjgl", Below: "3.3.0", Version: "3.3.1", Classifier: "natives-windows-arm64", BaseURL: DefaultLibraryBase},
}

// SubstituteNatives rewrites the libraries of d in place using the
// substitutions that match p and reports how many entries changed.
func SubstituteNatives(d *Descriptor, p Platform, subs []NativeSubstitution) int {
	changed := 0
	for i := range d.Libraries {
		lib := &d.Libraries[i]
		c, err := ParseCoordinate(lib.Name, "")
		if err != nil {
			continue
		}
		for _, s := range subs {
			if s.Platform != p.Key() || strings.ReplaceAll(s.Group, ".", "/") != c.GroupPath {
				continue
			}
			if CompareVersions(c.Version, s.Below) >= 0 {
				continue
			}
			s.apply(lib, c, p)
			changed++
			break
		}
	}
	return changed
}

func (s NativeSubstitution) apply(lib *Library, c Coordinate, p Platform) {
	c.Version = s.Version
	base := s.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	switch {
	case lib.Natives != nil:
		plain := c
		plain.Classifier = ""
		lib.Name = plain.String()
		lib.Natives = map[string]string{p.OS: s.Classifier}
		native := c
		native.Classifier = s.Classifier
		lib.Downloads = &LibraryDownloads{
			Artifact: &Artifact{Path: plain.Path(), URL: base + plain.Path()},
			Classifiers: map[string]Artifact{
				s.Classifier: {Path: native.Path(), URL: base + native.Path()},
			},
		}
	case strings.HasPrefix(c.Classifier, "natives-"):
		c.Classifier = s.Classifier
		lib.Name = c.String()
		lib.Downloads = &LibraryDownloads{Artifact: &Artifact{Path: c.Path(), URL: base + c.Path()}}
	default:
		lib.Name = c.String()
		lib.Downloads = &LibraryDownloads{Artifact: &Artifact{Path: c.Path(), URL: base + c.Path()}}
	}
	lib.SHA1 = ""
	lib.Size = 0
}
