package descriptor

import (
	"regexp"
	"runtime"
	"sync"
)

// Rule is one allow/disallow clause. Later matching rules win.
type Rule struct {
	Action   string          `json:"action"`
	OS       *OSRule         `json:"os,omitempty"`
	Features map[string]bool `json:"features,omitempty"`
}

// OSRule restricts a rule to an operating system.
type OSRule struct {
	Name    string `json:"name,omitempty"`
	Arch    string `json:"arch,omitempty"`
	Version string `json:"version,omitempty"`
}

// Platform identifies the host for rule evaluation and native selection.
type Platform struct {
	// OS is one of "windows", "osx" or "linux".
	OS string
	// Arch is "x86", "x86_64", "arm64" or "arm32".
	Arch string
	// Version is the OS version string matched by OSRule.Version.
	Version string
}

// Features are the launcher feature flags consulted by argument rules.
type Features map[string]bool

var hostVersion = sync.OnceValue(osVersion)

// CurrentPlatform describes the running host. Version is empty when the
// host does not report one.
func CurrentPlatform() Platform {
	p := Platform{OS: runtime.GOOS, Arch: runtime.GOARCH, Version: hostVersion()}
	switch runtime.GOOS {
	case "darwin":
		p.OS = "osx"
	}
	switch runtime.GOARCH {
	case "amd64":
		p.Arch = "x86_64"
	case "386":
		p.Arch = "x86"
	case "arm":
		p.Arch = "arm32"
	}
	return p
}

// Bits returns "64" or "32", the value substituted for ${arch}.
func (p Platform) Bits() string {
	switch p.Arch {
	case "x86", "arm32":
		return "32"
	}
	return "64"
}

// Key returns os-arch, used by the native substitution table.
func (p Platform) Key() string {
	return p.OS + "-" + p.Arch
}

// Allowed evaluates rules against the platform and features. An empty rule
// list allows.
func Allowed(rules []Rule, p Platform, f Features) bool {
	if len(rules) == 0 {
		return true
	}
	allowed := false
	for _, r := range rules {
		if r.matches(p, f) {
			allowed = r.Action == "allow"
		}
	}
	return allowed
}

func (r Rule) matches(p Platform, f Features) bool {
	if r.OS != nil {
		if r.OS.Name != "" && r.OS.Name != p.OS {
			return false
		}
		if r.OS.Arch != "" && r.OS.Arch != p.Arch {
			return false
		}
		if r.OS.Version != "" {
			re, err := regexp.Compile(r.OS.Version)
			if err != nil || !re.MatchString(p.Version) {
				return false
			}
		}
	}
	for name, want := range r.Features {
		if f[name] != want {
			return false
		}
	}
	return true
}

// IsAllowed reports whether the library applies to p.
func (l *Library) IsAllowed(p Platform) bool {
	return Allowed(l.Rules, p, nil)
}
