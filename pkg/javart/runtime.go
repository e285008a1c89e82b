// Package javart discovers local Java runtimes and picks one for a
// descriptor's required major version.
package javart

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/launchkit/pkg/launcherr"
	"github.com/provide-io/launchkit/pkg/logging"
)

// Runtime is one discovered java executable.
type Runtime struct {
	Name         string `json:"name"`
	ExecPath     string `json:"execPath"`
	MajorVersion int    `json:"majorVersion"`
	IsLTS        bool   `json:"isLts"`
	IsUserAdded  bool   `json:"isUserAdded"`
}

// VersionProbe returns the raw version string of the java at execPath.
type VersionProbe func(ctx context.Context, execPath string) (string, error)

// Discoverer walks PATH, JAVA_HOME, well-known install roots and any extra
// paths looking for java executables.
type Discoverer struct {
	ExtraPaths  []string
	SearchRoots []string
	Probe       VersionProbe
	Logger      hclog.Logger
}

// NewDiscoverer returns a Discoverer with the platform's default roots.
func NewDiscoverer(extra []string, logger hclog.Logger) *Discoverer {
	return &Discoverer{
		ExtraPaths:  extra,
		SearchRoots: defaultSearchRoots(),
		Probe:       ProbeVersion,
		Logger:      logging.OrNull(logger).Named("javart"),
	}
}

func javaBinary() string {
	if runtime.GOOS == "windows" {
		return "java.exe"
	}
	return "java"
}

func defaultSearchRoots() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{
			`C:\Program Files\Java`,
			`C:\Program Files\Eclipse Adoptium`,
			`C:\Program Files\Microsoft`,
			`C:\Program Files\Zulu`,
			`C:\Program Files (x86)\Java`,
		}
	case "darwin":
		home, _ := os.UserHomeDir()
		return []string{
			"/Library/Java/JavaVirtualMachines",
			filepath.Join(home, "Library/Java/JavaVirtualMachines"),
		}
	default:
		return []string{"/usr/lib/jvm", "/usr/java", "/opt/java", "/opt/jdk"}
	}
}

// Discover returns every runtime found, sorted by major version descending
// and then by path length ascending. Candidates whose version cannot be
// determined are skipped.
func (d *Discoverer) Discover(ctx context.Context) []Runtime {
	logger := logging.OrNull(d.Logger)
	user := make(map[string]bool)
	for _, p := range d.ExtraPaths {
		if resolved, ok := canonical(p); ok {
			user[resolved] = true
		}
	}

	var out []Runtime
	for _, path := range d.candidates() {
		raw, err := d.probe(ctx, path)
		if err != nil {
			logger.Debug("⚠️ skipping java candidate", "path", path, "error", err)
			continue
		}
		major := ParseMajor(raw)
		if major == 0 {
			logger.Debug("⚠️ unrecognised java version", "path", path, "version", raw)
			continue
		}
		out = append(out, Runtime{
			Name:         fmt.Sprintf("Java %s", raw),
			ExecPath:     path,
			MajorVersion: major,
			IsLTS:        isLTS(major),
			IsUserAdded:  user[path],
		})
	}
	Sort(out)
	logger.Debug("☕ java discovery complete", "found", len(out))
	return out
}

func (d *Discoverer) probe(ctx context.Context, path string) (string, error) {
	if v, ok := releaseVersion(path); ok {
		return v, nil
	}
	if d.Probe == nil {
		return "", fmt.Errorf("no release file and no probe")
	}
	return d.Probe(ctx, path)
}

// candidates lists unique, symlink-resolved java executables.
func (d *Discoverer) candidates() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if resolved, ok := canonical(p); ok && !seen[resolved] {
			seen[resolved] = true
			out = append(out, resolved)
		}
	}

	bin := javaBinary()
	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		add(filepath.Join(dir, bin))
	}
	if home := os.Getenv("JAVA_HOME"); home != "" {
		add(filepath.Join(home, "bin", bin))
	}
	for _, root := range d.SearchRoots {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, e := range entries {
			base := filepath.Join(root, e.Name())
			add(filepath.Join(base, "bin", bin))
			add(filepath.Join(base, "Contents", "Home", "bin", bin))
		}
	}
	for _, p := range d.ExtraPaths {
		add(p)
	}
	return out
}

func canonical(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", false
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return "", false
	}
	return abs, true
}

var releaseLine = regexp.MustCompile(`^JAVA_VERSION="([^"]+)"`)

// releaseVersion reads JAVA_VERSION from <home>/release next to bin/.
func releaseVersion(execPath string) (string, bool) {
	home := filepath.Dir(filepath.Dir(execPath))
	data, err := os.ReadFile(filepath.Join(home, "release"))
	if err != nil {
		return "", false
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if m := releaseLine.FindStringSubmatch(scanner.Text()); m != nil {
			return m[1], true
		}
	}
	return "", false
}

var versionOutput = regexp.MustCompile(`version "([^"]+)"`)

// ProbeVersion runs `java -version` and extracts the quoted version.
func ProbeVersion(ctx context.Context, execPath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, execPath, "-version").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s -version: %w", execPath, err)
	}
	m := versionOutput.FindSubmatch(out)
	if m == nil {
		return "", fmt.Errorf("%s -version: no version in output", execPath)
	}
	return string(m[1]), nil
}

// ParseMajor maps "1.8.0_292" to 8 and "17.0.2" to 17. It returns 0 when
// the string is not a java version.
func ParseMajor(version string) int {
	parts := strings.FieldsFunc(version, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	if len(parts) == 0 {
		return 0
	}
	first, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0
	}
	if first == 1 && len(parts) > 1 {
		if second, err := strconv.Atoi(parts[1]); err == nil {
			return second
		}
	}
	return first
}

func isLTS(major int) bool {
	switch major {
	case 8, 11, 17, 21, 25:
		return true
	}
	return false
}

// Sort orders runtimes by major version descending, then shorter paths.
func Sort(rs []Runtime) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].MajorVersion != rs[j].MajorVersion {
			return rs[i].MajorVersion > rs[j].MajorVersion
		}
		return len(rs[i].ExecPath) < len(rs[j].ExecPath)
	})
}

// Compatible reports whether r can run a game that requires major.
func (r Runtime) Compatible(major int) bool {
	return r.MajorVersion >= major
}

// Select picks a runtime for the required major version. preferred, when it
// names a compatible runtime, wins; otherwise the lowest compatible major is
// chosen, preferring LTS releases and then shorter paths.
func Select(runtimes []Runtime, required int, preferred string) (Runtime, error) {
	if preferred != "" {
		for _, r := range runtimes {
			if r.ExecPath == preferred && r.Compatible(required) {
				return r, nil
			}
		}
	}

	var best *Runtime
	for i := range runtimes {
		r := &runtimes[i]
		if !r.Compatible(required) {
			continue
		}
		if best == nil || better(r, best) {
			best = r
		}
	}
	if best == nil {
		return Runtime{}, fmt.Errorf("%w: requires java %d", launcherr.ErrRuntimeNotFound, required)
	}
	return *best, nil
}

func better(a, b *Runtime) bool {
	if a.MajorVersion != b.MajorVersion {
		return a.MajorVersion < b.MajorVersion
	}
	if a.IsLTS != b.IsLTS {
		return a.IsLTS
	}
	return len(a.ExecPath) < len(b.ExecPath)
}

// Registry holds the current runtime list behind a mutex.
type Registry struct {
	mu       sync.Mutex
	runtimes []Runtime
}

// Replace swaps in a freshly discovered list.
func (r *Registry) Replace(rs []Runtime) {
	cp := append([]Runtime(nil), rs...)
	r.mu.Lock()
	r.runtimes = cp
	r.mu.Unlock()
}

// List returns a copy of the current runtimes.
func (r *Registry) List() []Runtime {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Runtime(nil), r.runtimes...)
}

// Find returns the runtime with the given executable path.
func (r *Registry) Find(execPath string) (Runtime, bool) {
	for _, rt := range r.List() {
		if rt.ExecPath == execPath {
			return rt, true
		}
	}
	return Runtime{}, false
}

// Refresh rediscovers runtimes into the registry.
func (r *Registry) Refresh(ctx context.Context, d *Discoverer) []Runtime {
	found := d.Discover(ctx)
	r.Replace(found)
	return found
}
