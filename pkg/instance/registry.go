package instance

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/launchkit/pkg/config"
	"github.com/provide-io/launchkit/pkg/descriptor"
	"github.com/provide-io/launchkit/pkg/launcherr"
	"github.com/provide-io/launchkit/pkg/logging"
)

// Registry owns every Instance record. Callers get copies; changes go
// through Update so the on-disk instance.json follows each mutation. Only
// Rename holds the lock across file I/O.
type Registry struct {
	mu     sync.Mutex
	items  map[string]*Instance
	logger hclog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger hclog.Logger) *Registry {
	return &Registry{
		items:  make(map[string]*Instance),
		logger: logging.OrNull(logger).Named("instance"),
	}
}

// Scan rebuilds the registry from the versions/ directories of dirs. A
// version without instance.json gets a record derived from its descriptor.
func (r *Registry) Scan(dirs []config.GameDirectory) ([]Instance, error) {
	found := make(map[string]*Instance)
	for _, dir := range dirs {
		entries, err := os.ReadDir(filepath.Join(dir.Dir, VersionsDir))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", dir.Dir, err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			inst, ok := r.scanVersion(dir, e.Name())
			if ok {
				found[inst.ID] = inst
			}
		}
	}

	r.mu.Lock()
	r.items = found
	r.mu.Unlock()
	r.logger.Debug("🔍 instances scanned", "dirs", len(dirs), "count", len(found))
	return r.List(), nil
}

func (r *Registry) scanVersion(dir config.GameDirectory, name string) (*Instance, bool) {
	layout := NewLayout(dir.Dir, name, true)
	if _, err := os.Stat(layout.Descriptor()); err != nil {
		return nil, false
	}

	inst, err := LoadRecord(layout.ConfigFile())
	if err == nil {
		inst.ID = MakeID(dir.Name, name)
		inst.Name = name
		inst.VersionPath = layout.VersionPath()
		return &inst, true
	}
	if !errors.Is(err, fs.ErrNotExist) {
		r.logger.Warn("⚠️ unreadable instance record, rebuilding", "path", layout.ConfigFile(), "error", err)
	}

	d, err := descriptor.Load(layout.Descriptor())
	if err != nil {
		r.logger.Warn("⚠️ skipping version with unreadable descriptor", "path", layout.Descriptor(), "error", err)
		return nil, false
	}
	version := d.ClientVersion
	if game := d.Patch("game"); version == "" && game != nil {
		version = game.Version
	}
	if version == "" {
		version = d.ID
	}
	inst = Instance{
		ID:          MakeID(dir.Name, name),
		Name:        name,
		Version:     version,
		VersionPath: layout.VersionPath(),
		ModLoader:   DetectLoader(descriptor.Resolve(d)),
	}
	if info, err := os.Stat(layout.Descriptor()); err == nil {
		inst.CreatedAt = info.ModTime().UTC()
	}
	if err := inst.Save(); err != nil {
		r.logger.Warn("⚠️ failed to write derived instance record", "id", inst.ID, "error", err)
	}
	return &inst, true
}

// Get returns a copy of the instance with id.
func (r *Registry) Get(id string) (Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.items[id]
	if !ok {
		return Instance{}, fmt.Errorf("%w: %s", launcherr.ErrInstanceNotFound, id)
	}
	return inst.Clone(), nil
}

// List returns copies of every instance sorted by id.
func (r *Registry) List() []Instance {
	r.mu.Lock()
	out := make([]Instance, 0, len(r.items))
	for _, inst := range r.items {
		out = append(out, inst.Clone())
	}
	r.mu.Unlock()
	slices.SortFunc(out, func(a, b Instance) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Add registers a new instance and writes its record.
func (r *Registry) Add(inst Instance) error {
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	if _, ok := r.items[inst.ID]; ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", launcherr.ErrConflictName, inst.ID)
	}
	c := inst.Clone()
	r.items[inst.ID] = &c
	r.mu.Unlock()
	return inst.Save()
}

// Update applies fn to the instance under the lock, then persists the
// result. If fn fails nothing changes.
func (r *Registry) Update(id string, fn func(*Instance) error) (Instance, error) {
	r.mu.Lock()
	inst, ok := r.items[id]
	if !ok {
		r.mu.Unlock()
		return Instance{}, fmt.Errorf("%w: %s", launcherr.ErrInstanceNotFound, id)
	}
	next := inst.Clone()
	if err := fn(&next); err != nil {
		r.mu.Unlock()
		return Instance{}, err
	}
	*inst = next.Clone()
	r.mu.Unlock()

	if err := next.Save(); err != nil {
		return next, fmt.Errorf("persist instance %s: %w", id, err)
	}
	return next, nil
}

// SetStatus moves the loader of id to status to.
func (r *Registry) SetStatus(id string, to LoaderStatus) (Instance, error) {
	return r.Update(id, func(inst *Instance) error {
		return inst.ModLoader.Transition(to)
	})
}

// BeginDownload selects next as the loader of id and moves it to
// Downloading. A loader whose last attempt failed is retried through
// DownloadFailed → Downloading. An instance that is installing is rejected.
func (r *Registry) BeginDownload(id string, next ModLoader) (Instance, error) {
	return r.Update(id, func(inst *Instance) error {
		cur := inst.ModLoader
		switch cur.Status {
		case StatusInstalling:
			return fmt.Errorf("%w: %s", launcherr.ErrInstallationDuplicated, id)
		case StatusDownloadFailed:
			if err := cur.Transition(StatusDownloading); err != nil {
				return err
			}
		}
		next.Status = StatusDownloading
		inst.ModLoader = next
		return nil
	})
}

// ResetStaleInstall moves a recorded Installing status of id back to
// NotDownloaded. The caller must hold the install lock, so the status can
// only be left over from an interrupted run. It reports whether a reset
// happened.
func (r *Registry) ResetStaleInstall(id string) (bool, error) {
	reset := false
	_, err := r.Update(id, func(inst *Instance) error {
		if inst.ModLoader.Status != StatusInstalling {
			return errNoChange
		}
		inst.ModLoader.Status = StatusNotDownloaded
		reset = true
		return nil
	})
	if errors.Is(err, errNoChange) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	r.logger.Warn("🧹 reset install interrupted by a previous run", "id", id)
	return reset, nil
}

// errNoChange aborts an Update that has nothing to write.
var errNoChange = errors.New("no change")

// BeginInstall claims the install phase of id. proceed is false when the
// loader is already installed. An instance already installing, or whose
// last attempt failed, is rejected.
func (r *Registry) BeginInstall(id string) (inst Instance, proceed bool, err error) {
	r.mu.Lock()
	cur, ok := r.items[id]
	if !ok {
		r.mu.Unlock()
		return Instance{}, false, fmt.Errorf("%w: %s", launcherr.ErrInstanceNotFound, id)
	}
	switch cur.ModLoader.Status {
	case StatusInstalled:
		r.mu.Unlock()
		return cur.Clone(), false, nil
	case StatusInstalling:
		r.mu.Unlock()
		return Instance{}, false, fmt.Errorf("%w: %s", launcherr.ErrInstallationDuplicated, id)
	case StatusDownloadFailed:
		r.mu.Unlock()
		return Instance{}, false, fmt.Errorf("%w: last attempt for %s failed, reinstall the loader", launcherr.ErrLoaderNotDownloaded, id)
	}
	if err := cur.ModLoader.Transition(StatusInstalling); err != nil {
		r.mu.Unlock()
		return Instance{}, false, err
	}
	inst = cur.Clone()
	r.mu.Unlock()

	if err := inst.Save(); err != nil {
		r.logger.Warn("⚠️ failed to persist installing status", "id", id, "error", err)
	}
	return inst, true, nil
}

// Rename moves the version directory of id to newName, renaming the
// descriptor and client jar with it. The returned instance carries the
// new id.
func (r *Registry) Rename(id, newName string) (Instance, error) {
	if err := ValidateName(newName); err != nil {
		return Instance{}, err
	}
	gameDirName, _, _ := SplitID(id)
	newID := MakeID(gameDirName, newName)

	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.items[id]
	if !ok {
		return Instance{}, fmt.Errorf("%w: %s", launcherr.ErrInstanceNotFound, id)
	}
	if _, taken := r.items[newID]; taken && newID != id {
		return Instance{}, fmt.Errorf("%w: %s", launcherr.ErrConflictName, newName)
	}
	if newName == cur.Name {
		return cur.Clone(), nil
	}

	// The rename below is a single directory move; holding the lock keeps
	// the id and the directory consistent for concurrent readers.
	oldLayout := cur.Layout(true)
	newLayout := NewLayout(oldLayout.GameDir(), newName, true)
	if _, err := os.Stat(newLayout.VersionPath()); err == nil {
		return Instance{}, fmt.Errorf("%w: %s", launcherr.ErrConflictName, newLayout.VersionPath())
	}
	if err := os.Rename(oldLayout.VersionPath(), newLayout.VersionPath()); err != nil {
		return Instance{}, fmt.Errorf("rename version dir: %w", err)
	}
	for _, pair := range [][2]string{
		{filepath.Join(newLayout.VersionPath(), cur.Name+".json"), newLayout.Descriptor()},
		{filepath.Join(newLayout.VersionPath(), cur.Name+".jar"), newLayout.ClientJar()},
	} {
		if err := os.Rename(pair[0], pair[1]); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Instance{}, fmt.Errorf("rename %s: %w", filepath.Base(pair[0]), err)
		}
	}
	if d, err := descriptor.Load(newLayout.Descriptor()); err == nil {
		d.ID, d.Jar = newName, newName
		if err := descriptor.Save(newLayout.Descriptor(), d); err != nil {
			return Instance{}, err
		}
	}

	next := cur.Clone()
	next.ID = newID
	next.Name = newName
	next.VersionPath = newLayout.VersionPath()
	delete(r.items, id)
	stored := next.Clone()
	r.items[newID] = &stored
	if err := next.Save(); err != nil {
		return next, err
	}
	r.logger.Info("✏️ instance renamed", "from", id, "to", newID)
	return next, nil
}

// Delete removes the instance and its version directory recursively.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	cur, ok := r.items[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", launcherr.ErrInstanceNotFound, id)
	}
	path := cur.VersionPath
	delete(r.items, id)
	r.mu.Unlock()

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	r.logger.Info("🗑️ instance deleted", "id", id, "path", path)
	return nil
}
