package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/hashicorp/go-hclog"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/provide-io/launchkit/pkg/descriptor"
	"github.com/provide-io/launchkit/pkg/download"
	"github.com/provide-io/launchkit/pkg/launcherr"
	"github.com/provide-io/launchkit/pkg/logging"
	"github.com/provide-io/launchkit/pkg/lookup"
	"github.com/provide-io/launchkit/pkg/source"
)

// Catalog endpoints for Fabric API lookups.
const (
	ModrinthAPI       = "https://api.modrinth.com/v2/"
	ModrinthMirrorAPI = "https://mod.mcimirror.top/modrinth/v2/"
	FabricAPIProject  = "P7dR8mSH"
)

// GameVersion is one entry of the version manifest.
type GameVersion struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	URL         string `json:"url"`
	SHA1        string `json:"sha1,omitempty"`
	ReleaseTime string `json:"releaseTime,omitempty"`
}

// ModFile is a downloadable mod release.
type ModFile struct {
	URL      string
	Filename string
	SHA1     string
}

// OptiFineBuild is one OptiFine release for a game version.
type OptiFineBuild struct {
	MCVersion string `json:"mcversion"`
	Type      string `json:"type"`
	Patch     string `json:"patch"`
	Filename  string `json:"filename"`
}

// Meta is the remote metadata the installer reads.
type Meta interface {
	GameVersions(ctx context.Context) ([]GameVersion, error)
	GameDescriptor(ctx context.Context, url string) (*descriptor.Descriptor, error)
	FabricProfile(ctx context.Context, gameVersion, loaderVersion string) (*descriptor.Descriptor, error)
	FabricAPI(ctx context.Context, gameVersion string) (ModFile, error)
	OptiFineBuilds(ctx context.Context, gameVersion string) ([]OptiFineBuild, error)
}

// RemoteMeta reads metadata over a Fetcher, trying origins in priority
// order.
type RemoteMeta struct {
	Fetcher download.Fetcher
	Sources source.Priority
	Logger  hclog.Logger
}

var _ Meta = (*RemoteMeta)(nil)

// fetchFirst fetches path under resource r from each origin in turn and
// returns the first body that decode accepts.
func (m *RemoteMeta) fetchFirst(ctx context.Context, r source.Resource, path string, decode func([]byte) error) error {
	var errs []error
	for _, kind := range m.Sources {
		base, err := source.Base(kind, r)
		if err != nil {
			continue
		}
		data, err := m.Fetcher.Fetch(ctx, base+path)
		if err == nil {
			if err = decode(data); err == nil {
				return nil
			}
		}
		logging.OrNull(m.Logger).Debug("🔁 metadata origin failed, falling back", "origin", kind, "path", path, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", kind, err))
	}
	if len(errs) == 0 {
		return fmt.Errorf("%w: no origin serves %s", launcherr.ErrNetwork, path)
	}
	return errors.Join(errs...)
}

func (m *RemoteMeta) GameVersions(ctx context.Context) ([]GameVersion, error) {
	var manifest struct {
		Versions []GameVersion `json:"versions"`
	}
	err := m.fetchFirst(ctx, source.VersionManifest, "", func(data []byte) error {
		if err := json.Unmarshal(data, &manifest); err != nil {
			return fmt.Errorf("%w: version manifest: %v", launcherr.ErrLoaderVersionParse, err)
		}
		return nil
	})
	return manifest.Versions, err
}

func (m *RemoteMeta) GameDescriptor(ctx context.Context, url string) (*descriptor.Descriptor, error) {
	data, err := m.Fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return descriptor.Parse(data)
}

func (m *RemoteMeta) FabricProfile(ctx context.Context, gameVersion, loaderVersion string) (*descriptor.Descriptor, error) {
	var profile *descriptor.Descriptor
	path := fmt.Sprintf("v2/versions/loader/%s/%s/profile/json", url.PathEscape(gameVersion), url.PathEscape(loaderVersion))
	err := m.fetchFirst(ctx, source.FabricMeta, path, func(data []byte) error {
		d, err := descriptor.Parse(data)
		if err != nil {
			return fmt.Errorf("%w: fabric profile: %v", launcherr.ErrLoaderVersionParse, err)
		}
		profile = d
		return nil
	})
	return profile, err
}

// FabricAPI races Modrinth against its mirror, preferring whichever the
// source priority puts first.
func (m *RemoteMeta) FabricAPI(ctx context.Context, gameVersion string) (ModFile, error) {
	primary, secondary := ModrinthAPI, ModrinthMirrorAPI
	if m.Sources.Primary() == source.BMCLAPI {
		primary, secondary = secondary, primary
	}
	query := url.Values{}
	query.Set("loaders", `["fabric"]`)
	query.Set("game_versions", fmt.Sprintf("[%q]", gameVersion))
	path := "project/" + FabricAPIProject + "/version?" + query.Encode()

	get := func(base string) lookup.Func[ModFile] {
		return func(ctx context.Context) (ModFile, error) {
			data, err := m.Fetcher.Fetch(ctx, base+path)
			if err != nil {
				return ModFile{}, err
			}
			return parseModrinthVersions(data)
		}
	}
	return lookup.Race(ctx, get(primary), get(secondary))
}

func parseModrinthVersions(data []byte) (ModFile, error) {
	var versions []struct {
		Files []struct {
			URL      string `json:"url"`
			Filename string `json:"filename"`
			Primary  bool   `json:"primary"`
			Hashes   struct {
				SHA1 string `json:"sha1"`
			} `json:"hashes"`
		} `json:"files"`
	}
	if err := json.Unmarshal(data, &versions); err != nil {
		return ModFile{}, fmt.Errorf("%w: modrinth versions: %v", launcherr.ErrLoaderVersionParse, err)
	}
	for _, v := range versions {
		for _, f := range v.Files {
			if f.Primary || len(v.Files) == 1 {
				return ModFile{URL: f.URL, Filename: f.Filename, SHA1: f.Hashes.SHA1}, nil
			}
		}
	}
	return ModFile{}, fmt.Errorf("%w: no fabric api release", launcherr.ErrLoaderVersionParse)
}

func (m *RemoteMeta) OptiFineBuilds(ctx context.Context, gameVersion string) ([]OptiFineBuild, error) {
	var builds []OptiFineBuild
	err := m.fetchFirst(ctx, source.OptiFine, url.PathEscape(gameVersion), func(data []byte) error {
		if err := json.Unmarshal(data, &builds); err != nil {
			return fmt.Errorf("%w: optifine list: %v", launcherr.ErrLoaderVersionParse, err)
		}
		return nil
	})
	return builds, err
}

// CachedMeta memoises descriptor and build lookups in bounded LRU caches.
// Fabric API lookups are not cached since the latest release moves.
type CachedMeta struct {
	Meta

	descriptors *lru.Cache[string, *descriptor.Descriptor]
	versions    *lru.Cache[string, []GameVersion]
	builds      *lru.Cache[string, []OptiFineBuild]
}

// DefaultMetaCacheSize bounds each cache of a CachedMeta.
const DefaultMetaCacheSize = 64

// NewCachedMeta wraps m. size <= 0 selects DefaultMetaCacheSize.
func NewCachedMeta(m Meta, size int) (*CachedMeta, error) {
	if size <= 0 {
		size = DefaultMetaCacheSize
	}
	descriptors, err := lru.New[string, *descriptor.Descriptor](size)
	if err != nil {
		return nil, err
	}
	versions, err := lru.New[string, []GameVersion](1)
	if err != nil {
		return nil, err
	}
	builds, err := lru.New[string, []OptiFineBuild](size)
	if err != nil {
		return nil, err
	}
	return &CachedMeta{Meta: m, descriptors: descriptors, versions: versions, builds: builds}, nil
}

func (c *CachedMeta) GameVersions(ctx context.Context) ([]GameVersion, error) {
	if v, ok := c.versions.Get("manifest"); ok {
		return v, nil
	}
	v, err := c.Meta.GameVersions(ctx)
	if err != nil {
		return nil, err
	}
	c.versions.Add("manifest", v)
	return v, nil
}

func (c *CachedMeta) GameDescriptor(ctx context.Context, url string) (*descriptor.Descriptor, error) {
	return c.cachedDescriptor("game|"+url, func() (*descriptor.Descriptor, error) {
		return c.Meta.GameDescriptor(ctx, url)
	})
}

func (c *CachedMeta) FabricProfile(ctx context.Context, gameVersion, loaderVersion string) (*descriptor.Descriptor, error) {
	return c.cachedDescriptor("fabric|"+gameVersion+"|"+loaderVersion, func() (*descriptor.Descriptor, error) {
		return c.Meta.FabricProfile(ctx, gameVersion, loaderVersion)
	})
}

func (c *CachedMeta) cachedDescriptor(key string, load func() (*descriptor.Descriptor, error)) (*descriptor.Descriptor, error) {
	if d, ok := c.descriptors.Get(key); ok {
		return d.Clone(), nil
	}
	d, err := load()
	if err != nil {
		return nil, err
	}
	c.descriptors.Add(key, d.Clone())
	return d, nil
}

func (c *CachedMeta) OptiFineBuilds(ctx context.Context, gameVersion string) ([]OptiFineBuild, error) {
	if b, ok := c.builds.Get(gameVersion); ok {
		return b, nil
	}
	b, err := c.Meta.OptiFineBuilds(ctx, gameVersion)
	if err != nil {
		return nil, err
	}
	c.builds.Add(gameVersion, b)
	return b, nil
}
