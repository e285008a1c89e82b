// Package reconcile compares what an effective descriptor needs against
// the local tree and produces the downloads that repair it.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"sync"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/provide-io/launchkit/pkg/archive"
	"github.com/provide-io/launchkit/pkg/descriptor"
	"github.com/provide-io/launchkit/pkg/download"
	"github.com/provide-io/launchkit/pkg/launcherr"
	"github.com/provide-io/launchkit/pkg/logging"
	"github.com/provide-io/launchkit/pkg/source"
)

// NativeExtractParallelism bounds concurrent native archive extraction.
const NativeExtractParallelism = 4

// ConcurrencyLimit is clamp(cores*3, 8, 32).
func ConcurrencyLimit() int {
	return min(max(runtime.NumCPU()*3, 8), 32)
}

// Reconciler checks libraries, natives and assets for one platform.
type Reconciler struct {
	Platform descriptor.Platform
	Sources  source.Priority
	Archives archive.Reader
	// Fetcher downloads asset indexes that are not on disk yet.
	Fetcher download.Fetcher
	// Limit overrides ConcurrencyLimit when positive.
	Limit  int
	Logger hclog.Logger
}

// New returns a Reconciler for the current platform.
func New(sources source.Priority, fetcher download.Fetcher, logger hclog.Logger) *Reconciler {
	return &Reconciler{
		Platform: descriptor.CurrentPlatform(),
		Sources:  sources,
		Archives: archive.Zip{},
		Fetcher:  fetcher,
		Logger:   logging.OrNull(logger).Named("reconcile"),
	}
}

func (r *Reconciler) limit() int {
	if r.Limit > 0 {
		return r.Limit
	}
	return ConcurrencyLimit()
}

func (r *Reconciler) logger() hclog.Logger {
	return logging.OrNull(r.Logger)
}

// MissingLibraryDownloads returns a request for every non-native and native
// library artifact that is absent under libDir or, when checkHash is set,
// whose sha1 does not match. The result is sorted by destination.
func (r *Reconciler) MissingLibraryDownloads(ctx context.Context, d *descriptor.Descriptor, libDir string, checkHash bool) ([]download.Request, error) {
	artifacts := append(d.NativeArtifacts(r.Platform), d.NonNativeArtifacts(r.Platform)...)

	reqs, err := validateConcurrently(ctx, r.limit(), artifacts, func(ra descriptor.ResolvedArtifact) (*download.Request, error) {
		a := ra.Artifact
		dest := filepath.Join(libDir, filepath.FromSlash(a.Path))
		req, err := checkFile(dest, a.SHA1, checkHash)
		if err != nil || req == nil {
			return nil, err
		}
		if a.URL == "" {
			return nil, fmt.Errorf("%w: %s (%s)", launcherr.ErrMissingArtifactURL, ra.Library.Name, a.Path)
		}
		req.URL = r.Sources.Library(a.URL)
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	r.logger().Debug("🔍 library scan complete", "artifacts", len(artifacts), "missing", len(reqs), "check_hash", checkHash)
	return reqs, nil
}

// MissingClientDownload checks the client jar of d at jarPath.
func (r *Reconciler) MissingClientDownload(d *descriptor.Descriptor, jarPath string, checkHash bool) (*download.Request, error) {
	client, ok := d.Downloads["client"]
	if !ok {
		return nil, nil
	}
	req, err := checkFile(jarPath, client.SHA1, checkHash)
	if err != nil || req == nil {
		return nil, err
	}
	if client.URL == "" {
		return nil, fmt.Errorf("%w: client jar of %s", launcherr.ErrMissingArtifactURL, d.ID)
	}
	req.URL = client.URL
	return req, nil
}

// MissingAssetDownloads loads the asset index of d (fetching it when absent)
// and returns requests for missing or, when checkHash is set, corrupt
// objects under assetsDir/objects.
func (r *Reconciler) MissingAssetDownloads(ctx context.Context, d *descriptor.Descriptor, assetsDir string, checkHash bool) ([]download.Request, error) {
	if d.AssetIndex == nil || d.AssetIndex.ID == "" {
		return nil, nil
	}
	idx, err := r.LoadAssetIndex(ctx, d, assetsDir)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(idx.Objects))
	objects := make([]descriptor.AssetObject, 0, len(idx.Objects))
	for _, obj := range idx.Objects {
		if seen[obj.Hash] {
			continue
		}
		seen[obj.Hash] = true
		objects = append(objects, obj)
	}

	reqs, err := validateConcurrently(ctx, r.limit(), objects, func(obj descriptor.AssetObject) (*download.Request, error) {
		rel := descriptor.ObjectPath(obj.Hash)
		req, err := checkFile(filepath.Join(assetsDir, "objects", filepath.FromSlash(rel)), obj.Hash, checkHash)
		if err != nil || req == nil {
			return nil, err
		}
		if req.URL, err = r.Sources.Join(source.Assets, rel); err != nil {
			return nil, err
		}
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	r.logger().Debug("🔍 asset scan complete", "index", d.AssetIndex.ID, "objects", len(objects), "missing", len(reqs))
	return reqs, nil
}

// AssetIndexPath returns assets/indexes/<id>.json.
func AssetIndexPath(assetsDir, id string) string {
	return filepath.Join(assetsDir, "indexes", id+".json")
}

// LoadAssetIndex reads the asset index from disk, downloading and saving it
// first when it is missing.
func (r *Reconciler) LoadAssetIndex(ctx context.Context, d *descriptor.Descriptor, assetsDir string) (*descriptor.AssetIndex, error) {
	path := AssetIndexPath(assetsDir, d.AssetIndex.ID)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if r.Fetcher == nil {
			return nil, fmt.Errorf("asset index %s is missing and no fetcher is configured", d.AssetIndex.ID)
		}
		r.logger().Info("📥 fetching asset index", "id", d.AssetIndex.ID)
		if data, err = r.Fetcher.Fetch(ctx, d.AssetIndex.URL); err != nil {
			return nil, err
		}
		idx, err := descriptor.ParseAssetIndex(data)
		if err != nil {
			return nil, err
		}
		if err := descriptor.WriteFileAtomic(path, data); err != nil {
			return nil, err
		}
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read asset index: %w", err)
	}
	return descriptor.ParseAssetIndex(data)
}

// ExtractNatives unpacks every native archive of d into nativesDir, at
// most NativeExtractParallelism at a time. nativesDir is created when
// missing.
func (r *Reconciler) ExtractNatives(ctx context.Context, d *descriptor.Descriptor, libDir, nativesDir string) error {
	if err := os.MkdirAll(nativesDir, 0o755); err != nil {
		return fmt.Errorf("create natives dir: %w", err)
	}
	natives := d.NativeArtifacts(r.Platform)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(NativeExtractParallelism)
	for _, ra := range natives {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			path := filepath.Join(libDir, filepath.FromSlash(ra.Artifact.Path))
			a, err := r.Archives.Open(path)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			exclude := []string{"META-INF/"}
			if ra.Library.Extract != nil {
				exclude = append(exclude, ra.Library.Extract.Exclude...)
			}
			return a.ExtractAll(nativesDir, exclude)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("extract natives: %w", err)
	}
	r.logger().Debug("📦 natives extracted", "count", len(natives), "dir", nativesDir)
	return nil
}

// checkFile returns a request stub (Dest and SHA1 set) when dest is missing
// or, with checkHash and a known sha1, corrupt. nil means the file is good.
func checkFile(dest, sha1 string, checkHash bool) (*download.Request, error) {
	info, err := os.Stat(dest)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &download.Request{Dest: dest, SHA1: sha1}, nil
	case err != nil:
		return nil, err
	case info.IsDir():
		return nil, fmt.Errorf("%s is a directory", dest)
	}
	if !checkHash || sha1 == "" {
		return nil, nil
	}
	ok, err := VerifyFile(dest, "sha1:"+sha1)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &download.Request{Dest: dest, SHA1: sha1}, nil
	}
	return nil, nil
}

// validateConcurrently runs check for every item with at most limit in
// flight. The first error cancels the remaining work. Results are sorted and
// deduplicated by destination so the output does not depend on scheduling.
func validateConcurrently[T any](ctx context.Context, limit int, items []T, check func(T) (*download.Request, error)) ([]download.Request, error) {
	var (
		mu  sync.Mutex
		out []download.Request
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			req, err := check(item)
			if err != nil || req == nil {
				return err
			}
			mu.Lock()
			out = append(out, *req)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Dest < out[j].Dest })
	return slices.CompactFunc(out, func(a, b download.Request) bool { return a.Dest == b.Dest }), nil
}
