package loader

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/provide-io/launchkit/pkg/descriptor"
	"github.com/provide-io/launchkit/pkg/download"
)

// installFabric turns the Fabric profile for the game and loader version
// into a patch. Fabric has no install phase.
func (in *Installer) installFabric(ctx context.Context, t Target, d *descriptor.Descriptor, plan *Plan) error {
	profile, err := in.Meta.FabricProfile(ctx, t.GameVersion, t.Loader.Version)
	if err != nil {
		return fmt.Errorf("fabric %s for %s: %w", t.Loader.Version, t.GameVersion, err)
	}

	eff := descriptor.Resolve(d)
	patch := descriptor.Descriptor{
		ID:        "fabric",
		Version:   t.Loader.Version,
		Priority:  descriptor.IntPtr(LoaderPatchPriority),
		MainClass: profile.MainClass,
		Libraries: profile.Libraries,
	}
	if profile.Arguments != nil {
		patch.Arguments = extendArguments(eff.Arguments, profile.Arguments)
	}
	plan.Patches = append(plan.Patches, patch)

	reqs, err := in.missingDownloads(ctx, profile.Libraries, t.Layout.Libraries(), nil)
	if err != nil {
		return err
	}
	plan.Downloads = append(plan.Downloads, reqs...)

	if t.FabricAPI {
		mod, err := in.Meta.FabricAPI(ctx, t.GameVersion)
		if err != nil {
			// The loader itself is usable without it.
			in.logger().Warn("⚠️ fabric api lookup failed, skipping", "game", t.GameVersion, "error", err)
			return nil
		}
		plan.Downloads = append(plan.Downloads, download.Request{
			URL:      mod.URL,
			Dest:     filepath.Join(t.Layout.Mods(), mod.Filename),
			Filename: mod.Filename,
			SHA1:     mod.SHA1,
		})
	}
	return nil
}
