package descriptor

import (
	"maps"
	"sort"
)

// MergeLibraries returns the ordered union of the given lists keyed by
// library identity. The first declaration of a key fixes its position;
// a later declaration replaces it only when its version is strictly
// greater. Entries whose name cannot be parsed are dropped.
func MergeLibraries(lists ...[]Library) []Library {
	var out []Library
	index := make(map[Key]int)

	for _, list := range lists {
		for _, lib := range list {
			c, err := ParseCoordinate(lib.Name, "")
			if err != nil {
				continue
			}
			key := c.Key()
			i, seen := index[key]
			if !seen {
				index[key] = len(out)
				out = append(out, lib)
				continue
			}
			existing, _ := ParseCoordinate(out[i].Name, "")
			if CompareVersions(c.Version, existing.Version) > 0 {
				out[i] = lib
			}
		}
	}
	return out
}

// SortedPatches returns the patches ordered by ascending priority. Equal
// priorities keep their declaration order.
func (d *Descriptor) SortedPatches() []Descriptor {
	patches := make([]Descriptor, len(d.Patches))
	copy(patches, d.Patches)
	sort.SliceStable(patches, func(i, j int) bool {
		return patches[i].PriorityValue() < patches[j].PriorityValue()
	})
	return patches
}

// Resolve folds the patches of d, in ascending priority, over its top-level
// fields and returns the effective descriptor. Scalar fields present in a
// later patch override earlier values. Libraries are unioned with
// MergeLibraries. The result keeps d's patch list so it can be saved back.
// d is not modified.
func Resolve(d *Descriptor) *Descriptor {
	eff := d.Clone()
	libs := [][]Library{eff.Libraries}

	patches := d.SortedPatches()
	for i := range patches {
		eff.overlay(&patches[i])
		libs = append(libs, patches[i].Libraries)
	}
	eff.Libraries = MergeLibraries(libs...)
	eff.Priority = nil
	return eff
}

func (d *Descriptor) overlay(p *Descriptor) {
	if p.MainClass != "" {
		d.MainClass = p.MainClass
	}
	if p.MinecraftArguments != "" {
		d.MinecraftArguments = p.MinecraftArguments
	}
	if p.Arguments != nil {
		d.Arguments = p.Arguments
	}
	if p.AssetIndex != nil && p.AssetIndex.ID != "" {
		d.AssetIndex = p.AssetIndex
	}
	if p.Assets != "" {
		d.Assets = p.Assets
	}
	if p.JavaVersion != nil && p.JavaVersion.MajorVersion != 0 {
		d.JavaVersion = p.JavaVersion
	}
	if p.Type != "" {
		d.Type = p.Type
	}
	if len(p.Downloads) > 0 {
		if d.Downloads == nil {
			d.Downloads = make(map[string]Artifact)
		}
		maps.Copy(d.Downloads, p.Downloads)
	}
	if len(p.Logging) > 0 {
		d.Logging = p.Logging
	}
}

// Patch returns the patch with the given id, or nil.
func (d *Descriptor) Patch(id string) *Descriptor {
	for i := range d.Patches {
		if d.Patches[i].ID == id {
			return &d.Patches[i]
		}
	}
	return nil
}

// SetPatch replaces the patch with the same id or appends p.
func (d *Descriptor) SetPatch(p Descriptor) {
	for i := range d.Patches {
		if d.Patches[i].ID == p.ID {
			d.Patches[i] = p
			return
		}
	}
	d.Patches = append(d.Patches, p)
}

// RemovePatch drops the patch with the given id.
func (d *Descriptor) RemovePatch(id string) {
	out := d.Patches[:0]
	for _, p := range d.Patches {
		if p.ID != id {
			out = append(out, p)
		}
	}
	d.Patches = out
}
