// Package source maps remote resources onto the official origin or the
// BMCLAPI mirror according to a source priority list.
package source

import (
	"fmt"
	"strings"
)

// Kind is a download origin.
type Kind string

const (
	Official Kind = "official"
	BMCLAPI  Kind = "bmclapi"
)

// Resource is a family of remote URLs that share a base.
type Resource int

const (
	Libraries Resource = iota
	Assets
	VersionManifest
	FabricMaven
	FabricMeta
	ForgeMaven
	ForgeMavenNew
	NeoForgeMaven
	OptiFine
	LaunchWrapper
)

var bases = map[Resource]map[Kind]string{
	Libraries:       {Official: "https://libraries.minecraft.net/", BMCLAPI: "https://bmclapi2.bangbang93.com/maven/"},
	Assets:          {Official: "https://resources.download.minecraft.net/", BMCLAPI: "https://bmclapi2.bangbang93.com/assets/"},
	VersionManifest: {Official: "https://piston-meta.mojang.com/mc/game/version_manifest_v2.json", BMCLAPI: "https://bmclapi2.bangbang93.com/mc/game/version_manifest_v2.json"},
	FabricMaven:     {Official: "https://maven.fabricmc.net/", BMCLAPI: "https://bmclapi2.bangbang93.com/maven/"},
	FabricMeta:      {Official: "https://meta.fabricmc.net/", BMCLAPI: "https://bmclapi2.bangbang93.com/fabric-meta/"},
	ForgeMaven:      {Official: "https://files.minecraftforge.net/maven/", BMCLAPI: "https://bmclapi2.bangbang93.com/maven/"},
	ForgeMavenNew:   {Official: "https://maven.minecraftforge.net/", BMCLAPI: "https://bmclapi2.bangbang93.com/maven/"},
	NeoForgeMaven:   {Official: "https://maven.neoforged.net/releases/", BMCLAPI: "https://bmclapi2.bangbang93.com/maven/"},
	OptiFine:        {Official: "https://bmclapi2.bangbang93.com/optifine/", BMCLAPI: "https://bmclapi2.bangbang93.com/optifine/"},
	LaunchWrapper:   {Official: "https://libraries.minecraft.net/", BMCLAPI: "https://bmclapi2.bangbang93.com/maven/"},
}

// LibraryResources are the maven repositories library URLs may point at.
var LibraryResources = []Resource{Libraries, FabricMaven, ForgeMaven, ForgeMavenNew, NeoForgeMaven}

// Base returns the base URL of r on origin k.
func Base(k Kind, r Resource) (string, error) {
	byKind, ok := bases[r]
	if !ok {
		return "", fmt.Errorf("unknown resource %d", r)
	}
	base, ok := byKind[k]
	if !ok {
		return "", fmt.Errorf("resource %d has no %s origin", r, k)
	}
	return base, nil
}

// Convert rewrites url onto origin k when it starts with the official base
// of one of the given resources. Other URLs are returned unchanged.
func Convert(url string, k Kind, resources ...Resource) string {
	for _, r := range resources {
		official := bases[r][Official]
		target, ok := bases[r][k]
		if !ok || official == "" {
			continue
		}
		if strings.HasPrefix(url, official) {
			return target + strings.TrimPrefix(url, official)
		}
	}
	return url
}

// Priority is an ordered list of origins, most preferred first.
type Priority []Kind

// Strategy values accepted by ParseStrategy.
const (
	StrategyAuto     = "auto"
	StrategyOfficial = "official"
	StrategyMirror   = "mirror"
)

// ParseStrategy turns a configured strategy into a priority list.
func ParseStrategy(s string) (Priority, error) {
	switch s {
	case "", StrategyAuto, StrategyOfficial:
		return Priority{Official, BMCLAPI}, nil
	case StrategyMirror:
		return Priority{BMCLAPI, Official}, nil
	default:
		return nil, fmt.Errorf("unknown source strategy %q", s)
	}
}

// Primary returns the preferred origin.
func (p Priority) Primary() Kind {
	if len(p) == 0 {
		return Official
	}
	return p[0]
}

// Library rewrites a library URL onto the primary origin.
func (p Priority) Library(url string) string {
	return Convert(url, p.Primary(), LibraryResources...)
}

// Join appends a slash-separated path to the base of r on the primary
// origin.
func (p Priority) Join(r Resource, path string) (string, error) {
	base, err := Base(p.Primary(), r)
	if err != nil {
		return "", err
	}
	return base + strings.TrimPrefix(path, "/"), nil
}
