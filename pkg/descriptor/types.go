// Package descriptor models client descriptors (version JSON files) and
// merges a base descriptor with its ordered patches into one effective
// descriptor.
package descriptor

import (
	"encoding/json"
	"fmt"
)

// GamePatchPriority is the priority of the vanilla "game" patch.
const GamePatchPriority = 0

// Descriptor is the description of one runnable game version. Patches are
// nested partial descriptors; see Resolve.
type Descriptor struct {
	ID                 string                     `json:"id"`
	Version            string                     `json:"version,omitempty"`
	ClientVersion      string                     `json:"clientVersion,omitempty"`
	InheritsFrom       string                     `json:"inheritsFrom,omitempty"`
	Type               string                     `json:"type,omitempty"`
	Jar                string                     `json:"jar,omitempty"`
	MainClass          string                     `json:"mainClass,omitempty"`
	MinecraftArguments string                     `json:"minecraftArguments,omitempty"`
	Arguments          *Arguments                 `json:"arguments,omitempty"`
	AssetIndex         *AssetIndexRef             `json:"assetIndex,omitempty"`
	Assets             string                     `json:"assets,omitempty"`
	Downloads          map[string]Artifact        `json:"downloads,omitempty"`
	JavaVersion        *JavaVersion               `json:"javaVersion,omitempty"`
	Libraries          []Library                  `json:"libraries,omitempty"`
	Logging            map[string]json.RawMessage `json:"logging,omitempty"`
	Priority           *int                       `json:"priority,omitempty"`
	Patches            []Descriptor               `json:"patches,omitempty"`
}

// Arguments is the modern launch-argument template.
type Arguments struct {
	Game []ArgumentItem `json:"game,omitempty"`
	JVM  []ArgumentItem `json:"jvm,omitempty"`
}

// ArgumentItem is either a plain string or a rule-gated list of values.
type ArgumentItem struct {
	Value []string
	Rules []Rule
}

// Plain returns an unconditional single-value argument.
func Plain(value string) ArgumentItem {
	return ArgumentItem{Value: []string{value}}
}

func (a *ArgumentItem) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = ArgumentItem{Value: []string{s}}
		return nil
	}

	var obj struct {
		Rules []Rule          `json:"rules"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("argument item: %w", err)
	}
	a.Rules = obj.Rules
	a.Value = nil

	if len(obj.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal(obj.Value, &s); err == nil {
		a.Value = []string{s}
		return nil
	}
	if err := json.Unmarshal(obj.Value, &a.Value); err != nil {
		return fmt.Errorf("argument item value: %w", err)
	}
	return nil
}

func (a ArgumentItem) MarshalJSON() ([]byte, error) {
	if len(a.Rules) == 0 && len(a.Value) == 1 {
		return json.Marshal(a.Value[0])
	}
	obj := struct {
		Rules []Rule   `json:"rules,omitempty"`
		Value []string `json:"value"`
	}{a.Rules, a.Value}
	return json.Marshal(obj)
}

// AssetIndexRef points at the asset index of a version.
type AssetIndexRef struct {
	ID        string `json:"id"`
	SHA1      string `json:"sha1,omitempty"`
	Size      int64  `json:"size,omitempty"`
	TotalSize int64  `json:"totalSize,omitempty"`
	URL       string `json:"url"`
}

// JavaVersion names the runtime major version a descriptor requires.
type JavaVersion struct {
	Component    string `json:"component,omitempty"`
	MajorVersion int    `json:"majorVersion"`
}

// Artifact is download metadata for one file.
type Artifact struct {
	Path string `json:"path,omitempty"`
	URL  string `json:"url"`
	SHA1 string `json:"sha1,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// LibraryDownloads holds the main artifact and native classifiers.
type LibraryDownloads struct {
	Artifact    *Artifact           `json:"artifact,omitempty"`
	Classifiers map[string]Artifact `json:"classifiers,omitempty"`
}

// ExtractRule lists archive paths skipped when unpacking natives.
type ExtractRule struct {
	Exclude []string `json:"exclude,omitempty"`
}

// Library is one library entry. Name is a maven-style coordinate.
type Library struct {
	Name      string            `json:"name"`
	URL       string            `json:"url,omitempty"`
	SHA1      string            `json:"sha1,omitempty"`
	Size      int64             `json:"size,omitempty"`
	Downloads *LibraryDownloads `json:"downloads,omitempty"`
	Natives   map[string]string `json:"natives,omitempty"`
	Rules     []Rule            `json:"rules,omitempty"`
	Extract   *ExtractRule      `json:"extract,omitempty"`
}

// AssetIndex maps virtual asset paths to content-addressed objects.
type AssetIndex struct {
	Objects        map[string]AssetObject `json:"objects"`
	Virtual        bool                   `json:"virtual,omitempty"`
	MapToResources bool                   `json:"map_to_resources,omitempty"`
}

// AssetObject is one content-addressed asset.
type AssetObject struct {
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

// ObjectPath returns the storage path of an asset relative to objects/.
func ObjectPath(hash string) string {
	if len(hash) < 2 {
		return hash
	}
	return hash[:2] + "/" + hash
}

// PriorityValue returns the patch priority, treating a missing value as 0.
func (d *Descriptor) PriorityValue() int {
	if d.Priority == nil {
		return 0
	}
	return *d.Priority
}

// RequiredJavaMajor returns the runtime major version, 8 when unspecified.
func (d *Descriptor) RequiredJavaMajor() int {
	if d.JavaVersion == nil || d.JavaVersion.MajorVersion == 0 {
		return 8
	}
	return d.JavaVersion.MajorVersion
}

// Clone returns a deep copy.
func (d *Descriptor) Clone() *Descriptor {
	data, err := json.Marshal(d)
	if err != nil {
		// Descriptor contains only JSON-safe fields.
		panic(fmt.Sprintf("descriptor: clone: %v", err))
	}
	var out Descriptor
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("descriptor: clone: %v", err))
	}
	return &out
}

// IntPtr is a small helper for building patches.
func IntPtr(v int) *int {
	return &v
}
