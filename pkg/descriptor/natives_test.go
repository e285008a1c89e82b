package descriptor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/provide-io/launchkit/pkg/launcherr"
)

const sampleDescriptor = `{
  "id": "1.16.5",
  "mainClass": "net.minecraft.client.main.Main",
  "assetIndex": {"id": "1.16", "sha1": "aa", "url": "https://example.invalid/1.16.json"},
  "arguments": {
    "game": ["--username", "${auth_player_name}", {"rules": [{"action": "allow", "features": {"is_demo_user": true}}], "value": "--demo"}],
    "jvm": [{"rules": [{"action": "allow", "os": {"name": "osx"}}], "value": ["-XstartOnFirstThread"]}, "-cp", "${classpath}"]
  },
  "libraries": [
    {"name": "com.mojang:patchy:1.3.9", "downloads": {"artifact": {"path": "com/mojang/patchy/1.3.9/patchy-1.3.9.jar", "url": "https://libraries.minecraft.net/com/mojang/patchy/1.3.9/patchy-1.3.9.jar", "sha1": "eb8bb7b6"}}},
    {"name": "org.lwjgl:lwjgl:3.2.2", "natives": {"linux": "natives-linux", "osx": "natives-macos", "windows": "natives-windows-${arch}"},
     "downloads": {"artifact": {"url": "https://libraries.minecraft.net/org/lwjgl/lwjgl/3.2.2/lwjgl-3.2.2.jar"},
                   "classifiers": {"natives-linux": {"url": "https://libraries.minecraft.net/org/lwjgl/lwjgl/3.2.2/lwjgl-3.2.2-natives-linux.jar", "sha1": "bb"},
                                   "natives-windows-64": {"url": "https://libraries.minecraft.net/org/lwjgl/lwjgl/3.2.2/lwjgl-3.2.2-natives-windows-64.jar", "sha1": "cc"}}}},
    {"name": "ca.weblite:java-objc-bridge:1.0.0", "rules": [{"action": "allow", "os": {"name": "osx"}}]},
    {"name": "net.fabricmc:fabric-loader:0.15.0", "url": "https://maven.fabricmc.net"}
  ]
}`

func TestViewsSplitNativeAndPlatformGated(t *testing.T) {
	d, err := Parse([]byte(sampleDescriptor))
	require.NoError(t, err)

	linux := Platform{OS: "linux", Arch: "x86_64"}
	nonNative := d.NonNativeArtifacts(linux)
	require.Len(t, nonNative, 2)
	require.Equal(t, "com/mojang/patchy/1.3.9/patchy-1.3.9.jar", nonNative[0].Artifact.Path)
	require.Equal(t, "https://maven.fabricmc.net/net/fabricmc/fabric-loader/0.15.0/fabric-loader-0.15.0.jar", nonNative[1].Artifact.URL)

	natives := d.NativeArtifacts(linux)
	require.Len(t, natives, 1)
	require.Equal(t, "org/lwjgl/lwjgl/3.2.2/lwjgl-3.2.2-natives-linux.jar", natives[0].Artifact.Path)
	require.Equal(t, "bb", natives[0].Artifact.SHA1)

	windows := Platform{OS: "windows", Arch: "x86_64"}
	natives = d.NativeArtifacts(windows)
	require.Len(t, natives, 1)
	require.Equal(t, "cc", natives[0].Artifact.SHA1)

	osx := Platform{OS: "osx", Arch: "x86_64"}
	require.Len(t, d.NonNativeArtifacts(osx), 3)
	require.Empty(t, d.NativeArtifacts(osx), "no classifier download for natives-macos")
}

func TestClasspathUsesLibraryDir(t *testing.T) {
	d, err := Parse([]byte(sampleDescriptor))
	require.NoError(t, err)
	cp := d.Classpath("/games/libraries", Platform{OS: "linux", Arch: "x86_64"})
	require.Equal(t, filepath.Join("/games/libraries", "com/mojang/patchy/1.3.9/patchy-1.3.9.jar"), cp[0])
}

func TestArgumentItemRoundTrip(t *testing.T) {
	d, err := Parse([]byte(sampleDescriptor))
	require.NoError(t, err)
	require.Len(t, d.Arguments.Game, 3)
	require.Equal(t, []string{"--demo"}, d.Arguments.Game[2].Value)
	require.Equal(t, []string{"-XstartOnFirstThread"}, d.Arguments.JVM[0].Value)

	data, err := json.Marshal(d.Arguments.Game[0])
	require.NoError(t, err)
	require.JSONEq(t, `"--username"`, string(data))
}

func TestRulesFeaturesAndOS(t *testing.T) {
	demo := []Rule{{Action: "allow", Features: map[string]bool{"is_demo_user": true}}}
	require.False(t, Allowed(demo, Platform{OS: "linux"}, nil))
	require.True(t, Allowed(demo, Platform{OS: "linux"}, Features{"is_demo_user": true}))

	notOSX := []Rule{{Action: "allow"}, {Action: "disallow", OS: &OSRule{Name: "osx"}}}
	require.True(t, Allowed(notOSX, Platform{OS: "linux"}, nil))
	require.False(t, Allowed(notOSX, Platform{OS: "osx"}, nil))

	versioned := []Rule{{Action: "allow", OS: &OSRule{Name: "windows", Version: "^10\\."}}}
	require.True(t, Allowed(versioned, Platform{OS: "windows", Version: "10.0"}, nil))
	require.False(t, Allowed(versioned, Platform{OS: "windows", Version: "6.1"}, nil))
}

func TestCurrentPlatformVersion(t *testing.T) {
	p := CurrentPlatform()
	if runtime.GOOS == "linux" {
		release, err := os.ReadFile("/proc/sys/kernel/osrelease")
		if err == nil {
			require.Equal(t, strings.TrimSpace(string(release)), p.Version)
		}
	}
	switch runtime.GOOS {
	case "linux", "darwin", "windows":
		require.NotEmpty(t, p.Version)
	default:
		t.Skipf("no os version source on %s", runtime.GOOS)
	}

	versioned := []Rule{{Action: "allow", OS: &OSRule{Name: p.OS, Version: "^" + regexp.QuoteMeta(p.Version) + "$"}}}
	require.True(t, Allowed(versioned, p, nil))
}

func TestParseCoordinate(t *testing.T) {
	c, err := ParseCoordinate("net.minecraftforge:forge:1.20.1-47.1.0:client@zip", "")
	require.NoError(t, err)
	require.Equal(t, "net/minecraftforge/forge/1.20.1-47.1.0/forge-1.20.1-47.1.0-client.zip", c.Path())
	require.Equal(t, "net.minecraftforge:forge:1.20.1-47.1.0:client@zip", c.String())

	n, err := ParseCoordinate("org.lwjgl:lwjgl:3.2.2", "natives-linux")
	require.NoError(t, err)
	require.Equal(t, "natives-linux", n.Key().Classifier)

	_, err = ParseCoordinate("only:two", "")
	require.Error(t, err)
}

func TestLocalPathStaysUnderLibraryDir(t *testing.T) {
	dir := t.TempDir()
	p, err := LocalPath(dir, "net.minecraftforge:forge:1.20.1-47.1.0:installer", "")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "net", "minecraftforge", "forge", "1.20.1-47.1.0", "forge-1.20.1-47.1.0-installer.jar"), p)

	for _, name := range []string{
		"optifine:launchwrapper-of:../../../../escaped",
		"x:../../../..:1",
	} {
		_, err := LocalPath(dir, name, "")
		require.ErrorIs(t, err, launcherr.ErrInvalidCoordinate, name)
	}
}

func TestSubstituteNativesArm64(t *testing.T) {
	d, err := Parse([]byte(sampleDescriptor))
	require.NoError(t, err)

	mac := Platform{OS: "osx", Arch: "arm64"}
	changed := SubstituteNatives(d, mac, DefaultNativeSubstitutions)
	require.Equal(t, 1, changed)

	natives := d.NativeArtifacts(mac)
	require.Len(t, natives, 1)
	require.Equal(t, "org/lwjgl/lwjgl/3.3.1/lwjgl-3.3.1-natives-macos-arm64.jar", natives[0].Artifact.Path)

	require.Zero(t, SubstituteNatives(d, Platform{OS: "linux", Arch: "x86_64"}, DefaultNativeSubstitutions))
}

func TestObjectPath(t *testing.T) {
	require.Equal(t, "ab/abcdef", ObjectPath("abcdef"))
}
