package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

func testLogger() hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{Level: hclog.Trace, Output: os.Stderr})
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"), testLogger())
	require.NoError(t, err)
	require.Equal(t, ValidateFull, cfg.GlobalGame.Advanced.Workaround.GameFileValidatePolicy)
	require.True(t, cfg.GlobalGame.GameJava.Auto)
	require.Len(t, cfg.GameDirs, 1)
}

func TestLoadOverlaysFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir = "/srv/launchkit"
download_source = "mirror"
extra_java_paths = ["/opt/zulu/bin/java"]

[global_game]
version_isolation = false

[global_game.performance]
max_mem_allocation = 4096

[global_game.advanced.workaround]
game_file_validate_policy = "normal"
`), 0o644))

	cfg, err := Load(path, testLogger())
	require.NoError(t, err)
	require.Equal(t, "mirror", cfg.DownloadSource)
	require.Equal(t, []GameDirectory{{Name: "default", Dir: filepath.Join("/srv/launchkit", ".minecraft")}}, cfg.GameDirs)
	require.False(t, cfg.GlobalGame.VersionIsolation)
	require.Equal(t, 4096, cfg.GlobalGame.Performance.MaxMemAllocation)
	require.True(t, cfg.GlobalGame.Performance.AutoMemAllocation, "unset keys keep defaults")
	require.Equal(t, ValidateNormal, cfg.GlobalGame.Advanced.Workaround.GameFileValidatePolicy)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(EnvValidate, "Disabled")
	t.Setenv(EnvJava, "/usr/bin/java")
	t.Setenv(EnvIsolation, "off")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.toml"), testLogger())
	require.NoError(t, err)
	require.Equal(t, ValidateDisable, cfg.GlobalGame.Advanced.Workaround.GameFileValidatePolicy)
	require.Equal(t, GameJava{ExecPath: "/usr/bin/java"}, cfg.GlobalGame.GameJava)
	require.False(t, cfg.GlobalGame.VersionIsolation)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(`
[global_game.advanced.workaround]
game_file_validate_policy = "paranoid"
`), 0o644))
	_, err := Load(path, testLogger())
	require.Error(t, err)

	t.Setenv(EnvValidate, "sometimes")
	_, err = Load(filepath.Join(t.TempDir(), "none.toml"), testLogger())
	require.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)
	cfg := Default()
	cfg.DownloadSource = "official"
	cfg.GlobalGame.Advanced.CustomCommands.WrapperLauncher = "prime-run"
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path, testLogger())
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}

func TestProcessPriorityNiceness(t *testing.T) {
	require.Equal(t, 19, PriorityLow.Niceness())
	require.Equal(t, 0, ProcessPriority("").Niceness())
	require.Equal(t, -10, PriorityHigh.Niceness())
}
