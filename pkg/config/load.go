package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"

	"github.com/provide-io/launchkit/pkg/logging"
)

// Environment overrides applied after the file is read.
const (
	EnvDataDir        = "LAUNCHKIT_DATA_DIR"
	EnvDownloadSource = "LAUNCHKIT_DOWNLOAD_SOURCE"
	EnvValidate       = "LAUNCHKIT_VALIDATE_POLICY"
	EnvJava           = "LAUNCHKIT_JAVA"
	EnvIsolation      = "LAUNCHKIT_VERSION_ISOLATION"
)

// FileName is the launcher configuration file inside the data directory.
const FileName = "launcher.toml"

// LoadDotEnv loads .env from the working directory when present.
func LoadDotEnv() {
	_ = godotenv.Load()
}

// Load reads the TOML file at path over the defaults and then applies
// environment overrides. A missing file is not an error.
func Load(path string, logger hclog.Logger) (LauncherConfig, error) {
	logger = logging.OrNull(logger)
	cfg := Default()

	meta, err := toml.DecodeFile(path, &cfg)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Debug("📄 no launcher config, using defaults", "path", path)
	case err != nil:
		return LauncherConfig{}, fmt.Errorf("load launcher config: %w", err)
	default:
		for _, key := range meta.Undecoded() {
			logger.Warn("⚠️ unknown config key", "key", key.String(), "path", path)
		}
		if meta.IsDefined("data_dir") && !meta.IsDefined("game_dirs") {
			cfg.GameDirs = []GameDirectory{{Name: "default", Dir: filepath.Join(cfg.DataDir, ".minecraft")}}
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return LauncherConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return LauncherConfig{}, fmt.Errorf("invalid launcher config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *LauncherConfig) error {
	if v := strings.TrimSpace(os.Getenv(EnvDataDir)); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDownloadSource)); v != "" {
		cfg.DownloadSource = v
	}
	if v := os.Getenv(EnvValidate); v != "" {
		p, err := ParseValidatePolicy(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvValidate, err)
		}
		cfg.GlobalGame.Advanced.Workaround.GameFileValidatePolicy = p
	}
	if v := strings.TrimSpace(os.Getenv(EnvJava)); v != "" {
		cfg.GlobalGame.GameJava = GameJava{Auto: false, ExecPath: v}
	}
	if v := os.Getenv(EnvIsolation); v != "" {
		on, ok := parseBool(v)
		if !ok {
			return fmt.Errorf("%s: not a boolean: %q", EnvIsolation, v)
		}
		cfg.GlobalGame.VersionIsolation = on
	}
	return nil
}

func parseBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "yes":
		return true, true
	case "off", "no":
		return false, true
	}
	b, err := strconv.ParseBool(v)
	return b, err == nil
}

// Save writes cfg as TOML.
func Save(path string, cfg LauncherConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode launcher config: %w", err)
	}
	return f.Close()
}
