// Package config holds the launcher configuration and the per-game
// configuration an instance may override.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidatePolicy selects how thoroughly game files are checked at launch.
type ValidatePolicy string

const (
	ValidateDisable ValidatePolicy = "disable"
	ValidateNormal  ValidatePolicy = "normal"
	ValidateFull    ValidatePolicy = "full"
)

// ParseValidatePolicy accepts a policy name in any case.
func ParseValidatePolicy(s string) (ValidatePolicy, error) {
	switch p := ValidatePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case ValidateDisable, ValidateNormal, ValidateFull:
		return p, nil
	case "disabled", "none":
		return ValidateDisable, nil
	default:
		return "", fmt.Errorf("unknown validation policy %q", s)
	}
}

// ProcessPriority is applied to the game process after it starts.
type ProcessPriority string

const (
	PriorityLow         ProcessPriority = "low"
	PriorityBelowNormal ProcessPriority = "below_normal"
	PriorityNormal      ProcessPriority = "normal"
	PriorityAboveNormal ProcessPriority = "above_normal"
	PriorityHigh        ProcessPriority = "high"
)

// Niceness maps the priority onto a unix nice value.
func (p ProcessPriority) Niceness() int {
	switch p {
	case PriorityLow:
		return 19
	case PriorityBelowNormal:
		return 10
	case PriorityAboveNormal:
		return -5
	case PriorityHigh:
		return -10
	default:
		return 0
	}
}

// LauncherVisibility controls what the launcher does once the game runs.
type LauncherVisibility string

const (
	VisibilityAlways        LauncherVisibility = "always"
	VisibilityRunningHidden LauncherVisibility = "running_hidden"
	VisibilityStartClose    LauncherVisibility = "start_close"
)

type GameJava struct {
	Auto     bool   `json:"auto" toml:"auto"`
	ExecPath string `json:"execPath" toml:"exec_path"`
}

type Resolution struct {
	Width      int  `json:"width" toml:"width"`
	Height     int  `json:"height" toml:"height"`
	Fullscreen bool `json:"fullscreen" toml:"fullscreen"`
}

type GameWindow struct {
	Resolution  Resolution `json:"resolution" toml:"resolution"`
	CustomTitle string     `json:"customTitle" toml:"custom_title"`
	CustomInfo  string     `json:"customInfo" toml:"custom_info"`
}

type Performance struct {
	AutoMemAllocation bool            `json:"autoMemAllocation" toml:"auto_mem_allocation"`
	MaxMemAllocation  int             `json:"maxMemAllocation" toml:"max_mem_allocation"` // MiB
	ProcessPriority   ProcessPriority `json:"processPriority" toml:"process_priority"`
}

type CustomCommands struct {
	MinecraftArgument string `json:"minecraftArgument" toml:"minecraft_argument"`
	PrecallCommand    string `json:"precallCommand" toml:"precall_command"`
	WrapperLauncher   string `json:"wrapperLauncher" toml:"wrapper_launcher"`
	PostExitCommand   string `json:"postExitCommand" toml:"post_exit_command"`
}

type JVM struct {
	Args                string `json:"args" toml:"args"`
	EnvironmentVariable string `json:"environmentVariable" toml:"environment_variable"`
}

type Workaround struct {
	NoJVMArgs              bool           `json:"noJvmArgs" toml:"no_jvm_args"`
	GameFileValidatePolicy ValidatePolicy `json:"gameFileValidatePolicy" toml:"game_file_validate_policy"`
	DontPatchNatives       bool           `json:"dontPatchNatives" toml:"dont_patch_natives"`
}

type Advanced struct {
	Enabled        bool           `json:"enabled" toml:"enabled"`
	CustomCommands CustomCommands `json:"customCommands" toml:"custom_commands"`
	JVM            JVM            `json:"jvm" toml:"jvm"`
	Workaround     Workaround     `json:"workaround" toml:"workaround"`
}

// GameConfig is the configuration used to launch a game. The launcher
// holds the global copy; an instance may carry its own.
type GameConfig struct {
	GameJava           GameJava           `json:"gameJava" toml:"game_java"`
	GameWindow         GameWindow         `json:"gameWindow" toml:"game_window"`
	Performance        Performance        `json:"performance" toml:"performance"`
	VersionIsolation   bool               `json:"versionIsolation" toml:"version_isolation"`
	LauncherVisibility LauncherVisibility `json:"launcherVisibility" toml:"launcher_visibility"`
	DisplayGameLog     bool               `json:"displayGameLog" toml:"display_game_log"`
	Advanced           Advanced           `json:"advanced" toml:"advanced"`
}

// DefaultGameConfig returns the built-in game configuration.
func DefaultGameConfig() GameConfig {
	return GameConfig{
		GameJava: GameJava{Auto: true},
		GameWindow: GameWindow{
			Resolution: Resolution{Width: 1280, Height: 720},
		},
		Performance: Performance{
			AutoMemAllocation: true,
			MaxMemAllocation:  1024,
			ProcessPriority:   PriorityNormal,
		},
		VersionIsolation:   true,
		LauncherVisibility: VisibilityAlways,
		Advanced: Advanced{
			Workaround: Workaround{GameFileValidatePolicy: ValidateFull},
		},
	}
}

// Validate checks enumerations and ranges.
func (g GameConfig) Validate() error {
	if _, err := ParseValidatePolicy(string(g.Advanced.Workaround.GameFileValidatePolicy)); err != nil {
		return err
	}
	switch g.Performance.ProcessPriority {
	case PriorityLow, PriorityBelowNormal, PriorityNormal, PriorityAboveNormal, PriorityHigh, "":
	default:
		return fmt.Errorf("unknown process priority %q", g.Performance.ProcessPriority)
	}
	switch g.LauncherVisibility {
	case VisibilityAlways, VisibilityRunningHidden, VisibilityStartClose, "":
	default:
		return fmt.Errorf("unknown launcher visibility %q", g.LauncherVisibility)
	}
	if !g.Performance.AutoMemAllocation && g.Performance.MaxMemAllocation <= 0 {
		return fmt.Errorf("max_mem_allocation must be positive")
	}
	if r := g.GameWindow.Resolution; r.Width < 0 || r.Height < 0 {
		return fmt.Errorf("invalid resolution %dx%d", r.Width, r.Height)
	}
	return nil
}

// GameDirectory is a named root holding versions/, libraries/ and assets/.
type GameDirectory struct {
	Name string `json:"name" toml:"name"`
	Dir  string `json:"dir" toml:"dir"`
}

// LauncherConfig is the persisted launcher-wide configuration.
type LauncherConfig struct {
	DataDir         string          `toml:"data_dir"`
	DownloadSource  string          `toml:"download_source"`
	GameDirs        []GameDirectory `toml:"game_dirs"`
	ExtraJavaPaths  []string        `toml:"extra_java_paths"`
	AuthServers     []string        `toml:"auth_servers"`
	SelectedAccount string          `toml:"selected_account"`
	GlobalGame      GameConfig      `toml:"global_game"`
}

// DefaultDataDir is ~/.launchkit, falling back to the working directory.
func DefaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "launchkit")
	}
	return ".launchkit"
}

// Default returns the built-in launcher configuration.
func Default() LauncherConfig {
	dataDir := DefaultDataDir()
	return LauncherConfig{
		DataDir:        dataDir,
		DownloadSource: "auto",
		GameDirs:       []GameDirectory{{Name: "default", Dir: filepath.Join(dataDir, ".minecraft")}},
		GlobalGame:     DefaultGameConfig(),
	}
}

// GameDir returns the game directory with the given name.
func (c LauncherConfig) GameDir(name string) (GameDirectory, bool) {
	for _, d := range c.GameDirs {
		if d.Name == name {
			return d, true
		}
	}
	return GameDirectory{}, false
}

// Validate checks the launcher configuration.
func (c LauncherConfig) Validate() error {
	if len(c.GameDirs) == 0 {
		return fmt.Errorf("at least one game directory is required")
	}
	seen := make(map[string]bool)
	for _, d := range c.GameDirs {
		if d.Name == "" || d.Dir == "" {
			return fmt.Errorf("game directory needs a name and a dir")
		}
		if strings.Contains(d.Name, ":") {
			return fmt.Errorf("game directory name %q must not contain ':'", d.Name)
		}
		if seen[d.Name] {
			return fmt.Errorf("duplicate game directory %q", d.Name)
		}
		seen[d.Name] = true
	}
	if err := c.GlobalGame.Validate(); err != nil {
		return fmt.Errorf("global_game: %w", err)
	}
	return nil
}
