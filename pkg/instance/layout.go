package instance

import (
	"path/filepath"
)

// Directory and file names inside a game directory.
const (
	VersionsDir        = "versions"
	LibrariesDir       = "libraries"
	AssetsDir          = "assets"
	NativesDir         = "natives"
	ModsDir            = "mods"
	LogsDir            = "logs"
	InstallProfileFile = "install_profile.json"
	InstallLockFile    = ".install.lock"
)

// Layout resolves every path of one instance. Shared trees (libraries,
// assets) live in the game directory; the instance root is the version
// directory when version isolation is on, else the game directory.
type Layout struct {
	gameDir  string
	name     string
	isolated bool
}

// NewLayout creates a Layout for instance name under gameDir.
func NewLayout(gameDir, name string, isolated bool) *Layout {
	return &Layout{gameDir: gameDir, name: name, isolated: isolated}
}

// ==================== Shared Paths ====================

// GameDir returns the game directory holding versions/, libraries/ and assets/.
func (l *Layout) GameDir() string {
	return l.gameDir
}

// Libraries returns the shared library tree.
func (l *Layout) Libraries() string {
	return filepath.Join(l.gameDir, LibrariesDir)
}

// Assets returns the shared asset tree.
func (l *Layout) Assets() string {
	return filepath.Join(l.gameDir, AssetsDir)
}

// ==================== Version Paths ====================

// VersionPath returns versions/<name>.
func (l *Layout) VersionPath() string {
	return filepath.Join(l.gameDir, VersionsDir, l.name)
}

// Descriptor returns versions/<name>/<name>.json.
func (l *Layout) Descriptor() string {
	return filepath.Join(l.VersionPath(), l.name+".json")
}

// ClientJar returns versions/<name>/<name>.jar.
func (l *Layout) ClientJar() string {
	return filepath.Join(l.VersionPath(), l.name+".jar")
}

// ConfigFile returns versions/<name>/instance.json.
func (l *Layout) ConfigFile() string {
	return filepath.Join(l.VersionPath(), ConfigFileName)
}

// Natives returns the directory native libraries are extracted to.
func (l *Layout) Natives() string {
	return filepath.Join(l.VersionPath(), NativesDir)
}

// InstallProfile returns the Forge-style install profile path.
func (l *Layout) InstallProfile() string {
	return filepath.Join(l.VersionPath(), InstallProfileFile)
}

// LockFile returns the install lock.
func (l *Layout) LockFile() string {
	return filepath.Join(l.VersionPath(), InstallLockFile)
}

// ==================== Instance Root Paths ====================

// Root returns the working directory of the game.
func (l *Layout) Root() string {
	if l.isolated {
		return l.VersionPath()
	}
	return l.gameDir
}

// Mods returns the mods directory under the root.
func (l *Layout) Mods() string {
	return filepath.Join(l.Root(), ModsDir)
}

// Logs returns the game's own log directory under the root.
func (l *Layout) Logs() string {
	return filepath.Join(l.Root(), LogsDir)
}

// Sub returns a named subdirectory of the root (saves, resourcepacks, ...).
func (l *Layout) Sub(name string) string {
	return filepath.Join(l.Root(), name)
}
