// Package launcher wires the launch core into one application handle:
// configuration, the instance registry, java runtimes, accounts, the mod
// loader installer and the launch sequencer. Each exported method is one
// command of the launcher's command surface.
package launcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/launchkit/internal/gamedir"
	"github.com/provide-io/launchkit/pkg/account"
	"github.com/provide-io/launchkit/pkg/config"
	"github.com/provide-io/launchkit/pkg/download"
	"github.com/provide-io/launchkit/pkg/instance"
	"github.com/provide-io/launchkit/pkg/javart"
	"github.com/provide-io/launchkit/pkg/launch"
	"github.com/provide-io/launchkit/pkg/loader"
	"github.com/provide-io/launchkit/pkg/logging"
	"github.com/provide-io/launchkit/pkg/reconcile"
	"github.com/provide-io/launchkit/pkg/source"
)

const (
	Name    = "launchkit"
	Version = "0.1.0"
)

// Options configure New. Zero values select the production collaborators.
type Options struct {
	// ConfigPath is the launcher.toml to load; empty means the file in the
	// default data directory.
	ConfigPath string
	// Config, when set, is used instead of loading ConfigPath.
	Config *config.LauncherConfig
	Logger hclog.Logger

	Scheduler download.Scheduler
	Fetcher   download.Fetcher
	Meta      loader.Meta
	Runner    loader.Runner
	Spawner   launch.Spawner
	Validator launch.Validator
	// LogDir receives game logs; empty selects the cache directory.
	LogDir string
	// AuthlibInjector is the agent jar used for third-party accounts.
	AuthlibInjector string
	// TotalMemoryMiB overrides the detected physical memory.
	TotalMemoryMiB int
}

// App is the launcher's application context.
type App struct {
	mu         sync.RWMutex
	cfg        config.LauncherConfig
	configPath string

	Sources    source.Priority
	Scheduler  download.Scheduler
	Instances  *instance.Registry
	Runtimes   *javart.Registry
	Discoverer *javart.Discoverer
	Reconciler *reconcile.Reconciler
	Installer  *loader.Installer
	Accounts   *account.Store
	Sequencer  *launch.Sequencer

	logger hclog.Logger
}

// New loads the configuration, prepares every game directory and scans
// the instances found in them.
func New(opts Options) (*App, error) {
	logger := logging.OrNull(opts.Logger)

	path := opts.ConfigPath
	if path == "" {
		path = filepath.Join(config.DefaultDataDir(), config.FileName)
	}
	var cfg config.LauncherConfig
	if opts.Config != nil {
		cfg = *opts.Config
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid launcher config: %w", err)
		}
	} else {
		loaded, err := config.Load(path, logger)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	sources, err := source.ParseStrategy(cfg.DownloadSource)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, configPath: path, Sources: sources, logger: logger.Named("app")}

	httpClient := download.NewHTTP(logger)
	a.Scheduler = opts.Scheduler
	if a.Scheduler == nil {
		a.Scheduler = httpClient
	}
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = httpClient
	}
	meta := opts.Meta
	if meta == nil {
		meta = &loader.RemoteMeta{Fetcher: fetcher, Sources: sources, Logger: logger.Named("meta")}
	}
	cached, err := loader.NewCachedMeta(meta, loader.DefaultMetaCacheSize)
	if err != nil {
		return nil, err
	}

	for _, dir := range cfg.GameDirs {
		if err := gamedir.Ensure(dir.Dir, gamedir.Skeleton); err != nil {
			return nil, err
		}
	}
	a.Instances = instance.NewRegistry(logger)
	if _, err := a.Instances.Scan(cfg.GameDirs); err != nil {
		return nil, err
	}

	a.Runtimes = &javart.Registry{}
	a.Discoverer = javart.NewDiscoverer(cfg.ExtraJavaPaths, logger)
	a.Reconciler = reconcile.New(sources, fetcher, logger)

	a.Installer = loader.New(cached, sources, a.Scheduler, a.Reconciler, a.selectJava, logger)
	a.Installer.Isolated = func(inst instance.Instance) bool {
		return inst.GameConfig(a.Config().GlobalGame).VersionIsolation
	}
	if opts.Runner != nil {
		a.Installer.Runner = opts.Runner
	}

	a.Accounts, err = account.OpenStore(filepath.Join(cfg.DataDir, account.FileName), logger)
	if err != nil {
		return nil, err
	}
	validator := opts.Validator
	if validator == nil {
		validator, err = account.NewValidator(nil, logger)
		if err != nil {
			return nil, err
		}
	}
	spawner := opts.Spawner
	if spawner == nil {
		spawner = &launch.ExecSpawner{Logger: logger.Named("game")}
	}
	logDir := opts.LogDir
	if logDir == "" {
		logDir = gamedir.LogDir()
	}
	memory := opts.TotalMemoryMiB
	if memory <= 0 {
		memory = totalMemoryMiB()
	}

	a.Sequencer = &launch.Sequencer{
		Instances:       a.Instances,
		Config:          a.Config,
		Runtimes:        a.Runtimes,
		Discoverer:      a.Discoverer,
		Reconciler:      a.Reconciler,
		Scheduler:       a.Scheduler,
		Accounts:        a.Accounts,
		Validator:       validator,
		Spawner:         spawner,
		States:          &launch.Stack{},
		LogDir:          logDir,
		AuthlibInjector: opts.AuthlibInjector,
		LauncherName:    Name,
		LauncherVersion: Version,
		TotalMemoryMiB:  memory,
		Logger:          logger,
	}

	a.logger.Debug("🎮 launcher ready", "config", path, "game_dirs", len(cfg.GameDirs), "instances", len(a.Instances.List()), "sources", sources)
	return a, nil
}

// Config returns a copy of the launcher configuration.
func (a *App) Config() config.LauncherConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// UpdateConfig applies fn to the configuration, validates the result and
// writes it to disk. If fn or validation fails nothing changes.
func (a *App) UpdateConfig(fn func(*config.LauncherConfig) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	next := a.cfg
	next.GameDirs = append([]config.GameDirectory(nil), a.cfg.GameDirs...)
	if err := fn(&next); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	if err := config.Save(a.configPath, next); err != nil {
		return fmt.Errorf("save launcher config: %w", err)
	}
	a.cfg = next
	return nil
}

// RefreshInstances rescans every game directory.
func (a *App) RefreshInstances() ([]instance.Instance, error) {
	return a.Instances.Scan(a.Config().GameDirs)
}

// RefreshRuntimes rediscovers java runtimes. A configured default java
// that is no longer found is cleared in favour of automatic selection.
func (a *App) RefreshRuntimes(ctx context.Context) ([]javart.Runtime, error) {
	found := a.Runtimes.Refresh(ctx, a.Discoverer)
	java := a.Config().GlobalGame.GameJava
	if java.Auto || java.ExecPath == "" {
		return found, nil
	}
	if _, ok := a.Runtimes.Find(java.ExecPath); ok {
		return found, nil
	}
	a.logger.Warn("⚠️ configured java disappeared, switching to automatic selection", "path", java.ExecPath)
	err := a.UpdateConfig(func(c *config.LauncherConfig) error {
		c.GlobalGame.GameJava = config.GameJava{Auto: true}
		return nil
	})
	return found, err
}

// selectJava is the runtime choice used by the loader install phase.
func (a *App) selectJava(ctx context.Context, inst instance.Instance, required int) (string, error) {
	runtimes := a.Runtimes.List()
	if len(runtimes) == 0 {
		runtimes = a.Runtimes.Refresh(ctx, a.Discoverer)
	}
	game := inst.GameConfig(a.Config().GlobalGame)
	preferred := ""
	if !game.GameJava.Auto {
		preferred = game.GameJava.ExecPath
	}
	rt, err := javart.Select(runtimes, required, preferred)
	if err != nil {
		return "", err
	}
	return rt.ExecPath, nil
}
