// Package launch threads a launch attempt through its four steps: select
// a java runtime, validate the game files, validate the account and spawn
// the game. Each step is a separate call so a caller can retry one step,
// typically file validation after the repair downloads finish.
package launch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/launchkit/pkg/account"
	"github.com/provide-io/launchkit/pkg/config"
	"github.com/provide-io/launchkit/pkg/descriptor"
	"github.com/provide-io/launchkit/pkg/download"
	"github.com/provide-io/launchkit/pkg/instance"
	"github.com/provide-io/launchkit/pkg/javart"
	"github.com/provide-io/launchkit/pkg/launcherr"
	"github.com/provide-io/launchkit/pkg/logging"
	"github.com/provide-io/launchkit/pkg/reconcile"
	"github.com/provide-io/launchkit/pkg/shell"
)

// Validator checks accounts and loads third-party auth server metadata.
type Validator interface {
	Validate(ctx context.Context, a account.Account) (bool, error)
	AuthServer(ctx context.Context, url string) (account.AuthServer, error)
}

// Sequencer runs launch attempts.
type Sequencer struct {
	Instances  *instance.Registry
	Config     func() config.LauncherConfig
	Runtimes   *javart.Registry
	Discoverer *javart.Discoverer
	Reconciler *reconcile.Reconciler
	Scheduler  download.Scheduler
	Accounts   *account.Store
	Validator  Validator
	Spawner    Spawner
	States     *Stack
	// LogDir receives one game log per attempt.
	LogDir string
	// AuthlibInjector is the agent jar for third-party accounts.
	AuthlibInjector string
	LauncherName    string
	LauncherVersion string
	TotalMemoryMiB  int
	Logger          hclog.Logger
}

func (s *Sequencer) logger() hclog.Logger {
	return logging.OrNull(s.Logger).Named("launch")
}

func (s *Sequencer) platform() descriptor.Platform {
	if s.Reconciler != nil {
		return s.Reconciler.Platform
	}
	return descriptor.CurrentPlatform()
}

// SelectRuntime is step 1: it resolves the instance's game configuration
// and descriptor, refreshes the known runtimes and pushes a new attempt
// with the runtime that fits.
func (s *Sequencer) SelectRuntime(ctx context.Context, instanceID string) (State, error) {
	inst, err := s.Instances.Get(instanceID)
	if err != nil {
		return State{}, err
	}
	cfg := s.Config()
	game := inst.GameConfig(cfg.GlobalGame)
	layout := inst.Layout(game.VersionIsolation)

	d, err := descriptor.Load(layout.Descriptor())
	if err != nil {
		return State{}, err
	}
	eff := descriptor.Resolve(d)

	runtimes := s.Runtimes.List()
	if s.Discoverer != nil {
		runtimes = s.Runtimes.Refresh(ctx, s.Discoverer)
	}
	preferred := ""
	if !game.GameJava.Auto {
		preferred = game.GameJava.ExecPath
	}
	java, err := javart.Select(runtimes, eff.RequiredJavaMajor(), preferred)
	if err != nil {
		return State{}, err
	}
	if preferred != "" && java.ExecPath != preferred {
		s.logger().Warn("⚠️ configured java is not compatible, using another", "configured", preferred, "selected", java.ExecPath)
	}

	st := s.States.Push(State{
		Instance:   inst,
		Game:       game,
		Descriptor: eff,
		Java:       java,
		Step:       StepSelectRuntime,
	})
	s.logger().Info("☕ java selected", "attempt", st.ID, "instance", inst.ID, "java", java.ExecPath, "major", java.MajorVersion)
	return st, nil
}

// ValidateFiles is step 2. Missing or corrupt files are handed to the
// scheduler and reported as ErrFilesIncomplete; the step must be called
// again once the repair group has finished.
func (s *Sequencer) ValidateFiles(ctx context.Context) error {
	st, err := s.States.UpdateActive(func(st *State) error {
		st.Step = StepValidateFiles
		return nil
	})
	if err != nil {
		return err
	}
	logger := s.logger().With("attempt", st.ID, "instance", st.Instance.ID)

	inst, err := s.Instances.Get(st.Instance.ID)
	if err != nil {
		return err
	}
	if inst.ModLoader.Status != instance.StatusInstalled {
		return fmt.Errorf("%w: %s is %s", launcherr.ErrLoaderNotInstalled, inst.ID, inst.ModLoader.Status)
	}

	d := st.Descriptor.Clone()
	if !st.Game.Advanced.Workaround.DontPatchNatives {
		if n := descriptor.SubstituteNatives(d, s.platform(), descriptor.DefaultNativeSubstitutions); n > 0 {
			logger.Info("🔁 native libraries substituted", "count", n)
		}
	}
	if _, err := s.States.Update(st.ID, func(cur *State) { cur.Descriptor = d }); err != nil {
		return err
	}
	layout := inst.Layout(st.Game.VersionIsolation)

	policy := st.Game.Advanced.Workaround.GameFileValidatePolicy
	if policy != config.ValidateDisable {
		checkHash := policy == config.ValidateFull
		reqs, err := s.missingFiles(ctx, d, layout, checkHash)
		if err != nil {
			return err
		}
		if len(reqs) > 0 {
			group := RepairGroup(inst.ID)
			if err := s.Scheduler.Schedule(ctx, group, reqs); err != nil {
				return fmt.Errorf("%w: %v", launcherr.ErrDownloadFailed, err)
			}
			logger.Info("⏳ game files incomplete, repair scheduled", "group", group, "files", len(reqs), "check_hash", checkHash)
			return fmt.Errorf("%w: %d files", launcherr.ErrFilesIncomplete, len(reqs))
		}
	}

	if err := s.Reconciler.ExtractNatives(ctx, d, layout.Libraries(), layout.Natives()); err != nil {
		return err
	}
	logger.Info("✅ game files validated", "policy", policy)
	return nil
}

// RepairGroup names the download group that repairs instanceID's files.
func RepairGroup(instanceID string) string {
	return "patch-files?" + instanceID
}

func (s *Sequencer) missingFiles(ctx context.Context, d *descriptor.Descriptor, layout *instance.Layout, checkHash bool) ([]download.Request, error) {
	reqs, err := s.Reconciler.MissingLibraryDownloads(ctx, d, layout.Libraries(), checkHash)
	if err != nil {
		return nil, err
	}
	client, err := s.Reconciler.MissingClientDownload(d, layout.ClientJar(), checkHash)
	if err != nil {
		return nil, err
	}
	if client != nil {
		reqs = append(reqs, *client)
	}
	assets, err := s.Reconciler.MissingAssetDownloads(ctx, d, layout.Assets(), checkHash)
	if err != nil {
		return nil, err
	}
	return append(reqs, assets...), nil
}

// ValidateAccount is step 3. It reports false for an expired credential;
// errors are reserved for failures to ask.
func (s *Sequencer) ValidateAccount(ctx context.Context) (bool, error) {
	st, err := s.States.UpdateActive(func(st *State) error {
		st.Step = StepValidateAccount
		return nil
	})
	if err != nil {
		return false, err
	}

	acc, err := s.Accounts.Selected(s.Config().SelectedAccount)
	if err != nil {
		return false, err
	}
	var server *account.AuthServer
	if acc.Kind == account.KindThirdParty {
		meta, err := s.Validator.AuthServer(ctx, acc.AuthServerURL)
		if err != nil {
			return false, err
		}
		server = &meta
	}
	if _, err := s.States.Update(st.ID, func(cur *State) {
		cur.Account = &acc
		cur.AuthServer = server
	}); err != nil {
		return false, err
	}

	valid, err := s.Validator.Validate(ctx, acc)
	if err != nil {
		return false, err
	}
	s.logger().Info("🔑 account checked", "attempt", st.ID, "account", acc.Name, "kind", acc.Kind, "valid", valid)
	return valid, nil
}

// Launch is step 4: it spawns the game in the instance root and monitors
// it in the background.
func (s *Sequencer) Launch(ctx context.Context, quickPlay QuickPlay) (State, error) {
	st, err := s.States.UpdateActive(func(st *State) error {
		if st.Account == nil {
			return fmt.Errorf("%w: validate the account first", launcherr.ErrAccountNotFound)
		}
		st.Step = StepLaunch
		return nil
	})
	if err != nil {
		return State{}, err
	}
	logger := s.logger().With("attempt", st.ID, "instance", st.Instance.ID)
	game := st.Game
	layout := st.Instance.Layout(game.VersionIsolation)

	cmd, err := BuildCommand(Params{
		Descriptor:      st.Descriptor,
		Instance:        st.Instance,
		Layout:          layout,
		Game:            game,
		Java:            st.Java.ExecPath,
		Account:         *st.Account,
		AuthServer:      st.AuthServer,
		AuthlibInjector: s.AuthlibInjector,
		Platform:        s.platform(),
		QuickPlay:       quickPlay,
		LauncherName:    s.LauncherName,
		LauncherVersion: s.LauncherVersion,
		TotalMemoryMiB:  s.TotalMemoryMiB,
	})
	if err != nil {
		return State{}, err
	}

	argv := cmd.Argv()
	hooks := game.Advanced.CustomCommands
	if game.Advanced.Enabled && hooks.WrapperLauncher != "" {
		wrapper, err := splitWrapper(hooks.WrapperLauncher)
		if err != nil {
			return State{}, err
		}
		argv = append(wrapper, argv...)
	}
	full := FullCommand(cmd.Env, argv, layout.Root())

	if err := os.MkdirAll(layout.Root(), 0o755); err != nil {
		return State{}, err
	}
	if game.Advanced.Enabled && hooks.PrecallCommand != "" {
		_ = runHook(ctx, hooks.PrecallCommand, layout.Root(), cmd.Env, logger)
	}

	out, logPath, err := s.openLog(st.ID)
	if err != nil {
		return State{}, err
	}
	proc, err := s.Spawner.Spawn(Spec{Path: argv[0], Args: argv[1:], Dir: layout.Root(), Env: cmd.Env, Output: out})
	if err != nil {
		_ = out.Close()
		return State{}, err
	}

	st, err = s.States.Update(st.ID, func(cur *State) {
		cur.PID = proc.PID()
		cur.FullCommand = full
		cur.LogPath = logPath
		cur.StartedAt = time.Now().UTC()
		cur.process = proc
	})
	if err != nil {
		return State{}, err
	}
	logger.Info("🚀 game started", "pid", st.PID, "log", logPath)

	if p := game.Performance.ProcessPriority; p != "" && p != config.PriorityNormal {
		if err := setPriority(st.PID, p); err != nil {
			logger.Warn("⚠️ failed to set process priority", "priority", p, "error", err)
		}
	}
	if _, err := s.Instances.Update(st.Instance.ID, func(inst *instance.Instance) error {
		inst.LastPlayedAt = st.StartedAt
		return nil
	}); err != nil {
		logger.Warn("⚠️ failed to record last played time", "error", err)
	}

	go s.monitor(st, proc, out, hooks, game.Advanced.Enabled, layout.Root(), cmd.Env)
	return st, nil
}

// monitor waits for the game and records how it ended.
func (s *Sequencer) monitor(st State, proc Process, out io.Closer, hooks config.CustomCommands, advanced bool, dir string, env []string) {
	logger := s.logger().With("attempt", st.ID, "pid", st.PID)
	code, err := proc.Wait()
	_ = out.Close()
	if err != nil {
		logger.Error("❌ game process error", "error", err)
	}

	final, uerr := s.States.Update(st.ID, func(cur *State) {
		cur.Exited = true
		cur.ExitCode = code
		cur.process = nil
	})
	if uerr != nil {
		logger.Warn("⚠️ launch state vanished", "error", uerr)
	}
	played := int64(time.Since(st.StartedAt).Seconds())
	if _, err := s.Instances.Update(st.Instance.ID, func(inst *instance.Instance) error {
		inst.PlayTime += played
		return nil
	}); err != nil {
		logger.Debug("⚠️ failed to record play time", "error", err)
	}

	switch {
	case final.Cancelled():
		logger.Info("⏹️ game cancelled", "code", code)
	case final.Crashed():
		logger.Warn("💥 game exited abnormally", "code", code, "log", final.LogPath)
	default:
		logger.Info("⏹️ game exited", "code", code)
	}

	if advanced && hooks.PostExitCommand != "" {
		_ = runHook(context.Background(), hooks.PostExitCommand, dir, env, logger)
	}
}

// splitWrapper splits the configured wrapper command, e.g. "gamemoderun"
// or "prime-run --flag".
func splitWrapper(line string) ([]string, error) {
	words, err := shell.Split(line)
	if err != nil {
		return nil, fmt.Errorf("wrapper launcher: %w", err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("wrapper launcher is empty")
	}
	return words, nil
}

func (s *Sequencer) openLog(id int64) (*os.File, string, error) {
	dir := s.LogDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "launchkit-logs")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create game log dir: %w", err)
	}
	name := fmt.Sprintf("game-%s-%d.log", time.Now().UTC().Format("20060102-150405"), id)
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("create game log: %w", err)
	}
	return f, path, nil
}

// Cancel kills the active attempt's game. Without a running game it does
// nothing.
func (s *Sequencer) Cancel() error {
	var (
		proc Process
		kill bool
	)
	st, err := s.States.UpdateActive(func(st *State) error {
		if st.PID == 0 || st.Exited {
			return nil
		}
		st.Step = StepCancelled
		proc, kill = st.process, true
		return nil
	})
	if errors.Is(err, launcherr.ErrLaunchingStateNotFound) {
		return nil
	}
	if err != nil || !kill {
		return err
	}

	s.logger().Info("⏹️ cancelling game", "attempt", st.ID, "pid", st.PID)
	if proc != nil {
		return proc.Kill()
	}
	p, err := os.FindProcess(st.PID)
	if err != nil {
		return fmt.Errorf("find pid %d: %w", st.PID, err)
	}
	return p.Kill()
}

// State returns the attempt with id.
func (s *Sequencer) State(id int64) (State, error) {
	return s.States.Get(id)
}
