package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/provide-io/launchkit/pkg/instance"
	"github.com/provide-io/launchkit/pkg/launch"
	"github.com/provide-io/launchkit/pkg/launcher"
	"github.com/provide-io/launchkit/pkg/launcherr"
)

// exitPollInterval is how often the launch command checks for game exit.
var exitPollInterval = 500 * time.Millisecond

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// loaderFlags are the mod loader selection flags shared by create and change.
type loaderFlags struct {
	kind      string
	version   string
	optifine  string
	fabricAPI bool
}

func (f *loaderFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.kind, "loader", "none", "Mod loader (none, fabric, forge, neoforge, legacyforge, quilt)")
	cmd.Flags().StringVar(&f.version, "loader-version", "", "Mod loader version")
	cmd.Flags().StringVar(&f.optifine, "optifine", "", "OptiFine version, e.g. HD_U_I6")
	cmd.Flags().BoolVar(&f.fabricAPI, "fabric-api", false, "Also install the Fabric API mod")
}

// modLoader builds the loader record for an instance of gameVersion.
func (f loaderFlags) modLoader(gameVersion string) (instance.ModLoader, error) {
	kind, err := instance.ParseLoaderKind(f.kind)
	if err != nil {
		return instance.ModLoader{}, err
	}
	if kind != instance.LoaderNone && f.version == "" {
		return instance.ModLoader{}, fmt.Errorf("%w: --loader-version is required for %s", launcherr.ErrUnsupportedLoader, kind)
	}
	ml := instance.ModLoader{Kind: kind, Version: f.version}
	if f.optifine != "" {
		ml.OptiFine = &instance.OptiFine{
			Filename: "OptiFine_" + gameVersion + "_" + f.optifine + ".jar",
			Version:  f.optifine,
		}
	}
	return ml, nil
}

func newInstanceCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "instance", Short: "Manage game instances"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List instances of every game directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			insts, err := app.RefreshInstances()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), insts)
		},
	}

	var (
		gameDir, gameVersion, description string
		lf                                loaderFlags
	)
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an instance and download its files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ml, err := lf.modLoader(gameVersion)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			game, err := app.GameVersion(ctx, gameVersion)
			if err != nil {
				return err
			}
			inst, err := app.CreateInstance(ctx, launcher.CreateRequest{
				GameDir:     gameDir,
				Name:        args[0],
				Description: description,
				Game:        game,
				Loader:      ml,
				FabricAPI:   lf.fabricAPI,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), inst)
		},
	}
	create.Flags().StringVar(&gameDir, "dir", "default", "Game directory name")
	create.Flags().StringVar(&gameVersion, "version", "", "Game version id (required)")
	create.Flags().StringVar(&description, "description", "", "Instance description")
	lf.register(create)
	if err := create.MarkFlagRequired("version"); err != nil {
		panic(err)
	}

	rename := &cobra.Command{
		Use:   "rename <id> <new-name>",
		Short: "Rename an instance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			inst, err := app.RenameInstance(args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), inst)
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an instance and its version directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.DeleteInstance(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "🗑️ deleted %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, create, rename, del)
	return cmd
}

func newRuntimeCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "runtime", Short: "Inspect java runtimes"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Discover and list java runtimes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rts, err := app.RefreshRuntimes(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rts)
		},
	})
	return cmd
}

func newInstallCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "install", Short: "Mod loader installation"}

	finish := &cobra.Command{
		Use:   "finish <id>",
		Short: "Run the install phase of the instance's mod loader",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.FinishInstall(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ %s installed\n", args[0])
			return nil
		},
	}

	check := &cobra.Command{
		Use:   "check-change <id>",
		Short: "Check whether the instance's mod loader can be changed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := app.CheckChangeLoader(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ok)
			return nil
		},
	}

	var lf loaderFlags
	change := &cobra.Command{
		Use:   "change <id>",
		Short: "Replace the instance's mod loader",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cur, err := app.Instances.Get(args[0])
			if err != nil {
				return err
			}
			ml, err := lf.modLoader(cur.Version)
			if err != nil {
				return err
			}
			inst, err := app.ChangeLoader(cmd.Context(), args[0], ml, lf.fabricAPI)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), inst)
		},
	}
	lf.register(change)

	cmd.AddCommand(finish, check, change)
	return cmd
}

func newAccountCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "account", Short: "Manage player accounts"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List stored accounts",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return printJSON(cmd.OutOrStdout(), app.Accounts.List())
			},
		},
		&cobra.Command{
			Use:   "add-offline <name>",
			Short: "Add an offline account",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				acc, err := app.AddOfflineAccount(args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), acc)
			},
		},
		&cobra.Command{
			Use:   "select <id-or-name>",
			Short: "Select the account used to launch",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				acc, err := app.SelectAccount(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "👤 selected %s (%s)\n", acc.Name, acc.ID)
				return nil
			},
		},
	)
	return cmd
}

func newValidateFilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-files <id>",
		Short: "Check an instance's files and schedule repairs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := app.Sequencer.SelectRuntime(ctx, args[0]); err != nil {
				return err
			}
			err := app.Sequencer.ValidateFiles(ctx)
			if launcherr.Recoverable(err) {
				// the repair group runs in the background; wait for it here
				if w, ok := app.Scheduler.(interface{ Wait() map[string]error }); ok {
					if ferr := w.Wait()[launch.RepairGroup(args[0])]; ferr != nil {
						return ferr
					}
					fmt.Fprintln(cmd.OutOrStdout(), "🔧 missing files repaired")
					return nil
				}
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✅ files complete")
			return nil
		},
	}
}

func newLaunchCmd() *cobra.Command {
	var (
		qp          launch.QuickPlay
		crashReport string
	)
	cmd := &cobra.Command{
		Use:   "launch <id>",
		Short: "Launch an instance and wait for the game to exit",
		Long: `Launch runs the four launch steps: select a java runtime, validate the
game files, validate the account and start the game. Interrupting the
command kills the game.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := app.Launch(ctx, args[0], qp)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "🚀 attempt %d started, pid %d\n", st.ID, st.PID)

			st, err = waitForExit(ctx, app, st.ID)
			if err != nil {
				return err
			}
			if err := printJSON(out, st); err != nil {
				return err
			}
			if !st.Crashed() {
				return nil
			}
			if crashReport != "" {
				if err := app.ExportCrashReport(st.ID, crashReport); err != nil {
					return err
				}
				fmt.Fprintf(out, "📦 crash report written to %s\n", crashReport)
			}
			return fmt.Errorf("%w: exit code %d, log %s", errGameCrashed, st.ExitCode, st.LogPath)
		},
	}
	cmd.Flags().StringVar(&qp.Singleplayer, "world", "", "Join this singleplayer world after start")
	cmd.Flags().StringVar(&qp.Multiplayer, "server", "", "Join this server (host[:port]) after start")
	cmd.Flags().StringVar(&qp.Realms, "realm", "", "Join this realm after start")
	cmd.Flags().StringVar(&crashReport, "crash-report", "", "Write a crash report zip here if the game crashes")
	cmd.MarkFlagsMutuallyExclusive("world", "server", "realm")
	return cmd
}

// stateSource is the part of the launcher waitForExit polls.
type stateSource interface {
	LaunchState(id int64) (launch.State, error)
	Cancel() error
}

// waitForExit polls attempt id until the game exits. Cancelling ctx kills
// the game once and keeps waiting for it to go away.
func waitForExit(ctx context.Context, src stateSource, id int64) (launch.State, error) {
	ticker := time.NewTicker(exitPollInterval)
	defer ticker.Stop()
	done := ctx.Done()
	for {
		st, err := src.LaunchState(id)
		if err != nil || st.Exited {
			return st, err
		}
		select {
		case <-done:
			done = nil
			if err := src.Cancel(); err != nil {
				return st, fmt.Errorf("cancel game: %w", err)
			}
		case <-ticker.C:
		}
	}
}
