package main

import (
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/provide-io/launchkit/pkg/config"
	"github.com/provide-io/launchkit/pkg/launcher"
	"github.com/provide-io/launchkit/pkg/launcherr"
	"github.com/provide-io/launchkit/pkg/logging"
)

// Exit codes.
const (
	ExitOK              = 0
	ExitError           = 1
	ExitPanic           = 101
	ExitConfigError     = 102
	ExitFilesIncomplete = 103
	ExitExecutionError  = 104
	ExitInvalidArgs     = 105
	ExitNetworkError    = 106
	ExitGameCrashed     = 107
)

var (
	configPath  string
	logLevel    string
	versionFlag bool
	rootCmd     *cobra.Command

	app    *launcher.App
	logger hclog.Logger
)

var (
	// errGameCrashed is returned by the launch command when the game
	// exited with a non-zero code on its own.
	errGameCrashed = errors.New("❌ game crashed")
	errSetup       = errors.New("❌ launcher setup failed")
)

func getBuilderTimestamp() string {
	// Try to get vcs.time from build info
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.time" {
				if t, err := time.Parse(time.RFC3339, setting.Value); err == nil {
					return t.UTC().Format(time.RFC3339)
				}
			}
		}
	}
	// Fallback to binary modification time
	if exePath, err := os.Executable(); err == nil {
		if stat, err := os.Stat(exePath); err == nil {
			return stat.ModTime().UTC().Format(time.RFC3339)
		}
	}
	return time.Now().UTC().Format(time.RFC3339)
}

func printVersion() {
	fmt.Printf("%s %s\n", launcher.Name, launcher.Version)
	fmt.Printf("Built: %s\n", getBuilderTimestamp())
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           launcher.Name,
		Short:         "Install and launch game instances",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return openApp()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if versionFlag {
				printVersion()
				return nil
			}
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to launcher.toml (defaults to the data directory)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	cmd.Flags().BoolVarP(&versionFlag, "version", "V", false, "Show version information")

	cmd.AddCommand(
		newInstanceCmd(),
		newRuntimeCmd(),
		newInstallCmd(),
		newAccountCmd(),
		newValidateFilesCmd(),
		newLaunchCmd(),
	)
	return cmd
}

func openApp() error {
	if app != nil {
		return nil
	}
	logger = logging.NewLogger(launcher.Name, logLevel, os.Stderr)
	a, err := launcher.New(launcher.Options{ConfigPath: configPath, Logger: logger})
	if err != nil {
		return fmt.Errorf("%w: %w", errSetup, err)
	}
	app = a
	return nil
}

// exitCode maps an error to the process exit code.
func exitCode(err error) int {
	var procErr *launcherr.ProcessorError
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, errGameCrashed):
		return ExitGameCrashed
	case errors.Is(err, launcherr.ErrFilesIncomplete):
		return ExitFilesIncomplete
	case errors.As(err, &procErr), errors.Is(err, launcherr.ErrPatcherFailed):
		return ExitExecutionError
	case errors.Is(err, launcherr.ErrNetwork), errors.Is(err, launcherr.ErrDownloadFailed):
		return ExitNetworkError
	case errors.Is(err, launcherr.ErrInvalidName),
		errors.Is(err, launcherr.ErrConflictName),
		errors.Is(err, launcherr.ErrUnsupportedLoader),
		errors.Is(err, launcherr.ErrInstanceNotFound):
		return ExitInvalidArgs
	case errors.Is(err, errSetup):
		return ExitConfigError
	}
	return ExitError
}

func main() {
	// Set up panic recovery to return specific exit code
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC: %v\n", r)
			debug.PrintStack()
			os.Exit(ExitPanic)
		}
	}()

	// Handle --version or -V before cobra parses other flags
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-V") {
		printVersion()
		os.Exit(ExitOK)
	}

	// .env must be in the environment before flags and config are read
	config.LoadDotEnv()

	rootCmd = newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}
