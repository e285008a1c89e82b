package launcher

import (
	"context"

	"github.com/provide-io/launchkit/pkg/account"
	"github.com/provide-io/launchkit/pkg/launch"
	"github.com/provide-io/launchkit/pkg/launcherr"
)

// fallbackMemoryMiB is assumed when physical memory is unknown.
const fallbackMemoryMiB = 8192

// groupWaiter is a scheduler that can block until background groups end.
type groupWaiter interface {
	Wait() map[string]error
}

// Launch runs the four launch steps for the instance. When files are
// missing and the scheduler can be waited on, the repair downloads are
// awaited and file validation is retried once.
func (a *App) Launch(ctx context.Context, id string, quickPlay launch.QuickPlay) (launch.State, error) {
	seq := a.Sequencer
	if _, err := seq.SelectRuntime(ctx, id); err != nil {
		return launch.State{}, err
	}

	err := seq.ValidateFiles(ctx)
	if launcherr.Recoverable(err) {
		w, ok := a.Scheduler.(groupWaiter)
		if !ok {
			return launch.State{}, err
		}
		a.logger.Info("⏳ waiting for repair downloads", "instance", id)
		if ferr := w.Wait()[launch.RepairGroup(id)]; ferr != nil {
			return launch.State{}, ferr
		}
		err = seq.ValidateFiles(ctx)
	}
	if err != nil {
		return launch.State{}, err
	}

	valid, err := seq.ValidateAccount(ctx)
	if err != nil {
		return launch.State{}, err
	}
	if !valid {
		return launch.State{}, launcherr.ErrAccountExpired
	}
	return seq.Launch(ctx, quickPlay)
}

// Cancel kills the running game of the active attempt, if any.
func (a *App) Cancel() error {
	return a.Sequencer.Cancel()
}

// LaunchState returns the attempt with id.
func (a *App) LaunchState(id int64) (launch.State, error) {
	return a.Sequencer.State(id)
}

// ExportCrashReport writes the crash report zip of attempt id to dest.
func (a *App) ExportCrashReport(id int64, dest string) error {
	return a.Sequencer.ExportCrashReport(id, dest)
}

// AddOfflineAccount stores an offline account for name.
func (a *App) AddOfflineAccount(name string) (account.Account, error) {
	acc, err := account.NewOffline(name)
	if err != nil {
		return account.Account{}, err
	}
	if err := a.Accounts.Add(acc); err != nil {
		return account.Account{}, err
	}
	return acc, nil
}

// SelectAccount makes the account matching idOrName the selected one.
func (a *App) SelectAccount(idOrName string) (account.Account, error) {
	acc, err := a.Accounts.Find(idOrName)
	if err != nil {
		return account.Account{}, err
	}
	if err := a.Accounts.Select(acc.ID); err != nil {
		return account.Account{}, err
	}
	return acc, nil
}
