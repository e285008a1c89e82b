package instance

import (
	"fmt"

	"github.com/provide-io/launchkit/pkg/launcherr"
)

// LoaderStatus is the installation state of a mod loader.
type LoaderStatus string

const (
	// StatusNotDownloaded: the loader's files have not been fetched.
	StatusNotDownloaded LoaderStatus = "NotDownloaded"
	// StatusDownloading: the download phase is running.
	StatusDownloading LoaderStatus = "Downloading"
	// StatusInstalling: processors or the patcher are running.
	StatusInstalling LoaderStatus = "Installing"
	StatusInstalled  LoaderStatus = "Installed"
	// StatusDownloadFailed covers download and processor failures.
	StatusDownloadFailed LoaderStatus = "DownloadFailed"
)

// Downloading → NotDownloaded leaves the install phase pending.
var transitions = map[LoaderStatus][]LoaderStatus{
	StatusNotDownloaded:  {StatusDownloading, StatusInstalling, StatusInstalled},
	StatusDownloading:    {StatusNotDownloaded, StatusInstalling, StatusInstalled, StatusDownloadFailed},
	StatusInstalling:     {StatusInstalled, StatusDownloadFailed},
	StatusDownloadFailed: {StatusDownloading},
	StatusInstalled:      {},
}

// CanTransition reports whether from → to is a legal step.
func CanTransition(from, to LoaderStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves m to status to, or fails with ErrInvalidTransition.
// Installing is not re-entrant: a second attempt reports
// ErrInstallationDuplicated.
func (m *ModLoader) Transition(to LoaderStatus) error {
	if m.Status == StatusInstalling && to == StatusInstalling {
		return launcherr.ErrInstallationDuplicated
	}
	if !CanTransition(m.Status, to) {
		return fmt.Errorf("%w: %s → %s", launcherr.ErrInvalidTransition, m.Status, to)
	}
	m.Status = to
	return nil
}

// Reset selects a new loader and puts it in its initial status.
func (m *ModLoader) Reset(next ModLoader) {
	*m = next
	m.Status = next.InitialStatus()
}
