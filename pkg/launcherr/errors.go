// Package launcherr holds the sentinel errors shared by the launch core.
// Call sites wrap these with fmt.Errorf("...: %w", err) and callers test
// them with errors.Is.
package launcherr

import (
	"errors"
	"fmt"
)

var (
	// Not-found / configuration 🔎
	ErrInstanceNotFound        = errors.New("❌ instance not found")
	ErrRuntimeNotFound         = errors.New("❌ no suitable java runtime found")
	ErrAccountNotFound         = errors.New("❌ no account selected")
	ErrAccountExpired          = errors.New("❌ account credentials expired, log in again")
	ErrChangeLoaderUnsupported = errors.New("❌ changing the mod loader is not supported for this instance")
	ErrUnsupportedLoader       = errors.New("❌ unsupported mod loader")
	ErrConflictName            = errors.New("❌ an instance with this name already exists")
	ErrInvalidName             = errors.New("❌ invalid instance name")

	// Integrity / parse 🧩
	ErrDescriptorParse     = errors.New("❌ client descriptor could not be parsed")
	ErrAssetIndexParse     = errors.New("❌ asset index could not be parsed")
	ErrInstallProfileParse = errors.New("❌ install profile could not be parsed")
	ErrLoaderVersionParse  = errors.New("❌ mod loader version metadata could not be parsed")
	ErrInvalidCoordinate   = errors.New("❌ invalid library coordinate")
	ErrMissingArtifactURL  = errors.New("❌ artifact has no download url")
	ErrMainClassNotFound   = errors.New("❌ main class not found in jar manifest")

	// Transient / network 🌐
	ErrNetwork             = errors.New("❌ network request failed")
	ErrDownloadFailed      = errors.New("❌ download group failed")
	ErrLoaderNotDownloaded = errors.New("❌ mod loader installer has not been downloaded")

	// External process 🚀
	ErrProcessorFailed = errors.New("❌ processor execution failed")
	ErrPatcherFailed   = errors.New("❌ optifine patcher execution failed")

	// State machine misuse 🔁
	ErrLaunchingStateNotFound = errors.New("❌ no active launching state")
	ErrInstallationDuplicated = errors.New("❌ installation already in progress")
	ErrLoaderNotInstalled     = errors.New("❌ mod loader is not installed")
	ErrInvalidTransition      = errors.New("❌ invalid mod loader status transition")

	// Partial success; not a failure in the exceptional sense.
	ErrFilesIncomplete = errors.New("⏳ game files incomplete, repair downloads scheduled")
)

// ProcessorError reports which install processor failed.
type ProcessorError struct {
	Index     int
	Jar       string
	MainClass string
	ExitCode  int
	Output    string
	Err       error
}

func (e *ProcessorError) Error() string {
	msg := fmt.Sprintf("%v: processor #%d (%s, main class %q)", ErrProcessorFailed, e.Index, e.Jar, e.MainClass)
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return fmt.Sprintf("%s exited with code %d", msg, e.ExitCode)
}

// Unwrap lets errors.Is match both ErrProcessorFailed and the cause.
func (e *ProcessorError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrProcessorFailed, e.Err}
	}
	return []error{ErrProcessorFailed}
}

// Recoverable reports whether err is an incompleteness outcome the caller
// should retry silently after repairs finish.
func Recoverable(err error) bool {
	return errors.Is(err, ErrFilesIncomplete)
}
