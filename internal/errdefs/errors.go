// Package errdefs defines the error kinds shared by every reprounzip command
// and maps them onto process exit statuses.
package errdefs

import (
	"errors"
	"fmt"
)

var (
	// ErrUsage covers kind mismatches, missing arguments and absent targets.
	ErrUsage = errors.New("usage error")
	// ErrArchive is returned when a pack's container format is not recognized.
	ErrArchive = errors.New("unrecognized archive")
	// ErrUnsafeArchive is returned when a member would escape the extraction root.
	ErrUnsafeArchive = errors.New("archive contains invalid pathnames")
	// ErrMissingFile is returned when an uploaded or downloaded file is absent.
	ErrMissingFile = errors.New("file does not exist")
	// ErrPrivilege is returned when an explicit request needs root.
	ErrPrivilege = errors.New("insufficient privilege")
	// ErrNoInstaller is returned when no package manager adapter fits the host.
	ErrNoInstaller = errors.New("no package installer available")
	// ErrMount wraps a failing external mount or umount invocation.
	ErrMount = errors.New("mount operation failed")
	// ErrStillMounted refuses destructive operations on a mounted target.
	ErrStillMounted = errors.New("magic directories might still be mounted")
	// ErrNothingToDo is a signal, not a failure.
	ErrNothingToDo = errors.New("nothing to do")
)

// Usagef builds an ErrUsage with context.
func Usagef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}

// ExitStatus carries the raw status of an executed experiment so it can
// become the process exit status unchanged.
type ExitStatus struct {
	Code int
}

func (e *ExitStatus) Error() string {
	return fmt.Sprintf("experiment exited with status %d", e.Code)
}

// ExitCode maps a command result to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var status *ExitStatus
	if errors.As(err, &status) {
		if status.Code < 0 {
			// killed by a signal, reported like a shell would
			return 128 - status.Code
		}
		return status.Code
	}
	if errors.Is(err, ErrNothingToDo) {
		return 0
	}
	return 1
}
