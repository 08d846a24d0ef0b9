// Package privilege resolves the tri-state switches that depend on running
// as root: restoring file owners and binding the magic directories.
package privilege

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"

	"reprounzip/internal/errdefs"
)

// Request is the user's explicit choice for a privileged switch.
type Request int

const (
	Unset Request = iota
	Yes
	No
)

func (r Request) String() string {
	switch r {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "unset"
	}
}

// FromFlags builds a Request from a --foo / --dont-foo flag pair.
func FromFlags(yes, no bool) (Request, error) {
	switch {
	case yes && no:
		return Unset, errdefs.Usagef("conflicting flags given")
	case yes:
		return Yes, nil
	case no:
		return No, nil
	}
	return Unset, nil
}

// Outcome is what Resolve decided for a switch.
type Outcome int

const (
	// Disabled: the feature is off.
	Disabled Outcome = iota
	// Enabled: the feature is on.
	Enabled
	// Skipped: the feature is off because the process is not privileged,
	// which deserves a warning since nobody asked for it.
	Skipped
)

// Resolve decides a switch. An explicit Yes without privilege is an error;
// an unset request follows the privilege level.
func Resolve(req Request, elevated bool) (Outcome, error) {
	switch req {
	case No:
		return Disabled, nil
	case Yes:
		if !elevated {
			return Disabled, errdefs.ErrPrivilege
		}
		return Enabled, nil
	default:
		if elevated {
			return Enabled, nil
		}
		return Skipped, nil
	}
}

// Elevated reports whether the current process runs as root.
func Elevated() bool {
	return os.Geteuid() == 0
}

// Switch names a privileged feature and the messages shown when resolving it.
type Switch struct {
	Name    string
	Denied  string
	Skipped string
	Granted string
}

var (
	// RestoreOwner controls chown of extracted and uploaded files.
	RestoreOwner = Switch{
		Name:    "restore-owner",
		Denied:  "not running as root, cannot restore files' owner/group as requested",
		Skipped: "not running as root, won't restore files' owner/group",
		Granted: "running as root, we will restore files' owner/group",
	}
	// MountMagicDirs controls the /dev and /proc bind mounts.
	MountMagicDirs = Switch{
		Name:    "bind-magic-dirs",
		Denied:  "not running as root, cannot mount /dev and /proc",
		Skipped: "not running as root, won't mount /dev and /proc",
		Granted: "running as root, will mount /dev and /proc",
	}
)

// Decide resolves sw for req with the current privilege level and logs the
// outcome.
func (sw Switch) Decide(req Request, elevated bool, logger hclog.Logger) (bool, error) {
	out, err := Resolve(req, elevated)
	if err != nil {
		logger.Error(sw.Denied)
		return false, fmt.Errorf("%s: %w", sw.Name, err)
	}
	switch out {
	case Skipped:
		logger.Warn(sw.Skipped)
	case Enabled:
		if req == Unset {
			logger.Info(sw.Granted)
		}
	}
	return out == Enabled, nil
}
