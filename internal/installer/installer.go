// Package installer installs the distribution packages a pack expects from
// the host through the host's package manager.
package installer

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/hashicorp/go-hclog"

	"reprounzip/internal/errdefs"
	"reprounzip/internal/pack"
)

// NotInstalled is the version reported for a package absent from the host.
const NotInstalled = "not installed"

// Runner runs package manager commands.
type Runner interface {
	Run(cmd *exec.Cmd) error
	Lines(cmd *exec.Cmd, fn func(line string)) error
}

// Installer is a package manager adapter.
type Installer interface {
	Name() string
	// Query maps each package name to its installed version, or NotInstalled.
	Query(pkgs []pack.Package) (map[string]string, error)
	// Install installs pkgs and returns the package manager's exit status.
	Install(pkgs []pack.Package, assumeYes bool) (int, error)
}

// Select returns the adapter for a distribution name such as "debian".
func Select(distribution string, run Runner, logger hclog.Logger) (Installer, error) {
	d := strings.ToLower(distribution)
	switch {
	case d == "debian" || d == "ubuntu" || strings.Contains(d, "mint"):
		return &Apt{Runner: run, Logger: logger}, nil
	case d == "fedora" || d == "rhel" || strings.HasPrefix(d, "centos") ||
		strings.HasPrefix(d, "red hat") || strings.Contains(d, "scientific linux"):
		return &Yum{Runner: run, Logger: logger}, nil
	}
	return nil, fmt.Errorf("%w for distribution %q", errdefs.ErrNoInstaller, distribution)
}

func names(pkgs []pack.Package) []string {
	out := make([]string, len(pkgs))
	for i, p := range pkgs {
		out[i] = p.Name
	}
	return out
}

func fillMissing(found map[string]string, pkgs []pack.Package) map[string]string {
	for _, p := range pkgs {
		if _, ok := found[p.Name]; !ok {
			found[p.Name] = NotInstalled
		}
	}
	return found
}
