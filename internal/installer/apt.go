package installer

import (
	"os/exec"
	"strings"

	"github.com/hashicorp/go-hclog"

	"reprounzip/internal/executor"
	"reprounzip/internal/pack"
)

// Apt drives dpkg and apt-get.
type Apt struct {
	Runner Runner
	Logger hclog.Logger
}

func (a *Apt) Name() string { return "apt" }

func (a *Apt) Query(pkgs []pack.Package) (map[string]string, error) {
	found := make(map[string]string)
	if len(pkgs) == 0 {
		return found, nil
	}
	args := append([]string{"-W", "-f", "${Package} ${Status} ${Version}\n"}, names(pkgs)...)
	err := a.Runner.Lines(exec.Command("dpkg-query", args...), func(line string) {
		if name, version, ok := parseDpkgLine(line); ok {
			found[name] = version
		}
	})
	// dpkg-query exits 1 when some of the packages are unknown
	if _, isExit := executor.Status(err); err != nil && !isExit {
		return nil, err
	}
	return fillMissing(found, pkgs), nil
}

// parseDpkgLine reads "name want flag status version".
func parseDpkgLine(line string) (name, version string, ok bool) {
	f := strings.Fields(line)
	if len(f) < 5 || f[3] != "installed" {
		return "", "", false
	}
	return strings.SplitN(f[0], ":", 2)[0], f[4], true
}

func (a *Apt) Install(pkgs []pack.Package, assumeYes bool) (int, error) {
	args := []string{"install"}
	if assumeYes {
		args = append(args, "-y")
	}
	args = append(args, names(pkgs)...)
	a.Logger.Info("installing packages", "manager", "apt-get", "count", len(pkgs))
	err := a.Runner.Run(exec.Command("apt-get", args...))
	status, isExit := executor.Status(err)
	if !isExit {
		return 1, err
	}
	return status, nil
}
