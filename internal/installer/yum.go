package installer

import (
	"os/exec"
	"strings"

	"github.com/hashicorp/go-hclog"

	"reprounzip/internal/executor"
	"reprounzip/internal/pack"
)

// Yum drives rpm and yum.
type Yum struct {
	Runner Runner
	Logger hclog.Logger
}

func (y *Yum) Name() string { return "yum" }

func (y *Yum) Query(pkgs []pack.Package) (map[string]string, error) {
	found := make(map[string]string)
	if len(pkgs) == 0 {
		return found, nil
	}
	args := append([]string{"-q", "--qf", "%{NAME} %{VERSION}-%{RELEASE}\n"}, names(pkgs)...)
	err := y.Runner.Lines(exec.Command("rpm", args...), func(line string) {
		// absent packages print "package x is not installed"
		f := strings.Fields(line)
		if len(f) == 2 {
			found[f[0]] = f[1]
		}
	})
	if _, isExit := executor.Status(err); err != nil && !isExit {
		return nil, err
	}
	return fillMissing(found, pkgs), nil
}

func (y *Yum) Install(pkgs []pack.Package, assumeYes bool) (int, error) {
	args := []string{"install"}
	if assumeYes {
		args = append(args, "-y")
	}
	args = append(args, names(pkgs)...)
	y.Logger.Info("installing packages", "manager", "yum", "count", len(pkgs))
	err := y.Runner.Run(exec.Command("yum", args...))
	status, isExit := executor.Status(err)
	if !isExit {
		return 1, err
	}
	return status, nil
}
