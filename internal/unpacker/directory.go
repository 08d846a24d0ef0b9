package unpacker

import (
	"github.com/alessio/shellescape"

	"reprounzip/internal/environ"
	"reprounzip/internal/logging"
	"reprounzip/internal/pack"
	"reprounzip/internal/runner"
	"reprounzip/internal/target"
)

// Directory runs experiments from a plain directory, redirecting PATH and
// the library search path into it and rewriting path arguments.
type Directory struct {
	Env *Env
}

func (d *Directory) Kind() target.Kind { return target.KindDirectory }

func (d *Directory) Compatible(cfg *pack.Config) error { return sameArch(cfg) }

// Setup extracts the pack. Files are never chowned. Packages left out of
// the pack are expected on the host.
func (d *Directory) Setup(opts SetupOptions) error {
	env := d.Env
	_, err := create(env, target.KindDirectory, opts, false, func(c *created) error {
		if hostFileMissing(env, c.config) {
			logging.Failure(env.Stderr, "Some packages are missing, you should probably install them. Use 'reprounzip installpkgs -h' for help")
		}
		return nil
	})
	if err != nil {
		return err
	}
	return env.Hooks.PostSetup(setupEvent(opts, target.KindDirectory))
}

// Run executes the selected runs with translated paths.
func (d *Directory) Run(opts RunOptions) (int, error) {
	env := d.Env
	t, cfg, selected, done, err := prepareRun(env, target.KindDirectory, opts)
	if err != nil || done {
		return 0, err
	}
	dirs, err := environ.LibraryDirs(env.Exec, env.Config.Ldconfig())
	if err != nil {
		return 0, err
	}

	cmds := make([]string, 0, len(selected))
	for _, i := range selected {
		step := runner.DirectoryStep(cfg.Runs[i], runner.DirectoryOptions{
			Root:        t.Root(),
			LibraryDirs: dirs,
			Cmdline:     opts.Cmdline,
			X11:         opts.X11,
			LookupEnv:   env.LookupEnv,
		})
		if step.Rewritten {
			logging.Warning(env.Stderr, "Rewrote command-line as: %s", shellescape.QuoteCommand(step.Argv))
		}
		cmds = append(cmds, step.Shell())
	}
	return execute(env, t, selected, runner.Chain(cmds))
}

// Destroy removes the target.
func (d *Directory) Destroy(dir string) error {
	t, err := target.Open(dir, target.KindDirectory)
	if err != nil {
		return err
	}
	return remove(d.Env, t)
}
