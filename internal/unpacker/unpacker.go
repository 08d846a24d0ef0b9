// Package unpacker rebuilds packs into targets and re-executes their runs,
// either in a plain directory or inside a chroot.
package unpacker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sys/unix"

	"reprounzip/internal/config"
	"reprounzip/internal/errdefs"
	"reprounzip/internal/executor"
	"reprounzip/internal/hooks"
	"reprounzip/internal/logging"
	"reprounzip/internal/pack"
	"reprounzip/internal/privilege"
	"reprounzip/internal/rootfs"
	"reprounzip/internal/runner"
	"reprounzip/internal/target"
	"reprounzip/internal/transfer"
)

// Unpacker is an isolation strategy. Callers only deal with this interface.
type Unpacker interface {
	Kind() target.Kind
	// Compatible tells whether runs of cfg can be reproduced on this host.
	Compatible(cfg *pack.Config) error
	Setup(opts SetupOptions) error
	// Run returns the raw exit status of the executed command line.
	Run(opts RunOptions) (int, error)
	Destroy(dir string) error
}

// Env holds what every unpacker operation needs.
type Env struct {
	Context   context.Context
	Logger    hclog.Logger
	Exec      *executor.Executor
	Config    *config.Config
	Hooks     *hooks.Registry
	Stdout    io.Writer
	Stderr    io.Writer
	Elevated  bool
	LookupEnv func(string) (string, bool)
}

// NewEnv returns an Env for the current process.
func NewEnv(ctx context.Context, logger hclog.Logger, cfg *config.Config, reg *hooks.Registry) *Env {
	return &Env{
		Context:   ctx,
		Logger:    logger,
		Exec:      executor.New(ctx, logger),
		Config:    cfg,
		Hooks:     reg,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
		Elevated:  privilege.Elevated(),
		LookupEnv: os.LookupEnv,
	}
}

// SetupOptions are the arguments of setup.
type SetupOptions struct {
	Pack           string
	Target         string
	RestoreOwner   privilege.Request
	MountMagicDirs privilege.Request
}

// RunOptions are the arguments of run.
type RunOptions struct {
	Target string
	Runs   string
	// Cmdline replaces the recorded arguments. A non-nil empty slice
	// prints the recorded command lines instead of running.
	Cmdline    []string
	X11        bool
	X11Display int
}

// hostMachine is the architecture of the running kernel.
var hostMachine = func() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return runtime.GOARCH
	}
	return strings.ToLower(unix.ByteSliceToString(uts.Machine[:]))
}

// sameArch accepts the recorded architecture on this host. i386 packs run on
// 64-bit x86 hosts.
func sameArch(cfg *pack.Config) error {
	if runtime.GOOS != "linux" {
		return fmt.Errorf("this machine is not running Linux")
	}
	orig := strings.ToLower(cfg.Runs[0].Architecture)
	host := hostMachine()
	if orig == host {
		return nil
	}
	if orig == "i386" && (host == "amd64" || host == "x86_64") {
		return nil
	}
	return fmt.Errorf("different architectures, then: %s, now: %s", orig, host)
}

// created is the state of a fresh target once its files are in place.
type created struct {
	target *target.Target
	pack   *pack.Pack
	config *pack.Config
}

// create performs the steps both unpackers share: fetch the pack, write the
// config, extract the data, keep the inputs. populate runs after extraction.
// On failure the target directory is removed again.
func create(env *Env, kind target.Kind, opts SetupOptions, restoreOwner bool, populate func(*created) error) (_ *created, err error) {
	if opts.Pack == "" {
		return nil, errdefs.Usagef("setup needs the pack filename")
	}
	t, err := target.New(opts.Target, kind)
	if err != nil {
		return nil, err
	}
	if _, err := os.Lstat(t.Dir); err == nil {
		return nil, errdefs.Usagef("target directory %s exists", t.Dir)
	}

	if err := env.Hooks.PreSetup(hooks.SetupEvent{Target: t.Dir, Pack: opts.Pack, Kind: string(kind)}); err != nil {
		return nil, err
	}

	local, err := pack.Fetch(env.Context, opts.Pack, env.Config, env.Logger)
	if err != nil {
		return nil, err
	}
	p, err := pack.Open(local, env.Logger)
	if err != nil {
		return nil, err
	}
	cfg, err := p.Config()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(t.Dir, 0o755); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			env.Logger.Debug("removing incomplete target", "dir", t.Dir)
			if rerr := rootfs.RemoveAll(t.Dir); rerr != nil {
				env.Logger.Error("failed to remove incomplete target", "dir", t.Dir, "error", rerr)
			}
		}
	}()

	if err := p.ExtractMetadata(t.ConfigPath()); err != nil {
		return nil, err
	}
	logging.Notice(env.Stderr, "Extracting files...")
	if err := p.Extract(t.Root(), pack.ExtractOptions{RestoreOwner: restoreOwner}); err != nil {
		return nil, err
	}
	c := &created{target: t, pack: p, config: cfg}
	if populate != nil {
		if err := populate(c); err != nil {
			return nil, err
		}
	}
	if inputs := cfg.InputPaths(); len(inputs) > 0 {
		logging.Notice(env.Stderr, "Packing up original input files...")
		if err := transfer.WriteInputs(t.InputsArchive(), t.Root(), inputs, env.Logger); err != nil {
			return nil, err
		}
	}
	if err := t.Save(); err != nil {
		return nil, err
	}
	return c, nil
}

// prepareRun opens a target of kind and selects its runs. done is true when
// only the recorded command lines were requested and printed.
func prepareRun(env *Env, kind target.Kind, opts RunOptions) (*target.Target, *pack.Config, []int, bool, error) {
	t, err := target.Open(opts.Target, kind)
	if err != nil {
		return nil, nil, nil, false, err
	}
	cfg, err := pack.LoadConfig(t.ConfigPath())
	if err != nil {
		return nil, nil, nil, false, err
	}
	selected, err := runner.SelectRuns(cfg, opts.Runs)
	if err != nil {
		return nil, nil, nil, false, err
	}
	if opts.Cmdline != nil && len(opts.Cmdline) == 0 {
		runner.PrintCmdlines(env.Stdout, cfg, selected)
		return t, cfg, selected, true, nil
	}
	if opts.Cmdline != nil && len(selected) != 1 {
		return nil, nil, nil, false, errdefs.Usagef("--cmdline can only be used with a single run")
	}
	return t, cfg, selected, false, nil
}

// execute runs the chained line between the run hooks and saves the record.
func execute(env *Env, t *target.Target, selected []int, line string) (int, error) {
	if err := env.Hooks.PreRun(hooks.RunEvent{Target: t.Dir, Runs: selected}); err != nil {
		return 0, err
	}
	status, err := runner.Execute(env.Exec, line, env.Stderr)
	if err != nil {
		return 0, err
	}
	if err := env.Hooks.PostRun(hooks.RunEvent{Target: t.Dir, Runs: selected, Status: status}); err != nil {
		return status, err
	}
	return status, t.Save()
}

// remove deletes a target between the destroy hooks.
func remove(env *Env, t *target.Target) error {
	if err := env.Hooks.PreDestroy(hooks.DestroyEvent{Target: t.Dir}); err != nil {
		return err
	}
	logging.Notice(env.Stderr, "Removing directory %s...", t.Dir)
	if err := rootfs.RemoveAll(t.Dir); err != nil {
		return err
	}
	return env.Hooks.PostDestroy(hooks.DestroyEvent{Target: t.Dir})
}

// Upload lists the input roles of a target, or applies upload specs to it.
// Owner restoration only applies to chroot targets.
func Upload(env *Env, kind target.Kind, dir string, specs []string, owner privilege.Request) error {
	t, err := target.Open(dir, kind)
	if err != nil {
		return err
	}
	cfg, err := pack.LoadConfig(t.ConfigPath())
	if err != nil {
		return err
	}
	up := &transfer.Uploader{Target: t, Config: cfg, Logger: env.Logger}
	if len(specs) == 0 {
		up.List(env.Stdout)
		return nil
	}
	if t.Record.Unpacker == target.KindChroot {
		if up.RestoreOwner, err = privilege.RestoreOwner.Decide(owner, env.Elevated, env.Logger); err != nil {
			return err
		}
	}
	err = up.Upload(specs)
	if serr := t.Save(); serr != nil {
		return errors.Join(err, serr)
	}
	return err
}

// Download lists the output roles of a target, or applies download specs.
func Download(env *Env, kind target.Kind, dir string, specs []string) error {
	t, err := target.Open(dir, kind)
	if err != nil {
		return err
	}
	cfg, err := pack.LoadConfig(t.ConfigPath())
	if err != nil {
		return err
	}
	down := &transfer.Downloader{Target: t, Config: cfg, Logger: env.Logger, Stdout: env.Stdout}
	if len(specs) == 0 {
		down.List(env.Stdout)
		return nil
	}
	for _, s := range specs {
		if strings.HasSuffix(s, ":") && logging.IsTerminal(env.Stdout) {
			env.Logger.Warn("writing an output file to the terminal", "spec", s)
		}
	}
	return down.Download(specs)
}

// hostFileMissing reports files of packages left out of the pack that the
// host lacks.
func hostFileMissing(env *Env, cfg *pack.Config) bool {
	missing := false
	for _, pkg := range cfg.UnpackedPackages() {
		for _, f := range pkg.Files {
			if _, err := os.Lstat(f); err != nil {
				env.Logger.Error("missing file on host, experiment will probably miss it",
					"path", f, "package", pkg.Name)
				missing = true
			}
		}
	}
	return missing
}

func setupEvent(opts SetupOptions, kind target.Kind) hooks.SetupEvent {
	dir := opts.Target
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return hooks.SetupEvent{Target: dir, Pack: opts.Pack, Kind: string(kind)}
}
