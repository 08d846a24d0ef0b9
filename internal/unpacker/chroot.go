package unpacker

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"reprounzip/internal/bootstrap"
	"reprounzip/internal/config"
	"reprounzip/internal/errdefs"
	"reprounzip/internal/logging"
	"reprounzip/internal/magicmount"
	"reprounzip/internal/pack"
	"reprounzip/internal/privilege"
	"reprounzip/internal/runner"
	"reprounzip/internal/target"
	"reprounzip/internal/x11"
)

// Mounter binds and unbinds the magic directories of a chroot target.
type Mounter interface {
	Mount(t *target.Target) error
	Unmount(t *target.Target) error
}

// Chroot runs experiments inside a chroot of the extracted files.
type Chroot struct {
	Env     *Env
	Mounts  Mounter
	Busybox *bootstrap.Installer
}

// NewChroot wires the host mount table and the busybox download.
func NewChroot(env *Env) *Chroot {
	return &Chroot{
		Env:    env,
		Mounts: magicmount.New(env.Exec, env.Logger),
		Busybox: &bootstrap.Installer{
			URLTemplate: env.Config.BusyboxURL(),
			Client:      pack.NewHTTPClient(),
			Logger:      env.Logger,
		},
	}
}

func (c *Chroot) Kind() target.Kind { return target.KindChroot }

func (c *Chroot) Compatible(cfg *pack.Config) error { return sameArch(cfg) }

// Setup creates the target, then binds the magic directories when allowed.
// Both privilege decisions are taken before anything is written.
func (c *Chroot) Setup(opts SetupOptions) error {
	env := c.Env
	restoreOwner, err := privilege.RestoreOwner.Decide(opts.RestoreOwner, env.Elevated, env.Logger)
	if err != nil {
		return err
	}
	mount, err := privilege.MountMagicDirs.Decide(opts.MountMagicDirs, env.Elevated, env.Logger)
	if err != nil {
		return err
	}
	t, err := c.create(opts, restoreOwner)
	if err != nil {
		return err
	}
	if mount {
		if err := c.mount(t); err != nil {
			return err
		}
	}
	return env.Hooks.PostSetup(setupEvent(opts, target.KindChroot))
}

// Create is setup without the mounts.
func (c *Chroot) Create(opts SetupOptions) error {
	restoreOwner, err := privilege.RestoreOwner.Decide(opts.RestoreOwner, c.Env.Elevated, c.Env.Logger)
	if err != nil {
		return err
	}
	if _, err := c.create(opts, restoreOwner); err != nil {
		return err
	}
	return c.Env.Hooks.PostSetup(setupEvent(opts, target.KindChroot))
}

func (c *Chroot) create(opts SetupOptions, restoreOwner bool) (*target.Target, error) {
	env := c.Env
	done, err := create(env, target.KindChroot, opts, restoreOwner, func(cr *created) error {
		if err := copyHostPackages(env, cr.config, cr.target.Root(), restoreOwner); err != nil {
			return err
		}
		if bootstrap.Needed(cr.target.Root()) {
			logging.Notice(env.Stderr, "Setting up busybox...")
			return c.Busybox.Ensure(env.Context, cr.target.Root(), cr.config.Runs[0].Architecture)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return done.target, nil
}

// Mount binds the magic directories into an existing target.
func (c *Chroot) Mount(dir string) error {
	t, err := target.Open(dir, target.KindChroot)
	if err != nil {
		return err
	}
	return c.mount(t)
}

// mount always saves the record so a partial mount stays visible to unmount.
func (c *Chroot) mount(t *target.Target) error {
	err := c.Mounts.Mount(t)
	if serr := t.Save(); serr != nil {
		return errors.Join(err, serr)
	}
	return err
}

// Run executes the selected runs inside the chroot as their recorded users.
func (c *Chroot) Run(opts RunOptions) (int, error) {
	env := c.Env
	t, cfg, selected, done, err := prepareRun(env, target.KindChroot, opts)
	if err != nil || done {
		return 0, err
	}

	var extra map[string]string
	if opts.X11 {
		session, err := c.startX11(t, cfg.Runs[selected[0]], opts.X11Display)
		if err != nil {
			return 0, err
		}
		defer session.Close()
		extra = session.Environ()
	}

	cmds := make([]string, 0, len(selected))
	for _, i := range selected {
		run := cfg.Runs[i]
		step := runner.ChrootStep(run, opts.Cmdline, extra)
		cmds = append(cmds, runner.ChrootCommand(t.Root(), run.UID, run.GID, step))
	}
	return execute(env, t, selected, runner.Chain(cmds))
}

func (c *Chroot) startX11(t *target.Target, run pack.Run, display int) (*x11.Session, error) {
	env := c.Env
	hostDisplay, ok := env.LookupEnv("DISPLAY")
	if !ok {
		return nil, errdefs.Usagef("X11 support enabled but DISPLAY is not set")
	}
	host, err := x11.ParseDisplay(hostDisplay)
	if err != nil {
		return nil, errdefs.Usagef("%v", err)
	}
	if display <= 0 {
		display = x11.DefaultChrootDisplay
		if n, err := strconv.Atoi(env.Config.Get(config.KeyX11Display, "")); err == nil && n > 0 {
			display = n
		}
	}
	hostname, _ := os.Hostname()
	return x11.Start(env.Context, x11.Options{
		Root:     t.Root(),
		Display:  display,
		Host:     host,
		Hostname: hostname,
		UID:      run.UID,
		GID:      run.GID,
		Chown:    env.Elevated,
		Logger:   env.Logger,
	})
}

// Unmount takes the magic directories down. It returns
// errdefs.ErrNothingToDo when they were not mounted.
func (c *Chroot) Unmount(dir string) error {
	t, err := target.Open(dir, target.KindChroot)
	if err != nil {
		return err
	}
	return c.unmount(t)
}

func (c *Chroot) unmount(t *target.Target) error {
	if err := c.Mounts.Unmount(t); err != nil {
		return err
	}
	return t.Save()
}

// DestroyDir removes the target, refusing while it may still be mounted.
func (c *Chroot) DestroyDir(dir string) error {
	t, err := target.Open(dir, target.KindChroot)
	if err != nil {
		return err
	}
	if t.Record.Mounted {
		return fmt.Errorf("%w: run destroy/unmount first", errdefs.ErrStillMounted)
	}
	return remove(c.Env, t)
}

// Destroy unmounts if needed, then removes the target.
func (c *Chroot) Destroy(dir string) error {
	t, err := target.Open(dir, target.KindChroot)
	if err != nil {
		return err
	}
	if err := c.unmount(t); err != nil && !errors.Is(err, errdefs.ErrNothingToDo) {
		return err
	}
	return remove(c.Env, t)
}
