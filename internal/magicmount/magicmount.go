// Package magicmount binds the host /dev and /proc into a chroot target and
// takes them down again.
package magicmount

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/moby/sys/mountinfo"

	"reprounzip/internal/errdefs"
	"reprounzip/internal/rootfs"
	"reprounzip/internal/target"
)

// Dirs are bound in this order. Unmount discovers nested mounts under the
// top-level ones from the mount table.
var Dirs = []string{"/dev", "/dev/pts", "/proc"}

// Runner executes the external mount commands.
type Runner interface {
	Run(cmd *exec.Cmd) error
}

// Manager performs the mounts with the host mount and umount binaries.
type Manager struct {
	Exec   Runner
	Logger hclog.Logger
	// Mounts lists mount points at or below prefix. Defaults to the host
	// mount table.
	Mounts func(prefix string) ([]string, error)
}

// New returns a Manager reading the live mount table.
func New(ex Runner, logger hclog.Logger) *Manager {
	return &Manager{Exec: ex, Logger: logger, Mounts: hostMounts}
}

func hostMounts(prefix string) ([]string, error) {
	infos, err := mountinfo.GetMounts(mountinfo.PrefixFilter(prefix))
	if err != nil {
		return nil, err
	}
	points := make([]string, 0, len(infos))
	for _, info := range infos {
		points = append(points, info.Mountpoint)
	}
	return points, nil
}

// Mount binds every magic directory into t's root. The record is marked as
// mounted as soon as one bind succeeded, so a partial failure can still be
// undone with Unmount; the caller saves it.
func (m *Manager) Mount(t *target.Target) error {
	if t.Record.Unpacker != target.KindChroot {
		return errdefs.Usagef("magic directories can only be mounted in chroot targets")
	}
	root := t.Root()
	for _, dir := range Dirs {
		dest := rootfs.Join(root, dir)
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return fmt.Errorf("failed to create destination directory %s: %w", dest, err)
		}
		m.Logger.Debug("binding", "source", dir, "dest", dest)
		cmd := exec.Command("mount", "-o", "bind", dir, dest)
		if err := m.Exec.Run(cmd); err != nil {
			return fmt.Errorf("%w: bind of %s to %s: %v", errdefs.ErrMount, dir, dest, err)
		}
		t.Record.Mounted = true
	}
	m.Logger.Warn("magic directories were mounted; never delete the target with rm -rf, use destroy", "target", t.Dir)
	return nil
}

// Unmount removes every mount found below the target's magic directories,
// deepest first. It returns errdefs.ErrNothingToDo when the record says
// nothing is mounted.
func (m *Manager) Unmount(t *target.Target) error {
	if !t.Record.Mounted {
		return errdefs.ErrNothingToDo
	}
	root, err := filepath.EvalSymlinks(t.Root())
	if err != nil {
		return fmt.Errorf("%w: cannot resolve %s: %v", errdefs.ErrMount, t.Root(), err)
	}

	var points []string
	for _, dir := range []string{"/dev", "/proc"} {
		prefix := rootfs.Join(root, dir)
		if _, err := os.Lstat(prefix); errors.Is(err, os.ErrNotExist) {
			continue
		}
		found, err := m.Mounts(prefix)
		if err != nil {
			return fmt.Errorf("%w: reading mount table: %v", errdefs.ErrMount, err)
		}
		points = append(points, found...)
	}
	sortDeepestFirst(points)

	for _, p := range points {
		m.Logger.Debug("unmounting", "path", p)
		if err := m.Exec.Run(exec.Command("umount", p)); err != nil {
			return fmt.Errorf("%w: umount %s: %v", errdefs.ErrMount, p, err)
		}
	}
	t.Record.Mounted = false
	return nil
}

func sortDeepestFirst(points []string) {
	sort.SliceStable(points, func(i, j int) bool {
		di, dj := strings.Count(points[i], "/"), strings.Count(points[j], "/")
		if di != dj {
			return di > dj
		}
		return points[i] > points[j]
	})
}
