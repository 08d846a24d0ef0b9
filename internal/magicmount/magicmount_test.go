package magicmount

import (
	"errors"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"gotest.tools/v3/assert"

	"reprounzip/internal/errdefs"
	"reprounzip/internal/target"
)

type recorder struct {
	calls  []string
	failOn string
}

func (r *recorder) Run(cmd *exec.Cmd) error {
	line := strings.Join(cmd.Args, " ")
	r.calls = append(r.calls, line)
	if r.failOn != "" && strings.Contains(line, r.failOn) {
		return errors.New("exit status 32")
	}
	return nil
}

func newTarget(t *testing.T) *target.Target {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	assert.NilError(t, err)
	tg, err := target.New(dir, target.KindChroot)
	assert.NilError(t, err)
	return tg
}

func TestMountAndUnmount(t *testing.T) {
	tg := newTarget(t)
	rec := &recorder{}
	root := tg.Root()
	m := &Manager{Exec: rec, Logger: hclog.NewNullLogger(), Mounts: func(prefix string) ([]string, error) {
		if prefix == filepath.Join(root, "dev") {
			return []string{prefix, filepath.Join(prefix, "pts"), filepath.Join(prefix, "shm")}, nil
		}
		return []string{prefix}, nil
	}}

	assert.NilError(t, m.Mount(tg))
	assert.Assert(t, tg.Record.Mounted)
	assert.DeepEqual(t, rec.calls, []string{
		"mount -o bind /dev " + root + "/dev",
		"mount -o bind /dev/pts " + root + "/dev/pts",
		"mount -o bind /proc " + root + "/proc",
	})

	rec.calls = nil
	assert.NilError(t, m.Unmount(tg))
	assert.Assert(t, !tg.Record.Mounted)
	assert.DeepEqual(t, rec.calls, []string{
		"umount " + root + "/dev/shm",
		"umount " + root + "/dev/pts",
		"umount " + root + "/proc",
		"umount " + root + "/dev",
	})

	rec.calls = nil
	assert.Assert(t, errors.Is(m.Unmount(tg), errdefs.ErrNothingToDo))
	assert.Assert(t, errors.Is(m.Unmount(tg), errdefs.ErrNothingToDo))
	assert.Equal(t, len(rec.calls), 0)
}

func TestMountFailureKeepsPartialState(t *testing.T) {
	tg := newTarget(t)
	rec := &recorder{failOn: "/proc"}
	m := &Manager{Exec: rec, Logger: hclog.NewNullLogger()}

	err := m.Mount(tg)
	assert.Assert(t, errors.Is(err, errdefs.ErrMount))
	assert.Assert(t, tg.Record.Mounted)
}

func TestUnmountFailureKeepsMounted(t *testing.T) {
	tg := newTarget(t)
	tg.Record.Mounted = true
	rec := &recorder{failOn: "umount"}
	m := &Manager{Exec: rec, Logger: hclog.NewNullLogger(), Mounts: func(prefix string) ([]string, error) {
		return []string{prefix}, nil
	}}
	assert.NilError(t, m.Mount(tg))

	err := m.Unmount(tg)
	assert.Assert(t, errors.Is(err, errdefs.ErrMount))
	assert.Assert(t, tg.Record.Mounted)
}

func TestMountRefusesDirectoryTargets(t *testing.T) {
	tg, err := target.New(t.TempDir(), target.KindDirectory)
	assert.NilError(t, err)
	err = (&Manager{Exec: &recorder{}, Logger: hclog.NewNullLogger()}).Mount(tg)
	assert.Assert(t, errors.Is(err, errdefs.ErrUsage))
}

func TestSortDeepestFirst(t *testing.T) {
	points := []string{"/r/dev", "/r/proc", "/r/dev/pts", "/r/proc/sys/fs/binfmt_misc"}
	sortDeepestFirst(points)
	assert.DeepEqual(t, points, []string{"/r/proc/sys/fs/binfmt_misc", "/r/dev/pts", "/r/proc", "/r/dev"})
}
