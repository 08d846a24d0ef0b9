package rootfs

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/fs"
)

func TestRemoveAllReadOnlyTree(t *testing.T) {
	dir := fs.NewDir(t, "target",
		fs.WithDir("root",
			fs.WithDir("usr",
				fs.WithDir("bin", fs.WithFile("prog", "#!/bin/sh\n", fs.WithMode(0o555))),
				fs.WithMode(0o555)),
			fs.WithSymlink("escape", "/etc"),
		),
	)
	assert.NilError(t, os.Chmod(dir.Join("root", "usr", "bin"), 0o500))

	assert.NilError(t, RemoveAll(dir.Join("root")))
	_, err := os.Lstat(dir.Join("root"))
	assert.Assert(t, os.IsNotExist(err))
	_, err = os.Stat("/etc")
	assert.NilError(t, err)
}

func TestRemoveAllMissing(t *testing.T) {
	assert.NilError(t, RemoveAll(filepath.Join(t.TempDir(), "absent")))
}

func TestRemoveAllRefusesSystemDirs(t *testing.T) {
	assert.ErrorContains(t, RemoveAll("/usr"), "refusing")
	assert.ErrorContains(t, RemoveAll("/"), "refusing")
}
