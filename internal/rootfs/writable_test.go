package rootfs

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
)

func mode(t *testing.T, p string) os.FileMode {
	t.Helper()
	info, err := os.Stat(p)
	assert.NilError(t, err)
	return info.Mode().Perm()
}

func TestWithWritableDirRestoresTarget(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "some", "path")
	assert.NilError(t, os.MkdirAll(target, 0o755))
	assert.NilError(t, os.Chmod(target, 0o555))
	t.Cleanup(func() { _ = os.Chmod(target, 0o755) })

	err := WithWritableDir(target, nil, func() error {
		assert.Equal(t, mode(t, target), os.FileMode(0o755))
		return os.WriteFile(filepath.Join(target, "new"), []byte("x"), 0o644)
	})
	assert.NilError(t, err)
	assert.Equal(t, mode(t, target), os.FileMode(0o555))
	_, err = os.Stat(filepath.Join(target, "new"))
	assert.NilError(t, err)
}

func TestWithWritableDirUnlocksParents(t *testing.T) {
	base := t.TempDir()
	complete := filepath.Join(base, "some", "complete")
	target := filepath.Join(complete, "path")
	assert.NilError(t, os.MkdirAll(target, 0o755))
	assert.NilError(t, os.Chmod(target, 0o555))
	assert.NilError(t, os.Chmod(complete, 0o444))
	t.Cleanup(func() {
		_ = os.Chmod(complete, 0o755)
		_ = os.Chmod(target, 0o755)
	})

	err := WithWritableDir(target, nil, func() error {
		assert.Equal(t, mode(t, complete), os.FileMode(0o744))
		assert.Equal(t, mode(t, target), os.FileMode(0o755))
		return nil
	})
	assert.NilError(t, err)

	assert.Equal(t, mode(t, complete), os.FileMode(0o444))
	assert.NilError(t, os.Chmod(complete, 0o755))
	assert.Equal(t, mode(t, target), os.FileMode(0o555))
}

func TestWithWritableDirAlreadyWritable(t *testing.T) {
	target := t.TempDir()
	assert.NilError(t, os.Chmod(target, 0o700))
	called := false
	assert.NilError(t, WithWritableDir(target, nil, func() error {
		called = true
		return nil
	}))
	assert.Assert(t, called)
	assert.Equal(t, mode(t, target), os.FileMode(0o700))
}
