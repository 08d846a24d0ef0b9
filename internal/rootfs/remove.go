package rootfs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// protectedDirs may never be removed wholesale.
var protectedDirs = map[string]struct{}{
	"/":      {},
	"/bin":   {},
	"/boot":  {},
	"/dev":   {},
	"/etc":   {},
	"/home":  {},
	"/lib":   {},
	"/lib64": {},
	"/opt":   {},
	"/proc":  {},
	"/root":  {},
	"/run":   {},
	"/sbin":  {},
	"/sys":   {},
	"/tmp":   {},
	"/usr":   {},
	"/var":   {},
}

// RemoveAll deletes path recursively. Directories the current user owns but
// cannot write to (read-only trees restored from a pack) are made writable
// first. Symlinks are never followed.
func RemoveAll(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if _, ok := protectedDirs[strings.TrimSuffix(abs, "/")]; ok || abs == "/" {
		return fmt.Errorf("refusing to remove system directory %s", abs)
	}
	if _, err := os.Lstat(abs); os.IsNotExist(err) {
		return nil
	}

	walkErr := filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// unreadable subtree, RemoveAll reports it
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		var st unix.Stat_t
		if err := unix.Lstat(p, &st); err != nil {
			return nil
		}
		if st.Mode&0o700 != 0o700 {
			_ = unix.Chmod(p, (st.Mode&0o7777)|0o700)
		}
		return nil
	})
	if walkErr != nil {
		return walkErr
	}
	return os.RemoveAll(abs)
}
