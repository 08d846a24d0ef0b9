package rootfs

import (
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sys/unix"
)

type savedMode struct {
	path string
	mode uint32
}

// WithWritableDir runs fn with u+rwx set on dir and u+x on every directory
// leading to it, for the ones owned by the current user. The previous modes
// are restored when fn returns, whatever its outcome.
func WithWritableDir(dir string, logger hclog.Logger, fn func() error) (err error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	dir, err = filepath.Abs(dir)
	if err != nil {
		return err
	}
	uid := uint32(os.Getuid())

	var st unix.Stat_t
	if unix.Stat(dir, &st) == nil {
		if st.Uid != uid || st.Mode&0o700 == 0o700 {
			return fn()
		}
	}

	var restore []savedMode
	defer func() {
		for i := len(restore) - 1; i >= 0; i-- {
			if cerr := unix.Chmod(restore[i].path, restore[i].mode); cerr != nil && err == nil {
				err = cerr
			}
		}
	}()

	comps := Components(dir)
	var parents []string
	if len(comps) > 2 {
		parents = comps[1 : len(comps)-1]
	}
	path := "/"
	for _, c := range parents {
		path = filepath.Join(path, c)
		if err := unix.Stat(path, &st); err != nil {
			return err
		}
		if st.Uid == uid && st.Mode&0o100 == 0 {
			logger.Debug("temporarily setting u+x", "path", path)
			restore = append(restore, savedMode{path, st.Mode & 0o7777})
			if err := unix.Chmod(path, (st.Mode&0o7777)|0o700); err != nil {
				return err
			}
		}
	}

	if err := unix.Stat(dir, &st); err != nil {
		return err
	}
	if st.Uid == uid && st.Mode&0o700 != 0o700 {
		logger.Debug("temporarily setting u+wx", "path", dir)
		restore = append(restore, savedMode{dir, st.Mode & 0o7777})
		if err := unix.Chmod(dir, (st.Mode&0o7777)|0o700); err != nil {
			return err
		}
	}
	return fn()
}
