package unpacker

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"reprounzip/internal/pack"
	"reprounzip/internal/rootfs"
)

// copyHostPackages copies the files of packages left out of the pack from
// the host into root. Files already extracted from the pack are kept.
func copyHostPackages(env *Env, cfg *pack.Config, root string, restoreOwner bool) error {
	unpacked := cfg.UnpackedPackages()
	if len(unpacked) == 0 {
		return nil
	}
	for _, pkg := range unpacked {
		env.Logger.Warn("files of package were left out of the pack, copying them from the host", "package", pkg.Name)
	}
	for _, pkg := range unpacked {
		for _, f := range pkg.Files {
			info, err := os.Lstat(f)
			if err != nil {
				env.Logger.Error("missing file on host, experiment will probably miss it",
					"path", f, "package", pkg.Name)
				continue
			}
			dest := rootfs.Join(root, f)
			if _, err := os.Lstat(dest); err == nil {
				continue
			}
			if err := copyHostFile(env, f, dest, info, restoreOwner); err != nil {
				return fmt.Errorf("copying %s from the host: %w", f, err)
			}
		}
	}
	return nil
}

func copyHostFile(env *Env, src, dest string, info os.FileInfo, restoreOwner bool) error {
	parent := filepath.Dir(dest)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return err
	}
	return rootfs.WithWritableDir(parent, env.Logger, func() error {
		switch {
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(src)
			if err != nil {
				return err
			}
			if err := os.Symlink(link, dest); err != nil {
				return err
			}
		case info.IsDir():
			if err := os.Mkdir(dest, info.Mode().Perm()); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			if err := copyRegular(src, dest, info.Mode()); err != nil {
				return err
			}
		default:
			env.Logger.Warn("not copying special file from the host", "path", src)
			return nil
		}
		if restoreOwner {
			if st, ok := info.Sys().(*syscall.Stat_t); ok {
				return os.Lchown(dest, int(st.Uid), int(st.Gid))
			}
		}
		return nil
	})
}

func copyRegular(src, dest string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(dest, mode&(os.ModePerm|os.ModeSetuid|os.ModeSetgid|os.ModeSticky))
}
