package pack

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/moby/sys/symlink"
	"golang.org/x/sys/unix"

	"reprounzip/internal/errdefs"
	"reprounzip/internal/logging"
	"reprounzip/internal/rootfs"
)

// ExtractOptions tunes Extract.
type ExtractOptions struct {
	// RestoreOwner chowns members to their recorded uid/gid. Otherwise they
	// belong to the current user.
	RestoreOwner bool
	// Skip, when set, leaves out the data members it returns true for.
	Skip func(origPath string) bool
}

type pendingDir struct {
	dest  string
	hdr   *tar.Header
	owner bool
}

// Extract validates the whole pack, then writes its data members under
// root. Absolute symlink targets, and relative ones that would climb out of
// root, are re-rooted. A pack whose links still resolve outside root, alone
// or chained through other links, is rejected. Directory modes are applied
// last so read-only directories can still be populated.
func (p *Pack) Extract(root string, opts ExtractOptions) error {
	paths, err := p.ValidateAndList()
	if err != nil {
		return err
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return err
	}

	bar := logging.NewProgress(int64(len(paths)), "Extracting files", false)
	defer bar.Finish()

	elevated := os.Geteuid() == 0
	var dirs []pendingDir
	err = p.walk(func(hdr *tar.Header, r io.Reader) error {
		rel, ok := strings.CutPrefix(hdr.Name, DataPrefix)
		if !ok || strings.Trim(rel, "/") == "" {
			return nil
		}
		orig := path.Clean("/" + rel)
		if opts.Skip != nil && opts.Skip(orig) {
			return nil
		}
		_ = bar.Add(1)
		dest := rootfs.Join(root, orig)
		if err := checkInside(realRoot, filepath.Dir(dest)); err != nil {
			return fmt.Errorf("%w: %s", err, hdr.Name)
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("failed to create parent dir for %s: %w", dest, err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if info, err := os.Lstat(dest); err == nil && !info.IsDir() {
				if err := os.Remove(dest); err != nil {
					return err
				}
			}
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return fmt.Errorf("failed to create dir %s: %w", dest, err)
			}
			dirs = append(dirs, pendingDir{dest: dest, hdr: hdr, owner: opts.RestoreOwner})
			return nil
		case tar.TypeReg:
			if err := replaceable(dest); err != nil {
				return err
			}
			out, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
			if err != nil {
				return fmt.Errorf("failed to create file %s: %w", dest, err)
			}
			if _, err := io.Copy(out, r); err != nil {
				out.Close()
				return fmt.Errorf("failed to write file %s: %w", dest, err)
			}
			if err := out.Close(); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := replaceable(dest); err != nil {
				return err
			}
			target := symlinkTarget(root, orig, hdr.Linkname)
			if err := os.Symlink(target, dest); err != nil {
				return fmt.Errorf("failed to create symlink %s -> %s: %w", dest, target, err)
			}
			if err := checkInside(realRoot, dest); err != nil {
				return fmt.Errorf("%w: %s -> %s", err, hdr.Name, hdr.Linkname)
			}
		case tar.TypeLink:
			if err := replaceable(dest); err != nil {
				return err
			}
			linkRel := strings.TrimPrefix(hdr.Linkname, DataPrefix)
			target := rootfs.Join(root, "/"+linkRel)
			if err := checkInside(realRoot, target); err != nil {
				return fmt.Errorf("%w: %s => %s", err, hdr.Name, hdr.Linkname)
			}
			if err := os.Link(target, dest); err != nil {
				return fmt.Errorf("failed to create hard link %s -> %s: %w", dest, target, err)
			}
		case tar.TypeFifo:
			if err := replaceable(dest); err != nil {
				return err
			}
			if err := unix.Mkfifo(dest, uint32(hdr.Mode&0o7777)); err != nil {
				return fmt.Errorf("failed to create fifo %s: %w", dest, err)
			}
		case tar.TypeChar, tar.TypeBlock:
			if !elevated {
				p.logger.Debug("skipping device node, not running as root", "path", orig)
				return nil
			}
			if err := replaceable(dest); err != nil {
				return err
			}
			kind := uint32(unix.S_IFCHR)
			if hdr.Typeflag == tar.TypeBlock {
				kind = unix.S_IFBLK
			}
			dev := unix.Mkdev(uint32(hdr.Devmajor), uint32(hdr.Devminor))
			if err := unix.Mknod(dest, kind|uint32(hdr.Mode&0o7777), int(dev)); err != nil {
				return fmt.Errorf("failed to create device %s: %w", dest, err)
			}
		default:
			p.logger.Debug("skipping unsupported tar entry", "type", string(hdr.Typeflag), "name", hdr.Name)
			return nil
		}
		return applyAttrs(dest, hdr, opts.RestoreOwner)
	})
	if err != nil {
		return err
	}
	// later members can turn an earlier link into an escape
	if err := checkLinks(realRoot); err != nil {
		return err
	}

	for i := len(dirs) - 1; i >= 0; i-- {
		if err := applyAttrs(dirs[i].dest, dirs[i].hdr, dirs[i].owner); err != nil {
			return err
		}
	}
	return nil
}

// replaceable removes whatever non-directory sits at dest so a member is
// never written through a symlink planted by an earlier member.
func replaceable(dest string) error {
	info, err := os.Lstat(dest)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("cannot replace directory %s with a file", dest)
	}
	return os.Remove(dest)
}

// checkInside fails with ErrUnsafeArchive when p, with every symlink along
// it followed the way the host kernel would, lands outside realRoot.
// Components that do not exist yet are taken literally.
func checkInside(realRoot, p string) error {
	resolved, err := symlink.FollowSymlinkInScope(p, "/")
	if err != nil {
		return fmt.Errorf("%w: cannot resolve %s: %v", errdefs.ErrUnsafeArchive, p, err)
	}
	if !rootfs.Within(realRoot, resolved) {
		return fmt.Errorf("%w: %s resolves to %s, outside of the root", errdefs.ErrUnsafeArchive, p, resolved)
	}
	return nil
}

// checkLinks runs checkInside on every symlink below realRoot.
func checkLinks(realRoot string) error {
	return filepath.WalkDir(realRoot, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&os.ModeSymlink == 0 {
			return nil
		}
		return checkInside(realRoot, p)
	})
}

// symlinkTarget re-roots link, the target of the symlink recorded at orig.
func symlinkTarget(root, orig, link string) string {
	if path.IsAbs(link) {
		return rootfs.Join(root, link)
	}
	resolved := path.Join(path.Dir(orig), link)
	inRoot := filepath.Join(filepath.Dir(rootfs.Join(root, orig)), link)
	if !rootfs.Within(root, inRoot) {
		return rootfs.Join(root, resolved)
	}
	return link
}

func applyAttrs(dest string, hdr *tar.Header, restoreOwner bool) error {
	if restoreOwner {
		if err := unix.Lchown(dest, hdr.Uid, hdr.Gid); err != nil {
			return fmt.Errorf("failed to restore owner of %s: %w", dest, err)
		}
	}
	if hdr.Typeflag == tar.TypeSymlink {
		atime := unix.NsecToTimeval(accessTime(hdr).UnixNano())
		mtime := unix.NsecToTimeval(hdr.ModTime.UnixNano())
		// not critical, some filesystems refuse it
		_ = unix.Lutimes(dest, []unix.Timeval{atime, mtime})
		return nil
	}
	if err := unix.Chmod(dest, uint32(hdr.Mode&0o7777)); err != nil {
		return fmt.Errorf("failed to set mode of %s: %w", dest, err)
	}
	if err := os.Chtimes(dest, accessTime(hdr), hdr.ModTime); err != nil {
		return fmt.Errorf("failed to set times for %s: %w", dest, err)
	}
	return nil
}

func accessTime(hdr *tar.Header) time.Time {
	if hdr.AccessTime.IsZero() {
		return hdr.ModTime
	}
	return hdr.AccessTime
}
