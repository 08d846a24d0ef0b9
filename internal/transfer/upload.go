package transfer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sys/unix"

	"reprounzip/internal/errdefs"
	"reprounzip/internal/pack"
	"reprounzip/internal/rootfs"
	"reprounzip/internal/target"
)

// UploadSpec is "localfile:role", or ":role" to restore the original.
type UploadSpec struct {
	Local string
	Role  string
}

// ParseUploadSpec splits at the last colon so local paths may contain one.
func ParseUploadSpec(s string) (UploadSpec, error) {
	i := strings.LastIndex(s, ":")
	if i < 0 || i == len(s)-1 {
		return UploadSpec{}, errdefs.Usagef("invalid file specification %q, expected [localfile]:role", s)
	}
	return UploadSpec{Local: s[:i], Role: s[i+1:]}, nil
}

// Uploader replaces input files of a target.
type Uploader struct {
	Target       *target.Target
	Config       *pack.Config
	RestoreOwner bool
	Logger       hclog.Logger
}

// List prints every input role and what it is currently set to.
func (u *Uploader) List(w io.Writer) {
	fmt.Fprintln(w, "Input files:")
	for i, run := range u.Config.Runs {
		if len(u.Config.Runs) > 1 {
			fmt.Fprintf(w, "  Run %s:\n", u.Config.RunID(i))
		}
		for _, name := range pack.SortedKeys(run.InputFiles) {
			assigned := "(original)"
			if local := u.Target.Record.InputFiles[name]; local != "" {
				assigned = local
			}
			fmt.Fprintf(w, "    %s: %s\n", name, assigned)
		}
	}
}

// Upload applies every spec. A failing spec does not stop the others; all
// failures are returned together. The record is updated in memory only.
func (u *Uploader) Upload(specs []string) error {
	var errs []error
	for _, s := range specs {
		spec, err := ParseUploadSpec(s)
		if err == nil {
			err = u.uploadOne(spec)
		}
		if err != nil {
			u.Logger.Error("upload failed", "spec", s, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (u *Uploader) uploadOne(spec UploadSpec) error {
	orig, ok := u.Config.InputPath(spec.Role)
	if !ok {
		return errdefs.Usagef("invalid input file %q", spec.Role)
	}
	remote := rootfs.Join(u.Target.Root(), orig)

	if spec.Local == "" {
		if _, err := os.Lstat(remote); err != nil {
			return fmt.Errorf("%w: input %s is absent from the target", errdefs.ErrMissingFile, orig)
		}
		tmp, err := os.CreateTemp(u.Target.Dir, ".reprozip_input_*")
		if err != nil {
			return err
		}
		tmp.Close()
		defer os.Remove(tmp.Name())

		u.Logger.Debug("restoring input file", "path", orig)
		hdr, err := ExtractInput(u.Target.InputsArchive(), orig, tmp.Name())
		if err != nil {
			return err
		}
		if err := u.copyOver(tmp.Name(), remote, uint32(hdr.Mode&0o7777), hdr.Uid, hdr.Gid); err != nil {
			return err
		}
		delete(u.Target.Record.InputFiles, spec.Role)
		return nil
	}

	local, err := filepath.Abs(spec.Local)
	if err != nil {
		return err
	}
	if _, err := os.Stat(local); err != nil {
		return fmt.Errorf("%w: local file %s", errdefs.ErrMissingFile, local)
	}
	var st unix.Stat_t
	if err := unix.Stat(remote, &st); err != nil {
		return fmt.Errorf("%w: input %s is absent from the target", errdefs.ErrMissingFile, orig)
	}
	u.Logger.Debug("uploading file", "local", local, "path", orig)
	if err := u.copyOver(local, remote, st.Mode&0o7777, int(st.Uid), int(st.Gid)); err != nil {
		return err
	}
	if u.Target.Record.InputFiles == nil {
		u.Target.Record.InputFiles = make(map[string]string)
	}
	u.Target.Record.InputFiles[spec.Role] = local
	return nil
}

// copyOver copies src onto the existing file dst in place, then reapplies mode and, when
// restoring owners, uid and gid.
func (u *Uploader) copyOver(src, dst string, mode uint32, uid, gid int) error {
	return rootfs.WithWritableDir(filepath.Dir(dst), u.Logger, func() error {
		in, err := os.Open(src)
		if err != nil {
			return err
		}
		defer in.Close()

		if err := unix.Chmod(dst, mode|0o600); err != nil {
			return err
		}
		out, err := os.OpenFile(dst, os.O_TRUNC|os.O_WRONLY, 0)
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
		if u.RestoreOwner {
			if err := os.Lchown(dst, uid, gid); err != nil {
				return err
			}
		}
		return unix.Chmod(dst, mode)
	})
}
