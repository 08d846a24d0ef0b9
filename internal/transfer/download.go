package transfer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"

	"reprounzip/internal/errdefs"
	"reprounzip/internal/pack"
	"reprounzip/internal/rootfs"
	"reprounzip/internal/target"
)

// chunkSize bounds the memory used while streaming an output file.
const chunkSize = 32 * 1024

// DownloadSpec is "role:localfile", "role:" for standard output, or a bare
// role to copy to a file named after the output in the current directory.
type DownloadSpec struct {
	Role   string
	Local  string
	Stdout bool
}

// ParseDownloadSpec splits at the first colon.
func ParseDownloadSpec(s string) (DownloadSpec, error) {
	role, local, hasColon := strings.Cut(s, ":")
	if role == "" {
		return DownloadSpec{}, errdefs.Usagef("invalid file specification %q, expected role[:localfile]", s)
	}
	return DownloadSpec{Role: role, Local: local, Stdout: hasColon && local == ""}, nil
}

// Downloader copies output files out of a target.
type Downloader struct {
	Target *target.Target
	Config *pack.Config
	Logger hclog.Logger
	Stdout io.Writer
}

// List prints the output roles of every run.
func (d *Downloader) List(w io.Writer) {
	fmt.Fprintln(w, "Output files:")
	for i, run := range d.Config.Runs {
		if len(d.Config.Runs) > 1 {
			fmt.Fprintf(w, "  Run %s:\n", d.Config.RunID(i))
		}
		for _, name := range pack.SortedKeys(run.OutputFiles) {
			fmt.Fprintf(w, "    %s\n", name)
		}
	}
}

// Download applies every spec, reporting each failure and returning them
// together.
func (d *Downloader) Download(specs []string) error {
	var errs []error
	for _, s := range specs {
		spec, err := ParseDownloadSpec(s)
		if err == nil {
			err = d.downloadOne(spec)
		}
		if err != nil {
			d.Logger.Error("download failed", "spec", s, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Downloader) downloadOne(spec DownloadSpec) error {
	orig, ok := d.Config.OutputPath(spec.Role)
	if !ok {
		return errdefs.Usagef("invalid output file %q", spec.Role)
	}
	remote := rootfs.Join(d.Target.Root(), orig)
	in, err := os.Open(remote)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: can't get output file %s", errdefs.ErrMissingFile, orig)
		}
		return err
	}
	defer in.Close()

	if spec.Stdout {
		_, err := io.CopyBuffer(d.Stdout, in, make([]byte, chunkSize))
		return err
	}

	local := spec.Local
	if local == "" {
		local = filepath.Base(orig)
	}
	info, err := in.Stat()
	if err != nil {
		return err
	}
	d.Logger.Debug("downloading file", "path", orig, "local", local)
	out, err := os.OpenFile(local, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.CopyBuffer(out, in, make([]byte, chunkSize)); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(local, info.Mode()&(os.ModePerm|os.ModeSetuid|os.ModeSetgid|os.ModeSticky))
}
