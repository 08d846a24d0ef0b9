// Package transfer moves input and output files in and out of an unpacked
// experiment, keeping pristine copies of the inputs.
package transfer

import (
	"archive/tar"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/klauspost/pgzip"
	"lukechampine.com/blake3"

	"reprounzip/internal/errdefs"
	"reprounzip/internal/rootfs"
)

// digestRecord is the PAX record holding the BLAKE3 digest of a member.
const digestRecord = "REPROUNZIP.blake3"

func memberName(orig string) string {
	return strings.TrimPrefix(path.Clean("/"+orig), "/")
}

func hashFile(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// WriteInputs stores the files at the given original paths, as found under
// root, into a gzip-compressed tar at dest. Files that are missing or not
// regular are skipped with a warning.
func WriteInputs(dest, root string, paths []string, logger hclog.Logger) error {
	out, err := os.CreateTemp(filepath.Dir(dest), ".inputs-*")
	if err != nil {
		return err
	}
	defer os.Remove(out.Name())
	gz := pgzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	werr := func() error {
		for _, orig := range paths {
			src := rootfs.Join(root, orig)
			info, err := os.Lstat(src)
			if err != nil {
				logger.Warn("input file missing from pack", "path", orig)
				continue
			}
			if !info.Mode().IsRegular() {
				logger.Warn("input is not a regular file, no pristine copy kept", "path", orig)
				continue
			}
			digest, err := hashFile(src)
			if err != nil {
				return err
			}
			hdr, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			hdr.Name = memberName(orig)
			hdr.Format = tar.FormatPAX
			hdr.PAXRecords = map[string]string{digestRecord: digest}
			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
			f, err := os.Open(src)
			if err != nil {
				return err
			}
			_, err = io.Copy(tw, f)
			f.Close()
			if err != nil {
				return fmt.Errorf("failed to archive %s: %w", orig, err)
			}
			logger.Debug("kept pristine input", "path", orig)
		}
		if err := tw.Close(); err != nil {
			return err
		}
		return gz.Close()
	}()
	if cerr := out.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return werr
	}
	if err := os.Chmod(out.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(out.Name(), dest)
}

// ExtractInput writes the pristine copy of orig from archive into dest and
// returns its header. The content is checked against the recorded digest.
func ExtractInput(archive, orig, dest string) (*tar.Header, error) {
	f, err := os.Open(archive)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: no pristine copy of %s (no inputs archive)", errdefs.ErrMissingFile, orig)
		}
		return nil, err
	}
	defer f.Close()
	gz, err := pgzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	want := memberName(orig)
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: no pristine copy of %s", errdefs.ErrMissingFile, orig)
		}
		if err != nil {
			return nil, err
		}
		if hdr.Name != want {
			continue
		}
		out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, err
		}
		h := blake3.New(32, nil)
		_, err = io.Copy(io.MultiWriter(out, h), tr)
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, err
		}
		if digest := hdr.PAXRecords[digestRecord]; digest != "" && digest != hex.EncodeToString(h.Sum(nil)) {
			return nil, fmt.Errorf("pristine copy of %s is corrupted", orig)
		}
		return hdr, nil
	}
}
