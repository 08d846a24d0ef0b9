package pack

import (
	"archive/tar"
	"bytes"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/moby/sys/atomicwriter"
	"github.com/ulikunitz/xz"

	"reprounzip/internal/errdefs"
)

const (
	// MetadataMember is the archive member holding the pack configuration.
	MetadataMember = "METADATA/config.yml"
	// DataPrefix prefixes every member mirroring an original file.
	DataPrefix = "DATA/"
)

// Compression is the outer compression of a pack.
type Compression int

const (
	None Compression = iota
	Gzip
	Bzip2
	XZ
	Zstd
)

func (c Compression) String() string {
	return [...]string{"tar", "gzip", "bzip2", "xz", "zstd"}[c]
}

var errStopWalk = errors.New("stop walking archive")

// Pack is an opened pack archive. The tar stream is sequential, so every
// operation reopens the file and makes its own pass.
type Pack struct {
	Path        string
	Compression Compression
	logger      hclog.Logger
}

// Open checks that path is a tar archive in a supported compression.
func Open(path string, logger hclog.Logger) (*Pack, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header := make([]byte, 512)
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("%w: %s: %v", errdefs.ErrArchive, path, err)
	}
	comp, ok := sniff(header[:n])
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a pack", errdefs.ErrArchive, path)
	}
	logger.Debug("opened pack", "path", path, "compression", comp)
	return &Pack{Path: path, Compression: comp, logger: logger}, nil
}

func sniff(header []byte) (Compression, bool) {
	switch {
	case bytes.HasPrefix(header, []byte{0x1f, 0x8b}):
		return Gzip, true
	case bytes.HasPrefix(header, []byte("BZh")):
		return Bzip2, true
	case bytes.HasPrefix(header, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}):
		return XZ, true
	case bytes.HasPrefix(header, []byte{0x28, 0xb5, 0x2f, 0xfd}):
		return Zstd, true
	case len(header) >= 262 && string(header[257:262]) == "ustar":
		return None, true
	}
	return None, false
}

// walk calls fn for every member. fn may return errStopWalk to end early.
func (p *Pack) walk(fn func(hdr *tar.Header, r io.Reader) error) error {
	f, err := os.Open(p.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	switch p.Compression {
	case Gzip:
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("%w: %v", errdefs.ErrArchive, err)
		}
		defer gz.Close()
		r = gz
	case Bzip2:
		r = bzip2.NewReader(f)
	case XZ:
		xzr, err := xz.NewReader(f)
		if err != nil {
			return fmt.Errorf("%w: %v", errdefs.ErrArchive, err)
		}
		r = xzr
	case Zstd:
		zst, err := zstd.NewReader(f)
		if err != nil {
			return fmt.Errorf("%w: %v", errdefs.ErrArchive, err)
		}
		defer zst.Close()
		r = zst
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if errors.Is(err, tar.ErrInsecurePath) {
			return fmt.Errorf("%w: %q", errdefs.ErrUnsafeArchive, hdr.Name)
		}
		if err != nil {
			return fmt.Errorf("%w: error reading tar header in %s: %v", errdefs.ErrArchive, p.Path, err)
		}
		if err := fn(hdr, tr); err != nil {
			if errors.Is(err, errStopWalk) {
				return nil
			}
			return err
		}
	}
}

// readMember returns the content of the named member.
func (p *Pack) readMember(name string) ([]byte, error) {
	var data []byte
	found := false
	err := p.walk(func(hdr *tar.Header, r io.Reader) error {
		if hdr.Name != name {
			return nil
		}
		b, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		data, found = b, true
		return errStopWalk
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s has no %s member", errdefs.ErrArchive, p.Path, name)
	}
	return data, nil
}

// Config parses the metadata member.
func (p *Pack) Config() (*Config, error) {
	data, err := p.readMember(MetadataMember)
	if err != nil {
		return nil, err
	}
	return ParseConfig(bytes.NewReader(data))
}

// ExtractMetadata writes the metadata member to dest.
func (p *Pack) ExtractMetadata(dest string) error {
	data, err := p.readMember(MetadataMember)
	if err != nil {
		return err
	}
	return atomicwriter.WriteFile(dest, data, 0o644)
}

// unsafeName reports whether a member name is absolute or has a parent
// directory segment.
func unsafeName(name string) bool {
	if strings.HasPrefix(name, "/") {
		return true
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

// ValidateAndList checks every member of the pack and returns the original
// absolute paths of the data members. Nothing is written.
func (p *Pack) ValidateAndList() ([]string, error) {
	var paths []string
	err := p.walk(func(hdr *tar.Header, _ io.Reader) error {
		if unsafeName(hdr.Name) {
			return fmt.Errorf("%w: %q", errdefs.ErrUnsafeArchive, hdr.Name)
		}
		if hdr.Typeflag == tar.TypeLink && unsafeName(hdr.Linkname) {
			return fmt.Errorf("%w: hard link %q -> %q", errdefs.ErrUnsafeArchive, hdr.Name, hdr.Linkname)
		}
		if rel, ok := strings.CutPrefix(hdr.Name, DataPrefix); ok && strings.Trim(rel, "/") != "" {
			paths = append(paths, path.Clean("/"+rel))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}
