// Package packtest builds small packs for tests.
package packtest

import (
	"archive/tar"
	"os"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/pgzip"
	"gopkg.in/yaml.v3"

	"reprounzip/internal/pack"
)

// Entry is one archive member.
type Entry struct {
	Name     string
	Type     byte
	Body     string
	Mode     int64
	Linkname string
	UID, GID int
}

// File is a regular data member for the original path p.
func File(p, body string, mode int64) Entry {
	return Entry{Name: dataName(p), Type: tar.TypeReg, Body: body, Mode: mode}
}

// Dir is a directory data member.
func Dir(p string, mode int64) Entry {
	return Entry{Name: dataName(p) + "/", Type: tar.TypeDir, Mode: mode}
}

// Symlink is a symbolic link data member.
func Symlink(p, target string) Entry {
	return Entry{Name: dataName(p), Type: tar.TypeSymlink, Linkname: target, Mode: 0o777}
}

// Hardlink is a hard link data member pointing at the original path target.
func Hardlink(p, target string) Entry {
	return Entry{Name: dataName(p), Type: tar.TypeLink, Linkname: dataName(target), Mode: 0o644}
}

// Raw is a member with an arbitrary name, for malformed packs.
func Raw(name, body string) Entry {
	return Entry{Name: name, Type: tar.TypeReg, Body: body, Mode: 0o644}
}

func dataName(p string) string {
	return pack.DataPrefix + strings.TrimPrefix(path.Clean(p), "/")
}

// Write creates a gzip-compressed pack at dest holding cfg as metadata
// followed by entries.
func Write(t testing.TB, dest string, cfg *pack.Config, entries ...Entry) {
	t.Helper()
	f, err := os.Create(dest)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz := pgzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	now := time.Unix(1700000000, 0)

	if cfg != nil {
		meta, err := yaml.Marshal(cfg)
		if err != nil {
			t.Fatal(err)
		}
		entries = append([]Entry{{Name: pack.MetadataMember, Type: tar.TypeReg, Body: string(meta), Mode: 0o644}}, entries...)
	}
	for _, e := range entries {
		hdr := &tar.Header{
			Name:     e.Name,
			Typeflag: e.Type,
			Mode:     e.Mode,
			Linkname: e.Linkname,
			Uid:      e.UID,
			Gid:      e.GID,
			ModTime:  now,
			Format:   tar.FormatPAX,
		}
		if e.Type == tar.TypeReg {
			hdr.Size = int64(len(e.Body))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if e.Type == tar.TypeReg {
			if _, err := tw.Write([]byte(e.Body)); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
}

// SimpleConfig describes a single run of /usr/bin/prog in /home/user.
func SimpleConfig() *pack.Config {
	return &pack.Config{
		Version: "0.8",
		Runs: []pack.Run{{
			Architecture: "x86_64",
			Argv:         []string{"/usr/bin/prog", "-o", "/out/result.txt"},
			Binary:       "/usr/bin/prog",
			Distribution: []string{"debian", "12"},
			Environ:      map[string]string{"PATH": "/usr/local/bin:/usr/bin:/bin", "HOME": "/home/user", "LANG": "C"},
			UID:          1000,
			GID:          1000,
			WorkingDir:   "/home/user",
			InputFiles:   map[string]string{"config": "/home/user/config.ini"},
			OutputFiles:  map[string]string{"result": "/out/result.txt"},
		}},
		Packages: []pack.Package{
			{Name: "prog", Version: "1.0", Packfiles: true, Files: []string{"/usr/bin/prog"}},
			{Name: "coreutils", Version: "9.1", Packfiles: false, Files: []string{"/bin/true"}},
		},
	}
}
