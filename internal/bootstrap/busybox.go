// Package bootstrap provides a shell and env to chroot targets whose pack
// did not capture them.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"

	"reprounzip/internal/pack"
	"reprounzip/internal/rootfs"
)

const (
	// BusyboxPath is where the multi-call binary lands inside the root.
	BusyboxPath = "/bin/busybox"
	shellPath   = "/bin/sh"
	envPath     = "/usr/bin/env"
)

// busyboxBuilds maps recorded architectures to busybox release names.
var busyboxBuilds = map[string]string{
	"x86_64":  "x86_64-linux-musl",
	"amd64":   "x86_64-linux-musl",
	"i386":    "i686-linux-musl",
	"i486":    "i686-linux-musl",
	"i586":    "i686-linux-musl",
	"i686":    "i686-linux-musl",
	"aarch64": "armv8l-linux-musleabihf",
	"armv7l":  "armv7l-linux-musleabihf",
}

// BusyboxURL formats the download URL template for arch.
func BusyboxURL(template, arch string) (string, error) {
	build, ok := busyboxBuilds[strings.ToLower(arch)]
	if !ok {
		return "", fmt.Errorf("no busybox build known for architecture %q", arch)
	}
	if !strings.Contains(template, "%s") {
		return template, nil
	}
	return fmt.Sprintf(template, build), nil
}

// Installer downloads busybox into chroot roots.
type Installer struct {
	URLTemplate string
	Client      *http.Client
	Logger      hclog.Logger
}

// Needed reports whether root lacks /bin/sh or /usr/bin/env. Dangling
// symlinks count as present.
func Needed(root string) bool {
	return !lexists(rootfs.Join(root, shellPath)) || !lexists(rootfs.Join(root, envPath))
}

// Ensure installs busybox in root when Needed, linking the missing shell and
// env to it. The directories it writes to are made writable for the time
// of the install only.
func (i *Installer) Ensure(ctx context.Context, root, arch string) error {
	if !Needed(root) {
		return nil
	}
	url, err := BusyboxURL(i.URLTemplate, arch)
	if err != nil {
		return err
	}
	i.Logger.Info("setting up busybox", "url", url)

	busybox := rootfs.Join(root, BusyboxPath)
	binDir := filepath.Dir(busybox)
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}
	return rootfs.WithWritableDir(binDir, i.Logger, func() error {
		if err := pack.DownloadHTTP(ctx, i.Client, url, busybox); err != nil {
			return err
		}
		if err := os.Chmod(busybox, 0o755); err != nil {
			return err
		}
		for _, p := range []string{shellPath, envPath} {
			if err := i.link(root, p); err != nil {
				return err
			}
		}
		return nil
	})
}

func (i *Installer) link(root, p string) error {
	dest := rootfs.Join(root, p)
	if lexists(dest) {
		return nil
	}
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return rootfs.WithWritableDir(dir, i.Logger, func() error {
		i.Logger.Debug("linking to busybox", "path", p)
		return os.Symlink(BusyboxPath, dest)
	})
}

func lexists(p string) bool {
	_, err := os.Lstat(p)
	return err == nil
}
