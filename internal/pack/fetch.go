package pack

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sys/unix"
	"lukechampine.com/blake3"

	"reprounzip/internal/config"
	"reprounzip/internal/logging"
)

// NewHTTPClient returns the client used for pack and busybox downloads.
func NewHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	// Some mirrors are slow to handshake.
	transport.TLSHandshakeTimeout = 30 * time.Second
	return &http.Client{
		Transport: transport,
		Timeout:   30 * time.Minute,
	}
}

// Fetch returns a local path for src, downloading http(s):// and s3:// packs
// into the cache directory first. Local paths are returned unchanged.
func Fetch(ctx context.Context, src string, cfg *config.Config, logger hclog.Logger) (string, error) {
	u, err := url.Parse(src)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		if _, err := os.Stat(src); err != nil {
			return "", err
		}
		return src, nil
	}

	sum := blake3.Sum256([]byte(src))
	name := hex.EncodeToString(sum[:8]) + "-" + path.Base(u.Path)
	dest := filepath.Join(cfg.CacheDir(), name)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}

	err = withDownloadLock(dest, func() error {
		if _, err := os.Stat(dest); err == nil {
			logger.Debug("using cached pack", "path", dest)
			return nil
		}
		switch u.Scheme {
		case "http", "https":
			return DownloadHTTP(ctx, NewHTTPClient(), src, dest)
		case "s3":
			return downloadS3(ctx, cfg, u.Host, strings.TrimPrefix(u.Path, "/"), dest, logger)
		default:
			return fmt.Errorf("unsupported pack location %q", src)
		}
	})
	if err != nil {
		return "", err
	}
	return dest, nil
}

// withDownloadLock serializes downloads of the same file between processes.
// The lock file stays in the cache so every process locks the same inode.
func withDownloadLock(dest string, fn func() error) error {
	lockPath := dest + ".lock"
	lf, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer lf.Close()
	if err := unix.Flock(int(lf.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("failed to acquire lock for download: %w", err)
	}
	defer unix.Flock(int(lf.Fd()), unix.LOCK_UN)
	return fn()
}

// DownloadHTTP fetches rawURL into dest through a temporary file.
func DownloadHTTP(ctx context.Context, client *http.Client, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download of %s failed: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download of %s failed with status: %s", rawURL, resp.Status)
	}
	return writeDownload(resp.Body, resp.ContentLength, dest, "Downloading "+path.Base(req.URL.Path))
}

func writeDownload(body io.Reader, size int64, dest, description string) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	bar := logging.NewProgress(size, description, true)
	if _, err := io.Copy(io.MultiWriter(tmp, bar), body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write to destination file: %w", err)
	}
	_ = bar.Finish()
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
