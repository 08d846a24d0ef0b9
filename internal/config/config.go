// Package config loads /etc/reprounzip.conf and the REPROUNZIP_* overrides.
package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// DefaultPath is read when no --config flag is given.
const DefaultPath = "/etc/reprounzip.conf"

const envPrefix = "REPROUNZIP_"

// Recognized keys.
const (
	KeyBusyboxURL  = "BUSYBOX_URL"
	KeyLdconfig    = "LDCONFIG"
	KeyCacheDir    = "CACHE_DIR"
	KeyLogLevel    = "LOG_LEVEL"
	KeyS3Region    = "S3_REGION"
	KeyS3Endpoint  = "S3_ENDPOINT"
	KeyS3AccessKey = "S3_ACCESS_KEY_ID"
	KeyS3SecretKey = "S3_SECRET_ACCESS_KEY"
	KeyX11Display  = "X11_DISPLAY"
)

// DefaultBusyboxURL is formatted with the busybox build name of the
// experiment architecture.
const DefaultBusyboxURL = "https://busybox.net/downloads/binaries/1.35.0-%s/busybox"

// Config holds key=value settings.
type Config struct {
	Values map[string]string
}

// Load reads path, then merges REPROUNZIP_* environment overrides. A missing
// file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{Values: make(map[string]string)}

	file, err := os.Open(path)
	if err == nil {
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			key, val, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			key = strings.TrimPrefix(strings.TrimSpace(key), envPrefix)
			cfg.Values[key] = strings.Trim(strings.TrimSpace(val), `"'`)
		}
		if err := scanner.Err(); err != nil {
			return cfg, err
		}
	} else if !os.IsNotExist(err) {
		return cfg, err
	}

	mergeEnvOverrides(cfg)
	return cfg, nil
}

func mergeEnvOverrides(cfg *Config) {
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, envPrefix) {
			continue
		}
		key, val, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		cfg.Values[strings.TrimPrefix(key, envPrefix)] = val
	}
}

// Get returns the value for key or def when unset.
func (c *Config) Get(key, def string) string {
	if c == nil {
		return def
	}
	if v := c.Values[key]; v != "" {
		return v
	}
	return def
}

// BusyboxURL returns the download URL template for busybox.
func (c *Config) BusyboxURL() string {
	return c.Get(KeyBusyboxURL, DefaultBusyboxURL)
}

// Ldconfig returns the ldconfig binary used for library discovery.
func (c *Config) Ldconfig() string {
	return c.Get(KeyLdconfig, "/sbin/ldconfig")
}

// CacheDir is where remote packs are downloaded to.
func (c *Config) CacheDir() string {
	if dir := c.Get(KeyCacheDir, ""); dir != "" {
		return dir
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "reprounzip")
	}
	return filepath.Join(os.TempDir(), "reprounzip-cache")
}
