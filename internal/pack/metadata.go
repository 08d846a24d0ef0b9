// Package pack reads reprozip packs: the metadata describing the recorded
// runs and the DATA tree mirroring the original machine's files.
package pack

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Run is one recorded invocation.
type Run struct {
	ID           string            `yaml:"id,omitempty"`
	Architecture string            `yaml:"architecture"`
	Argv         []string          `yaml:"argv"`
	Binary       string            `yaml:"binary"`
	Distribution []string          `yaml:"distribution,omitempty"`
	Environ      map[string]string `yaml:"environ"`
	Hostname     string            `yaml:"hostname,omitempty"`
	System       []string          `yaml:"system,omitempty"`
	UID          int               `yaml:"uid"`
	GID          int               `yaml:"gid"`
	WorkingDir   string            `yaml:"workingdir"`
	ExitCode     *int              `yaml:"exitcode,omitempty"`
	InputFiles   map[string]string `yaml:"input_files,omitempty"`
	OutputFiles  map[string]string `yaml:"output_files,omitempty"`
}

// Package is a distribution package the runs depended on. Packfiles tells
// whether its files were captured in the pack or must come from the host.
type Package struct {
	Name      string   `yaml:"name"`
	Version   string   `yaml:"version"`
	Size      int64    `yaml:"size,omitempty"`
	Packfiles bool     `yaml:"packfiles"`
	Files     []string `yaml:"files"`
}

// Config is the parsed METADATA/config.yml.
type Config struct {
	Version    string    `yaml:"version"`
	Runs       []Run     `yaml:"runs"`
	Packages   []Package `yaml:"packages"`
	OtherFiles []string  `yaml:"other_files"`
	// InputsOutputs lists the files the runs read or wrote, as an
	// alternative to per-run input_files and output_files.
	InputsOutputs []InputOutput `yaml:"inputs_outputs,omitempty"`
}

// ParseConfig decodes a config.yml document.
func ParseConfig(r io.Reader) (*Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("invalid pack configuration: %w", err)
	}
	if len(cfg.Runs) == 0 {
		return nil, fmt.Errorf("invalid pack configuration: no runs recorded")
	}
	for i, run := range cfg.Runs {
		if len(run.Argv) == 0 {
			return nil, fmt.Errorf("invalid pack configuration: run %d has no argv", i)
		}
		if run.WorkingDir == "" {
			return nil, fmt.Errorf("invalid pack configuration: run %d has no working directory", i)
		}
	}
	if err := cfg.assignRoles(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfig reads a config.yml extracted into a target.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseConfig(f)
}

// RunID returns the display identifier of run i.
func (c *Config) RunID(i int) string {
	if id := c.Runs[i].ID; id != "" {
		return id
	}
	return fmt.Sprintf("run%d", i)
}

// UnpackedPackages returns the packages whose files were not captured.
func (c *Config) UnpackedPackages() []Package {
	var out []Package
	for _, p := range c.Packages {
		if !p.Packfiles {
			out = append(out, p)
		}
	}
	return out
}

// InputPath finds the original path of the input role name.
func (c *Config) InputPath(name string) (string, bool) {
	for _, run := range c.Runs {
		if p, ok := run.InputFiles[name]; ok {
			return p, true
		}
	}
	return "", false
}

// OutputPath finds the original path of the output role name.
func (c *Config) OutputPath(name string) (string, bool) {
	for _, run := range c.Runs {
		if p, ok := run.OutputFiles[name]; ok {
			return p, true
		}
	}
	return "", false
}

// InputPaths lists every distinct input file path, sorted.
func (c *Config) InputPaths() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, run := range c.Runs {
		for _, p := range run.InputFiles {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DistributionName is the lowercased distribution of the first run.
func (c *Config) DistributionName() string {
	if len(c.Runs[0].Distribution) == 0 {
		return ""
	}
	return strings.ToLower(c.Runs[0].Distribution[0])
}
