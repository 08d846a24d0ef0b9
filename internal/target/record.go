// Package target manages an unpacked experiment directory and the record
// persisted inside it.
package target

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/moby/sys/atomicwriter"
	"gopkg.in/yaml.v3"

	"reprounzip/internal/errdefs"
)

// RecordFile is the hidden record kept at the top of every target.
const RecordFile = ".reprounzip"

// RecordVersion is the only record layout this build reads.
const RecordVersion = 1

// Kind names the unpacker that created a target.
type Kind string

const (
	KindDirectory Kind = "directory"
	KindChroot    Kind = "chroot"
)

// Record is the persisted per-target state.
type Record struct {
	Version  int  `yaml:"version"`
	Unpacker Kind `yaml:"unpacker"`
	Mounted  bool `yaml:"mounted,omitempty"`
	// InputFiles maps an input role to the local file that replaced it.
	InputFiles map[string]string `yaml:"input_files,omitempty"`
}

// Target is an unpacked experiment.
type Target struct {
	Dir    string
	Record Record
}

// New prepares the record for a fresh target without touching the disk.
func New(dir string, kind Kind) (*Target, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &Target{Dir: abs, Record: Record{Version: RecordVersion, Unpacker: kind}}, nil
}

// Open reads the record of an existing target. A non-empty kind must match
// the recorded unpacker.
func Open(dir string, kind Kind) (*Target, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return nil, errdefs.Usagef("target directory %s does not exist", abs)
	}
	data, err := os.ReadFile(filepath.Join(abs, RecordFile))
	if err != nil {
		return nil, errdefs.Usagef("%s is not an unpacked experiment: %v", abs, err)
	}
	var rec Record
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("corrupted record in %s: %w", abs, err)
	}
	if rec.Version != RecordVersion {
		return nil, errdefs.Usagef("%s was unpacked by an incompatible version (record version %d)", abs, rec.Version)
	}
	switch rec.Unpacker {
	case KindDirectory, KindChroot:
	default:
		return nil, fmt.Errorf("corrupted record in %s: unknown unpacker %q", abs, rec.Unpacker)
	}
	if kind != "" && rec.Unpacker != kind {
		return nil, errdefs.Usagef("%s was not created by the %s unpacker (it is a %s target)", abs, kind, rec.Unpacker)
	}
	return &Target{Dir: abs, Record: rec}, nil
}

// Save replaces the record as a whole.
func (t *Target) Save() error {
	data, err := yaml.Marshal(&t.Record)
	if err != nil {
		return err
	}
	return atomicwriter.WriteFile(filepath.Join(t.Dir, RecordFile), data, 0o644)
}

// Root is the reconstructed filesystem root.
func (t *Target) Root() string { return filepath.Join(t.Dir, "root") }

// ConfigPath is the extracted pack configuration.
func (t *Target) ConfigPath() string { return filepath.Join(t.Dir, "config.yml") }

// InputsArchive holds the pristine copies of the input files.
func (t *Target) InputsArchive() string { return filepath.Join(t.Dir, "inputs.tar.gz") }
