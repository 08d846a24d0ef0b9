package pack

import (
	"fmt"
	"path/filepath"
)

// UniqueNames hands out names that have not been seen before, suffixing
// _2, _3 and so on when a proposed name collides.
type UniqueNames struct {
	seen map[string]struct{}
}

// NewUniqueNames returns an empty generator.
func NewUniqueNames() *UniqueNames {
	return &UniqueNames{seen: make(map[string]struct{})}
}

// Insert reserves name without suffixing it.
func (u *UniqueNames) Insert(name string) {
	u.seen[name] = struct{}{}
}

// Next returns name, or the first free name_N with N starting at 2.
func (u *UniqueNames) Next(name string) string {
	attempt := name
	for n := 2; ; n++ {
		if _, taken := u.seen[attempt]; !taken {
			break
		}
		attempt = fmt.Sprintf("%s_%d", name, n)
	}
	u.seen[attempt] = struct{}{}
	return attempt
}

// LabelFiles proposes role names for the files each run touched. A file
// that one of the run's arguments refers to, relative to its working
// directory, is named argN after the argument position; any other file is
// named after its basename. files[i] holds the files of runs[i].
func LabelFiles(runs []Run, files [][]string) map[string]string {
	return labelFiles(NewUniqueNames(), runs, files)
}

func labelFiles(names *UniqueNames, runs []Run, files [][]string) map[string]string {
	labels := make(map[string]string)
	for i, run := range runs {
		if i >= len(files) {
			break
		}
		argPos := make(map[string]int)
		for pos, arg := range run.Argv {
			p := arg
			if !filepath.IsAbs(p) {
				p = filepath.Join(run.WorkingDir, p)
			}
			p = filepath.Clean(p)
			if _, ok := argPos[p]; !ok {
				argPos[p] = pos
			}
		}
		for _, f := range files[i] {
			var proposed string
			if pos, ok := argPos[filepath.Clean(f)]; ok {
				proposed = fmt.Sprintf("arg%d", pos)
			} else {
				proposed = filepath.Base(f)
			}
			labels[names.Next(proposed)] = f
		}
	}
	return labels
}

// InputOutput is one file of the inputs_outputs section, with the indices
// of the runs that read or wrote it. Name may be left empty for the file to
// be labeled.
type InputOutput struct {
	Name          string `yaml:"name,omitempty"`
	Path          string `yaml:"path"`
	ReadByRuns    []int  `yaml:"read_by_runs,omitempty"`
	WrittenByRuns []int  `yaml:"written_by_runs,omitempty"`
}

// assignRoles names the unnamed inputs_outputs entries after the first run
// touching them, then records every entry as an input of the runs reading
// it and an output of the runs writing it. Roles a run already declares are
// kept.
func (c *Config) assignRoles() error {
	if len(c.InputsOutputs) == 0 {
		return nil
	}
	names := NewUniqueNames()
	for _, run := range c.Runs {
		for name := range run.InputFiles {
			names.Insert(name)
		}
		for name := range run.OutputFiles {
			names.Insert(name)
		}
	}
	files := make([][]string, len(c.Runs))
	for _, f := range c.InputsOutputs {
		for _, r := range append(append([]int(nil), f.ReadByRuns...), f.WrittenByRuns...) {
			if r < 0 || r >= len(c.Runs) {
				return fmt.Errorf("invalid pack configuration: %s refers to run %d", f.Path, r)
			}
		}
		if f.Name != "" {
			names.Insert(f.Name)
		}
	}
	for _, f := range c.InputsOutputs {
		if f.Name != "" {
			continue
		}
		if first, ok := firstRun(f); ok {
			files[first] = append(files[first], f.Path)
		}
	}
	byPath := make(map[string]string)
	for name, p := range labelFiles(names, c.Runs, files) {
		byPath[p] = name
	}

	for i := range c.InputsOutputs {
		f := &c.InputsOutputs[i]
		if f.Name == "" {
			f.Name = byPath[f.Path]
		}
		if f.Name == "" {
			continue
		}
		for _, r := range f.ReadByRuns {
			c.Runs[r].InputFiles = addRole(c.Runs[r].InputFiles, f.Name, f.Path)
		}
		for _, r := range f.WrittenByRuns {
			c.Runs[r].OutputFiles = addRole(c.Runs[r].OutputFiles, f.Name, f.Path)
		}
	}
	return nil
}

func firstRun(f InputOutput) (int, bool) {
	first, ok := -1, false
	for _, r := range append(append([]int(nil), f.ReadByRuns...), f.WrittenByRuns...) {
		if !ok || r < first {
			first, ok = r, true
		}
	}
	return first, ok
}

func addRole(m map[string]string, name, p string) map[string]string {
	if m == nil {
		m = make(map[string]string)
	}
	if _, ok := m[name]; !ok {
		m[name] = p
	}
	return m
}
