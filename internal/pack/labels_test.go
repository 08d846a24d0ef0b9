package pack

import (
	"strings"
	"testing"

	"gotest.tools/v3/assert"
	"pgregory.net/rapid"
)

func TestUniqueNames(t *testing.T) {
	u := NewUniqueNames()
	assert.Equal(t, u.Next("test"), "test")
	assert.Equal(t, u.Next("test"), "test_2")
	assert.Equal(t, u.Next("test"), "test_3")
	assert.Equal(t, u.Next("test_2"), "test_2_2")
	assert.Equal(t, u.Next("test_"), "test_")
	assert.Equal(t, u.Next("test_"), "test__2")
}

func TestUniqueNamesNeverRepeats(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		proposals := rapid.SliceOf(rapid.StringMatching(`[ab_]{1,3}(_[23])?`)).Draw(t, "proposals")
		u := NewUniqueNames()
		given := make(map[string]struct{})
		for _, p := range proposals {
			name := u.Next(p)
			if _, dup := given[name]; dup {
				t.Fatalf("name %q handed out twice", name)
			}
			given[name] = struct{}{}
		}
	})
}

func TestLabelFiles(t *testing.T) {
	wd := "/fakeworkingdir"
	runs := []Run{{Argv: []string{"aa", "bb.txt"}, WorkingDir: wd}}
	files := [][]string{{wd + "/aa", "/other/cc.bin", wd + "/bb.txt"}}

	assert.DeepEqual(t, LabelFiles(runs, files), map[string]string{
		"arg0":   wd + "/aa",
		"cc.bin": "/other/cc.bin",
		"arg1":   wd + "/bb.txt",
	})
}

func TestLabelFilesCollisions(t *testing.T) {
	runs := []Run{
		{Argv: []string{"/bin/cat", "/data/in.txt"}, WorkingDir: "/"},
		{Argv: []string{"sort", "in.txt"}, WorkingDir: "/data2"},
	}
	files := [][]string{
		{"/data/in.txt", "/etc/log"},
		{"/data2/in.txt", "/var/log"},
	}
	assert.DeepEqual(t, LabelFiles(runs, files), map[string]string{
		"arg1":   "/data/in.txt",
		"log":    "/etc/log",
		"arg1_2": "/data2/in.txt",
		"log_2":  "/var/log",
	})
}

func TestConfigInputsOutputs(t *testing.T) {
	doc := `version: "1.0"
runs:
- argv: [sort, in.txt]
  workingdir: /data
  input_files: {log: /var/log/x}
inputs_outputs:
- path: /data/in.txt
  read_by_runs: [0]
- name: arg1
  path: /elsewhere
  written_by_runs: [0]
- path: /data/out.txt
  written_by_runs: [0]
`
	cfg, err := ParseConfig(strings.NewReader(doc))
	assert.NilError(t, err)
	assert.DeepEqual(t, cfg.Runs[0].InputFiles, map[string]string{
		"log":    "/var/log/x",
		"arg1_2": "/data/in.txt",
	})
	assert.DeepEqual(t, cfg.Runs[0].OutputFiles, map[string]string{
		"arg1":    "/elsewhere",
		"out.txt": "/data/out.txt",
	})
	p, ok := cfg.InputPath("arg1_2")
	assert.Assert(t, ok)
	assert.Equal(t, p, "/data/in.txt")
}

func TestConfigInputsOutputsBadRun(t *testing.T) {
	doc := `runs:
- argv: [prog]
  workingdir: /
inputs_outputs:
- path: /x
  read_by_runs: [3]
`
	_, err := ParseConfig(strings.NewReader(doc))
	assert.ErrorContains(t, err, "refers to run 3")
}
