package installer

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"gotest.tools/v3/assert"

	"reprounzip/internal/errdefs"
	"reprounzip/internal/pack"
	"reprounzip/internal/packtest"
)

type fakeRunner struct {
	output string
	err    error
	ran    [][]string
}

func (f *fakeRunner) Run(cmd *exec.Cmd) error {
	f.ran = append(f.ran, cmd.Args)
	return f.err
}

func (f *fakeRunner) Lines(cmd *exec.Cmd, fn func(string)) error {
	f.ran = append(f.ran, cmd.Args)
	for _, l := range strings.SplitAfter(f.output, "\n") {
		if l != "" {
			fn(l)
		}
	}
	return f.err
}

var pkgs = []pack.Package{{Name: "libc6"}, {Name: "curl"}, {Name: "ghost"}}

func TestSelect(t *testing.T) {
	for dist, want := range map[string]string{"Ubuntu": "apt", "debian": "apt", "CentOS Linux": "yum", "fedora": "yum"} {
		in, err := Select(dist, &fakeRunner{}, hclog.NewNullLogger())
		assert.NilError(t, err, dist)
		assert.Equal(t, in.Name(), want)
	}
	_, err := Select("gentoo", &fakeRunner{}, hclog.NewNullLogger())
	assert.Assert(t, errors.Is(err, errdefs.ErrNoInstaller))
}

func TestAptQuery(t *testing.T) {
	r := &fakeRunner{output: "libc6:amd64 install ok installed 2.36-9\ncurl deinstall ok config-files 7.88.1\n"}
	a := &Apt{Runner: r, Logger: hclog.NewNullLogger()}
	got, err := a.Query(pkgs)
	assert.NilError(t, err)
	assert.DeepEqual(t, got, map[string]string{"libc6": "2.36-9", "curl": NotInstalled, "ghost": NotInstalled})
	assert.Equal(t, r.ran[0][0], "dpkg-query")
}

func TestAptInstall(t *testing.T) {
	r := &fakeRunner{}
	a := &Apt{Runner: r, Logger: hclog.NewNullLogger()}
	status, err := a.Install(pkgs[:2], true)
	assert.NilError(t, err)
	assert.Equal(t, status, 0)
	assert.DeepEqual(t, r.ran, [][]string{{"apt-get", "install", "-y", "libc6", "curl"}})
}

func TestYumQuery(t *testing.T) {
	r := &fakeRunner{output: "curl 7.76.1-26.el9\npackage ghost is not installed\n"}
	y := &Yum{Runner: r, Logger: hclog.NewNullLogger()}
	got, err := y.Query(pkgs)
	assert.NilError(t, err)
	assert.DeepEqual(t, got, map[string]string{"libc6": NotInstalled, "curl": "7.76.1-26.el9", "ghost": NotInstalled})
}

func TestOSReleaseAndCompatible(t *testing.T) {
	p := filepath.Join(t.TempDir(), "os-release")
	assert.NilError(t, os.WriteFile(p, []byte("# comment\nNAME=\"Debian GNU/Linux\"\nID=debian\nVERSION_ID='12'\n"), 0o644))
	rel, err := ReadOSRelease(p)
	assert.NilError(t, err)
	assert.Equal(t, rel["NAME"], "Debian GNU/Linux")
	assert.Equal(t, rel["VERSION_ID"], "12")

	cfg := packtest.SimpleConfig()
	assert.NilError(t, Compatible(cfg, rel["ID"]))
	assert.ErrorContains(t, Compatible(cfg, "fedora"), "different distributions")
	assert.ErrorContains(t, Compatible(cfg, ""), "not running")
}
