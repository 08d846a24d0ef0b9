package transfer

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"reprounzip/internal/errdefs"
	"reprounzip/internal/packtest"
	"reprounzip/internal/target"
)

func newTarget(t *testing.T) *target.Target {
	t.Helper()
	tg, err := target.New(t.TempDir(), target.KindDirectory)
	assert.NilError(t, err)
	for p, body := range map[string]string{
		"/home/user/config.ini": "threshold=1\n",
		"/out/result.txt":       "42\n",
	} {
		full := filepath.Join(tg.Root(), p)
		assert.NilError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		assert.NilError(t, os.WriteFile(full, []byte(body), 0o640))
	}
	assert.NilError(t, WriteInputs(tg.InputsArchive(), tg.Root(), []string{"/home/user/config.ini", "/missing"}, hclog.NewNullLogger()))
	return tg
}

func TestParseUploadSpec(t *testing.T) {
	spec, err := ParseUploadSpec("C:/data/in.csv:config")
	assert.NilError(t, err)
	assert.Equal(t, spec, UploadSpec{Local: "C:/data/in.csv", Role: "config"})

	spec, err = ParseUploadSpec(":config")
	assert.NilError(t, err)
	assert.Equal(t, spec.Local, "")

	for _, bad := range []string{"config", "file:"} {
		_, err := ParseUploadSpec(bad)
		assert.Assert(t, errors.Is(err, errdefs.ErrUsage), bad)
	}
}

func TestParseDownloadSpec(t *testing.T) {
	cases := map[string]DownloadSpec{
		"result":         {Role: "result"},
		"result:":        {Role: "result", Stdout: true},
		"result:a:b.txt": {Role: "result", Local: "a:b.txt"},
	}
	for in, want := range cases {
		got, err := ParseDownloadSpec(in)
		assert.NilError(t, err)
		assert.Equal(t, got, want, in)
	}
	_, err := ParseDownloadSpec(":x")
	assert.Assert(t, errors.Is(err, errdefs.ErrUsage))
}

func TestUploadThenRestore(t *testing.T) {
	tg := newTarget(t)
	remote := filepath.Join(tg.Root(), "home/user/config.ini")
	assert.NilError(t, os.Chmod(filepath.Dir(remote), 0o555))
	t.Cleanup(func() { os.Chmod(filepath.Dir(remote), 0o755) })

	local := filepath.Join(t.TempDir(), "mine.ini")
	assert.NilError(t, os.WriteFile(local, []byte("threshold=9\n"), 0o600))

	u := &Uploader{Target: tg, Config: packtest.SimpleConfig(), Logger: hclog.NewNullLogger()}
	assert.NilError(t, u.Upload([]string{local + ":config"}))
	got, err := os.ReadFile(remote)
	assert.NilError(t, err)
	assert.Equal(t, string(got), "threshold=9\n")
	assert.Equal(t, tg.Record.InputFiles["config"], local)

	var list bytes.Buffer
	u.List(&list)
	assert.Assert(t, is.Contains(list.String(), "config: "+local))

	assert.NilError(t, u.Upload([]string{":config"}))
	got, err = os.ReadFile(remote)
	assert.NilError(t, err)
	assert.Equal(t, string(got), "threshold=1\n")
	info, err := os.Stat(remote)
	assert.NilError(t, err)
	assert.Equal(t, info.Mode().Perm(), os.FileMode(0o640))
	assert.Check(t, is.Len(tg.Record.InputFiles, 0))

	dirInfo, err := os.Stat(filepath.Dir(remote))
	assert.NilError(t, err)
	assert.Equal(t, dirInfo.Mode().Perm(), os.FileMode(0o555))

	list.Reset()
	u.List(&list)
	assert.Assert(t, is.Contains(list.String(), "config: (original)"))
}

func TestUploadContinuesAfterFailure(t *testing.T) {
	tg := newTarget(t)
	local := filepath.Join(t.TempDir(), "mine.ini")
	assert.NilError(t, os.WriteFile(local, []byte("x"), 0o600))

	u := &Uploader{Target: tg, Config: packtest.SimpleConfig(), Logger: hclog.NewNullLogger()}
	err := u.Upload([]string{"/nonexistent/file:config", local + ":nosuchrole", local + ":config"})
	assert.Assert(t, errors.Is(err, errdefs.ErrMissingFile))
	assert.Assert(t, errors.Is(err, errdefs.ErrUsage))
	assert.Equal(t, tg.Record.InputFiles["config"], local)
}

func TestRestoreWithoutArchive(t *testing.T) {
	tg := newTarget(t)
	assert.NilError(t, os.Remove(tg.InputsArchive()))
	u := &Uploader{Target: tg, Config: packtest.SimpleConfig(), Logger: hclog.NewNullLogger()}
	err := u.Upload([]string{":config"})
	assert.Assert(t, errors.Is(err, errdefs.ErrMissingFile))
}

func TestRestoreMissingRemote(t *testing.T) {
	tg := newTarget(t)
	remote := filepath.Join(tg.Root(), "home/user/config.ini")
	assert.NilError(t, os.Remove(remote))

	u := &Uploader{Target: tg, Config: packtest.SimpleConfig(), Logger: hclog.NewNullLogger()}
	err := u.Upload([]string{":config"})
	assert.Assert(t, errors.Is(err, errdefs.ErrMissingFile), "%v", err)
	_, err = os.Lstat(remote)
	assert.Assert(t, os.IsNotExist(err), "input was re-created")
}

func TestDownload(t *testing.T) {
	tg := newTarget(t)
	var stdout bytes.Buffer
	d := &Downloader{Target: tg, Config: packtest.SimpleConfig(), Logger: hclog.NewNullLogger(), Stdout: &stdout}

	assert.NilError(t, d.Download([]string{"result:"}))
	assert.Equal(t, stdout.String(), "42\n")

	dest := filepath.Join(t.TempDir(), "copy.txt")
	assert.NilError(t, d.Download([]string{"result:" + dest}))
	got, err := os.ReadFile(dest)
	assert.NilError(t, err)
	assert.Equal(t, string(got), "42\n")
	info, err := os.Stat(dest)
	assert.NilError(t, err)
	assert.Equal(t, info.Mode().Perm(), os.FileMode(0o640))

	var list bytes.Buffer
	d.List(&list)
	assert.Assert(t, strings.HasPrefix(list.String(), "Output files:\n"))
	assert.Assert(t, is.Contains(list.String(), "    result\n"))
}

func TestDownloadMissingOutput(t *testing.T) {
	tg := newTarget(t)
	assert.NilError(t, os.Remove(filepath.Join(tg.Root(), "out/result.txt")))
	d := &Downloader{Target: tg, Config: packtest.SimpleConfig(), Logger: hclog.NewNullLogger(), Stdout: &bytes.Buffer{}}
	err := d.Download([]string{"result:"})
	assert.Assert(t, errors.Is(err, errdefs.ErrMissingFile))
}

func TestExtractInput(t *testing.T) {
	tg := newTarget(t)
	dest := filepath.Join(t.TempDir(), "out")
	hdr, err := ExtractInput(tg.InputsArchive(), "/home/user/config.ini", dest)
	assert.NilError(t, err)
	assert.Equal(t, hdr.Mode&0o777, int64(0o640))

	_, err = ExtractInput(tg.InputsArchive(), "/missing", dest)
	assert.Assert(t, errors.Is(err, errdefs.ErrMissingFile))
}
