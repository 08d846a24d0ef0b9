package rootfs

import (
	"path/filepath"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
	"pgregory.net/rapid"
)

func TestJoin(t *testing.T) {
	cases := []struct {
		root, path, want string
	}{
		{"/tmp/exp/root", "/usr/bin/python", "/tmp/exp/root/usr/bin/python"},
		{"/tmp/exp/root", "/", "/tmp/exp/root"},
		{"/tmp/exp/root/", "/home/user/", "/tmp/exp/root/home/user"},
		{"/tmp/exp/root", "/../../etc/passwd", "/tmp/exp/root/etc/passwd"},
		{"/tmp/exp/root", "/a/../../b", "/tmp/exp/root/b"},
		{"/", "/usr/lib", "/usr/lib"},
	}
	for _, tc := range cases {
		assert.Equal(t, Join(tc.root, tc.path), tc.want, "Join(%q, %q)", tc.root, tc.path)
	}
}

func TestJoinNeverEscapes(t *testing.T) {
	segment := rapid.SampledFrom([]string{"..", ".", "", "usr", "lib", "a b", "x..y", "/"})
	rapid.Check(t, func(t *rapid.T) {
		root := "/" + strings.Join(rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,6}`), 1, 4).Draw(t, "root"), "/")
		path := "/" + strings.Join(rapid.SliceOf(segment).Draw(t, "segments"), "/")
		got := Join(root, path)
		if !Within(root, got) {
			t.Fatalf("Join(%q, %q) = %q escapes root", root, path, got)
		}
	})
}

func TestWithin(t *testing.T) {
	assert.Assert(t, Within("/tmp/root", "/tmp/root"))
	assert.Assert(t, Within("/tmp/root", "/tmp/root/bin"))
	assert.Assert(t, !Within("/tmp/root", "/tmp/rootkit"))
	assert.Assert(t, !Within("/tmp/root", "/tmp"))
	assert.Assert(t, Within("/", "/etc"))
}

func TestComponents(t *testing.T) {
	assert.DeepEqual(t, Components("/a/b/c"), []string{"/", "a", "b", "c"})
	assert.DeepEqual(t, Components("/"), []string{"/"})
	assert.DeepEqual(t, Components(filepath.Join("/x", "y/")), []string{"/", "x", "y"})
}
