package environ

import (
	"path/filepath"
	"strings"

	"reprounzip/internal/rootfs"
)

// LibraryPath translates each library directory under root and joins them
// into a search path.
func LibraryPath(root string, dirs []string) string {
	translated := make([]string, len(dirs))
	for i, d := range dirs {
		translated[i] = rootfs.Join(root, d)
	}
	return strings.Join(translated, string(filepath.ListSeparator))
}

// SearchPath builds PATH for a run: the translated absolute entries of the
// recorded PATH come first, then every recorded entry untouched so host
// binaries stay reachable.
func SearchPath(root, recorded string) string {
	entries := strings.Split(recorded, string(filepath.ListSeparator))
	var translated []string
	for _, e := range entries {
		if filepath.IsAbs(e) {
			translated = append(translated, rootfs.Join(root, e))
		}
	}
	return strings.Join(append(translated, entries...), string(filepath.ListSeparator))
}

// RunEnviron returns the recorded environment without PATH. With x11, the
// host DISPLAY and XAUTHORITY found through lookup are passed through.
func RunEnviron(recorded map[string]string, x11 bool, lookup func(string) (string, bool)) map[string]string {
	env := make(map[string]string, len(recorded)+2)
	for k, v := range recorded {
		if k == "PATH" {
			continue
		}
		env[k] = v
	}
	if x11 && lookup != nil {
		for _, k := range []string{"DISPLAY", "XAUTHORITY"} {
			if v, ok := lookup(k); ok {
				env[k] = v
			}
		}
	}
	return env
}
