package environ

import (
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"reprounzip/internal/rootfs"
)

// RewriteArgs points absolute path arguments into root. An argument is
// rewritten when its translation exists, or when the translation has more
// than three components and its parent exists: this heuristic catches
// files the run is about to create while leaving short absolute-looking
// strings alone. The flag reports whether anything changed.
func RewriteArgs(root string, argv []string) ([]string, bool) {
	out := make([]string, len(argv))
	copy(out, argv)
	rewritten := false
	for i, arg := range argv {
		if !utf8.ValidString(arg) || !strings.HasPrefix(arg, "/") {
			continue
		}
		rp := rootfs.Join(root, arg)
		if exists(rp) || (len(rootfs.Components(rp)) > 3 && exists(filepath.Dir(rp))) {
			out[i] = rp
			rewritten = true
		}
	}
	return out, rewritten
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
