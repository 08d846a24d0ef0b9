// Package rootfs maps paths from the original machine into a reconstructed
// filesystem root and provides the permission helpers used on that tree.
package rootfs

import (
	"path/filepath"
	"strings"
)

// Join re-roots p, an absolute path as recorded on the original machine,
// under root. Parent segments are resolved against "/" first so the result
// never leaves root.
func Join(root, p string) string {
	rel := strings.TrimPrefix(filepath.Clean("/"+p), "/")
	return filepath.Join(root, rel)
}

// Within reports whether p is root itself or lies below it.
func Within(root, p string) bool {
	root = filepath.Clean(root)
	p = filepath.Clean(p)
	if p == root {
		return true
	}
	if root == "/" {
		return strings.HasPrefix(p, "/")
	}
	return strings.HasPrefix(p, root+"/")
}

// Components splits an absolute path into its root marker and names, so
// "/a/b" gives ["/", "a", "b"].
func Components(p string) []string {
	p = filepath.Clean(p)
	if !filepath.IsAbs(p) {
		return strings.Split(p, "/")
	}
	parts := []string{"/"}
	for _, c := range strings.Split(p, "/") {
		if c != "" {
			parts = append(parts, c)
		}
	}
	return parts
}
