// Package environ rebuilds the environment of a recorded run inside a
// reconstructed root: library search path, PATH, variables and arguments.
package environ

import (
	"bufio"
	"io"
	"os/exec"
	"strings"

	"reprounzip/internal/executor"
)

// LibraryDirs asks the host dynamic linker cache for its search directories,
// in the order ldconfig lists them. A non-zero exit of ldconfig is logged
// and the directories seen so far are kept.
func LibraryDirs(ex *executor.Executor, ldconfig string) ([]string, error) {
	var dirs []string
	cmd := exec.Command(ldconfig, "-v", "-N")
	cmd.Stderr = io.Discard
	err := ex.Lines(cmd, func(line string) {
		if dir, ok := libraryHeader(line); ok {
			dirs = append(dirs, dir)
		}
	})
	if err != nil {
		if _, isExit := executor.Status(err); !isExit {
			return nil, err
		}
		ex.Logger.Warn("ldconfig exited with an error", "error", err)
	}
	ex.Logger.Debug("library directories", "dirs", dirs)
	return dirs, nil
}

// ParseLibraryDirs extracts the directory headers from ldconfig -v output.
func ParseLibraryDirs(r io.Reader) []string {
	var dirs []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if dir, ok := libraryHeader(sc.Text() + "\n"); ok {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// libraryHeader recognizes "dir:" lines. Newer glibc appends the source of
// the entry, as in "/usr/lib/x86_64-linux-gnu: (from /etc/ld.so.conf.d/x.conf:3)".
func libraryHeader(line string) (string, bool) {
	if len(line) < 3 || line[0] == ' ' || line[0] == '\t' {
		return "", false
	}
	line = strings.TrimRight(line, "\r\n")
	if dir, ok := strings.CutSuffix(line, ":"); ok {
		return dir, dir != ""
	}
	if dir, _, ok := strings.Cut(line, ": (from "); ok && dir != "" {
		return dir, true
	}
	return "", false
}
