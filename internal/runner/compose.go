package runner

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/alessio/shellescape"

	"reprounzip/internal/environ"
	"reprounzip/internal/pack"
	"reprounzip/internal/rootfs"
)

// Step is the command for one run: where to start, the complete
// environment and the arguments.
type Step struct {
	Dir  string
	Env  map[string]string
	Argv []string
	// Rewritten is set when arguments were pointed into the root.
	Rewritten bool
}

// envOrder lists the variables exported after the recorded ones.
var envOrder = []string{"LD_LIBRARY_PATH", "PATH"}

// Shell renders the step as "cd DIR && /usr/bin/env -i K=V ... ARGV" with
// every token escaped on its own.
func (s Step) Shell() string {
	var b strings.Builder
	b.WriteString("cd ")
	b.WriteString(shellescape.Quote(s.Dir))
	b.WriteString(" && /usr/bin/env -i")

	keys := make([]string, 0, len(s.Env))
	for k := range s.Env {
		if k != "LD_LIBRARY_PATH" && k != "PATH" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range envOrder {
		if _, ok := s.Env[k]; ok {
			keys = append(keys, k)
		}
	}
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(shellescape.Quote(k + "=" + s.Env[k]))
	}
	for _, a := range s.Argv {
		b.WriteByte(' ')
		b.WriteString(shellescape.Quote(a))
	}
	return b.String()
}

// DirectoryOptions carries what a directory run needs besides the run.
type DirectoryOptions struct {
	Root        string
	LibraryDirs []string
	Cmdline     []string
	X11         bool
	LookupEnv   func(string) (string, bool)
}

// DirectoryStep translates run into root: working directory, library path,
// PATH and arguments, unless Cmdline overrides the arguments.
func DirectoryStep(run pack.Run, opts DirectoryOptions) Step {
	env := environ.RunEnviron(run.Environ, opts.X11, opts.LookupEnv)
	env["LD_LIBRARY_PATH"] = environ.LibraryPath(opts.Root, opts.LibraryDirs)
	env["PATH"] = environ.SearchPath(opts.Root, run.Environ["PATH"])

	step := Step{Dir: rootfs.Join(opts.Root, run.WorkingDir), Env: env}
	if opts.Cmdline != nil {
		step.Argv = opts.Cmdline
	} else {
		step.Argv, step.Rewritten = environ.RewriteArgs(opts.Root, run.Argv)
	}
	return step
}

// ChrootStep keeps run's own paths since it executes inside the jail. The
// recorded binary replaces argv[0]. extra variables, if any, are added.
func ChrootStep(run pack.Run, cmdline []string, extra map[string]string) Step {
	env := make(map[string]string, len(run.Environ)+len(extra))
	for k, v := range run.Environ {
		env[k] = v
	}
	for k, v := range extra {
		env[k] = v
	}
	argv := cmdline
	if argv == nil {
		argv = append([]string{run.Binary}, run.Argv[1:]...)
	}
	return Step{Dir: run.WorkingDir, Env: env, Argv: argv}
}

// ChrootCommand wraps a step so it runs as uid:gid inside root.
func ChrootCommand(root string, uid, gid int, step Step) string {
	return fmt.Sprintf("chroot --userspec=%d:%d %s /bin/sh -c %s",
		uid, gid, shellescape.Quote(root), shellescape.Quote(step.Shell()))
}

// Chain joins the per-run commands so a failing run stops the chain.
func Chain(cmds []string) string {
	return strings.Join(cmds, " && ")
}

// PrintCmdlines writes the recorded command line of each selected run.
func PrintCmdlines(w io.Writer, cfg *pack.Config, selected []int) {
	for _, i := range selected {
		fmt.Fprintf(w, "%s: %s\n", cfg.RunID(i), shellescape.QuoteCommand(cfg.Runs[i].Argv))
	}
}
