// Package cli is the reprounzip command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"reprounzip/internal/config"
	"reprounzip/internal/errdefs"
	"reprounzip/internal/hooks"
	"reprounzip/internal/logging"
	"reprounzip/internal/unpacker"
)

const version = "1.0.0"

// app is the state shared by every command of one invocation.
type app struct {
	ctx        context.Context
	verbosity  int
	configPath string
	// cmdline is what followed --cmdline, split off before flag parsing.
	cmdline    []string
	hasCmdline bool

	stdout io.Writer
	stderr io.Writer

	logger hclog.Logger
	config *config.Config
	env    *unpacker.Env
}

// Main runs the command line and returns the process exit status.
func Main(args []string) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := watchSignals(ctx, cancel, os.Stderr)
	defer stop()

	a := &app{ctx: ctx, stdout: os.Stdout, stderr: os.Stderr}
	return a.execute(args)
}

func (a *app) execute(args []string) int {
	args, a.cmdline, a.hasCmdline = splitCmdline(args)
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	err := root.ExecuteContext(a.ctx)
	a.report(err)
	return errdefs.ExitCode(err)
}

func (a *app) report(err error) {
	var status *errdefs.ExitStatus
	switch {
	case err == nil, errors.As(err, &status):
	case errors.Is(err, errdefs.ErrNothingToDo):
		logging.Notice(a.stderr, "Magic directories were not mounted, nothing to do")
	default:
		logging.Failure(a.stderr, "%v", err)
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "reprounzip",
		Short: "Reproduce experiments packed with reprozip",
		Long: `reprounzip rebuilds the environment captured in a pack and runs the
recorded experiment again, either from a plain directory or in a chroot.`,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.init,
	}
	root.PersistentFlags().CountVarP(&a.verbosity, "verbose", "v", "augments verbosity level (repeatable)")
	root.PersistentFlags().StringVar(&a.configPath, "config", config.DefaultPath, "configuration file")

	root.AddCommand(
		a.versionCommand(),
		a.infoCommand(),
		a.showfilesCommand(),
		a.installpkgsCommand(),
		a.directoryCommand(),
		a.chrootCommand(),
	)
	return root
}

// init loads configuration and builds the logger and environment once
// flags are parsed.
func (a *app) init(cmd *cobra.Command, _ []string) error {
	if a.hasCmdline && cmd.Flags().Lookup("cmdline") == nil {
		return errdefs.Usagef("--cmdline is only accepted by run")
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", a.configPath, err)
	}
	a.config = cfg
	a.logger = logging.New(a.verbosity, a.stderr)

	reg := &hooks.Registry{}
	registerUsageHooks(reg, a.logger)
	a.env = unpacker.NewEnv(a.ctx, a.logger, cfg, reg)
	a.env.Stdout = a.stdout
	a.env.Stderr = a.stderr
	return nil
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(a.stdout, "reprounzip %s\n", version)
			if info, ok := debug.ReadBuildInfo(); ok {
				fmt.Fprintf(a.stdout, "Built with %s\n", info.GoVersion)
			}
			return nil
		},
	}
}

// registerUsageHooks logs a summary of every lifecycle step.
func registerUsageHooks(reg *hooks.Registry, logger hclog.Logger) {
	reg.OnPreSetup(func(ev hooks.SetupEvent) error {
		logger.Debug("setup starting", "unpacker", ev.Kind, "pack", ev.Pack, "target", ev.Target)
		return nil
	})
	reg.OnPostSetup(func(ev hooks.SetupEvent) error {
		logger.Debug("setup finished", "unpacker", ev.Kind, "target", ev.Target)
		return nil
	})
	reg.OnPreRun(func(ev hooks.RunEvent) error {
		logger.Debug("run starting", "target", ev.Target, "runs", ev.Runs)
		return nil
	})
	reg.OnPostRun(func(ev hooks.RunEvent) error {
		logger.Debug("run finished", "target", ev.Target, "status", ev.Status)
		return nil
	})
	reg.OnPreDestroy(func(ev hooks.DestroyEvent) error {
		logger.Debug("destroy starting", "target", ev.Target)
		return nil
	})
	reg.OnPostDestroy(func(ev hooks.DestroyEvent) error {
		logger.Debug("destroy finished", "target", ev.Target)
		return nil
	})
}

// splitCmdline cuts args at the first --cmdline. Everything after it is the
// replacement command line, taken verbatim.
func splitCmdline(args []string) (rest, cmdline []string, found bool) {
	for i, arg := range args {
		if arg == "--cmdline" {
			return args[:i:i], append([]string{}, args[i+1:]...), true
		}
	}
	return args, nil, false
}
