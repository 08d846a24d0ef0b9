package cli

import (
	"github.com/spf13/cobra"

	"reprounzip/internal/errdefs"
	"reprounzip/internal/privilege"
	"reprounzip/internal/target"
	"reprounzip/internal/unpacker"
)

const specHelp = `
Upload specifications are either:
  :input_id             restores the original input file from the pack
  filename:input_id     replaces the input file with the specified local file

Download specifications are either:
  output_id:            prints the output file to stdout
  output_id:filename    extracts the output file to the corresponding local path
  output_id             extracts the output file next to the current directory`

func (a *app) directoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "directory",
		Short: "Unpacks the files in a directory and runs with PATH and LD_LIBRARY_PATH",
		Long: `Unpacks the files in a directory and runs with PATH and LD_LIBRARY_PATH.

Only the files of packages that were packed are extracted; the others are
expected on the host.
` + specHelp,
	}
	d := func() *unpacker.Directory { return &unpacker.Directory{Env: a.env} }

	cmd.AddCommand(&cobra.Command{
		Use:   "setup <pack> <target>",
		Short: "Creates the directory (needs the pack filename)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return d().Setup(unpacker.SetupOptions{Pack: args[0], Target: args[1]})
		},
	})
	cmd.AddCommand(a.runCommand(func() unpacker.Unpacker { return d() }, false))
	cmd.AddCommand(a.uploadCommand(target.KindDirectory, false))
	cmd.AddCommand(a.downloadCommand(target.KindDirectory))
	cmd.AddCommand(&cobra.Command{
		Use:   "destroy <target>",
		Short: "Removes the unpacked directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return d().Destroy(args[0])
		},
	})
	return cmd
}

type ownerFlags struct {
	preserve, dont bool
}

func (o *ownerFlags) add(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.preserve, "preserve-owner", false, "restore files' owner/group when extracting")
	cmd.Flags().BoolVar(&o.dont, "dont-preserve-owner", false, "don't restore files' owner/group when extracting, use current users")
	cmd.MarkFlagsMutuallyExclusive("preserve-owner", "dont-preserve-owner")
}

func (o *ownerFlags) request() (privilege.Request, error) {
	return privilege.FromFlags(o.preserve, o.dont)
}

func (a *app) chrootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chroot",
		Short: "Unpacks the files and runs with chroot",
		Long: `Unpacks the files and runs with chroot.

setup/mount binds /dev and /proc inside the chroot: do NOT rm -rf the
directory after that, use destroy.
` + specHelp,
	}
	c := func() *unpacker.Chroot { return unpacker.NewChroot(a.env) }

	var setupOwner ownerFlags
	var bindMagic, dontBindMagic bool
	setup := &cobra.Command{
		Use:   "setup <pack> <target>",
		Short: "Creates the directory and mounts /dev and /proc when possible",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := setupOwner.request()
			if err != nil {
				return err
			}
			mount, err := privilege.FromFlags(bindMagic, dontBindMagic)
			if err != nil {
				return err
			}
			return c().Setup(unpacker.SetupOptions{Pack: args[0], Target: args[1], RestoreOwner: owner, MountMagicDirs: mount})
		},
	}
	setupOwner.add(setup)
	setup.Flags().BoolVar(&bindMagic, "bind-magic-dirs", false, "mount /dev and /proc inside the chroot")
	setup.Flags().BoolVar(&dontBindMagic, "dont-bind-magic-dirs", false, "don't mount /dev and /proc inside the chroot")
	setup.MarkFlagsMutuallyExclusive("bind-magic-dirs", "dont-bind-magic-dirs")

	var createOwner ownerFlags
	create := &cobra.Command{
		Use:   "setup/create <pack> <target>",
		Short: "Creates the directory (needs the pack filename)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := createOwner.request()
			if err != nil {
				return err
			}
			return c().Create(unpacker.SetupOptions{Pack: args[0], Target: args[1], RestoreOwner: owner})
		},
	}
	createOwner.add(create)

	cmd.AddCommand(setup, create,
		&cobra.Command{
			Use:   "setup/mount <target>",
			Short: "Mounts --bind /dev and /proc inside the chroot",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c().Mount(args[0])
			},
		},
		a.runCommand(func() unpacker.Unpacker { return c() }, true),
		a.uploadCommand(target.KindChroot, true),
		a.downloadCommand(target.KindChroot),
		&cobra.Command{
			Use:   "destroy/unmount <target>",
			Short: "Unmounts /dev and /proc from the directory",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c().Unmount(args[0])
			},
		},
		&cobra.Command{
			Use:   "destroy/dir <target>",
			Short: "Removes the unpacked directory, refusing while it may still be mounted",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c().DestroyDir(args[0])
			},
		},
		&cobra.Command{
			Use:   "destroy <target>",
			Short: "Unmounts /dev and /proc if needed, then removes the directory",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c().Destroy(args[0])
			},
		},
	)
	return cmd
}

func (a *app) runCommand(u func() unpacker.Unpacker, displayFlag bool) *cobra.Command {
	var opts unpacker.RunOptions
	cmd := &cobra.Command{
		Use:   "run <target> [runs]",
		Short: "Runs the experiment",
		Long: `Runs the experiment.

runs is a comma separated list of run ids, indices and ranges such as 0-2;
all runs are executed by default. --cmdline takes every following argument
as the command line to execute instead of the recorded one; with nothing
after it, the recorded command lines are printed.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Target = args[0]
			if len(args) > 1 {
				opts.Runs = args[1]
			}
			if a.hasCmdline {
				opts.Cmdline = a.cmdline
			}
			status, err := u().Run(opts)
			if err != nil {
				return err
			}
			if status != 0 {
				return &errdefs.ExitStatus{Code: status}
			}
			return nil
		},
	}
	cmd.Flags().Bool("cmdline", false, "command line to run instead of the recorded one (consumes the remaining arguments)")
	cmd.Flags().BoolVar(&opts.X11, "enable-x11", false, "enable X11 support (needs an X server on the host)")
	if displayFlag {
		cmd.Flags().IntVar(&opts.X11Display, "x11-display", 0,
			"display number to use on the experiment side (change the host display with the DISPLAY environment variable)")
	}
	return cmd
}

func (a *app) uploadCommand(kind target.Kind, withOwner bool) *cobra.Command {
	var owner ownerFlags
	cmd := &cobra.Command{
		Use:   "upload <target> [<path>:<input_id>...]",
		Short: "Replaces input files in the directory (without arguments, lists input files)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := owner.request()
			if err != nil {
				return err
			}
			return unpacker.Upload(a.env, kind, args[0], args[1:], req)
		},
	}
	if withOwner {
		owner.add(cmd)
	}
	return cmd
}

func (a *app) downloadCommand(kind target.Kind) *cobra.Command {
	return &cobra.Command{
		Use:   "download <target> [<output_id>:<path>...]",
		Short: "Gets output files (without arguments, lists output files)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return unpacker.Download(a.env, kind, args[0], args[1:])
		},
	}
}
