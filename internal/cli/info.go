package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/alessio/shellescape"
	"github.com/spf13/cobra"

	"reprounzip/internal/installer"
	"reprounzip/internal/pack"
	"reprounzip/internal/target"
	"reprounzip/internal/unpacker"
)

// openPack fetches and opens a pack given on the command line.
func (a *app) openPack(src string) (*pack.Pack, *pack.Config, error) {
	local, err := pack.Fetch(a.ctx, src, a.config, a.logger)
	if err != nil {
		return nil, nil, err
	}
	p, err := pack.Open(local, a.logger)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := p.Config()
	if err != nil {
		return nil, nil, err
	}
	return p, cfg, nil
}

func (a *app) infoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info <pack>",
		Short: "Prints out some information about a pack",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, cfg, err := a.openPack(args[0])
			if err != nil {
				return err
			}
			paths, err := p.ValidateAndList()
			if err != nil {
				return err
			}
			a.printInfo(a.stdout, p, cfg, len(paths))
			return nil
		},
	}
}

func (a *app) printInfo(w io.Writer, p *pack.Pack, cfg *pack.Config, members int) {
	fmt.Fprintf(w, "Pack file: %s\n", p.Path)
	fmt.Fprintln(w, "\n----- Pack information -----")
	fmt.Fprintf(w, "Compression: %s\n", p.Compression)
	fmt.Fprintf(w, "Total paths: %d\n", members)
	fmt.Fprintf(w, "Packed packages: %d\n", len(cfg.Packages)-len(cfg.UnpackedPackages()))
	fmt.Fprintf(w, "Unpacked packages: %d\n", len(cfg.UnpackedPackages()))
	fmt.Fprintf(w, "Other files: %d\n", len(cfg.OtherFiles))

	fmt.Fprintln(w, "\n----- Metadata -----")
	fmt.Fprintf(w, "Format version: %s\n", cfg.Version)
	fmt.Fprintf(w, "Runs (%d):\n", len(cfg.Runs))
	for i, run := range cfg.Runs {
		fmt.Fprintf(w, "    %s: %s\n", cfg.RunID(i), shellescape.QuoteCommand(run.Argv))
		fmt.Fprintf(w, "        wd: %s\n", run.WorkingDir)
		if run.ExitCode != nil {
			fmt.Fprintf(w, "        exitcode: %d\n", *run.ExitCode)
		}
		fmt.Fprintf(w, "        architecture: %s\n", run.Architecture)
		if len(run.Distribution) > 0 {
			fmt.Fprintf(w, "        distribution: %s\n", shellescape.QuoteCommand(run.Distribution))
		}
	}

	fmt.Fprintln(w, "\n----- Unpackers -----")
	var compatible, incompatible []string
	check := func(name string, err error) {
		if err != nil {
			incompatible = append(incompatible, fmt.Sprintf("%s (%v)", name, err))
		} else {
			compatible = append(compatible, name)
		}
	}
	for _, u := range []unpacker.Unpacker{&unpacker.Directory{Env: a.env}, &unpacker.Chroot{Env: a.env}} {
		check(string(u.Kind()), u.Compatible(cfg))
	}
	check("installpkgs", installer.Compatible(cfg, installer.HostDistribution()))
	fmt.Fprintln(w, "Compatible:")
	for _, c := range compatible {
		fmt.Fprintf(w, "    %s\n", c)
	}
	fmt.Fprintln(w, "Incompatible:")
	for _, c := range incompatible {
		fmt.Fprintf(w, "    %s\n", c)
	}
}

func (a *app) showfilesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "showfiles <pack|target>",
		Short: "Prints out input and output file names",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg *pack.Config
			var err error
			if _, serr := os.Stat(filepath.Join(args[0], target.RecordFile)); serr == nil {
				var t *target.Target
				if t, err = target.Open(args[0], ""); err != nil {
					return err
				}
				cfg, err = pack.LoadConfig(t.ConfigPath())
			} else {
				_, cfg, err = a.openPack(args[0])
			}
			if err != nil {
				return err
			}
			printFiles(a.stdout, cfg)
			return nil
		},
	}
}

func printFiles(w io.Writer, cfg *pack.Config) {
	for i, run := range cfg.Runs {
		if len(cfg.Runs) > 1 {
			fmt.Fprintf(w, "Run %s:\n", cfg.RunID(i))
		}
		section := func(title string, files map[string]string) {
			fmt.Fprintf(w, "%s:\n", title)
			for _, name := range pack.SortedKeys(files) {
				fmt.Fprintf(w, "    %s (%s)\n", name, files[name])
			}
		}
		section("Input files", run.InputFiles)
		section("Output files", run.OutputFiles)
	}
}
