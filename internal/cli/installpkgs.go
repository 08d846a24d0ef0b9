package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"reprounzip/internal/errdefs"
	"reprounzip/internal/installer"
	"reprounzip/internal/pack"
)

func (a *app) installpkgsCommand() *cobra.Command {
	var missing, summary, assumeYes bool
	cmd := &cobra.Command{
		Use:   "installpkgs <pack>",
		Short: "Installs the required packages on this system",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := a.openPack(args[0])
			if err != nil {
				return err
			}
			if err := installer.Compatible(cfg, installer.HostDistribution()); err != nil {
				a.logger.Warn("packages might not match this system", "error", err)
			}
			inst, err := installer.Select(cfg.DistributionName(), a.env.Exec.WithInteractive(), a.logger)
			if err != nil {
				return fmt.Errorf("couldn't select a package installer: %w", err)
			}

			pkgs := cfg.Packages
			if missing {
				pkgs = cfg.UnpackedPackages()
			}
			if summary {
				return a.printPackageStatus(inst, pkgs, missing)
			}
			return a.installPackages(inst, pkgs, assumeYes)
		},
	}
	cmd.Flags().BoolVarP(&assumeYes, "assume-yes", "y", false, "assumes yes for package manager's questions (if supported)")
	cmd.Flags().BoolVar(&missing, "missing", false, "only install packages that weren't packed")
	cmd.Flags().BoolVar(&summary, "summary", false, "don't install, print which packages are installed or not")
	return cmd
}

func (a *app) printPackageStatus(inst installer.Installer, pkgs []pack.Package, missing bool) error {
	installed, err := inst.Query(pkgs)
	if err != nil {
		return err
	}
	if missing {
		fmt.Fprintln(a.stdout, "Packages not present in pack:")
	} else {
		fmt.Fprintln(a.stdout, "All packages:")
	}
	for _, p := range pkgs {
		fmt.Fprintf(a.stdout, "    %s (required version: %s, status: %s)\n", p.Name, p.Version, installed[p.Name])
	}
	return nil
}

func (a *app) installPackages(inst installer.Installer, pkgs []pack.Package, assumeYes bool) error {
	if len(pkgs) == 0 {
		a.logger.Info("no package to install")
		return nil
	}
	status, err := inst.Install(pkgs, assumeYes)
	if err != nil {
		return err
	}
	installed, err := inst.Query(pkgs)
	if err != nil {
		return err
	}
	for _, p := range pkgs {
		switch got := installed[p.Name]; got {
		case installer.NotInstalled:
			a.logger.Warn("package was not installed", "package", p.Name)
		case p.Version:
		default:
			a.logger.Warn("a different version was installed", "package", p.Name, "installed", got, "required", p.Version)
		}
	}
	if status != 0 {
		return &errdefs.ExitStatus{Code: status}
	}
	return nil
}
