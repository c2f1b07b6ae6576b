// Package commands defines the bulkvm command tree.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/bcnelson/bulk-vm-provisioner/internal/app"
	"github.com/bcnelson/bulk-vm-provisioner/internal/config"
)

// openApp loads configuration and opens storage. Tests replace it.
var openApp = func() (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return app.Open(cfg)
}

// Root returns the root command for the bulkvm CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "bulkvm",
		Short:         "Provision virtual machine inventory from CSV",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(Seed())
	cmd.AddCommand(Import())
	cmd.AddCommand(CheckProfile())

	return cmd
}
