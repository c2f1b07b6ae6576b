package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// CheckProfile returns the command that checks the provisioning profile
// against the catalog.
func CheckProfile() *cobra.Command {
	return &cobra.Command{
		Use:   "check-profile",
		Short: "Verify every catalog site has monitoring environments in the profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.CheckProfile(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "profile covers every catalog site")
			return nil
		},
	}
}
