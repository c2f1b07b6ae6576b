package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/bcnelson/bulk-vm-provisioner/internal/catalog"
)

// Seed returns the command that loads a catalog seed document.
func Seed() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create catalog entities from a YAML or JSON seed file",
		Long: `Create the tenants, sites, clusters, roles, platforms, tags, VRFs, VLANs,
prefixes and IP addresses named in a seed file. Entities that already exist
are skipped, so the same file can be applied repeatedly.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			seed, err := catalog.LoadSeed(file)
			if err != nil {
				return err
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			tx, err := a.Store.BeginTx(ctx)
			if err != nil {
				return err
			}
			sum, err := catalog.Apply(ctx, tx, seed)
			if err != nil {
				_ = tx.Rollback()
				return err
			}
			if err := tx.Commit(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			kinds := make([]string, 0, len(sum.Created))
			for kind := range sum.Created {
				kinds = append(kinds, kind)
			}
			sort.Strings(kinds)
			for _, kind := range kinds {
				fmt.Fprintf(out, "%-13s created %d, skipped %d\n", kind, sum.Created[kind], sum.Skipped[kind])
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to the seed file")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
