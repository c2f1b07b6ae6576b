package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bcnelson/bulk-vm-provisioner/internal/domain"
)

// Import returns the command that provisions a CSV file.
func Import() *cobra.Command {
	var file string
	var commit bool
	var defaults domain.Defaults

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Provision the rows of a CSV file",
		Long: `Provision one virtual machine per CSV row. Cells left empty, and columns
left out, take the --default-* values. Without --commit the batch is a dry run:
every row is attempted and reported, then nothing is kept.

The command fails when any row fails. Rows that succeeded are kept when
--commit is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var data []byte
			var err error
			if file == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(file)
			}
			if err != nil {
				return fmt.Errorf("reading CSV: %w", err)
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			run, err := a.Provisioning.RunBatch(cmd.Context(), domain.BulkRequest{
				CSV:         string(data),
				Defaults:    defaults,
				Commit:      commit,
				SubmittedBy: "cli",
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, o := range run.Outcomes {
				fmt.Fprintln(out, o.Message)
			}
			mode := "dry run"
			if run.Commit {
				mode = "committed"
			}
			fmt.Fprintf(out, "batch %s (%s): %d rows, %d succeeded, %d failed\n",
				run.ID, mode, run.Rows, run.Succeeded, run.Failed)

			if run.Failed > 0 {
				return fmt.Errorf("%d of %d rows failed", run.Failed, run.Rows)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&file, "file", "f", "", `Path to the CSV file ("-" reads stdin)`)
	f.BoolVar(&commit, "commit", false, "Keep the changes (default is a dry run)")
	f.StringVar(&defaults.Status, "default-status", string(domain.StatusStaged), "Status: staged or planned")
	f.StringVar(&defaults.Tenant, "default-tenant", "", "Tenant slug or name")
	f.StringVar(&defaults.Cluster, "default-cluster", "", "Cluster name")
	f.StringVar(&defaults.Datazone, "default-datazone", domain.DatazoneRoundRobin, `Datazone number, or "rr" to alternate 1 and 2`)
	f.StringVar(&defaults.AlertType, "default-alert-type", "", "Alert type (default from PROVISION_DEFAULT_ALERT_TYPE)")
	f.StringVar(&defaults.Env, "default-env", "", "Environment, with or without the env_ prefix")
	f.StringVar(&defaults.Platform, "default-platform", "", "Platform name")
	f.StringVar(&defaults.Role, "default-role", "", "Role name")
	f.StringVar(&defaults.Backup, "default-backup", "", "Backup tag")
	f.StringVar(&defaults.BackupOffsite, "default-backup-offsite", "", "Offsite backup tag")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
