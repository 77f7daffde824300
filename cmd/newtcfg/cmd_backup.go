package main

import (
	"github.com/spf13/cobra"

	"github.com/newtron-network/newtcfg/pkg/backup"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Capture running configuration snapshots",
	Long: `Capture the running configuration of every selected device and store
it as a timestamped snapshot. Unchanged configurations are reported.

Examples:
  newtcfg -i devices.yaml backup
  newtcfg -i devices.yaml -d core1 backup`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		devices, err := app.devices()
		if err != nil {
			return err
		}
		store, err := app.snapshots(ctx)
		if err != nil {
			return err
		}

		engine := backup.NewEngine(app.sessions(), store, app.coordinator())
		return printReport(engine.BackupAll(ctx, devices))
	},
}
