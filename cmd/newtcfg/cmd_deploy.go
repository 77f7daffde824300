package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/newtron-network/newtcfg/pkg/backup"
	"github.com/newtron-network/newtcfg/pkg/batch"
	"github.com/newtron-network/newtcfg/pkg/deploy"
	"github.com/newtron-network/newtcfg/pkg/inventory"
	"github.com/newtron-network/newtcfg/pkg/snapshot"
)

var (
	deployCommands []string
	deployFile     string
	deploySave     bool
	deployBackup   bool

	rollbackSnapshots []string
	rollbackSave      bool
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Apply configuration commands",
	Long: `Apply an ordered command set inside each device's configuration mode.
A device stops at its first failing command; commands already applied are
reported and not undone.

Examples:
  newtcfg -i devices.yaml deploy -c "ntp server 10.0.0.5" -c "logging host 10.0.0.9"
  newtcfg -i devices.yaml -d core1 deploy -f change.txt --save
  newtcfg -i devices.yaml deploy -f change.txt --backup`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if (len(deployCommands) == 0) == (deployFile == "") {
			return fmt.Errorf("exactly one of --command or --file is required")
		}
		cmds := deploy.CommandSet(deployCommands)
		if deployFile != "" {
			var err error
			if cmds, err = deploy.LoadCommandFile(deployFile); err != nil {
				return fmt.Errorf("reading commands: %w", err)
			}
		}

		devices, err := app.devices()
		if err != nil {
			return err
		}
		store, err := app.snapshots(ctx)
		if err != nil {
			return err
		}
		sessions := app.sessions()
		coord := app.coordinator()

		if deployBackup {
			report := backup.NewEngine(sessions, store, coord).BackupAll(ctx, devices)
			if err := printReport(report); err != nil {
				return fmt.Errorf("pre-deploy backup: %w", err)
			}
		}

		engine := deploy.NewEngine(sessions, store, coord, deploy.Options{Save: deploySave})
		return printReport(engine.DeployAll(ctx, devices, cmds))
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Restore devices to a stored snapshot",
	Long: `Restore devices to a stored snapshot. Without --snapshot each device is
restored to its most recent snapshot. Dialects that support configuration
replacement load the snapshot in one step; others replay it line by line.

Examples:
  newtcfg -i devices.yaml rollback
  newtcfg -i devices.yaml rollback --snapshot core1@20260102T030405.000000000Z`,
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
		engine := deploy.NewEngine(app.sessions(), store, app.coordinator(), deploy.Options{Save: rollbackSave})

		var report *batch.Report
		if len(rollbackSnapshots) == 0 {
			report = engine.RollbackLatest(ctx, devices)
		} else {
			snaps := make(map[string]*snapshot.Snapshot)
			for _, id := range rollbackSnapshots {
				snap, err := store.Get(ctx, id)
				if err != nil {
					return fmt.Errorf("snapshot %s: %w", id, err)
				}
				snaps[snap.DeviceID] = snap
			}
			// Without -d, only the devices named by the snapshots are touched.
			if len(app.deviceNames) == 0 {
				var named []inventory.Device
				for _, d := range devices {
					if snaps[d.ID] != nil {
						named = append(named, d)
					}
				}
				devices = named
			}
			report = engine.RollbackAll(ctx, devices, snaps)
		}
		return printReport(report)
	},
}

func init() {
	deployCmd.Flags().StringArrayVarP(&deployCommands, "command", "c", nil, "Command to apply (repeatable, applied in order)")
	deployCmd.Flags().StringVarP(&deployFile, "file", "f", "", "File of commands, one per line ('#' comments)")
	deployCmd.Flags().BoolVarP(&deploySave, "save", "s", false, "Save the running configuration after applying")
	deployCmd.Flags().BoolVar(&deployBackup, "backup", false, "Back up every device before deploying")

	rollbackCmd.Flags().StringSliceVar(&rollbackSnapshots, "snapshot", nil, "Snapshot IDs to restore (default: latest per device)")
	rollbackCmd.Flags().BoolVarP(&rollbackSave, "save", "s", false, "Save the running configuration after restoring")
}
