package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/newtron-network/newtcfg/pkg/cli"
	"github.com/newtron-network/newtcfg/pkg/snapshot"
)

var snapshotCmd = &cobra.Command{
	Use:     "snapshot",
	Aliases: []string{"snapshots"},
	Short:   "Inspect stored configuration snapshots",
	Long: `Inspect stored configuration snapshots.

Snapshot IDs have the form <device>@<UTC timestamp>.

Examples:
  newtcfg snapshot list core1
  newtcfg snapshot show core1@20260102T030405.000000000Z
  newtcfg snapshot diff core1
  newtcfg snapshot diff core1@20260101T000000.000000000Z core1@20260102T000000.000000000Z`,
}

var snapshotListCmd = &cobra.Command{
	Use:   "list [device...]",
	Short: "List snapshots, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := app.snapshots(ctx)
		if err != nil {
			return err
		}
		ids, err := snapshotDevices(args, store)
		if err != nil {
			return err
		}

		var all []*snapshot.Snapshot
		for _, id := range ids {
			snaps, err := store.List(ctx, id)
			if err != nil {
				return fmt.Errorf("listing %s: %w", id, err)
			}
			all = append(all, snaps...)
		}
		if app.jsonOutput {
			return printJSON(all)
		}
		if len(all) == 0 {
			fmt.Println("No snapshots found")
			return nil
		}

		t := cli.NewTable(os.Stdout, "SNAPSHOT", "DEVICE", "CAPTURED", "BYTES", "HASH")
		for _, s := range all {
			t.Row(s.ID, s.DeviceID, s.CapturedAt.Local().Format("2006-01-02 15:04:05"),
				strconv.Itoa(len(s.ConfigText)), s.ContentHash[:12])
		}
		t.Flush()
		return nil
	},
}

var snapshotShowCmd = &cobra.Command{
	Use:   "show <snapshot-id>",
	Short: "Print a snapshot's configuration text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := app.snapshots(ctx)
		if err != nil {
			return err
		}
		snap, err := store.Get(ctx, args[0])
		if err != nil {
			return err
		}
		if app.jsonOutput {
			return printJSON(snap)
		}
		fmt.Print(snap.ConfigText)
		return nil
	},
}

var snapshotDiffCmd = &cobra.Command{
	Use:   "diff <device> | <from-id> <to-id>",
	Short: "Show a unified diff between two snapshots",
	Long: `Show a unified diff between two snapshots. With a single device argument
the device's two most recent snapshots are compared.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := app.snapshots(ctx)
		if err != nil {
			return err
		}
		from, to, err := resolveDiffPair(ctx, store, args)
		if err != nil {
			return err
		}

		diff, err := snapshot.Diff(from, to)
		if err != nil {
			return err
		}
		if diff == "" {
			fmt.Printf("%s and %s are identical\n", from.ID, to.ID)
			return nil
		}
		fmt.Print(diff)
		return nil
	},
}

func resolveDiffPair(ctx context.Context, store snapshot.Store, args []string) (*snapshot.Snapshot, *snapshot.Snapshot, error) {
	if len(args) == 2 {
		from, err := store.Get(ctx, args[0])
		if err != nil {
			return nil, nil, err
		}
		to, err := store.Get(ctx, args[1])
		if err != nil {
			return nil, nil, err
		}
		return from, to, nil
	}

	snaps, err := store.List(ctx, args[0])
	if err != nil {
		return nil, nil, err
	}
	if len(snaps) < 2 {
		return nil, nil, fmt.Errorf("%s has %d snapshot(s); need two to diff", args[0], len(snaps))
	}
	return snaps[len(snaps)-2], snaps[len(snaps)-1], nil
}

// snapshotDevices returns the device IDs to list: the arguments, else the
// inventory, else whatever a file store holds.
func snapshotDevices(args []string, store snapshot.Store) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	if app.inventoryPath != "" {
		devices, err := app.devices()
		if err != nil {
			return nil, err
		}
		ids := make([]string, len(devices))
		for i, d := range devices {
			ids[i] = d.ID
		}
		return ids, nil
	}
	if fs, ok := store.(*snapshot.FileStore); ok {
		return fs.Devices()
	}
	return nil, fmt.Errorf("device required: pass device IDs or use -i <inventory>")
}

func init() {
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotShowCmd)
	snapshotCmd.AddCommand(snapshotDiffCmd)
}
