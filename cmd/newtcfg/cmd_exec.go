package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/newtron-network/newtcfg/pkg/batch"
	"github.com/newtron-network/newtcfg/pkg/inventory"
	"github.com/newtron-network/newtcfg/pkg/session"
)

var execCmd = &cobra.Command{
	Use:   "exec <command>",
	Short: "Run a read-only command on every selected device",
	Long: `Run one command on every selected device outside configuration mode and
print each device's output.

Examples:
  newtcfg -i devices.yaml exec "show version"
  newtcfg -i devices.yaml -d core1 exec "show ip bgp summary"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		command := strings.Join(args, " ")
		devices, err := app.devices()
		if err != nil {
			return err
		}

		sessions := app.sessions()
		report := batch.NewCoordinator(app.cfg.Concurrency).Run(ctx, devices, "exec",
			func(ctx context.Context, d inventory.Device) batch.OperationResult {
				var out string
				err := sessions.WithSession(ctx, d, func(s *session.Session) error {
					var err error
					out, err = sessions.Execute(ctx, s, command)
					return err
				})
				if err != nil {
					return batch.Failed(err, out)
				}
				return batch.Succeeded(fmt.Sprintf("%d bytes", len(out)), out)
			})

		if app.jsonOutput {
			return printReport(report)
		}
		for _, res := range report.Results {
			fmt.Printf("=== %s ===\n", res.DeviceID)
			if out, ok := res.Data.(string); ok && out != "" {
				fmt.Println(strings.TrimRight(out, "\n"))
			}
			if !res.Success {
				fmt.Printf("error: %s\n", res.Detail)
			}
			fmt.Println()
		}
		return printReport(report)
	},
}
