package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/newtron-network/newtcfg/pkg/audit"
	"github.com/newtron-network/newtcfg/pkg/cli"
	"github.com/newtron-network/newtcfg/pkg/util"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "View the audit log",
	Long: `View the audit log of batch operations. Every device result of a
backup, deploy, rollback, or check is recorded when audit.path is set in
the engine configuration.

Examples:
  newtcfg audit list --device core1
  newtcfg audit list --last 24h --failures
  newtcfg audit list --operation deploy`,
}

var (
	auditDevice    string
	auditUser      string
	auditOperation string
	auditKind      string
	auditBatch     string
	auditLast      string
	auditLimit     int
	auditFailures  bool
)

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := audit.Filter{
			Device:      auditDevice,
			User:        auditUser,
			Operation:   auditOperation,
			ErrorKind:   util.ErrorKind(auditKind),
			BatchID:     auditBatch,
			Limit:       auditLimit,
			FailureOnly: auditFailures,
		}
		if auditLast != "" {
			duration, err := time.ParseDuration(auditLast)
			if err != nil {
				return fmt.Errorf("invalid duration: %s", auditLast)
			}
			filter.StartTime = time.Now().Add(-duration)
		}

		logger, err := app.cfg.OpenAudit()
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		if logger == nil {
			return fmt.Errorf("audit logging is disabled: set audit.path in the engine configuration")
		}
		defer logger.Close()

		events, err := logger.Query(filter)
		if err != nil {
			return fmt.Errorf("querying audit log: %w", err)
		}

		if app.jsonOutput {
			return printJSON(events)
		}
		if len(events) == 0 {
			fmt.Println("No audit events found")
			return nil
		}

		t := cli.NewTable(os.Stdout, "TIMESTAMP", "USER", "DEVICE", "OPERATION", "STATUS", "DETAIL")
		for _, event := range events {
			status := cli.Green("ok")
			detail := event.Detail
			if !event.Success {
				status = cli.Red(string(event.ErrorKind))
				detail = event.Error
			}
			t.Row(
				event.Timestamp.Local().Format("2006-01-02 15:04:05"),
				event.User,
				event.Device,
				event.Operation,
				status,
				util.Truncate(detail, 80),
			)
		}
		t.Flush()
		return nil
	},
}

func init() {
	auditListCmd.Flags().StringVar(&auditDevice, "device", "", "Filter by device")
	auditListCmd.Flags().StringVar(&auditUser, "user", "", "Filter by user")
	auditListCmd.Flags().StringVar(&auditOperation, "operation", "", "Filter by operation (backup, deploy, rollback, compliance)")
	auditListCmd.Flags().StringVar(&auditKind, "error-kind", "", "Filter by error kind (e.g. auth_failure)")
	auditListCmd.Flags().StringVar(&auditBatch, "batch", "", "Filter by batch ID")
	auditListCmd.Flags().StringVar(&auditLast, "last", "", "Show events from last duration (e.g., 24h)")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum events to show")
	auditListCmd.Flags().BoolVar(&auditFailures, "failures", false, "Show only failed operations")

	auditCmd.AddCommand(auditListCmd)
}
