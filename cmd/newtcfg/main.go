// Newtcfg - Network Device Configuration Orchestrator
//
// Backs up, deploys, rolls back, and checks the compliance of running
// configuration across an inventory of network devices. Operations fan out
// across devices with bounded concurrency; every device gets exactly one
// result and one device's failure never stops the others.
//
// Examples:
//
//	newtcfg -i devices.yaml backup
//	newtcfg -i devices.yaml -d core1,core2 deploy -c "ntp server 10.0.0.5" --save
//	newtcfg -i devices.yaml deploy -f change.txt
//	newtcfg -i devices.yaml rollback
//	newtcfg -i devices.yaml check --rules rules.yaml --report report.txt
//	newtcfg snapshot list core1
//	newtcfg snapshot diff core1@20260101T000000.000000000Z core1@20260102T000000.000000000Z
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/newtron-network/newtcfg/pkg/audit"
	"github.com/newtron-network/newtcfg/pkg/batch"
	"github.com/newtron-network/newtcfg/pkg/cli"
	"github.com/newtron-network/newtcfg/pkg/config"
	"github.com/newtron-network/newtcfg/pkg/inventory"
	"github.com/newtron-network/newtcfg/pkg/session"
	"github.com/newtron-network/newtcfg/pkg/settings"
	"github.com/newtron-network/newtcfg/pkg/snapshot"
	"github.com/newtron-network/newtcfg/pkg/transport"
	"github.com/newtron-network/newtcfg/pkg/util"
	"github.com/newtron-network/newtcfg/pkg/version"
)

// App holds global flag values and lazily initialized engine state.
type App struct {
	configPath    string
	inventoryPath string
	deviceNames   []string
	concurrency   int
	verbose       bool
	jsonOutput    bool
	noColor       bool

	settings *settings.Settings
	cfg      *config.Config

	store      snapshot.Store
	closeStore func() error
	auditLog   *audit.FileLogger
}

var app = &App{}

// errBatchFailed is returned when at least one device failed; the per-device
// detail has already been printed.
var errBatchFailed = errors.New("one or more devices failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	app.close()
	if err != nil {
		if !errors.Is(err, errBatchFailed) {
			fmt.Fprintln(os.Stderr, cli.Red("Error:"), err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "newtcfg",
	Short:             "Network device configuration orchestrator",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `Newtcfg backs up, deploys, rolls back, and checks the compliance of
network device configuration across an inventory.

  newtcfg -i <inventory> [-d <devices>] <command> [flags]`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if app.noColor {
			cli.SetColor(false)
		}

		var err error
		app.settings, err = settings.Load()
		if err != nil {
			util.Warnf("Could not load settings: %v", err)
			app.settings = &settings.Settings{}
		}
		if isSettingsOrVersion(cmd) {
			return nil
		}

		if app.configPath == "" {
			app.configPath = app.settings.Config
		}
		if app.inventoryPath == "" {
			app.inventoryPath = app.settings.Inventory
		}

		app.cfg, err = config.Load(app.configPath)
		if err != nil {
			return err
		}
		if app.concurrency > 0 {
			app.cfg.Concurrency = app.concurrency
		}
		if err := app.cfg.ApplyLogging(); err != nil {
			return fmt.Errorf("log level: %w", err)
		}
		if app.verbose {
			util.SetLogLevel("debug")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&app.configPath, "config", "", "Engine configuration file (default: newtcfg.yaml search path)")
	rootCmd.PersistentFlags().StringVarP(&app.inventoryPath, "inventory", "i", "", "Device inventory file")
	rootCmd.PersistentFlags().StringSliceVarP(&app.deviceNames, "device", "d", nil, "Limit to these device IDs or hosts (comma separated)")
	rootCmd.PersistentFlags().IntVarP(&app.concurrency, "concurrency", "j", 0, "Maximum devices in flight (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&app.jsonOutput, "json", false, "JSON output")
	rootCmd.PersistentFlags().BoolVar(&app.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "ops", Title: "Device Operations:"},
		&cobra.Group{ID: "data", Title: "Snapshots & Audit:"},
		&cobra.Group{ID: "meta", Title: "Configuration & Meta:"},
	)

	for _, cmd := range []*cobra.Command{backupCmd, deployCmd, rollbackCmd, checkCmd, execCmd} {
		cmd.GroupID = "ops"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{snapshotCmd, auditCmd} {
		cmd.GroupID = "data"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{settingsCmd, dialectsCmd, versionCmd} {
		cmd.GroupID = "meta"
		rootCmd.AddCommand(cmd)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if version.Version == "dev" {
			fmt.Println("newtcfg dev build (use 'make build' for version info)")
		} else {
			fmt.Printf("newtcfg %s\n", version.Info())
		}
	},
}

var dialectsCmd = &cobra.Command{
	Use:   "dialects",
	Short: "List supported device dialects",
	Run: func(cmd *cobra.Command, args []string) {
		t := cli.NewTable(os.Stdout, "DIALECT", "SHOW CONFIG", "REPLACE")
		for _, name := range transport.DialectNames() {
			d, _ := transport.LookupDialect(name)
			replace := "-"
			if d.SupportsReplace {
				replace = cli.Green("yes")
			}
			t.Row(name, d.ShowConfig, replace)
		}
		t.Flush()
	},
}

func isSettingsOrVersion(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "settings", "version", "dialects", "help":
			return true
		}
	}
	return false
}

// ============================================================================
// Engine wiring
// ============================================================================

// devices loads the inventory and applies the -d filter.
func (a *App) devices() ([]inventory.Device, error) {
	if a.inventoryPath == "" {
		return nil, fmt.Errorf("inventory required: use -i <file> or 'newtcfg settings set inventory <file>'")
	}
	devs, err := inventory.LoadFile(a.inventoryPath)
	if err != nil {
		return nil, err
	}
	return inventory.Filter(devs, a.deviceNames)
}

// sessions builds a session manager. Credentials come from the inventory
// record, then NEWTCFG_CRED_* variables, then an interactive prompt.
func (a *App) sessions() *session.Manager {
	creds := inventory.ChainResolver{
		inventory.StaticResolver{},
		inventory.EnvResolver{},
		inventory.NewPromptResolver(),
	}
	return session.NewManager(a.cfg.SessionOptions(), creds, transport.DefaultRegistry())
}

// snapshots opens the configured snapshot store once per process.
func (a *App) snapshots(ctx context.Context) (snapshot.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	store, closeFn, err := a.cfg.OpenStore(ctx)
	if err != nil {
		return nil, err
	}
	a.store, a.closeStore = store, closeFn
	return store, nil
}

// coordinator builds a batch coordinator that publishes to the audit log
// when one is configured.
func (a *App) coordinator() *batch.Coordinator {
	coord := batch.NewCoordinator(a.cfg.Concurrency)
	if a.auditLog == nil {
		logger, err := a.cfg.OpenAudit()
		if err != nil {
			util.Warnf("Could not initialize audit logging: %v", err)
		}
		a.auditLog = logger
	}
	if a.auditLog != nil {
		coord.AddSink(audit.NewReportSink(a.auditLog, a.settings.GetUser()))
	}
	return coord
}

func (a *App) close() {
	if a.closeStore != nil {
		if err := a.closeStore(); err != nil {
			util.Debugf("closing snapshot store: %v", err)
		}
	}
	if a.auditLog != nil {
		a.auditLog.Close()
	}
}

// ============================================================================
// Output helpers
// ============================================================================

// printReport prints a batch report and returns errBatchFailed when any
// device failed.
func printReport(r *batch.Report) error {
	if app.jsonOutput {
		if err := printJSON(r); err != nil {
			return err
		}
	} else {
		cli.WriteBatchReport(os.Stdout, r)
	}
	if !r.AllSucceeded() {
		return errBatchFailed
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
