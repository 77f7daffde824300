package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/newtron-network/newtcfg/pkg/compliance"
	"github.com/newtron-network/newtcfg/pkg/util"
)

var (
	checkMode       string
	checkRules      string
	checkReportPath string
	checkVerbose    bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate compliance rules",
	Long: `Evaluate compliance rules against each device's configuration and
report a per-device and aggregate score.

In offline mode (the default) the latest stored snapshot is evaluated and
command rules are skipped. In live mode the running configuration is
fetched and command rules are executed on the device.

Without --rules the rules file from settings is used, then the built-in
baseline.

Examples:
  newtcfg -i devices.yaml check
  newtcfg -i devices.yaml check --rules rules.yaml --mode live
  newtcfg -i devices.yaml check --report compliance.txt`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		mode, err := compliance.ParseMode(checkMode)
		if err != nil {
			return err
		}
		rules, err := loadRules()
		if err != nil {
			return err
		}

		devices, err := app.devices()
		if err != nil {
			return err
		}
		store, err := app.snapshots(ctx)
		if err != nil {
			return err
		}

		checker := compliance.NewChecker(app.sessions(), store, app.coordinator())
		report, err := checker.CheckAll(ctx, devices, rules, mode)
		if err != nil {
			return err
		}

		if checkReportPath != "" {
			f, err := os.Create(checkReportPath)
			if err != nil {
				return fmt.Errorf("creating report: %w", err)
			}
			werr := compliance.WriteReport(f, report)
			if cerr := f.Close(); werr == nil {
				werr = cerr
			}
			if werr != nil {
				return fmt.Errorf("writing report: %w", werr)
			}
			util.Infof("Compliance report written to %s", checkReportPath)
		}

		if checkVerbose && !app.jsonOutput {
			if err := compliance.WriteReport(os.Stdout, report); err != nil {
				return err
			}
			fmt.Println()
		}
		return printReport(report)
	},
}

func loadRules() ([]compliance.Rule, error) {
	path := checkRules
	if path == "" {
		path = app.settings.Rules
	}
	if path == "" {
		util.Debugf("No rules file given; using the built-in baseline")
		return compliance.DefaultRules(), nil
	}
	return compliance.LoadRules(path)
}

func init() {
	checkCmd.Flags().StringVar(&checkMode, "mode", "offline", "Evaluation mode: offline or live")
	checkCmd.Flags().StringVarP(&checkRules, "rules", "r", "", "Rules file (YAML or JSON)")
	checkCmd.Flags().StringVar(&checkReportPath, "report", "", "Write a text compliance report to this file")
	checkCmd.Flags().BoolVar(&checkVerbose, "details", false, "Print per-rule results")
}
