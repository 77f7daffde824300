package compliance

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/newtron-network/newtcfg/pkg/batch"
)

const reportWidth = 80

// WriteReport renders a compliance report as plain text.
func WriteReport(w io.Writer, report *batch.Report) error {
	bw := bufio.NewWriter(w)
	rule := strings.Repeat("=", reportWidth)

	fmt.Fprintln(bw, rule)
	fmt.Fprintln(bw, "NETWORK COMPLIANCE REPORT")
	fmt.Fprintf(bw, "Generated: %s\n", report.FinishedAt.Local().Format(time.RFC3339))
	fmt.Fprintln(bw, rule)
	fmt.Fprintf(bw, "\nTotal Devices: %d\n", len(report.Results))
	if report.AggregateScore != nil {
		fmt.Fprintf(bw, "Overall Compliance Score: %.2f%%\n", *report.AggregateScore)
	} else {
		fmt.Fprintln(bw, "Overall Compliance Score: n/a")
	}
	fmt.Fprintln(bw)

	for _, res := range report.Results {
		fmt.Fprintf(bw, "\nDevice: %s\n", res.DeviceID)
		dr, ok := res.Data.(*DeviceResult)
		if !res.Success || !ok {
			fmt.Fprintf(bw, "Error: %s", res.Detail)
			if res.ErrorKind != "" {
				fmt.Fprintf(bw, " [%s]", res.ErrorKind)
			}
			fmt.Fprintln(bw)
			fmt.Fprintln(bw, strings.Repeat("-", reportWidth))
			continue
		}

		fmt.Fprintf(bw, "Compliance Score: %d%%\n", dr.Score)
		fmt.Fprintf(bw, "Passed: %d/%d\n", dr.Passed, dr.Total)
		if dr.SnapshotID != "" {
			fmt.Fprintf(bw, "Snapshot: %s\n", dr.SnapshotID)
		}
		if dr.Warning != "" {
			fmt.Fprintf(bw, "Warning: %s\n", dr.Warning)
		}
		fmt.Fprintln(bw, strings.Repeat("-", reportWidth))

		for _, rr := range dr.Results {
			status := "PASS"
			switch {
			case rr.Skipped:
				status = "SKIP"
			case !rr.Passed:
				status = "FAIL"
			}
			fmt.Fprintf(bw, "%s | %s\n", status, rr.Rule.Name)
			fmt.Fprintf(bw, "       %s\n", rr.Message)
			if len(rr.Evidence) > 0 {
				fmt.Fprintf(bw, "       Details: %s\n", strings.Join(rr.Evidence, "; "))
			}
		}
	}
	return bw.Flush()
}
