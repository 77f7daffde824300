package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/newtron-network/newtcfg/pkg/batch"
)

// WriteBatchReport prints one row per device followed by a summary line.
func WriteBatchReport(w io.Writer, r *batch.Report) {
	t := NewTable(w, "DEVICE", "STATUS", "ERROR", "TIME", "DETAIL")
	for _, res := range r.Results {
		kind := "-"
		if !res.Success && res.ErrorKind != "" {
			kind = string(res.ErrorKind)
		}
		t.Row(res.DeviceID, Status(res.Success), kind, res.Duration.Round(time.Millisecond).String(), res.Detail)
	}
	t.Flush()

	sum := r.Summary()
	line := fmt.Sprintf("%s: %d/%d succeeded", r.Kind, sum.Succeeded, sum.Total)
	if sum.Failed > 0 {
		line += ", " + Red(fmt.Sprintf("%d failed", sum.Failed))
	}
	line += fmt.Sprintf(" in %s", r.Duration().Round(time.Millisecond))
	if r.AggregateScore != nil {
		line += "; aggregate score " + Score(*r.AggregateScore)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, Bold(line))
}
