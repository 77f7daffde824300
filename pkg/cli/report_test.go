package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/newtron-network/newtcfg/pkg/batch"
	"github.com/newtron-network/newtcfg/pkg/util"
)

func TestWriteBatchReport(t *testing.T) {
	withColor(t, false)

	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	score := 90.0
	r := &batch.Report{
		Kind:       batch.KindCompliance,
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Results: []batch.OperationResult{
			{DeviceID: "a", Success: true, Detail: "score 80%", Duration: time.Second},
			{DeviceID: "b", Success: false, Detail: "dial timeout", ErrorKind: util.KindConnectTimeout},
		},
		AggregateScore: &score,
	}

	var buf bytes.Buffer
	WriteBatchReport(&buf, r)
	out := buf.String()

	for _, want := range []string{
		"DEVICE", "a", "OK", "score 80%",
		"FAILED", "connect_timeout", "dial timeout",
		"compliance: 1/2 succeeded, 1 failed in 1.5s; aggregate score 90%",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
