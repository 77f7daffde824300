package batch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/newtron-network/newtcfg/pkg/inventory"
	"github.com/newtron-network/newtcfg/pkg/util"
)

// DefaultConcurrency is the number of devices processed at once when no
// bound is configured.
const DefaultConcurrency = 5

// OperationFunc runs one operation against one device. It should report
// failures in the returned result rather than panicking; panics are
// recovered anyway.
type OperationFunc func(ctx context.Context, d inventory.Device) OperationResult

// Sink receives every finished report. Sink errors are logged and never
// affect the report.
type Sink interface {
	Publish(r *Report) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(r *Report) error

// Publish calls f.
func (f SinkFunc) Publish(r *Report) error {
	return f(r)
}

// Coordinator runs operations across devices with bounded concurrency.
type Coordinator struct {
	concurrency int
	sinks       []Sink
	now         func() time.Time
}

// NewCoordinator creates a coordinator. A concurrency below 1 selects
// DefaultConcurrency.
func NewCoordinator(concurrency int, sinks ...Sink) *Coordinator {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Coordinator{
		concurrency: concurrency,
		sinks:       sinks,
		now:         time.Now,
	}
}

// Concurrency returns the worker bound.
func (c *Coordinator) Concurrency() int {
	return c.concurrency
}

// AddSink registers another sink.
func (c *Coordinator) AddSink(s Sink) {
	c.sinks = append(c.sinks, s)
}

// Run invokes op once per device and returns a report with one result per
// device in input order. A failing or panicking device never affects the
// others. When ctx is done, devices that have not started are reported as
// Cancelled and Run returns once in-flight operations reach their next
// blocking point.
func (c *Coordinator) Run(ctx context.Context, devices []inventory.Device, kind OperationKind, op OperationFunc) *Report {
	report := &Report{
		Kind:      kind,
		StartedAt: c.now(),
		Results:   make([]OperationResult, len(devices)),
	}

	sem := semaphore.NewWeighted(int64(c.concurrency))
	var wg sync.WaitGroup
	for i, d := range devices {
		if err := sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(devices); j++ {
				report.Results[j] = notStarted(devices[j], kind, err)
			}
			break
		}
		wg.Add(1)
		go func(i int, d inventory.Device) {
			defer wg.Done()
			defer sem.Release(1)
			report.Results[i] = c.runOne(ctx, d, kind, op)
		}(i, d)
	}
	wg.Wait()
	report.FinishedAt = c.now()

	s := report.Summary()
	util.WithOperation(string(kind)).Infof("%d device(s): %d succeeded, %d failed in %s",
		s.Total, s.Succeeded, s.Failed, report.Duration().Round(time.Millisecond))

	for _, sink := range c.sinks {
		if err := sink.Publish(report); err != nil {
			util.WithOperation(string(kind)).Warnf("Result sink failed: %v", err)
		}
	}
	return report
}

func (c *Coordinator) runOne(ctx context.Context, d inventory.Device, kind OperationKind, op OperationFunc) (res OperationResult) {
	logger := util.WithDeviceOp(d.ID, string(kind))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Operation panicked: %v\n%s", r, debug.Stack())
			res = OperationResult{Detail: fmt.Sprintf("panic: %v", r), ErrorKind: util.KindUnknown}
		}
		res.DeviceID = d.ID
		res.Kind = kind
		res.Duration = time.Since(start)
		if res.Success {
			res.ErrorKind = ""
			logger.Infof("Succeeded in %s", res.Duration.Round(time.Millisecond))
		} else {
			if res.ErrorKind == "" {
				res.ErrorKind = util.KindUnknown
			}
			logger.Warnf("Failed (%s): %s", res.ErrorKind, res.Detail)
		}
	}()

	if err := ctx.Err(); err != nil {
		return notStarted(d, kind, err)
	}
	return op(ctx, d)
}

func notStarted(d inventory.Device, kind OperationKind, err error) OperationResult {
	return OperationResult{
		DeviceID:  d.ID,
		Kind:      kind,
		Detail:    "not started: " + err.Error(),
		ErrorKind: util.KindCancelled,
	}
}
