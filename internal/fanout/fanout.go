// Package fanout drives the per-tick publish of one sample to every
// configured sink, isolating failures so no sink can take down the
// others or the cycle.
package fanout

import (
	"context"
	"log/slog"

	"github.com/beerpi/beerpi/internal/sensor"
	"github.com/beerpi/beerpi/internal/sink"
)

// SinkResult is one sink's outcome for a dispatch.
type SinkResult struct {
	Sink string
	Err  error
}

// OK reports whether the sink write succeeded.
func (r SinkResult) OK() bool { return r.Err == nil }

// DispatchReport records per-sink outcomes for one sample, in sink
// registration order.
type DispatchReport struct {
	Results []SinkResult
}

// Failed returns how many sinks reported an error.
func (r DispatchReport) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// Result returns the outcome for the named sink, if present.
func (r DispatchReport) Result(name string) (SinkResult, bool) {
	for _, res := range r.Results {
		if res.Sink == name {
			return res, true
		}
	}
	return SinkResult{}, false
}

// Dispatcher fans one sample out to its sinks.
type Dispatcher struct {
	sinks  []sink.Sink
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher over the given sinks. Order is
// preserved in reports.
func NewDispatcher(logger *slog.Logger, sinks ...sink.Sink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sinks: sinks, logger: logger}
}

// Dispatch writes the sample to every sink. A failure is logged and
// recorded but never stops the remaining sinks and never propagates;
// the sample is not retried, since the next tick supersedes it.
func (d *Dispatcher) Dispatch(ctx context.Context, s sensor.Sample) DispatchReport {
	report := DispatchReport{
		Results: make([]SinkResult, 0, len(d.sinks)),
	}

	for _, sk := range d.sinks {
		err := sk.Write(ctx, s)
		if err != nil {
			d.logger.Warn("sink write failed",
				"sink", sk.Name(),
				"error", err,
			)
		}
		report.Results = append(report.Results, SinkResult{Sink: sk.Name(), Err: err})
	}

	return report
}
