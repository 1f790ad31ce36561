// Package sink contains the downstream adapters that each receive a
// copy of every sample: the message bus, the InfluxDB time-series
// store, and the relational store behind the dashboard. Sinks are
// independent; the fan-out isolates a failure in one from the others.
package sink

import (
	"context"

	"github.com/beerpi/beerpi/internal/sensor"
)

// Sink writes one sample to a downstream system. Write failures are
// reported, not retried; the next tick supersedes the lost sample.
type Sink interface {
	// Name identifies the sink in logs and dispatch reports.
	Name() string

	// Write delivers one sample.
	Write(ctx context.Context, s sensor.Sample) error
}
