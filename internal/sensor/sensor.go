// Package sensor produces temperature/relay readings, either from a
// physical DS18B20 probe on the 1-Wire bus or from a bounded random
// generator when no hardware is present.
//
// A reading is a [Sample]: an optional temperature in °C, the relay
// state, the acquisition mode that produced it, and the observation
// timestamp. Samples are immutable once constructed and owned by the
// dispatch call for their tick.
package sensor

import (
	"context"
	"errors"
	"time"
)

// Mode identifies how a sample was produced.
type Mode string

const (
	// ModeLive means the sample came from the physical probe.
	ModeLive Mode = "live"

	// ModeSimulated means the sample was synthesized.
	ModeSimulated Mode = "simulated"
)

// RelayState is the observed relay position. The string values are
// published verbatim on the bus.
type RelayState string

const (
	RelayOn      RelayState = "ON"
	RelayOff     RelayState = "OFF"
	RelayUnknown RelayState = "UNKNOWN"
)

// Sample is one acquired reading. Temperature is nil when the reading
// carried no usable temperature; a nil temperature with a known relay
// state is still a valid sample.
type Sample struct {
	Temperature *float64
	Relay       RelayState
	Mode        Mode
	ObservedAt  time.Time
}

// Source acquires one sample per call.
type Source interface {
	Acquire(ctx context.Context) (Sample, error)
}

// Transient read failures. All of them mean "skip this tick's sample";
// none of them aborts the pipeline.
var (
	// ErrNoDevice means the 1-Wire probe directory matched nothing.
	ErrNoDevice = errors.New("no temperature device found")

	// ErrNotReady means the device payload was missing the ready
	// marker. The probe exists but the conversion had not finished.
	ErrNotReady = errors.New("sensor not ready")

	// ErrMalformedPayload means the payload had no parsable t= token.
	ErrMalformedPayload = errors.New("malformed sensor payload")

	// ErrRead means the payload could not be read or was empty.
	ErrRead = errors.New("sensor read failed")
)

// IsTransient reports whether err is one of the per-tick read failures
// that should be counted toward mode demotion rather than surfaced.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNoDevice) ||
		errors.Is(err, ErrNotReady) ||
		errors.Is(err, ErrMalformedPayload) ||
		errors.Is(err, ErrRead)
}
