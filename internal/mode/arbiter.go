// Package mode holds the process-wide acquisition mode and the policy
// that moves it between LIVE and SIMULATED.
//
// Demotion is threshold-based: a run of consecutive live-read failures
// flips the mode to simulated. Promotion only happens through a fresh
// device probe at the start of a tick, never mid-tick, so a sample's
// mode always matches the mode that produced it.
package mode

import (
	"log/slog"
	"sync"

	"github.com/beerpi/beerpi/internal/sensor"
)

// DefaultFailureThreshold is the number of consecutive live-read
// failures that demote the pipeline to simulated acquisition.
const DefaultFailureThreshold = 3

// Prober checks for device presence. *sensor.LiveSource satisfies it.
type Prober interface {
	Probe() bool
}

// Arbiter owns the acquisition mode. The scheduler is the only writer;
// the mutex exists so snapshots handed to other goroutines (status
// reporting, tests) are race-free.
type Arbiter struct {
	mu        sync.Mutex
	mode      sensor.Mode
	failures  int
	threshold int
	prober    Prober
	logger    *slog.Logger
}

// NewArbiter creates an arbiter with the given failure threshold
// (DefaultFailureThreshold if threshold <= 0). The initial mode is
// decided by [Arbiter.Init].
func NewArbiter(prober Prober, threshold int, logger *slog.Logger) *Arbiter {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Arbiter{
		mode:      sensor.ModeSimulated,
		threshold: threshold,
		prober:    prober,
		logger:    logger,
	}
}

// Init probes for the device once and sets the starting mode.
func (a *Arbiter) Init() sensor.Mode {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.prober != nil && a.prober.Probe() {
		a.mode = sensor.ModeLive
	} else {
		a.mode = sensor.ModeSimulated
	}
	a.failures = 0
	return a.mode
}

// Current returns the mode the next acquisition should use.
func (a *Arbiter) Current() sensor.Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// RecordFailure counts one live-read failure. When the consecutive
// count reaches the threshold the mode demotes to simulated; the
// return value reports whether this call caused the demotion.
func (a *Arbiter) RecordFailure() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.mode != sensor.ModeLive {
		return false
	}

	a.failures++
	if a.failures < a.threshold {
		return false
	}

	a.mode = sensor.ModeSimulated
	a.failures = 0
	a.logger.Warn("demoting to simulated readings",
		"consecutive_failures", a.threshold,
	)
	return true
}

// RecordSuccess resets the consecutive failure count.
func (a *Arbiter) RecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures = 0
}

// TryPromote re-probes for the device and, if found while simulated,
// promotes back to live. Called by the scheduler at the start of a
// tick only.
func (a *Arbiter) TryPromote() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.mode != sensor.ModeSimulated || a.prober == nil {
		return false
	}
	if !a.prober.Probe() {
		return false
	}

	a.mode = sensor.ModeLive
	a.failures = 0
	a.logger.Info("device detected, promoting to live readings")
	return true
}
