// Package scheduler drives the fixed-interval acquire → dispatch
// cycle. One goroutine owns the loop; ticks never overlap, so sink
// writes are naturally serialized. The sleep is wall-clock, with no
// drift compensation.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/beerpi/beerpi/internal/fanout"
	"github.com/beerpi/beerpi/internal/mode"
	"github.com/beerpi/beerpi/internal/sensor"
)

// defaultDispatchTimeout bounds an in-flight dispatch during shutdown.
const defaultDispatchTimeout = 10 * time.Second

// Dispatcher fans a sample out to the sinks. *fanout.Dispatcher
// satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, s sensor.Sample) fanout.DispatchReport
}

// Config wires a Scheduler.
type Config struct {
	// Arbiter decides live vs simulated acquisition.
	Arbiter *mode.Arbiter

	// Live and Simulated are the two acquisition strategies.
	Live      sensor.Source
	Simulated sensor.Source

	// Dispatcher receives every successfully acquired sample.
	Dispatcher Dispatcher

	// Interval is the tick period.
	Interval time.Duration

	// DispatchTimeout bounds one dispatch; zero means the default.
	DispatchTimeout time.Duration

	// Logger for structured logging. Uses slog.Default() if nil.
	Logger *slog.Logger
}

// Scheduler runs the acquisition loop.
type Scheduler struct {
	cfg Config
}

// New creates a scheduler.
func New(cfg Config) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = defaultDispatchTimeout
	}
	return &Scheduler{cfg: cfg}
}

// Run executes ticks until ctx is cancelled, then returns nil. The
// first tick runs immediately. Cancellation is checked between ticks;
// an in-flight dispatch always completes (bounded by DispatchTimeout)
// so shutdown never leaves a half-published sample.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cfg.Logger.Info("acquisition loop starting",
		"interval", s.cfg.Interval.String(),
		"mode", string(s.cfg.Arbiter.Current()),
	)

	for {
		s.tick(ctx)

		if !sleepCtx(ctx, s.cfg.Interval) {
			s.cfg.Logger.Info("acquisition loop stopped")
			return nil
		}
	}
}

// tick performs one acquire → dispatch cycle. No error escapes: every
// failure is either counted toward demotion or logged and dropped.
func (s *Scheduler) tick(ctx context.Context) {
	// Promotion is only attempted at the start of a tick, so a
	// sample's mode always matches the mode that produced it.
	if s.cfg.Arbiter.Current() == sensor.ModeSimulated {
		s.cfg.Arbiter.TryPromote()
	}

	m := s.cfg.Arbiter.Current()
	src := s.cfg.Simulated
	if m == sensor.ModeLive {
		src = s.cfg.Live
	}

	sample, err := src.Acquire(ctx)
	if err != nil {
		if m == sensor.ModeLive && sensor.IsTransient(err) {
			demoted := s.cfg.Arbiter.RecordFailure()
			s.cfg.Logger.Warn("live read failed, skipping tick",
				"error", err,
				"demoted", demoted,
			)
		} else {
			s.cfg.Logger.Error("acquisition failed, skipping tick", "error", err)
		}
		return
	}

	if m == sensor.ModeLive {
		s.cfg.Arbiter.RecordSuccess()
	}

	// Detach from the loop context so a shutdown signal arriving
	// mid-dispatch lets the in-flight publishes finish, bounded.
	dispatchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.DispatchTimeout)
	defer cancel()

	report := s.cfg.Dispatcher.Dispatch(dispatchCtx, sample)

	fields := []any{
		"mode", string(sample.Mode),
		"relay", string(sample.Relay),
		"sink_failures", report.Failed(),
	}
	if sample.Temperature != nil {
		fields = append(fields, "temperature_c", *sample.Temperature)
	}
	s.cfg.Logger.Info("sample dispatched", fields...)
}

// sleepCtx sleeps for d or until ctx is cancelled. Returns false if cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
