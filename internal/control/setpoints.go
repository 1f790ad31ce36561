// Package control holds the temperature setpoints and manual-control
// flag exposed to the outside world as Home Assistant number and
// switch entities. The store is plain in-memory state; the retained
// MQTT status topics are its durable copy.
package control

import (
	"fmt"
	"sync"
)

// Setpoint bounds, matching the ranges advertised in the discovery
// payloads.
const (
	LowerBound = 0.0
	UpperBound = 100.0
)

// Setpoints is the mutable control state. Safe for concurrent use:
// commands arrive on the MQTT client's goroutine while the scheduler
// may snapshot concurrently.
type Setpoints struct {
	mu     sync.Mutex
	min    float64
	max    float64
	manual bool
}

// NewSetpoints creates a store with the given initial range.
func NewSetpoints(min, max float64) *Setpoints {
	return &Setpoints{min: min, max: max}
}

// Snapshot returns a consistent copy of the current values.
func (s *Setpoints) Snapshot() (min, max float64, manual bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.min, s.max, s.manual
}

// SetMin updates the minimum setpoint. The value must stay within the
// advertised bounds and must not exceed the current maximum.
func (s *Setpoints) SetMin(v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v < LowerBound || v > UpperBound {
		return fmt.Errorf("min_temp %v out of range [%v, %v]", v, LowerBound, UpperBound)
	}
	if v > s.max {
		return fmt.Errorf("min_temp %v exceeds max_temp %v", v, s.max)
	}
	s.min = v
	return nil
}

// SetMax updates the maximum setpoint. The value must stay within the
// advertised bounds and must not fall below the current minimum.
func (s *Setpoints) SetMax(v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v < LowerBound || v > UpperBound {
		return fmt.Errorf("max_temp %v out of range [%v, %v]", v, LowerBound, UpperBound)
	}
	if v < s.min {
		return fmt.Errorf("max_temp %v below min_temp %v", v, s.min)
	}
	s.max = v
	return nil
}

// SetManual flips the manual-control flag.
func (s *Setpoints) SetManual(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manual = on
}
