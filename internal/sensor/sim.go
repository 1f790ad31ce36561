package sensor

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// SimulatedSource synthesizes samples when no hardware is available.
// Temperatures are drawn uniformly from [Min, Max] and rounded to two
// decimal places; the relay state alternates randomly between ON and
// OFF so downstream consumers see both values during development.
type SimulatedSource struct {
	min, max float64
	randF    func() float64 // uniform [0,1)
}

// NewSimulatedSource creates a simulated source bounded to [min, max]
// degrees Celsius.
func NewSimulatedSource(min, max float64) *SimulatedSource {
	return &SimulatedSource{
		min:   min,
		max:   max,
		randF: rand.Float64,
	}
}

// Acquire synthesizes one sample. It never fails.
func (s *SimulatedSource) Acquire(ctx context.Context) (Sample, error) {
	temp := s.min + s.randF()*(s.max-s.min)
	temp = math.Round(temp*100) / 100

	relay := RelayOff
	if s.randF() < 0.5 {
		relay = RelayOn
	}

	return Sample{
		Temperature: &temp,
		Relay:       relay,
		Mode:        ModeSimulated,
		ObservedAt:  time.Now().UTC(),
	}, nil
}
