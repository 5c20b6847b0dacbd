// Stock concurrency shapes for the workload driver. The budget is a function
// of the step index, so a workload can model clients joining, leaving,
// ramping up, or oscillating without touching the engine.

package sim

import "math"

// FixedConcurrency keeps the admission budget constant.
func FixedConcurrency(limit float64) ConcurrencyFunc {
	return func(int64) float64 { return limit }
}

// RampConcurrency grows the budget linearly from `from` to `to` over the
// given number of ticks, then holds at `to`.
func RampConcurrency(from, to float64, over int64) ConcurrencyFunc {
	return func(step int64) float64 {
		if step >= over {
			return to
		}
		return from + (to-from)*float64(step)/float64(over)
	}
}

// OscillatingConcurrency varies the budget between base and base+amplitude
// following a sin^2 of the step, completing one full swell per period.
// Models a client population that slowly grows and shrinks.
func OscillatingConcurrency(base, amplitude float64, period int64) ConcurrencyFunc {
	return func(step int64) float64 {
		s := math.Sin(math.Pi * float64(step) / float64(period))
		return base + amplitude*s*s
	}
}

// ConcurrencyPhase is one segment of a piecewise-constant budget.
type ConcurrencyPhase struct {
	Ticks int64   // duration of this phase
	Limit float64 // admission budget during the phase
}

// PhasedConcurrency runs through the given phases in order, holding the last
// phase's limit forever. Models abrupt workload changes: a new client
// joining, concurrency doubling, or a sudden stop and resume.
func PhasedConcurrency(phases ...ConcurrencyPhase) ConcurrencyFunc {
	return func(step int64) float64 {
		var elapsed int64
		for _, p := range phases {
			elapsed += p.Ticks
			if step < elapsed {
				return p.Limit
			}
		}
		if len(phases) == 0 {
			return 0
		}
		return phases[len(phases)-1].Limit
	}
}
