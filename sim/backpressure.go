// Backpressure policies map observed backlog state to an artificial reply
// delay, used to slow client admission when secondary replicas fall behind.

package sim

import (
	"fmt"
	"math"
)

// Observation is the coordinator state visible to a backpressure policy at
// the moment a delayed reply is scheduled.
type Observation struct {
	Tick              int64
	SecondaryBacklogs []int // pending secondary-queue depth per owned replica
	Outstanding       int   // client-visible outstanding writes
	Background        int   // writes tracked in background
}

// MaxSecondaryBacklog returns the largest secondary backlog across the
// coordinator's replicas.
//
// Policies must consume the maximum, not the sum: a sum lets the largest
// queue keep growing while a smaller one shortens, making the aggregate look
// flat. Slowing the client down to control the largest queue typically
// drives the smaller ones to zero.
func (o Observation) MaxSecondaryBacklog() int {
	maxLen := 0
	for _, l := range o.SecondaryBacklogs {
		if l > maxLen {
			maxLen = l
		}
	}
	return maxLen
}

// BackpressurePolicy computes the reply delay, in ticks, to impose on a
// write that is about to be acknowledged. The returned delay is truncated to
// whole ticks by the coordinator; values <= 0 mean no delay.
// Implementations may hold internal controller state and are owned by
// exactly one Coordinator.
type BackpressurePolicy interface {
	ComputeDelay(obs Observation) float64
}

// NoBackpressure never delays a reply.
type NoBackpressure struct{}

func (NoBackpressure) ComputeDelay(Observation) float64 { return 0 }

// FixedGain delays each reply by gain times the largest secondary backlog.
// The backlog length a given workload converges on is a function of the
// gain, so the right gain depends on workload and node speeds.
type FixedGain struct {
	gain float64
}

// NewFixedGain creates a FixedGain policy with the given multiplier.
func NewFixedGain(gain float64) *FixedGain {
	return &FixedGain{gain: gain}
}

func (p *FixedGain) ComputeDelay(obs Observation) float64 {
	return p.gain * float64(obs.MaxSecondaryBacklog())
}

// AdaptiveGain is a FixedGain whose multiplier adjusts itself toward a
// desired stable backlog length. Each observation nudges the gain up by 0.1%
// when the backlog sits above target and down by 0.1% when below, so the
// backlog converges on target regardless of workload.
//
// A dead band leaves the gain untouched while the backlog is within 10% of
// target, preventing oscillation around the perfect gain. An empty backlog
// never adjusts the gain either: any gain yields zero delay on a zero
// backlog, and an idle or under-utilized system says nothing about whether
// the gain is right.
type AdaptiveGain struct {
	gain   float64
	target float64
}

// NewAdaptiveGain creates an AdaptiveGain policy aiming for the given
// backlog length, starting from a gain of 1.0.
func NewAdaptiveGain(target float64) *AdaptiveGain {
	if target <= 0 {
		panic(fmt.Sprintf("adaptive-gain target must be positive, got %g", target))
	}
	return &AdaptiveGain{gain: 1.0, target: target}
}

func (p *AdaptiveGain) ComputeDelay(obs Observation) float64 {
	backlog := float64(obs.MaxSecondaryBacklog())
	switch {
	case backlog == 0:
		// no adjustment: zero backlog yields zero delay for any gain
	case math.Abs(backlog-p.target)/p.target < 0.1:
		// dead band: close enough, stop improving the gain
	case backlog > p.target:
		p.gain *= 1.001
	default:
		p.gain *= 0.999
	}
	return p.gain * backlog
}

// Gain returns the controller's current multiplier.
func (p *AdaptiveGain) Gain() float64 {
	return p.gain
}

// Target returns the backlog length the controller converges toward.
func (p *AdaptiveGain) Target() float64 {
	return p.target
}

// Backpressure policy names accepted by NewBackpressurePolicy.
const (
	PolicyNone         = "none"
	PolicyFixedGain    = "fixed-gain"
	PolicyAdaptiveGain = "adaptive-gain"
)

// ValidBackpressurePolicies is the set of recognized backpressure policy
// names. Shared by scenario validation and NewBackpressurePolicy.
var ValidBackpressurePolicies = map[string]bool{
	"":                 true,
	PolicyNone:         true,
	PolicyFixedGain:    true,
	PolicyAdaptiveGain: true,
}

// IsValidBackpressurePolicy returns true if name is a recognized policy name.
func IsValidBackpressurePolicy(name string) bool {
	return ValidBackpressurePolicies[name]
}

// NewBackpressurePolicy creates a backpressure policy by name.
// An empty string defaults to NoBackpressure (for CLI flag default
// compatibility). For fixed-gain, gain configures the multiplier; for
// adaptive-gain, target configures the desired backlog length.
// Panics on unrecognized names.
func NewBackpressurePolicy(name string, gain, target float64) BackpressurePolicy {
	if !IsValidBackpressurePolicy(name) {
		panic(fmt.Sprintf("unknown backpressure policy %q", name))
	}
	switch name {
	case "", PolicyNone:
		return NoBackpressure{}
	case PolicyFixedGain:
		return NewFixedGain(gain)
	case PolicyAdaptiveGain:
		return NewAdaptiveGain(target)
	default:
		panic(fmt.Sprintf("unhandled backpressure policy %q", name))
	}
}
