// Implements the Coordinator, which fans client writes out to a fixed set of
// replicas and runs the quorum / background / throttle / delayed-reply state
// machine per request.

package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// CoordinatorConfig groups Coordinator construction parameters.
type CoordinatorConfig struct {
	ID string

	// ConsistencyThreshold is the number of replica acknowledgements required
	// before a write is considered durable enough to notify the client.
	// Must be in [1, replicaCount].
	ConsistencyThreshold int

	// MaxBackgroundWrites caps the number of writes tracked to full
	// completion after the client has been notified. Writes over the cap are
	// throttled: their acknowledgement is withheld until background slots
	// free up. Must be >= 0.
	MaxBackgroundWrites int

	// Policy computes the artificial reply delay. Nil means no backpressure.
	Policy BackpressurePolicy

	// Jitter optionally perturbs computed delays (off by default).
	Jitter JitterConfig

	// Sink receives the coordinator's per-tick series. Nil discards them.
	Sink MetricsSink
}

// Coordinator owns an ordered list of replicas and tracks every submitted
// write until all replicas have acknowledged it and any artificial reply
// delay has expired.
//
// Per-request bookkeeping:
//   - ongoing[rid] counts replica acks still missing; it starts at
//     replicaCount and the entry is deleted when it reaches 0.
//   - background holds writes that reached the consistency threshold and are
//     no longer client-visible; its size never exceeds MaxBackgroundWrites.
//   - throttled holds writes that reached the threshold while background was
//     full; they drain into background as slots free up.
//   - delayedReply[rid] is the tick at which a withheld acknowledgement is
//     released; it is the mechanism by which secondary-replica backlog
//     throttles new admissions.
//
// A request belongs to at most one of {throttled, background} at a time.
type Coordinator struct {
	ID string

	replicas             []*Replica
	consistencyThreshold int
	maxBackgroundWrites  int
	policy               BackpressurePolicy
	jitter               *delayJitter

	ongoing      map[RequestID]int
	background   map[RequestID]struct{}
	throttled    map[RequestID]struct{}
	delayedReply map[RequestID]int64

	tick        int64
	nextID      RequestID
	totalWrites int64
	lastDelay   float64

	// rolling window counters, consumed and reset by the workload driver
	windowWrites int64
	windowTicks  int64

	sink             MetricsSink
	foregroundSeries string
	backgroundSeries string
	totalSeries      string
	delaySeries      string

	backlogScratch []int
}

// NewCoordinator creates a Coordinator owning the given replicas.
func NewCoordinator(cfg CoordinatorConfig, replicas []*Replica) (*Coordinator, error) {
	if len(replicas) == 0 {
		return nil, fmt.Errorf("coordinator %s: at least one replica required", cfg.ID)
	}
	if cfg.ConsistencyThreshold < 1 || cfg.ConsistencyThreshold > len(replicas) {
		return nil, fmt.Errorf("coordinator %s: consistency threshold must be in [1, %d], got %d",
			cfg.ID, len(replicas), cfg.ConsistencyThreshold)
	}
	if cfg.MaxBackgroundWrites < 0 {
		return nil, fmt.Errorf("coordinator %s: max background writes must be non-negative, got %d",
			cfg.ID, cfg.MaxBackgroundWrites)
	}
	policy := cfg.Policy
	if policy == nil {
		policy = NoBackpressure{}
	}
	sink := cfg.Sink
	if sink == nil {
		sink = NullSink{}
	}
	return &Coordinator{
		ID:                   cfg.ID,
		replicas:             replicas,
		consistencyThreshold: cfg.ConsistencyThreshold,
		maxBackgroundWrites:  cfg.MaxBackgroundWrites,
		policy:               policy,
		jitter:               newDelayJitter(cfg.Jitter),
		ongoing:              make(map[RequestID]int),
		background:           make(map[RequestID]struct{}),
		throttled:            make(map[RequestID]struct{}),
		delayedReply:         make(map[RequestID]int64),
		sink:                 sink,
		foregroundSeries:     fmt.Sprintf("coordinator_%s_foreground_writes", cfg.ID),
		backgroundSeries:     fmt.Sprintf("coordinator_%s_background_writes", cfg.ID),
		totalSeries:          fmt.Sprintf("coordinator_%s_total_writes", cfg.ID),
		delaySeries:          fmt.Sprintf("coordinator_%s_delay", cfg.ID),
		backlogScratch:       make([]int, len(replicas)),
	}, nil
}

// NextRequestID allocates a fresh, monotonically increasing request id.
func (c *Coordinator) NextRequestID() RequestID {
	c.nextID++
	return c.nextID
}

// Submit fans a write out to every owned replica. The id must not already be
// in flight.
func (c *Coordinator) Submit(rid RequestID) error {
	if _, ok := c.ongoing[rid]; ok {
		return fmt.Errorf("coordinator %s: request %d already in flight", c.ID, rid)
	}
	for _, rep := range c.replicas {
		rep.Enqueue(rid)
	}
	c.ongoing[rid] = len(c.replicas)
	c.totalWrites++
	c.windowWrites++
	return nil
}

// OutstandingCount returns the number of client-visible outstanding writes:
// truly in-flight writes, minus those already moved to background, plus
// writes whose acknowledgement is artificially delay-gated. A client with
// limited concurrency should not send more writes while this is at or above
// its budget.
func (c *Coordinator) OutstandingCount() int {
	return len(c.ongoing) - len(c.background) + len(c.delayedReply)
}

// AdvanceTick runs one step of the coordinator state machine. The phases
// below execute in a fixed order for determinism:
//
//  1. drain throttled writes into background while there is room,
//  2. release delayed acknowledgements whose tick has come,
//  3. reconcile this tick's replica completions,
//  4. advance the clock and emit series.
func (c *Coordinator) AdvanceTick() {
	throttling := len(c.background) >= c.maxBackgroundWrites
	for !throttling && len(c.throttled) > 0 {
		rid := c.popThrottled()
		c.background[rid] = struct{}{}
		c.scheduleDelayedReply(rid)
		throttling = len(c.background) >= c.maxBackgroundWrites
	}

	for rid, release := range c.delayedReply {
		if release == c.tick {
			delete(c.delayedReply, rid)
		}
	}

	for _, rep := range c.replicas {
		for _, rid := range rep.Primary.Completed() {
			c.ongoing[rid]--
			if c.ongoing[rid] == 0 {
				// All replicas acknowledged; the write leaves the system
				// once any remaining reply gate expires.
				delete(c.background, rid)
				delete(c.throttled, rid)
				delete(c.ongoing, rid)
				if _, gated := c.delayedReply[rid]; !gated {
					c.scheduleDelayedReply(rid)
				}
			} else if len(c.replicas)-c.ongoing[rid] == c.consistencyThreshold {
				// Quorum just reached: acknowledge now, or remember that we
				// wanted to if the background cap is hit.
				if throttling {
					c.throttled[rid] = struct{}{}
				} else {
					c.background[rid] = struct{}{}
					c.scheduleDelayedReply(rid)
				}
			}
		}
		rep.Primary.ClearCompleted()
	}

	c.tick++
	c.windowTicks++
	c.sink.Emit(c.foregroundSeries, c.tick, float64(c.OutstandingCount()))
	c.sink.Emit(c.backgroundSeries, c.tick, float64(len(c.background)))
	c.sink.Emit(c.totalSeries, c.tick, float64(c.totalWrites))
	c.sink.Emit(c.delaySeries, c.tick, c.lastDelay)
}

// popThrottled removes one member of the throttled set. Which member is
// drained first is deliberately a don't-care; the ascending-id order here
// only keeps runs reproducible, since Go map iteration order varies per
// process. Nothing may depend on the choice.
func (c *Coordinator) popThrottled() RequestID {
	var minRid RequestID
	first := true
	for rid := range c.throttled {
		if first || rid < minRid {
			minRid = rid
			first = false
		}
	}
	delete(c.throttled, minRid)
	return minRid
}

// scheduleDelayedReply consults the backpressure policy and, for a positive
// whole-tick delay, withholds the acknowledgement of rid until the release
// tick. Call it only after rid was already "replied" (moved to background or
// fully completed); the gate extends the client-visible outstanding status.
func (c *Coordinator) scheduleDelayedReply(rid RequestID) {
	delay := c.policy.ComputeDelay(c.observation())
	if c.jitter != nil {
		delay += c.jitter.sample()
	}
	if delay < 0 {
		delay = 0
	}
	c.lastDelay = delay
	ticks := int64(delay)
	if ticks <= 0 {
		return
	}
	logrus.Debugf("[tick %07d] coordinator %s: delaying reply of %d by %d ticks", c.tick, c.ID, rid, ticks)
	c.delayedReply[rid] = c.tick + ticks
}

// observation snapshots the state visible to the backpressure policy.
func (c *Coordinator) observation() Observation {
	for i, rep := range c.replicas {
		c.backlogScratch[i] = rep.SecondaryBacklog()
	}
	return Observation{
		Tick:              c.tick,
		SecondaryBacklogs: c.backlogScratch,
		Outstanding:       c.OutstandingCount(),
		Background:        len(c.background),
	}
}

// Replicas returns the coordinator's owned replicas, in fan-out order.
func (c *Coordinator) Replicas() []*Replica {
	return c.replicas
}

// Tick returns the number of completed AdvanceTick calls.
func (c *Coordinator) Tick() int64 {
	return c.tick
}

// TotalWrites returns the cumulative number of submitted writes.
func (c *Coordinator) TotalWrites() int64 {
	return c.totalWrites
}

// BackgroundCount returns the current number of background writes.
func (c *Coordinator) BackgroundCount() int {
	return len(c.background)
}

// ThrottledCount returns the current number of throttled writes.
func (c *Coordinator) ThrottledCount() int {
	return len(c.throttled)
}

// DelayedCount returns the number of currently delay-gated acknowledgements.
func (c *Coordinator) DelayedCount() int {
	return len(c.delayedReply)
}

// LastDelay returns the most recently computed reply delay, before
// truncation to whole ticks.
func (c *Coordinator) LastDelay() float64 {
	return c.lastDelay
}

// WindowWrites returns the writes admitted since the last ResetWindow.
func (c *Coordinator) WindowWrites() int64 {
	return c.windowWrites
}

// WindowTicks returns the ticks elapsed since the last ResetWindow.
func (c *Coordinator) WindowTicks() int64 {
	return c.windowTicks
}

// ResetWindow clears the rolling write/tick counters.
func (c *Coordinator) ResetWindow() {
	c.windowWrites = 0
	c.windowTicks = 0
}
