// Implements the Node and Replica structs, the leaf building blocks of the
// simulated cluster. A Node is a rate-limited FIFO write queue; a Replica is
// a primary Node with an optional chained secondary Node that receives an
// asynchronous copy of every accepted write.

package sim

import (
	"fmt"
)

// RequestID identifies one write request. IDs are allocated by a Coordinator,
// are monotonically increasing, and are never reused while outstanding.
type RequestID uint64

// Node models a single machine completing writes at a fixed rate.
//
// Service uses fractional accumulation: each tick with a non-empty queue adds
// rate to an accumulator, and one queued write completes per whole unit of
// accumulated credit. This guarantees the long-run completion rate equals
// rate even when rate < 1, with FIFO order preserved exactly. Credit does not
// accrue while the queue is empty, so the accumulator stays in [0,1) and an
// idle node cannot bank a completion burst.
//
// A rate of 0 is a permanent stall. Queues are unbounded: backlog growth is
// the signal backpressure policies consume, never an enforced cap.
type Node struct {
	ID string

	rate        float64
	accumulator float64
	pending     []RequestID
	completed   []RequestID // writes completed this tick, cleared by the coordinator
	tick        int64

	sink          MetricsSink
	pendingSeries string
}

// NewNode creates a Node completing rate writes per tick.
// A negative rate is a configuration error.
func NewNode(id string, rate float64, sink MetricsSink) (*Node, error) {
	if rate < 0 {
		return nil, fmt.Errorf("node %s: rate must be non-negative, got %g", id, rate)
	}
	if sink == nil {
		sink = NullSink{}
	}
	return &Node{
		ID:            id,
		rate:          rate,
		sink:          sink,
		pendingSeries: fmt.Sprintf("replica_%s_write_queue", id),
	}, nil
}

// Enqueue appends a write to the back of the node's queue.
func (n *Node) Enqueue(rid RequestID) {
	n.pending = append(n.pending, rid)
}

// Tick advances the node by one unit of simulated time, completing whole
// units of accumulated service credit in FIFO order, and reports the pending
// queue depth.
func (n *Node) Tick() {
	if len(n.pending) > 0 {
		n.accumulator += n.rate
		for n.accumulator >= 1 {
			if len(n.pending) == 0 {
				// Queue drained mid-tick (rate > 1); leftover whole
				// credits are discarded, not banked.
				n.accumulator = 0
				break
			}
			n.accumulator -= 1
			n.completed = append(n.completed, n.pending[0])
			n.pending = n.pending[1:]
		}
	}
	n.tick++
	n.sink.Emit(n.pendingSeries, n.tick, float64(len(n.pending)))
}

// QueueLen returns the current pending queue depth.
func (n *Node) QueueLen() int {
	return len(n.pending)
}

// Rate returns the node's completion rate in writes per tick.
func (n *Node) Rate() float64 {
	return n.rate
}

// Completed returns the writes completed during the current tick, in
// completion (= arrival) order. The coordinator reconciles and then clears
// this via ClearCompleted.
func (n *Node) Completed() []RequestID {
	return n.completed
}

// ClearCompleted discards the completed-this-tick list.
func (n *Node) ClearCompleted() {
	n.completed = n.completed[:0]
}

// Replica is a primary Node plus an optional exclusively-owned secondary
// Node. Every write accepted by the primary is enqueued to the secondary in
// the same step; the fan-out is fire-and-forget, no backpressure flows from
// the secondary back into Enqueue.
type Replica struct {
	Primary   *Node
	Secondary *Node // nil when the replica has no chained secondary
}

// NewReplica creates a Replica with the given primary rate. A non-zero
// secondaryRate chains a secondary node named "v"+id, mirroring every write.
func NewReplica(id string, primaryRate, secondaryRate float64, sink MetricsSink) (*Replica, error) {
	primary, err := NewNode(id, primaryRate, sink)
	if err != nil {
		return nil, err
	}
	r := &Replica{Primary: primary}
	if secondaryRate != 0 {
		secondary, err := NewNode("v"+id, secondaryRate, sink)
		if err != nil {
			return nil, err
		}
		r.Secondary = secondary
	}
	return r, nil
}

// Enqueue accepts a write on the primary and mirrors it to the secondary.
func (r *Replica) Enqueue(rid RequestID) {
	r.Primary.Enqueue(rid)
	if r.Secondary != nil {
		r.Secondary.Enqueue(rid)
	}
}

// Tick advances the primary and, if present, the secondary by one tick.
func (r *Replica) Tick() {
	r.Primary.Tick()
	if r.Secondary != nil {
		r.Secondary.Tick()
	}
}

// SecondaryBacklog returns the secondary's pending queue depth, or 0 when
// the replica has no secondary.
func (r *Replica) SecondaryBacklog() int {
	if r.Secondary == nil {
		return 0
	}
	return r.Secondary.QueueLen()
}
