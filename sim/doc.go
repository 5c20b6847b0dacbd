// Package sim provides the core discrete-time engine of flowsim, a simulator
// of write flow control for a quorum-replicated store with asynchronous
// secondary (materialized-view-like) replicas.
//
// # Reading Guide
//
// Start with these three files to understand the simulation kernel:
//   - node.go: the fractional-rate FIFO service model (Node, Replica)
//   - coordinator.go: the quorum / background / throttle / delayed-reply
//     state machine per request
//   - driver.go: the tick loop that admits writes under a concurrency budget
//
// # Architecture
//
// The engine is single-threaded and fully deterministic: given identical
// configuration and tick count, the emitted series are bit-for-bit
// reproducible. The only randomness is the optional, seeded delay jitter
// (rng.go), which is off by default.
//
// The extension points are small interfaces:
//   - BackpressurePolicy: map observed backlog state to a reply delay
//     (none, fixed-gain, adaptive-gain)
//   - MetricsSink: receive named time series (null, in-memory, .dat files)
//
// Scenario files live in the sim/scenario sub-package; the CLI in cmd/.
package sim
