package sim

import (
	"hash/fnv"
	"math/rand"
)

// === SimulationKey ===

// SimulationKey uniquely identifies a reproducible simulation run.
// Two simulations with the same SimulationKey and identical configuration
// MUST produce bit-for-bit identical emitted series.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// === Subsystem Constants ===

const (
	// SubsystemJitter is the RNG subsystem for delay jitter.
	// It is the only source of randomness in the core engine, and it is
	// off by default.
	SubsystemJitter = "jitter"
)

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated RNG instances per
// subsystem, derived as masterSeed XOR fnv1a64(subsystemName). Adding a new
// randomized subsystem later cannot perturb the draw sequence of an
// existing one.
//
// Thread-safety: NOT thread-safe. The simulation is single-threaded.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named
// subsystem. The same subsystem name always returns the same *rand.Rand
// instance (cached). Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	derivedSeed := int64(p.key) ^ fnv1a64(name)
	rng := rand.New(rand.NewSource(derivedSeed))
	p.subsystems[name] = rng
	return rng
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}

// === Delay jitter ===

// JitterConfig enables seeded uniform jitter on computed reply delays.
// Amplitude is in ticks; each delay gets a uniform offset in
// (-Amplitude, +Amplitude). A zero Amplitude disables jitter entirely,
// which is the default.
type JitterConfig struct {
	Amplitude float64
	Seed      int64
}

// delayJitter samples the additive jitter applied to computed delays.
type delayJitter struct {
	amplitude float64
	rng       *rand.Rand
}

// newDelayJitter returns nil when jitter is disabled.
func newDelayJitter(cfg JitterConfig) *delayJitter {
	if cfg.Amplitude <= 0 {
		return nil
	}
	return &delayJitter{
		amplitude: cfg.Amplitude,
		rng:       NewPartitionedRNG(NewSimulationKey(cfg.Seed)).ForSubsystem(SubsystemJitter),
	}
}

func (j *delayJitter) sample() float64 {
	return (j.rng.Float64() - 0.5) * 2 * j.amplitude
}
