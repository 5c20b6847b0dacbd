// Package scenario loads YAML scenario files and builds the corresponding
// coordinator/replica graph and workload driver. The core engine consumes
// only typed structures; no file format is intrinsic to it.
package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/flowsim/flowsim/sim"
)

// Spec is the top-level scenario configuration, loadable from a YAML file.
type Spec struct {
	Name        string          `yaml:"name"`
	Seed        int64           `yaml:"seed"`
	Replicas    []ReplicaSpec   `yaml:"replicas"`
	Coordinator CoordinatorSpec `yaml:"coordinator"`
	Workload    WorkloadSpec    `yaml:"workload"`
}

// ReplicaSpec configures one replica. A zero SecondaryRate means the replica
// has no chained secondary.
type ReplicaSpec struct {
	ID            string  `yaml:"id"`
	PrimaryRate   float64 `yaml:"primary_rate"`
	SecondaryRate float64 `yaml:"secondary_rate,omitempty"`
}

// CoordinatorSpec configures the coordinator and its backpressure policy.
type CoordinatorSpec struct {
	ID                   string           `yaml:"id"`
	ConsistencyThreshold int              `yaml:"consistency_threshold"`
	MaxBackgroundWrites  int              `yaml:"max_background_writes"`
	Backpressure         BackpressureSpec `yaml:"backpressure"`
	JitterAmplitude      float64          `yaml:"jitter_amplitude,omitempty"`
}

// BackpressureSpec selects a backpressure policy by name.
// Valid names are in sim.ValidBackpressurePolicies; empty means none.
type BackpressureSpec struct {
	Policy        string  `yaml:"policy"`
	Gain          float64 `yaml:"gain,omitempty"`           // fixed-gain only
	TargetBacklog float64 `yaml:"target_backlog,omitempty"` // adaptive-gain only
}

// WorkloadSpec configures the driver.
type WorkloadSpec struct {
	Concurrency     ConcurrencySpec `yaml:"concurrency"`
	Ticks           int64           `yaml:"ticks"`
	ReportingWindow int64           `yaml:"reporting_window,omitempty"`
}

// Concurrency shape names accepted by ConcurrencySpec.
const (
	ShapeFixed       = "fixed"
	ShapeRamp        = "ramp"
	ShapeOscillating = "oscillating"
	ShapePhased      = "phased"
)

// ValidConcurrencyShapes is the set of recognized concurrency shape names.
var ValidConcurrencyShapes = map[string]bool{
	ShapeFixed:       true,
	ShapeRamp:        true,
	ShapeOscillating: true,
	ShapePhased:      true,
}

// ConcurrencySpec parameterizes the client's admission budget over time.
// Only the fields of the selected shape are read.
type ConcurrencySpec struct {
	Shape string `yaml:"shape"`

	// fixed
	Level float64 `yaml:"level,omitempty"`

	// ramp
	From float64 `yaml:"from,omitempty"`
	To   float64 `yaml:"to,omitempty"`
	Over int64   `yaml:"over,omitempty"`

	// oscillating
	Base      float64 `yaml:"base,omitempty"`
	Amplitude float64 `yaml:"amplitude,omitempty"`
	Period    int64   `yaml:"period,omitempty"`

	// phased
	Phases []PhaseSpec `yaml:"phases,omitempty"`
}

// PhaseSpec is one segment of a phased concurrency shape.
type PhaseSpec struct {
	Ticks int64   `yaml:"ticks"`
	Level float64 `yaml:"level"`
}

// Load reads and parses a YAML scenario file.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	return &spec, nil
}

// Validate checks the spec for configuration errors before building.
func (s *Spec) Validate() error {
	if len(s.Replicas) == 0 {
		return fmt.Errorf("scenario: at least one replica required")
	}
	seen := make(map[string]bool, len(s.Replicas))
	for i, rep := range s.Replicas {
		if rep.ID == "" {
			return fmt.Errorf("scenario: replica %d: id required", i)
		}
		if seen[rep.ID] {
			return fmt.Errorf("scenario: duplicate replica id %q", rep.ID)
		}
		seen[rep.ID] = true
		if rep.PrimaryRate < 0 {
			return fmt.Errorf("scenario: replica %s: primary_rate must be non-negative, got %g", rep.ID, rep.PrimaryRate)
		}
		if rep.SecondaryRate < 0 {
			return fmt.Errorf("scenario: replica %s: secondary_rate must be non-negative, got %g", rep.ID, rep.SecondaryRate)
		}
	}
	c := s.Coordinator
	if c.ConsistencyThreshold < 1 || c.ConsistencyThreshold > len(s.Replicas) {
		return fmt.Errorf("scenario: consistency_threshold must be in [1, %d], got %d", len(s.Replicas), c.ConsistencyThreshold)
	}
	if c.MaxBackgroundWrites < 0 {
		return fmt.Errorf("scenario: max_background_writes must be non-negative, got %d", c.MaxBackgroundWrites)
	}
	if !sim.IsValidBackpressurePolicy(c.Backpressure.Policy) {
		return fmt.Errorf("scenario: unknown backpressure policy %q", c.Backpressure.Policy)
	}
	if c.Backpressure.Policy == sim.PolicyFixedGain && c.Backpressure.Gain <= 0 {
		return fmt.Errorf("scenario: fixed-gain requires a positive gain, got %g", c.Backpressure.Gain)
	}
	if c.Backpressure.Policy == sim.PolicyAdaptiveGain && c.Backpressure.TargetBacklog <= 0 {
		return fmt.Errorf("scenario: adaptive-gain requires a positive target_backlog, got %g", c.Backpressure.TargetBacklog)
	}
	if c.JitterAmplitude < 0 {
		return fmt.Errorf("scenario: jitter_amplitude must be non-negative, got %g", c.JitterAmplitude)
	}
	w := s.Workload
	if w.Ticks <= 0 {
		return fmt.Errorf("scenario: workload ticks must be positive, got %d", w.Ticks)
	}
	if w.ReportingWindow < 0 {
		return fmt.Errorf("scenario: reporting_window must be non-negative, got %d", w.ReportingWindow)
	}
	return validateConcurrency(w.Concurrency)
}

func validateConcurrency(c ConcurrencySpec) error {
	if !ValidConcurrencyShapes[c.Shape] {
		return fmt.Errorf("scenario: unknown concurrency shape %q", c.Shape)
	}
	switch c.Shape {
	case ShapeFixed:
		if c.Level < 0 {
			return fmt.Errorf("scenario: fixed concurrency level must be non-negative, got %g", c.Level)
		}
	case ShapeRamp:
		if c.Over <= 0 {
			return fmt.Errorf("scenario: ramp requires a positive 'over' tick count, got %d", c.Over)
		}
	case ShapeOscillating:
		if c.Period <= 0 {
			return fmt.Errorf("scenario: oscillating requires a positive period, got %d", c.Period)
		}
	case ShapePhased:
		if len(c.Phases) == 0 {
			return fmt.Errorf("scenario: phased requires at least one phase")
		}
		for i, p := range c.Phases {
			if p.Ticks <= 0 {
				return fmt.Errorf("scenario: phase %d: ticks must be positive, got %d", i, p.Ticks)
			}
			if p.Level < 0 {
				return fmt.Errorf("scenario: phase %d: level must be non-negative, got %g", i, p.Level)
			}
		}
	}
	return nil
}

// buildConcurrency converts a validated spec into a ConcurrencyFunc.
func buildConcurrency(c ConcurrencySpec) sim.ConcurrencyFunc {
	switch c.Shape {
	case ShapeRamp:
		return sim.RampConcurrency(c.From, c.To, c.Over)
	case ShapeOscillating:
		return sim.OscillatingConcurrency(c.Base, c.Amplitude, c.Period)
	case ShapePhased:
		phases := make([]sim.ConcurrencyPhase, len(c.Phases))
		for i, p := range c.Phases {
			phases[i] = sim.ConcurrencyPhase{Ticks: p.Ticks, Limit: p.Level}
		}
		return sim.PhasedConcurrency(phases...)
	default:
		return sim.FixedConcurrency(c.Level)
	}
}

// Build validates the spec and constructs the replica graph, coordinator,
// and workload driver, all reporting into the given sink.
func (s *Spec) Build(sink sim.MetricsSink) (*sim.Coordinator, *sim.WorkloadDriver, error) {
	if err := s.Validate(); err != nil {
		return nil, nil, err
	}

	replicas := make([]*sim.Replica, 0, len(s.Replicas))
	for _, rep := range s.Replicas {
		r, err := sim.NewReplica(rep.ID, rep.PrimaryRate, rep.SecondaryRate, sink)
		if err != nil {
			return nil, nil, fmt.Errorf("scenario: %w", err)
		}
		replicas = append(replicas, r)
	}

	bp := s.Coordinator.Backpressure
	coordID := s.Coordinator.ID
	if coordID == "" {
		coordID = "1"
	}
	coord, err := sim.NewCoordinator(sim.CoordinatorConfig{
		ID:                   coordID,
		ConsistencyThreshold: s.Coordinator.ConsistencyThreshold,
		MaxBackgroundWrites:  s.Coordinator.MaxBackgroundWrites,
		Policy:               sim.NewBackpressurePolicy(bp.Policy, bp.Gain, bp.TargetBacklog),
		Jitter:               sim.JitterConfig{Amplitude: s.Coordinator.JitterAmplitude, Seed: s.Seed},
		Sink:                 sink,
	}, replicas)
	if err != nil {
		return nil, nil, fmt.Errorf("scenario: %w", err)
	}

	driver, err := sim.NewWorkloadDriver(coord, sim.DriverConfig{
		Concurrency:     buildConcurrency(s.Workload.Concurrency),
		Ticks:           s.Workload.Ticks,
		ReportingWindow: s.Workload.ReportingWindow,
	}, sink)
	if err != nil {
		return nil, nil, fmt.Errorf("scenario: %w", err)
	}
	return coord, driver, nil
}
