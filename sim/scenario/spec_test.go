package scenario

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowsim/flowsim/sim"
)

// validSpec returns a minimal valid scenario for mutation in table tests.
func validSpec() *Spec {
	return &Spec{
		Name: "valid",
		Replicas: []ReplicaSpec{
			{ID: "1", PrimaryRate: 0.1},
			{ID: "2", PrimaryRate: 0.1},
		},
		Coordinator: CoordinatorSpec{
			ID:                   "1",
			ConsistencyThreshold: 1,
			MaxBackgroundWrites:  100,
			Backpressure:         BackpressureSpec{Policy: sim.PolicyNone},
		},
		Workload: WorkloadSpec{
			Concurrency: ConcurrencySpec{Shape: ShapeFixed, Level: 10},
			Ticks:       1000,
		},
	}
}

func TestLoad_ViewsScenario(t *testing.T) {
	spec, err := Load(filepath.Join("testdata", "views_uniform_slow.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "views-uniform-slow", spec.Name)
	assert.Equal(t, int64(11), spec.Seed)
	require.Len(t, spec.Replicas, 3)
	assert.Equal(t, 0.099, spec.Replicas[2].PrimaryRate)
	assert.Equal(t, 0.03, spec.Replicas[2].SecondaryRate)
	assert.Equal(t, 2, spec.Coordinator.ConsistencyThreshold)
	assert.Equal(t, 300, spec.Coordinator.MaxBackgroundWrites)
	assert.Equal(t, sim.PolicyAdaptiveGain, spec.Coordinator.Backpressure.Policy)
	assert.Equal(t, 200.0, spec.Coordinator.Backpressure.TargetBacklog)
	assert.Equal(t, int64(200000), spec.Workload.Ticks)
	require.NoError(t, spec.Validate())
}

func TestLoad_PhasedScenario(t *testing.T) {
	spec, err := Load(filepath.Join("testdata", "phased.yaml"))
	require.NoError(t, err)
	require.NoError(t, spec.Validate())

	require.Len(t, spec.Workload.Concurrency.Phases, 3)
	assert.Equal(t, 0.0, spec.Workload.Concurrency.Phases[1].Level, "sudden-stop phase")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "does_not_exist.yaml"))
	require.Error(t, err)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Spec)
		wantErr string
	}{
		{
			name:    "no replicas",
			mutate:  func(s *Spec) { s.Replicas = nil },
			wantErr: "at least one replica",
		},
		{
			name:    "duplicate replica id",
			mutate:  func(s *Spec) { s.Replicas[1].ID = "1" },
			wantErr: "duplicate replica id",
		},
		{
			name:    "negative primary rate",
			mutate:  func(s *Spec) { s.Replicas[0].PrimaryRate = -1 },
			wantErr: "primary_rate",
		},
		{
			name:    "negative secondary rate",
			mutate:  func(s *Spec) { s.Replicas[0].SecondaryRate = -0.5 },
			wantErr: "secondary_rate",
		},
		{
			name:    "threshold too low",
			mutate:  func(s *Spec) { s.Coordinator.ConsistencyThreshold = 0 },
			wantErr: "consistency_threshold",
		},
		{
			name:    "threshold above replica count",
			mutate:  func(s *Spec) { s.Coordinator.ConsistencyThreshold = 3 },
			wantErr: "consistency_threshold",
		},
		{
			name:    "negative background cap",
			mutate:  func(s *Spec) { s.Coordinator.MaxBackgroundWrites = -1 },
			wantErr: "max_background_writes",
		},
		{
			name:    "unknown policy",
			mutate:  func(s *Spec) { s.Coordinator.Backpressure.Policy = "pid" },
			wantErr: "unknown backpressure policy",
		},
		{
			name: "fixed-gain without gain",
			mutate: func(s *Spec) {
				s.Coordinator.Backpressure = BackpressureSpec{Policy: sim.PolicyFixedGain}
			},
			wantErr: "fixed-gain",
		},
		{
			name: "adaptive-gain without target",
			mutate: func(s *Spec) {
				s.Coordinator.Backpressure = BackpressureSpec{Policy: sim.PolicyAdaptiveGain}
			},
			wantErr: "adaptive-gain",
		},
		{
			name:    "negative jitter",
			mutate:  func(s *Spec) { s.Coordinator.JitterAmplitude = -1 },
			wantErr: "jitter_amplitude",
		},
		{
			name:    "zero ticks",
			mutate:  func(s *Spec) { s.Workload.Ticks = 0 },
			wantErr: "ticks",
		},
		{
			name:    "unknown shape",
			mutate:  func(s *Spec) { s.Workload.Concurrency.Shape = "bursty" },
			wantErr: "unknown concurrency shape",
		},
		{
			name: "ramp without duration",
			mutate: func(s *Spec) {
				s.Workload.Concurrency = ConcurrencySpec{Shape: ShapeRamp, From: 10, To: 20}
			},
			wantErr: "ramp",
		},
		{
			name: "oscillating without period",
			mutate: func(s *Spec) {
				s.Workload.Concurrency = ConcurrencySpec{Shape: ShapeOscillating, Base: 10, Amplitude: 5}
			},
			wantErr: "oscillating",
		},
		{
			name: "phased without phases",
			mutate: func(s *Spec) {
				s.Workload.Concurrency = ConcurrencySpec{Shape: ShapePhased}
			},
			wantErr: "phased",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validSpec()
			tt.mutate(spec)
			err := spec.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBuild_RunsEndToEnd(t *testing.T) {
	// GIVEN a valid spec with a chained secondary and fixed-gain policy
	spec := validSpec()
	spec.Replicas[0].SecondaryRate = 0.05
	spec.Coordinator.Backpressure = BackpressureSpec{Policy: sim.PolicyFixedGain, Gain: 2}

	// WHEN built and run
	sink := sim.NewMemorySink()
	coord, driver, err := spec.Build(sink)
	require.NoError(t, err)
	require.Equal(t, "1", coord.ID)

	stats, err := driver.Run()
	require.NoError(t, err)

	// THEN the run progressed and emitted series for every node
	assert.Equal(t, int64(1000), stats.Ticks)
	assert.Greater(t, stats.TotalWrites, int64(0))
	assert.NotEmpty(t, sink.Series("replica_1_write_queue"))
	assert.NotEmpty(t, sink.Series("replica_v1_write_queue"))
	assert.NotEmpty(t, sink.Series("coordinator_1_foreground_writes"))
}

func TestBuild_InvalidSpecFails(t *testing.T) {
	spec := validSpec()
	spec.Coordinator.ConsistencyThreshold = 0
	_, _, err := spec.Build(sim.NewMemorySink())
	require.Error(t, err)
}

func TestBuild_DefaultsCoordinatorID(t *testing.T) {
	spec := validSpec()
	spec.Coordinator.ID = ""
	coord, _, err := spec.Build(sim.NewMemorySink())
	require.NoError(t, err)
	assert.Equal(t, "1", coord.ID)
}
