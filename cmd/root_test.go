package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowsim/flowsim/sim"
	"github.com/flowsim/flowsim/sim/scenario"
)

func TestInlineSpecDefaults(t *testing.T) {
	// flag registration in init() leaves the package vars at their defaults
	spec := inlineSpec()
	require.NoError(t, spec.Validate())

	assert.Equal(t, "inline", spec.Name)
	require.Len(t, spec.Replicas, 3)
	assert.Equal(t, "1", spec.Replicas[0].ID)
	assert.Equal(t, "3", spec.Replicas[2].ID)
	assert.Equal(t, 0.099, spec.Replicas[2].PrimaryRate)
	assert.Zero(t, spec.Replicas[0].SecondaryRate)
	assert.Equal(t, 2, spec.Coordinator.ConsistencyThreshold)
	assert.Equal(t, 300, spec.Coordinator.MaxBackgroundWrites)
	assert.Equal(t, sim.PolicyNone, spec.Coordinator.Backpressure.Policy)
	assert.Equal(t, scenario.ShapeFixed, spec.Workload.Concurrency.Shape)
	assert.Equal(t, float64(50), spec.Workload.Concurrency.Level)
	assert.Equal(t, int64(200000), spec.Workload.Ticks)
}

func TestInlineSpecBuildsAndRuns(t *testing.T) {
	spec := inlineSpec()
	spec.Workload.Ticks = 500

	sink := sim.NewMemorySink()
	coord, driver, err := spec.Build(sink)
	require.NoError(t, err)

	stats, err := driver.Run()
	require.NoError(t, err)
	assert.Equal(t, int64(500), stats.Ticks)
	assert.Equal(t, int64(500), coord.Tick())
	assert.NotEmpty(t, sink.Series("coordinator_1_foreground_writes"))
}

func TestIntToID(t *testing.T) {
	assert.Equal(t, "1", intToID(1))
	assert.Equal(t, "10", intToID(10))
}
