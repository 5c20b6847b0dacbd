// Implements the WorkloadDriver, which advances simulated time: it admits
// new writes under a caller-supplied concurrency budget, ticks every node and
// the coordinator once per step, and reports rolling throughput.

package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// ConcurrencyFunc returns the client's admission budget at a given step.
// The driver submits a new write only while the coordinator's outstanding
// count is below this budget. See concurrency.go for stock shapes.
type ConcurrencyFunc func(step int64) float64

// DriverConfig groups WorkloadDriver parameters.
type DriverConfig struct {
	// Concurrency is the client's (possibly time-varying) admission budget.
	Concurrency ConcurrencyFunc

	// Ticks is the number of simulated steps to run. There is no early-exit:
	// runs always proceed for the full count.
	Ticks int64

	// ReportingWindow is the number of ticks between rolling throughput
	// reports. Defaults to DefaultReportingWindow when 0.
	ReportingWindow int64
}

// DefaultReportingWindow is the rolling throughput window, in ticks.
const DefaultReportingWindow = 2000

// WorkloadDriver drives one coordinator/replica graph through simulated time.
type WorkloadDriver struct {
	coord *Coordinator
	cfg   DriverConfig

	sink             MetricsSink
	throughputSeries string
}

// NewWorkloadDriver creates a driver for the given coordinator.
func NewWorkloadDriver(coord *Coordinator, cfg DriverConfig, sink MetricsSink) (*WorkloadDriver, error) {
	if coord == nil {
		return nil, fmt.Errorf("driver: coordinator required")
	}
	if cfg.Concurrency == nil {
		return nil, fmt.Errorf("driver: concurrency function required")
	}
	if cfg.Ticks <= 0 {
		return nil, fmt.Errorf("driver: tick count must be positive, got %d", cfg.Ticks)
	}
	if cfg.ReportingWindow < 0 {
		return nil, fmt.Errorf("driver: reporting window must be non-negative, got %d", cfg.ReportingWindow)
	}
	if cfg.ReportingWindow == 0 {
		cfg.ReportingWindow = DefaultReportingWindow
	}
	if sink == nil {
		sink = NullSink{}
	}
	return &WorkloadDriver{
		coord:            coord,
		cfg:              cfg,
		sink:             sink,
		throughputSeries: fmt.Sprintf("coordinator_%s_throughput", coord.ID),
	}, nil
}

// Run executes the configured number of ticks and returns the run summary.
//
// Per tick: admit at most one write if the outstanding count is below the
// concurrency budget, tick every node exactly once, advance the coordinator,
// and every ReportingWindow ticks emit admitted-writes / elapsed-ticks as
// the rolling throughput.
func (d *WorkloadDriver) Run() (RunStats, error) {
	c := d.coord
	logrus.Infof("coordinator %s: running %d ticks (reporting window %d)",
		c.ID, d.cfg.Ticks, d.cfg.ReportingWindow)

	for step := int64(0); step < d.cfg.Ticks; step++ {
		if float64(c.OutstandingCount()) < d.cfg.Concurrency(step) {
			rid := c.NextRequestID()
			if err := c.Submit(rid); err != nil {
				return RunStats{}, fmt.Errorf("driver: submit at step %d: %w", step, err)
			}
			logrus.Debugf("[tick %07d] submitted request %d", c.Tick(), rid)
		}

		// Order among distinct replicas is irrelevant: nodes interact only
		// through the coordinator at tick boundaries.
		for _, rep := range c.Replicas() {
			rep.Tick()
		}
		c.AdvanceTick()

		if c.WindowTicks() >= d.cfg.ReportingWindow {
			throughput := float64(c.WindowWrites()) / float64(c.WindowTicks())
			d.sink.Emit(d.throughputSeries, c.Tick(), throughput)
			logrus.Infof("[tick %07d] average over last %d ticks: %g writes/tick",
				c.Tick(), c.WindowTicks(), throughput)
			c.ResetWindow()
		}
	}

	stats := NewRunStats(c)
	logrus.Infof("coordinator %s: simulation ended at tick %d", c.ID, c.Tick())
	return stats, nil
}
