// End-of-run summary statistics, printed by the CLI after a simulation.

package sim

import "fmt"

// RunStats aggregates a finished run for final reporting.
type RunStats struct {
	Ticks               int64
	TotalWrites         int64
	MeanThroughput      float64 // writes per tick over the whole run
	FinalOutstanding    int
	FinalBackground     int
	FinalThrottled      int
	MaxSecondaryBacklog int // largest secondary backlog at the end of the run
}

// NewRunStats snapshots the coordinator at the end of a run.
func NewRunStats(c *Coordinator) RunStats {
	maxBacklog := 0
	for _, rep := range c.Replicas() {
		if b := rep.SecondaryBacklog(); b > maxBacklog {
			maxBacklog = b
		}
	}
	stats := RunStats{
		Ticks:               c.Tick(),
		TotalWrites:         c.TotalWrites(),
		FinalOutstanding:    c.OutstandingCount(),
		FinalBackground:     c.BackgroundCount(),
		FinalThrottled:      c.ThrottledCount(),
		MaxSecondaryBacklog: maxBacklog,
	}
	if stats.Ticks > 0 {
		stats.MeanThroughput = float64(stats.TotalWrites) / float64(stats.Ticks)
	}
	return stats
}

// Print displays the run summary.
func (s RunStats) Print() {
	fmt.Println("=== Simulation Summary ===")
	fmt.Printf("Ticks                  : %d\n", s.Ticks)
	fmt.Printf("Total Writes           : %d\n", s.TotalWrites)
	fmt.Printf("Mean Throughput        : %.4f writes/tick\n", s.MeanThroughput)
	fmt.Printf("Final Outstanding      : %d\n", s.FinalOutstanding)
	fmt.Printf("Final Background       : %d\n", s.FinalBackground)
	fmt.Printf("Final Throttled        : %d\n", s.FinalThrottled)
	fmt.Printf("Max Secondary Backlog  : %d\n", s.MaxSecondaryBacklog)
}
