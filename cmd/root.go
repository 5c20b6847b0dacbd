package cmd

import (
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/flowsim/flowsim/sim"
	"github.com/flowsim/flowsim/sim/scenario"
)

var (
	// CLI flags for the simulated cluster
	scenarioPath        string    // YAML scenario file (overrides inline flags)
	replicaRates        []float64 // primary completion rate per replica (writes/tick)
	secondaryRates      []float64 // secondary completion rate per replica (0 = no secondary)
	consistencyLevel    int       // replica acks required before replying to the client
	maxBackgroundWrites int       // cap on writes tracked past the client reply
	policyName          string    // backpressure policy name
	gain                float64   // fixed-gain multiplier
	targetBacklog       float64   // adaptive-gain desired backlog length
	jitterAmplitude     float64   // delay jitter amplitude in ticks (0 = off)
	seed                int64     // seed for the jitter RNG

	// CLI flags for the workload
	concurrency float64 // fixed client concurrency
	ticks       int64   // total simulated ticks
	window      int64   // rolling throughput window (ticks)

	// CLI flags for output
	outDir   string // directory for .dat series files
	logLevel string // log verbosity level
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "flowsim",
	Short: "Discrete-time simulator for quorum write flow control",
}

// runCmd executes a simulation using a scenario file or inline flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a flow-control simulation",
	Run: func(cmd *cobra.Command, args []string) {
		// Set up logging
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		spec := inlineSpec()
		if scenarioPath != "" {
			loaded, err := scenario.Load(scenarioPath)
			if err != nil {
				logrus.Fatalf("Loading scenario: %v", err)
			}
			spec = loaded
		}

		sink, err := sim.NewDatFileSink(outDir)
		if err != nil {
			logrus.Fatalf("Opening metrics sink: %v", err)
		}

		_, driver, err := spec.Build(sink)
		if err != nil {
			logrus.Fatalf("Building scenario: %v", err)
		}

		stats, err := driver.Run()
		if err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		if err := sink.Close(); err != nil {
			logrus.Fatalf("Writing metrics: %v", err)
		}

		stats.Print()
		logrus.Infof("Series written to %s", outDir)
	},
}

// inlineSpec assembles a scenario from inline flags, for quick runs without
// a YAML file.
func inlineSpec() *scenario.Spec {
	if len(secondaryRates) != 0 && len(secondaryRates) != len(replicaRates) {
		logrus.Fatalf("--secondary-rates must be empty or match --replica-rates in length")
	}
	replicas := make([]scenario.ReplicaSpec, len(replicaRates))
	for i, rate := range replicaRates {
		replicas[i] = scenario.ReplicaSpec{
			ID:          intToID(i + 1),
			PrimaryRate: rate,
		}
		if len(secondaryRates) != 0 {
			replicas[i].SecondaryRate = secondaryRates[i]
		}
	}
	return &scenario.Spec{
		Name:     "inline",
		Seed:     seed,
		Replicas: replicas,
		Coordinator: scenario.CoordinatorSpec{
			ID:                   "1",
			ConsistencyThreshold: consistencyLevel,
			MaxBackgroundWrites:  maxBackgroundWrites,
			Backpressure: scenario.BackpressureSpec{
				Policy:        policyName,
				Gain:          gain,
				TargetBacklog: targetBacklog,
			},
			JitterAmplitude: jitterAmplitude,
		},
		Workload: scenario.WorkloadSpec{
			Concurrency: scenario.ConcurrencySpec{
				Shape: scenario.ShapeFixed,
				Level: concurrency,
			},
			Ticks:           ticks,
			ReportingWindow: window,
		},
	}
}

func intToID(i int) string {
	// replica ids are strings ("1", "2", ...); secondaries get a "v" prefix
	return strconv.Itoa(i)
}

func init() {
	runCmd.Flags().StringVar(&scenarioPath, "scenario", "", "YAML scenario file; overrides the inline flags")
	runCmd.Flags().Float64SliceVar(&replicaRates, "replica-rates", []float64{0.1, 0.1, 0.099}, "Primary completion rate per replica (writes/tick)")
	runCmd.Flags().Float64SliceVar(&secondaryRates, "secondary-rates", nil, "Secondary completion rate per replica (0 = no secondary)")
	runCmd.Flags().IntVar(&consistencyLevel, "consistency-level", 2, "Replica acks required before replying to the client")
	runCmd.Flags().IntVar(&maxBackgroundWrites, "max-background-writes", 300, "Cap on writes tracked past the client reply")
	runCmd.Flags().StringVar(&policyName, "policy", "none", "Backpressure policy: none, fixed-gain, adaptive-gain")
	runCmd.Flags().Float64Var(&gain, "gain", 1.0, "Fixed-gain delay multiplier")
	runCmd.Flags().Float64Var(&targetBacklog, "target-backlog", 200, "Adaptive-gain desired secondary backlog length")
	runCmd.Flags().Float64Var(&jitterAmplitude, "jitter", 0, "Delay jitter amplitude in ticks (0 disables)")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for the jitter RNG")
	runCmd.Flags().Float64Var(&concurrency, "concurrency", 50, "Fixed client concurrency")
	runCmd.Flags().Int64Var(&ticks, "ticks", 200000, "Total simulated ticks")
	runCmd.Flags().Int64Var(&window, "window", sim.DefaultReportingWindow, "Rolling throughput window in ticks")
	runCmd.Flags().StringVar(&outDir, "out", "out", "Directory for .dat series files")
	runCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(runCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Fatal(err)
	}
}
