// Command partition runs a single PARTSIM partition-worker process: it
// loads this partition's slice of the network from --data-dir, starts a
// Sim backend, and drives the per-tick loop in internal/partition until
// the run terminates or the process is asked to stop.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/partsim/partsim/internal/config"
	"github.com/partsim/partsim/internal/logging"
	"github.com/partsim/partsim/internal/partition"
	"github.com/partsim/partsim/internal/simsdk"
	"github.com/partsim/partsim/internal/transport"
)

var (
	partitionID int
	numParts    int
	endTime     float64
	dataDir     string
	simBackend  string
	simArgs     []string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "partition",
	Short: "Run one PARTSIM partition-worker process",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.Flags().IntVarP(&partitionID, "partition", "P", -1, "this partition's id (required)")
	rootCmd.Flags().IntVarP(&numParts, "num-partitions", "N", 0, "total number of partitions in this run")
	rootCmd.Flags().Float64VarP(&endTime, "end-time", "T", -1, "simulation end time; negative means run until all partitions are empty")
	rootCmd.Flags().StringVar(&dataDir, "data-dir", ".", "directory holding this run's per-partition config")
	rootCmd.Flags().StringVar(&simBackend, "sim", "mem", "Sim backend: mem or traci")
	rootCmd.Flags().StringSliceVar(&simArgs, "sim-args", nil, "extra arguments passed through to the Sim backend")
	rootCmd.Flags().StringVar(&logLevel, "log", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	_ = rootCmd.MarkFlagRequired("partition")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}

func run() error {
	overlay, err := config.LoadOverlay(dataDir)
	if err != nil {
		return err
	}
	cfg := &config.RunConfig{
		PartitionID:   partitionID,
		NumPartitions: numParts,
		EndTime:       endTime,
		DataDir:       dataDir,
		SimBackend:    simBackend,
		SimArgs:       simArgs,
		LogLevel:      logLevel,
	}
	// The --log default is not an explicit flag: leave the level unset so
	// the overlay's logLevel can fill it (logging.New falls back to info).
	if !rootCmd.Flags().Changed("log") {
		cfg.LogLevel = ""
	}
	cfg.ApplyOverlay(overlay)

	log := logging.New(cfg.LogLevel)
	entry := logging.ForPartition(log, cfg.PartitionID)

	data, err := config.LoadPartitionData(cfg.DataDir, cfg.PartitionID)
	if err != nil {
		logging.FatalExit(entry, "load partition data", err)
	}

	var sim simsdk.Sim
	switch cfg.SimBackend {
	case "mem":
		sim = simsdk.NewMemSim(1.0)
	case "traci":
		sim = simsdk.NewTraciSim()
	default:
		logging.FatalExit(entry, "unknown sim backend", nil)
	}

	pool := transport.NewContextPool()
	defer pool.Shutdown()

	rt := partition.New(data, cfg.EndTime, sim, pool, entry)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rt.Start(ctx, cfg.DataDir, cfg.SimArgs); err != nil {
		logging.FatalExit(entry, "partition startup failed", err)
	}

	entry.Info("partition started")
	if err := rt.Run(ctx); err != nil {
		logging.FatalExit(entry, "partition run failed", err)
	}
	entry.Info("partition finished")
	return nil
}
