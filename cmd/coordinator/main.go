// Command coordinator runs the PARTSIM coordinator process: it accepts
// one connection per partition, then drives the startup barrier,
// per-tick step-barrier, and termination rendezvous described in
// internal/coordinator until every partition reports finished.
package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/partsim/partsim/internal/config"
	"github.com/partsim/partsim/internal/coordinator"
	"github.com/partsim/partsim/internal/logging"
	"github.com/partsim/partsim/internal/transport"
)

var (
	dataDir       string
	numPartitions int
	logLevel      string
)

var rootCmd = &cobra.Command{
	Use:   "coordinator",
	Short: "Run the PARTSIM coordinator process",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.Flags().StringVar(&dataDir, "data-dir", ".", "directory holding this run's per-partition config")
	rootCmd.Flags().IntVarP(&numPartitions, "num-partitions", "N", 0, "total number of partitions in this run; 0 reads numParts.txt from --data-dir")
	rootCmd.Flags().StringVar(&logLevel, "log", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
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
	log := logging.New(logLevel)
	entry := logging.ForCoordinator(log)

	n := numPartitions
	if n <= 0 {
		loaded, err := config.LoadNumPartitions(dataDir)
		if err != nil {
			logging.FatalExit(entry, "resolve partition count", err)
		}
		n = loaded
	}

	pool := transport.NewContextPool()
	defer pool.Shutdown()

	co := coordinator.New(pool, n, entry)

	entry.WithField("partitions", n).Info("coordinator waiting for partitions to connect")
	if err := co.AcceptAll(dataDir); err != nil {
		logging.FatalExit(entry, "accept partitions", err)
	}

	entry.Info("all partitions connected, coordinator event loop starting")
	err := co.Run()
	if err != nil && !errors.Is(err, coordinator.ErrAllFinished) {
		logging.FatalExit(entry, "coordinator run failed", err)
	}

	entry.Info("all partitions finished")
	return nil
}
