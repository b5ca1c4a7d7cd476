// Command partsim is the single-host launcher for a PARTSIM run: it
// starts an in-process coordinator and forks one cmd/partition child
// process per partition, then watches every child and propagates a
// SIGKILL to the survivors if any partition exits abnormally before the
// run finishes cleanly.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/partsim/partsim/internal/config"
	"github.com/partsim/partsim/internal/coordinator"
	"github.com/partsim/partsim/internal/logging"
	"github.com/partsim/partsim/internal/transport"
)

var (
	dataDir       string
	numPartitions int
	endTime       float64
	simBackend    string
	simArgs       []string
	logLevel      string
	partitionBin  string
)

var rootCmd = &cobra.Command{
	Use:   "partsim",
	Short: "Launch a full PARTSIM run: one coordinator plus N partition workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.Flags().StringVar(&dataDir, "data-dir", ".", "directory holding this run's per-partition config")
	rootCmd.Flags().IntVarP(&numPartitions, "num-partitions", "N", 0, "total number of partitions; 0 reads numParts.txt from --data-dir")
	rootCmd.Flags().Float64VarP(&endTime, "end-time", "T", -1, "simulation end time; negative means run until all partitions are empty")
	rootCmd.Flags().StringVar(&simBackend, "sim", "mem", "Sim backend: mem or traci")
	rootCmd.Flags().StringSliceVar(&simArgs, "sim-args", nil, "extra arguments passed through to every partition's Sim backend")
	rootCmd.Flags().StringVar(&logLevel, "log", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.Flags().StringVar(&partitionBin, "partition-bin", "", `path to the partition worker binary; defaults to "partition" alongside this executable, falling back to $PATH`)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// child tracks one forked partition worker.
type child struct {
	partitionID int
	cmd         *exec.Cmd
}

func run() error {
	log := logging.New(logLevel)
	entry := logging.ForLauncher(log)

	n := numPartitions
	if n <= 0 {
		loaded, err := config.LoadNumPartitions(dataDir)
		if err != nil {
			logging.FatalExit(entry, "resolve partition count", err)
		}
		n = loaded
	}

	binPath, err := resolvePartitionBinary()
	if err != nil {
		logging.FatalExit(entry, "locate partition binary", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool := transport.NewContextPool()
	defer pool.Shutdown()

	co := coordinator.New(pool, n, logging.ForCoordinator(log))

	children := make([]*child, n)
	for i := 0; i < n; i++ {
		cmdArgs := []string{
			"--partition", fmt.Sprint(i),
			"--num-partitions", fmt.Sprint(n),
			"--end-time", fmt.Sprint(endTime),
			"--data-dir", dataDir,
			"--sim", simBackend,
			"--log", logLevel,
		}
		for _, a := range simArgs {
			cmdArgs = append(cmdArgs, "--sim-args", a)
		}
		c := exec.CommandContext(ctx, binPath, cmdArgs...)
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Start(); err != nil {
			logging.FatalExit(entry, fmt.Sprintf("start partition %d", i), err)
		}
		children[i] = &child{partitionID: i, cmd: c}
		entry.WithFields(logrus.Fields{"partition": i, "pid": c.Process.Pid}).Info("partition worker started")
	}

	// failedID holds the id of the first partition the watchdog observes
	// exiting abnormally, or -1 while the run is still healthy.
	failedID := atomic.Int32{}
	failedID.Store(-1)

	var reapWG sync.WaitGroup
	for _, c := range children {
		reapWG.Add(1)
		go func(c *child) {
			defer reapWG.Done()
			waitErr := c.cmd.Wait()
			status := 0
			if waitErr != nil {
				var exitErr *exec.ExitError
				if errors.As(waitErr, &exitErr) {
					status = exitErr.ExitCode()
				}
				failedID.CompareAndSwap(-1, int32(c.partitionID))
			}
			report := coordinator.NewWatchdogReport(c.partitionID, c.cmd.Process.Pid, status, 0, waitErr)
			coordinator.PostWatchdogReport(co.WatchdogReports(), report)
		}(c)
	}

	entry.WithField("partitions", n).Info("launcher waiting for partitions to connect to coordinator")
	if err := co.AcceptAll(dataDir); err != nil {
		killAll(children)
		reapWG.Wait()
		logging.FatalExit(entry, "accept partitions", err)
	}

	runErr := co.Run()
	if runErr != nil && !errors.Is(runErr, coordinator.ErrAllFinished) {
		id := int(failedID.Load())
		entry.WithError(runErr).WithField("failed_partition", id).Error("run failed, killing survivors")
		if id >= 0 {
			killByID(children, co.Survivors(id))
		} else {
			killAll(children)
		}
	}

	reapWG.Wait()

	if runErr != nil && !errors.Is(runErr, coordinator.ErrAllFinished) {
		return runErr
	}
	entry.Info("run complete")
	return nil
}

func killAll(children []*child) {
	for _, c := range children {
		_ = c.cmd.Process.Kill()
	}
}

func killByID(children []*child, ids []int) {
	want := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	for _, c := range children {
		if _, ok := want[c.partitionID]; ok {
			_ = c.cmd.Process.Kill()
		}
	}
}

// resolvePartitionBinary returns the path to the partition worker
// executable: an explicit --partition-bin flag, "partition" next to this
// executable, or "partition" resolved from $PATH, in that order.
func resolvePartitionBinary() (string, error) {
	if partitionBin != "" {
		return partitionBin, nil
	}
	if self, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(self), "partition")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return exec.LookPath("partition")
}
