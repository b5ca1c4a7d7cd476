// Package integration drives whole PARTSIM runs — a Coordinator plus
// several partition.Runtimes wired together over real loopback sockets —
// exercising the scenarios from spec.md §8 end to end rather than one
// package at a time.
package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partsim/partsim/internal/config"
	"github.com/partsim/partsim/internal/coordinator"
	"github.com/partsim/partsim/internal/partition"
	"github.com/partsim/partsim/internal/simsdk"
	"github.com/partsim/partsim/internal/transport"
)

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return logrus.NewEntry(l)
}

// runTogether starts a Coordinator for len(runtimes) partitions and runs
// every partition.Runtime concurrently, returning once every Runtime.Run
// call and the coordinator have returned or the timeout elapses.
func runTogether(t *testing.T, dataDir string, runtimes []*partition.Runtime) {
	t.Helper()
	n := len(runtimes)

	coordPool := transport.NewContextPool()
	t.Cleanup(func() { _ = coordPool.Shutdown() })
	co := coordinator.New(coordPool, n, quietLog())

	acceptErr := make(chan error, 1)
	go func() { acceptErr <- co.AcceptAll(dataDir) }()

	starts := make([]chan error, n)
	ctx := context.Background()
	for i, rt := range runtimes {
		starts[i] = make(chan error, 1)
		rt := rt
		ch := starts[i]
		go func() { ch <- rt.Start(ctx, dataDir, nil) }()
	}

	require.NoError(t, <-acceptErr, "coordinator accept")

	coordDone := make(chan error, 1)
	go func() { coordDone <- co.Run() }()

	for i, ch := range starts {
		require.NoError(t, <-ch, "partition %d start", i)
	}

	runErrs := make(chan error, n)
	var wg sync.WaitGroup
	for _, rt := range runtimes {
		wg.Add(1)
		rt := rt
		go func() {
			defer wg.Done()
			runErrs <- rt.Run(ctx)
		}()
	}

	allDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(allDone)
	}()

	select {
	case <-allDone:
	case <-time.After(15 * time.Second):
		t.Fatal("partitions did not terminate within timeout")
	}
	close(runErrs)
	for err := range runErrs {
		require.NoError(t, err)
	}

	select {
	case err := <-coordDone:
		assert.ErrorIs(t, err, coordinator.ErrAllFinished)
	case <-time.After(15 * time.Second):
		t.Fatal("coordinator did not observe every partition finished")
	}
}

// TestSinglePartitionNoNeighborsTerminates covers spec.md §8 S1: a lone
// partition with no neighbors still performs the coordinator rendezvous
// and terminates once it has no vehicles left.
func TestSinglePartitionNoNeighborsTerminates(t *testing.T) {
	dataDir := t.TempDir()

	sim := simsdk.NewMemSim(1.0)
	sim.AddEdge("A", []string{"A_0"}, 2)
	sim.AddRoute("R", []string{"A"})
	require.NoError(t, sim.SeedVehicle("v0", "R", "car", 1.0))

	pool := transport.NewContextPool()
	t.Cleanup(func() { _ = pool.Shutdown() })

	data := &config.PartitionData{ID: 0, LastDepart: 0}
	rt := partition.New(data, -1, sim, pool, quietLog())

	runTogether(t, dataDir, []*partition.Runtime{rt})

	assert.Equal(t, 0, sim.VehicleCount())
}

// TestMultipartRouteCrossesThreePartitions covers spec.md §8 S2: a
// vehicle on a multipart route (<base>_part<k>) crosses two border edges
// in a row, p0 -> p1 -> p2, picking up the next segment's route id at
// each hop.
func TestMultipartRouteCrossesThreePartitions(t *testing.T) {
	dataDir := t.TempDir()

	sim0 := simsdk.NewMemSim(1.0)
	sim0.AddEdge("A", []string{"A_0"}, 2)
	sim0.AddEdge("E01", []string{"E01_0"}, 2)
	sim0.AddRoute("R_part0", []string{"A", "E01"})
	require.NoError(t, sim0.SeedVehicle("v0", "R_part0", "car", 1.0))

	sim1 := simsdk.NewMemSim(1.0)
	sim1.AddEdge("E01", []string{"E01_0"}, 2)
	sim1.AddEdge("E12", []string{"E12_0"}, 2)
	sim1.AddRoute("R_part1", []string{"E01", "E12"})

	sim2 := simsdk.NewMemSim(1.0)
	sim2.AddEdge("E12", []string{"E12_0"}, 2)
	sim2.AddEdge("B", []string{"B_0"}, 2)
	sim2.AddRoute("R_part2", []string{"E12", "B"})

	data0 := &config.PartitionData{
		ID:              0,
		Neighbors:       []int{1},
		BorderEdges:     []config.BorderEdge{{ID: "E01", Lanes: []string{"E01_0"}, From: 0, To: 1}},
		NeighborRoutes:  map[int][]string{1: {"R"}},
		BorderRouteEnds: map[string][]string{"E01": {"R"}},
	}
	data1 := &config.PartitionData{
		ID:        1,
		Neighbors: []int{0, 2},
		BorderEdges: []config.BorderEdge{
			{ID: "E01", Lanes: []string{"E01_0"}, From: 0, To: 1},
			{ID: "E12", Lanes: []string{"E12_0"}, From: 1, To: 2},
		},
		NeighborRoutes:  map[int][]string{2: {"R"}},
		BorderRouteEnds: map[string][]string{"E12": {"R"}},
	}
	data2 := &config.PartitionData{
		ID:          2,
		Neighbors:   []int{1},
		BorderEdges: []config.BorderEdge{{ID: "E12", Lanes: []string{"E12_0"}, From: 1, To: 2}},
	}

	pool0, pool1, pool2 := transport.NewContextPool(), transport.NewContextPool(), transport.NewContextPool()
	t.Cleanup(func() {
		_ = pool0.Shutdown()
		_ = pool1.Shutdown()
		_ = pool2.Shutdown()
	})

	r0 := partition.New(data0, -1, sim0, pool0, quietLog())
	r1 := partition.New(data1, -1, sim1, pool1, quietLog())
	r2 := partition.New(data2, -1, sim2, pool2, quietLog())

	runTogether(t, dataDir, []*partition.Runtime{r0, r1, r2})

	assert.Equal(t, 0, sim0.VehicleCount())
	assert.Equal(t, 0, sim1.VehicleCount())
	assert.Equal(t, 0, sim2.VehicleCount())
}

// TestMultipartRouteFirstHopLandsAtTransferredPosition covers the same
// p0->p1 handoff as TestMultipartRouteCrossesThreePartitions above, but
// cuts the run off with endTime at the exact tick of the crossing so it
// can assert the vehicle actually materializes in p1's Sim at the
// wire-carried (laneID, lanePos) — VehicleCount alone can't tell a
// correct transfer from one that silently dropped the vehicle or placed
// it at the Sim's default insertion point.
func TestMultipartRouteFirstHopLandsAtTransferredPosition(t *testing.T) {
	dataDir := t.TempDir()

	sim0 := simsdk.NewMemSim(1.0)
	sim0.AddEdge("A", []string{"A_0"}, 2)
	sim0.AddEdge("E01", []string{"E01_0"}, 10)
	sim0.AddRoute("R_part0", []string{"A", "E01"})
	require.NoError(t, sim0.SeedVehicle("v0", "R_part0", "car", 3.0))

	sim1 := simsdk.NewMemSim(1.0)
	sim1.AddEdge("E01", []string{"E01_0"}, 10)
	sim1.AddEdge("E12", []string{"E12_0"}, 10)
	sim1.AddRoute("R_part1", []string{"E01", "E12"})

	data0 := &config.PartitionData{
		ID:              0,
		Neighbors:       []int{1},
		BorderEdges:     []config.BorderEdge{{ID: "E01", Lanes: []string{"E01_0"}, From: 0, To: 1}},
		NeighborRoutes:  map[int][]string{1: {"R"}},
		BorderRouteEnds: map[string][]string{"E01": {"R"}},
	}
	data1 := &config.PartitionData{
		ID:          1,
		Neighbors:   []int{0},
		BorderEdges: []config.BorderEdge{{ID: "E01", Lanes: []string{"E01_0"}, From: 0, To: 1}},
	}

	pool0, pool1 := transport.NewContextPool(), transport.NewContextPool()
	t.Cleanup(func() {
		_ = pool0.Shutdown()
		_ = pool1.Shutdown()
	})

	// speed 3, deltaT 1, edge A length 2: v0 overshoots A by 1 on the
	// first tick and lands on the shared border edge E01 at pos 1, the
	// tick this endTime cuts the run off at.
	r0 := partition.New(data0, 1, sim0, pool0, quietLog())
	r1 := partition.New(data1, 1, sim1, pool1, quietLog())

	runTogether(t, dataDir, []*partition.Runtime{r0, r1})

	require.Equal(t, 1, sim1.VehicleCount())
	laneID, err := sim1.LaneID("v0")
	require.NoError(t, err)
	assert.Equal(t, "E01_0", laneID)
	pos, err := sim1.LanePosition("v0")
	require.NoError(t, err)
	assert.Equal(t, 1.0, pos)
	routeID, err := sim1.RouteID("v0")
	require.NoError(t, err)
	assert.Equal(t, "R_part1", routeID, "v0 should pick up p1's local route segment, not the bare base route id")
}
