package partition

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/partsim/partsim/internal/config"
	"github.com/partsim/partsim/internal/coordinator"
	"github.com/partsim/partsim/internal/neighbor"
	"github.com/partsim/partsim/internal/simsdk"
	"github.com/partsim/partsim/internal/transport"
)

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return logrus.NewEntry(l)
}

// TestTwoPartitionBorderTransferAndAllEmptyTermination wires two
// Runtimes and a Coordinator over real loopback sockets and drives a
// vehicle across their shared border edge, exercising the border-crossing
// duplicate-transfer suppression (spec.md §8 S3) and the all-empty
// termination path (spec.md §8 S6) end to end.
func TestTwoPartitionBorderTransferAndAllEmptyTermination(t *testing.T) {
	dataDir := t.TempDir()

	sim0 := simsdk.NewMemSim(1.0)
	sim0.AddEdge("A", []string{"A_0"}, 3)
	sim0.AddEdge("E", []string{"E_0"}, 3)
	sim0.AddRoute("R", []string{"A", "E"})
	if err := sim0.SeedVehicle("v0", "R", "car", 1.0); err != nil {
		t.Fatal(err)
	}

	sim1 := simsdk.NewMemSim(1.0)
	sim1.AddEdge("E", []string{"E_0"}, 3)
	sim1.AddEdge("B", []string{"B_0"}, 3)
	sim1.AddRoute("R", []string{"E", "B"})

	data0 := &config.PartitionData{
		ID:              0,
		Neighbors:       []int{1},
		BorderEdges:     []config.BorderEdge{{ID: "E", Lanes: []string{"E_0"}, From: 0, To: 1}},
		NeighborRoutes:  map[int][]string{1: {"R"}},
		BorderRouteEnds: map[string][]string{"E": {"R"}},
		LastDepart:      0,
	}
	data1 := &config.PartitionData{
		ID:          1,
		Neighbors:   []int{0},
		BorderEdges: []config.BorderEdge{{ID: "E", Lanes: []string{"E_0"}, From: 0, To: 1}},
		LastDepart:  0,
	}

	pool0 := transport.NewContextPool()
	pool1 := transport.NewContextPool()
	coordPool := transport.NewContextPool()
	t.Cleanup(func() {
		_ = pool0.Shutdown()
		_ = pool1.Shutdown()
		_ = coordPool.Shutdown()
	})

	co := coordinator.New(coordPool, 2, quietLog())
	acceptErr := make(chan error, 1)
	go func() { acceptErr <- co.AcceptAll(dataDir) }()

	r0 := New(data0, -1, sim0, pool0, quietLog())
	r1 := New(data1, -1, sim1, pool1, quietLog())

	ctx := context.Background()
	start0 := make(chan error, 1)
	start1 := make(chan error, 1)
	go func() { start0 <- r0.Start(ctx, dataDir, nil) }()
	go func() { start1 <- r1.Start(ctx, dataDir, nil) }()

	// The coordinator must start its event loop as soon as both
	// partitions have connected, before either one's startup barrier can
	// be released.
	if err := <-acceptErr; err != nil {
		t.Fatalf("coordinator accept: %v", err)
	}
	coordDone := make(chan error, 1)
	go func() { coordDone <- co.Run() }()

	if err := <-start0; err != nil {
		t.Fatalf("partition 0 start: %v", err)
	}
	if err := <-start1; err != nil {
		t.Fatalf("partition 1 start: %v", err)
	}

	run0 := make(chan error, 1)
	run1 := make(chan error, 1)
	go func() { run0 <- r0.Run(ctx) }()
	go func() { run1 <- r1.Run(ctx) }()

	timeout := time.After(10 * time.Second)
	done0, done1 := false, false
	for !done0 || !done1 {
		select {
		case err := <-run0:
			if err != nil {
				t.Fatalf("partition 0 run: %v", err)
			}
			done0 = true
		case err := <-run1:
			if err != nil {
				t.Fatalf("partition 1 run: %v", err)
			}
			done1 = true
		case <-timeout:
			t.Fatal("partitions did not terminate within timeout")
		}
	}

	select {
	case err := <-coordDone:
		if err != coordinator.ErrAllFinished {
			t.Fatalf("coordinator exited with %v, want ErrAllFinished", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("coordinator did not observe both FINISHED within timeout")
	}

	if sim1.VehicleCount() != 0 || sim0.VehicleCount() != 0 {
		t.Fatalf("expected both sims empty at termination, got sim0=%d sim1=%d", sim0.VehicleCount(), sim1.VehicleCount())
	}
}

// TestBorderTransferLandsAtSourceLaneAndPosition runs two Runtimes with
// endTime cut off at the exact tick the vehicle crosses the border, so
// the destination partition's Sim can be inspected immediately after
// that tick's drain applies the transfer, before the vehicle moves any
// further under its own power. A transfer that dropped the vehicle or
// placed it at the Sim's default insertion point instead of the
// wire-carried (laneID, lanePos) would pass the emptiness-only checks in
// TestTwoPartitionBorderTransferAndAllEmptyTermination above but fail
// here.
func TestBorderTransferLandsAtSourceLaneAndPosition(t *testing.T) {
	dataDir := t.TempDir()

	sim0 := simsdk.NewMemSim(1.0)
	sim0.AddEdge("A", []string{"A_0"}, 2)
	sim0.AddEdge("E", []string{"E_0"}, 10)
	sim0.AddRoute("R", []string{"A", "E"})
	if err := sim0.SeedVehicle("v0", "R", "car", 3.0); err != nil {
		t.Fatal(err)
	}

	sim1 := simsdk.NewMemSim(1.0)
	sim1.AddEdge("E", []string{"E_0"}, 10)
	sim1.AddEdge("B", []string{"B_0"}, 10)
	sim1.AddRoute("R", []string{"E", "B"})

	data0 := &config.PartitionData{
		ID:              0,
		Neighbors:       []int{1},
		BorderEdges:     []config.BorderEdge{{ID: "E", Lanes: []string{"E_0"}, From: 0, To: 1}},
		NeighborRoutes:  map[int][]string{1: {"R"}},
		BorderRouteEnds: map[string][]string{"E": {"R"}},
	}
	data1 := &config.PartitionData{
		ID:          1,
		Neighbors:   []int{0},
		BorderEdges: []config.BorderEdge{{ID: "E", Lanes: []string{"E_0"}, From: 0, To: 1}},
	}

	pool0 := transport.NewContextPool()
	pool1 := transport.NewContextPool()
	coordPool := transport.NewContextPool()
	t.Cleanup(func() {
		_ = pool0.Shutdown()
		_ = pool1.Shutdown()
		_ = coordPool.Shutdown()
	})

	co := coordinator.New(coordPool, 2, quietLog())
	acceptErr := make(chan error, 1)
	go func() { acceptErr <- co.AcceptAll(dataDir) }()

	// speed 3, deltaT 1, edge A length 2: v0 overshoots A by 1 on the
	// very first tick and lands on the shared border edge E at pos 1,
	// the tick this endTime cuts the run off at.
	r0 := New(data0, 1, sim0, pool0, quietLog())
	r1 := New(data1, 1, sim1, pool1, quietLog())

	ctx := context.Background()
	start0 := make(chan error, 1)
	start1 := make(chan error, 1)
	go func() { start0 <- r0.Start(ctx, dataDir, nil) }()
	go func() { start1 <- r1.Start(ctx, dataDir, nil) }()

	if err := <-acceptErr; err != nil {
		t.Fatalf("coordinator accept: %v", err)
	}
	coordDone := make(chan error, 1)
	go func() { coordDone <- co.Run() }()

	if err := <-start0; err != nil {
		t.Fatalf("partition 0 start: %v", err)
	}
	if err := <-start1; err != nil {
		t.Fatalf("partition 1 start: %v", err)
	}

	run0 := make(chan error, 1)
	run1 := make(chan error, 1)
	go func() { run0 <- r0.Run(ctx) }()
	go func() { run1 <- r1.Run(ctx) }()

	timeout := time.After(10 * time.Second)
	done0, done1 := false, false
	for !done0 || !done1 {
		select {
		case err := <-run0:
			if err != nil {
				t.Fatalf("partition 0 run: %v", err)
			}
			done0 = true
		case err := <-run1:
			if err != nil {
				t.Fatalf("partition 1 run: %v", err)
			}
			done1 = true
		case <-timeout:
			t.Fatal("partitions did not terminate within timeout")
		}
	}

	select {
	case err := <-coordDone:
		if err != coordinator.ErrAllFinished {
			t.Fatalf("coordinator exited with %v, want ErrAllFinished", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("coordinator did not observe both FINISHED within timeout")
	}

	if sim1.VehicleCount() != 1 {
		t.Fatalf("expected v0 to have materialized in sim1, got count=%d", sim1.VehicleCount())
	}
	laneID, err := sim1.LaneID("v0")
	if err != nil {
		t.Fatalf("v0 not found in sim1: %v", err)
	}
	if laneID != "E_0" {
		t.Fatalf("got lane %s, want E_0", laneID)
	}
	pos, err := sim1.LanePosition("v0")
	if err != nil {
		t.Fatal(err)
	}
	if pos != 1 {
		t.Fatalf("got lane position %v, want 1 (the source partition's position when it crossed)", pos)
	}
}

// TestApplyAddVehiclePlacesAtTransferredLaneAndPosition guards against a
// disguised no-op: a buffered AddVehicleOp carries the exact lane and
// position the vehicle had when it crossed the border (spec.md §9's
// ADD_VEHICLE payload), and ApplyAddVehicle must place it there via
// MoveTo after the Sim insert, not leave it at the Sim's default
// insertion point.
func TestApplyAddVehiclePlacesAtTransferredLaneAndPosition(t *testing.T) {
	sim := simsdk.NewMemSim(1.0)
	sim.AddEdge("E", []string{"E_0", "E_1"}, 10)
	sim.AddRoute("R", []string{"E"})

	rt := New(&config.PartitionData{ID: 1}, -1, sim, nil, quietLog())
	rt.ApplyAddVehicle(neighbor.AddVehicleOp{
		VehicleID:   "v0",
		RouteID:     "R",
		VehicleType: "car",
		LaneID:      "E_1",
		LaneIndex:   1,
		LanePos:     7.5,
		Speed:       3.0,
	})

	laneID, err := sim.LaneID("v0")
	if err != nil {
		t.Fatal(err)
	}
	if laneID != "E_1" {
		t.Fatalf("got lane %s, want E_1", laneID)
	}

	pos, err := sim.LanePosition("v0")
	if err != nil {
		t.Fatal(err)
	}
	if pos != 7.5 {
		t.Fatalf("got lane position %v, want 7.5", pos)
	}
}
