package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadPartitionData(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "partData0.json", `{
		"id": 0,
		"neighbors": [1, 2],
		"borderEdges": [
			{"id": "E1", "lanes": ["E1_0"], "from": 0, "to": 1},
			{"id": "E2", "lanes": ["E2_0"], "from": 1, "to": 0}
		],
		"neighborRoutes": {"1": ["R1", "R2"], "2": ["R3"]},
		"borderRouteEnds": {"E2": ["R1"]},
		"lastDepart": 120.5
	}`)

	pd, err := LoadPartitionData(dir, 0)
	if err != nil {
		t.Fatal(err)
	}
	if pd.ID != 0 || len(pd.Neighbors) != 2 {
		t.Fatalf("unexpected partition data: %+v", pd)
	}
	if len(pd.NeighborRoutes[1]) != 2 || pd.NeighborRoutes[1][0] != "R1" {
		t.Fatalf("unexpected neighborRoutes: %+v", pd.NeighborRoutes)
	}
	if len(pd.NeighborRoutes[2]) != 1 {
		t.Fatalf("unexpected neighborRoutes[2]: %+v", pd.NeighborRoutes[2])
	}
	if pd.LastDepart != 120.5 {
		t.Fatalf("unexpected lastDepart: %v", pd.LastDepart)
	}

	out := pd.OutgoingBorderEdges()
	if len(out) != 1 || out[0].ID != "E1" {
		t.Fatalf("unexpected outgoing edges: %+v", out)
	}
	in := pd.IncomingBorderEdges()
	if len(in) != 1 || in[0].ID != "E2" {
		t.Fatalf("unexpected incoming edges: %+v", in)
	}
}

func TestLoadPartitionDataRejectsNonIntegerNeighborKey(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "partData0.json", `{"id":0,"neighborRoutes":{"north":["R1"]}}`)
	if _, err := LoadPartitionData(dir, 0); err == nil {
		t.Fatal("expected error for non-integer neighborRoutes key")
	}
}

func TestLoadNumPartitions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "numParts.txt", "4\n")
	n, err := LoadNumPartitions(dir)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Fatalf("got %d want 4", n)
	}
}

func TestLoadOverlayMissingIsNotError(t *testing.T) {
	dir := t.TempDir()
	o, err := LoadOverlay(dir)
	if err != nil {
		t.Fatal(err)
	}
	if o != nil {
		t.Fatalf("expected nil overlay, got %+v", o)
	}
}

func TestLoadOverlayAndApply(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "partsim.yaml", "logLevel: debug\nsimArgs:\n  - \"-c\"\n  - cfg.sumocfg\n")

	o, err := LoadOverlay(dir)
	if err != nil {
		t.Fatal(err)
	}
	if o == nil {
		t.Fatal("expected non-nil overlay")
	}

	rc := &RunConfig{}
	rc.ApplyOverlay(o)
	if rc.LogLevel != "debug" {
		t.Fatalf("got %q", rc.LogLevel)
	}
	if len(rc.SimArgs) != 2 || rc.SimArgs[0] != "-c" {
		t.Fatalf("got %v", rc.SimArgs)
	}
}

func TestApplyOverlayDoesNotOverwriteExplicitFlags(t *testing.T) {
	rc := &RunConfig{LogLevel: "warn", SimArgs: []string{"-c", "explicit.sumocfg"}}
	rc.ApplyOverlay(&Overlay{LogLevel: "debug", SimArgs: []string{"-c", "overlay.sumocfg"}})
	if rc.LogLevel != "warn" {
		t.Fatalf("overlay overwrote explicit log level: %q", rc.LogLevel)
	}
	if rc.SimArgs[1] != "explicit.sumocfg" {
		t.Fatalf("overlay overwrote explicit sim args: %v", rc.SimArgs)
	}
}
