package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// BorderEdge is a directional edge shared by two partitions' networks
// (spec.md §3). An undirected road shared by two partitions yields two
// records, one per direction.
type BorderEdge struct {
	ID    string   `json:"id"`
	Lanes []string `json:"lanes"`
	From  int      `json:"from"`
	To    int      `json:"to"`
}

// PartitionData is the decoded form of partData<i>.json.
type PartitionData struct {
	ID              int
	Neighbors       []int
	BorderEdges     []BorderEdge
	NeighborRoutes  map[int][]string
	BorderRouteEnds map[string][]string
	LastDepart      float64
}

// IncomingBorderEdges returns the subset of BorderEdges whose To field
// is this partition's own id.
func (d *PartitionData) IncomingBorderEdges() []BorderEdge {
	var out []BorderEdge
	for _, e := range d.BorderEdges {
		if e.To == d.ID {
			out = append(out, e)
		}
	}
	return out
}

// OutgoingBorderEdges returns the subset of BorderEdges whose From field
// is this partition's own id.
func (d *PartitionData) OutgoingBorderEdges() []BorderEdge {
	var out []BorderEdge
	for _, e := range d.BorderEdges {
		if e.From == d.ID {
			out = append(out, e)
		}
	}
	return out
}

type rawPartitionData struct {
	ID              int                 `json:"id"`
	Neighbors       []int               `json:"neighbors"`
	BorderEdges     []BorderEdge        `json:"borderEdges"`
	NeighborRoutes  map[string][]string `json:"neighborRoutes"`
	BorderRouteEnds map[string][]string `json:"borderRouteEnds"`
	LastDepart      float64             `json:"lastDepart"`
}

// LoadPartitionData reads and decodes partData<id>.json from dataDir.
func LoadPartitionData(dataDir string, id int) (*PartitionData, error) {
	path := filepath.Join(dataDir, fmt.Sprintf("partData%d.json", id))
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var rpd rawPartitionData
	if err := json.Unmarshal(raw, &rpd); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	neighborRoutes := make(map[int][]string, len(rpd.NeighborRoutes))
	for k, v := range rpd.NeighborRoutes {
		nid, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("config: %s: neighborRoutes key %q is not an integer: %w", path, k, err)
		}
		neighborRoutes[nid] = v
	}

	return &PartitionData{
		ID:              rpd.ID,
		Neighbors:       rpd.Neighbors,
		BorderEdges:     rpd.BorderEdges,
		NeighborRoutes:  neighborRoutes,
		BorderRouteEnds: rpd.BorderRouteEnds,
		LastDepart:      rpd.LastDepart,
	}, nil
}

// LoadNumPartitions reads the partition count recorded by the
// partitioner in numParts.txt.
func LoadNumPartitions(dataDir string) (int, error) {
	path := filepath.Join(dataDir, "numParts.txt")
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("config: read %s: %w", path, err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return n, nil
}

// RunConfig is the resolved set of options a partition-worker process
// runs with, assembled from CLI flags (see cmd/partition) and, where
// present, a partsim.yaml overlay.
type RunConfig struct {
	PartitionID   int
	NumPartitions int
	EndTime       float64
	DataDir       string
	SimBackend    string
	SimArgs       []string
	LogLevel      string
}

// Overlay holds the fields of partsim.yaml — settings that are
// inconvenient to pass as repeated command-line flags across every
// partition process in a run (pass-through Sim arguments, a uniform log
// level).
type Overlay struct {
	LogLevel string   `yaml:"logLevel"`
	SimArgs  []string `yaml:"simArgs"`
}

// LoadOverlay reads <dataDir>/partsim.yaml if present. A missing file is
// not an error: the overlay is optional.
func LoadOverlay(dataDir string) (*Overlay, error) {
	path := filepath.Join(dataDir, "partsim.yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var o Overlay
	if err := yaml.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &o, nil
}

// ApplyOverlay merges non-empty overlay fields into c, without
// overwriting values already set by explicit CLI flags.
func (c *RunConfig) ApplyOverlay(o *Overlay) {
	if o == nil {
		return
	}
	if c.LogLevel == "" && o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if len(c.SimArgs) == 0 && len(o.SimArgs) > 0 {
		c.SimArgs = o.SimArgs
	}
}
