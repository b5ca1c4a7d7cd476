package simsdk

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// edgeDef is a static network edge: an ordered set of lanes and a
// length every lane shares (this reference simulator does not model
// multi-lane geometry beyond lane ids).
type edgeDef struct {
	id     string
	lanes  []string
	length float64
}

// vehicleState is a vehicle's mutable runtime position.
type vehicleState struct {
	id       string
	routeID  string
	typeID   string
	edgeIdx  int
	edgeID   string
	laneID   string
	pos      float64
	speed    float64
	finished bool
}

// MemSim is a deterministic, in-memory reference Sim (see package doc).
// Vehicles move along their route's edges at constant speed, advancing
// deltaT every Step; a vehicle that runs off the end of its route is
// removed, matching the reference simulator's "vehicle reached
// destination" behavior.
//
// MemSim is safe for concurrent readers while no writer (Step or the
// mutating Vehicle.* calls) is in progress, matching the single-writer
// discipline the partition runtime enforces around it (spec.md §5):
// a single mutex is sufficient here because MemSim makes no attempt to
// allow concurrent writers, only concurrent readers with one writer.
type MemSim struct {
	mu      sync.RWMutex
	deltaT  float64
	now     float64
	started bool
	closed  bool

	edges  map[string]*edgeDef
	routes map[string][]string // routeID -> ordered edge ids

	vehicles map[string]*vehicleState

	// lastStep is the snapshot of edge -> vehicle ids taken at the end
	// of the most recently completed Step.
	lastStep map[string][]string
}

// NewMemSim creates an unstarted simulator with the given fixed tick
// length.
func NewMemSim(deltaT float64) *MemSim {
	return &MemSim{
		deltaT:   deltaT,
		edges:    make(map[string]*edgeDef),
		routes:   make(map[string][]string),
		vehicles: make(map[string]*vehicleState),
		lastStep: make(map[string][]string),
	}
}

// AddEdge registers a network edge. Must be called before Start.
func (m *MemSim) AddEdge(id string, lanes []string, length float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges[id] = &edgeDef{id: id, lanes: lanes, length: length}
}

// AddRoute registers a route as an ordered sequence of edge ids. Must be
// called before Start.
func (m *MemSim) AddRoute(id string, edgeIDs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]string, len(edgeIDs))
	copy(cp, edgeIDs)
	m.routes[id] = cp
}

// SeedVehicle places a vehicle directly at the start of routeID without
// going through AddVehicle's placement-hint semantics, for building test
// fixtures that start with vehicles already in motion.
func (m *MemSim) SeedVehicle(vehID, routeID, typeID string, speed float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addVehicleLocked(vehID, routeID, typeID, speed)
}

func (m *MemSim) addVehicleLocked(vehID, routeID, typeID string, speed float64) error {
	if _, exists := m.vehicles[vehID]; exists {
		return fmt.Errorf("%w: %s", ErrVehicleExists, vehID)
	}
	edgeIDs, ok := m.routes[routeID]
	if !ok || len(edgeIDs) == 0 {
		return fmt.Errorf("%w: %s", ErrRouteNotFound, routeID)
	}
	firstEdge := m.edges[edgeIDs[0]]
	if firstEdge == nil {
		return fmt.Errorf("%w: edge %s of route %s", ErrNoData, edgeIDs[0], routeID)
	}
	m.vehicles[vehID] = &vehicleState{
		id:      vehID,
		routeID: routeID,
		typeID:  typeID,
		edgeIdx: 0,
		edgeID:  firstEdge.id,
		laneID:  firstEdge.lanes[0],
		pos:     0,
		speed:   speed,
	}
	return nil
}

func (m *MemSim) Start(_ context.Context, _ []string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	return "memsim-1.0", nil
}

func (m *MemSim) Close(_ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MemSim) IsLoaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.started && !m.closed
}

func (m *MemSim) Time() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

func (m *MemSim) DeltaT() float64 {
	return m.deltaT
}

func (m *MemSim) VehicleCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vehicles)
}

// Step advances every vehicle by one tick, removing vehicles that run
// off the end of their route, and refreshes the lastStep snapshot used
// by LastStepVehicleIDs.
func (m *MemSim) Step() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started || m.closed {
		return ErrNotStarted
	}

	for id, v := range m.vehicles {
		if v.finished {
			delete(m.vehicles, id)
			continue
		}
		v.pos += v.speed * m.deltaT
		for {
			edge := m.edges[v.edgeID]
			if edge == nil {
				v.finished = true
				break
			}
			if v.pos < edge.length {
				break
			}
			v.pos -= edge.length
			v.edgeIdx++
			edgeIDs := m.routes[v.routeID]
			if v.edgeIdx >= len(edgeIDs) {
				v.finished = true
				break
			}
			nextEdge := m.edges[edgeIDs[v.edgeIdx]]
			if nextEdge == nil {
				v.finished = true
				break
			}
			v.edgeID = nextEdge.id
			v.laneID = nextEdge.lanes[0]
		}
		if v.finished {
			delete(m.vehicles, id)
		}
	}
	m.now += m.deltaT

	lastStep := make(map[string][]string)
	for _, v := range m.vehicles {
		lastStep[v.edgeID] = append(lastStep[v.edgeID], v.id)
	}
	for _, ids := range lastStep {
		sort.Strings(ids)
	}
	m.lastStep = lastStep
	return nil
}

func (m *MemSim) LastStepVehicleIDs(edgeID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.lastStep[edgeID]...), nil
}

func (m *MemSim) VehicleIDs() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.vehicles))
	for id := range m.vehicles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemSim) vehicle(vehID string) (*vehicleState, error) {
	v, ok := m.vehicles[vehID]
	if !ok {
		return nil, fmt.Errorf("%w: vehicle %s", ErrNoData, vehID)
	}
	return v, nil
}

func (m *MemSim) RouteID(vehID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, err := m.vehicle(vehID)
	if err != nil {
		return "", err
	}
	return v.routeID, nil
}

func (m *MemSim) TypeID(vehID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, err := m.vehicle(vehID)
	if err != nil {
		return "", err
	}
	return v.typeID, nil
}

func (m *MemSim) LaneID(vehID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, err := m.vehicle(vehID)
	if err != nil {
		return "", err
	}
	return v.laneID, nil
}

func (m *MemSim) LaneIndex(vehID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, err := m.vehicle(vehID)
	if err != nil {
		return 0, err
	}
	edge := m.edges[v.edgeID]
	for i, l := range edge.lanes {
		if l == v.laneID {
			return i, nil
		}
	}
	return 0, nil
}

func (m *MemSim) LanePosition(vehID string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, err := m.vehicle(vehID)
	if err != nil {
		return 0, err
	}
	return v.pos, nil
}

func (m *MemSim) Speed(vehID string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, err := m.vehicle(vehID)
	if err != nil {
		return 0, err
	}
	return v.speed, nil
}

func (m *MemSim) SlowDown(vehID string, speed, _ float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, err := m.vehicle(vehID)
	if err != nil {
		return err
	}
	v.speed = speed
	return nil
}

func (m *MemSim) AddVehicle(vehID, routeID, typeID, _, _, _ string, speed float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addVehicleLocked(vehID, routeID, typeID, speed)
}

func (m *MemSim) MoveTo(vehID, laneID string, lanePos float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, err := m.vehicle(vehID)
	if err != nil {
		return err
	}
	for edgeID, edge := range m.edges {
		for _, l := range edge.lanes {
			if l == laneID {
				v.edgeID = edgeID
				v.laneID = laneID
				v.pos = lanePos
				for i, e := range m.routes[v.routeID] {
					if e == edgeID {
						v.edgeIdx = i
					}
				}
				return nil
			}
		}
	}
	return fmt.Errorf("%w: lane %s", ErrNoData, laneID)
}

func (m *MemSim) RouteIDs() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.routes))
	for id := range m.routes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
