package neighbor

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/partsim/partsim/internal/transport"
	"github.com/partsim/partsim/internal/wire"
)

// Stub issues typed requests to one specific neighbor's Handler and
// blocks on the reply. A Stub is never shared across goroutines; the
// reference architecture calls every Stub only from the partition's
// single main goroutine, so this type adds no internal locking around
// the connection (spec.md §4.2).
type Stub struct {
	OwnerID  int
	TargetID int

	endpoint transport.Endpoint
	pool     *transport.ContextPool

	conn      net.Conn
	reader    *bufio.Reader
	connected atomic.Bool
}

// NewStub constructs an unconnected Stub for the ordered pair
// (ownerID, targetID), naming its endpoint via internal/transport's
// neighbor-endpoint convention.
func NewStub(pool *transport.ContextPool, dataDir string, ownerID, targetID int) *Stub {
	return &Stub{
		OwnerID:  ownerID,
		TargetID: targetID,
		endpoint: transport.NeighborEndpoint(dataDir, ownerID, targetID),
		pool:     pool,
	}
}

// Connect dials the neighbor's Handler. Call after the startup barrier,
// once the neighbor's Handler is listening for a connection.
func (s *Stub) Connect() error {
	conn, err := s.pool.Dial(s.endpoint)
	if err != nil {
		return fmt.Errorf("neighbor: connect to partition %d: %w", s.TargetID, err)
	}
	s.conn = conn
	s.reader = bufio.NewReader(conn)
	s.connected.Store(true)
	return nil
}

// Disconnect closes the connection. Any call to a Stub method after
// Disconnect is a programming error and panics, matching spec.md §4.2.
func (s *Stub) Disconnect() error {
	s.connected.Store(false)
	if s.conn == nil {
		return nil
	}
	transport.SetNoLinger(s.conn)
	return s.conn.Close()
}

func (s *Stub) call(opcode wire.NeighborOp, payload []byte) (*bufio.Reader, error) {
	if !s.connected.Load() {
		panic(fmt.Sprintf("neighbor: stub to partition %d used while disconnected", s.TargetID))
	}
	var body bytes.Buffer
	if err := wire.WriteOpcode(&body, int32(opcode)); err != nil {
		return nil, err
	}
	if _, err := body.Write(payload); err != nil {
		return nil, err
	}
	if err := transport.WriteMessage(s.conn, body.Bytes()); err != nil {
		return nil, fmt.Errorf("neighbor: send to partition %d: %w", s.TargetID, err)
	}
	reply, err := transport.ReadMessage(s.reader)
	if err != nil {
		return nil, fmt.Errorf("neighbor: recv from partition %d: %w", s.TargetID, err)
	}
	return bufio.NewReader(bytes.NewReader(reply)), nil
}

// GetEdgeVehicles asks the neighbor which vehicles are on edgeID as of
// its last step.
func (s *Stub) GetEdgeVehicles(edgeID string) ([]string, error) {
	var payload bytes.Buffer
	if err := (wire.GetEdgeVehiclesRequest{EdgeID: edgeID}).Encode(&payload); err != nil {
		return nil, err
	}
	r, err := s.call(wire.OpGetEdgeVehicles, payload.Bytes())
	if err != nil {
		return nil, err
	}
	reply, err := wire.DecodeGetEdgeVehiclesReply(r)
	if err != nil {
		return nil, err
	}
	return reply.VehicleIDs, nil
}

// HasVehicle asks the neighbor whether it already has vehID, used as the
// duplicate-transfer precheck (spec.md §4.4).
func (s *Stub) HasVehicle(vehID string) (bool, error) {
	var payload bytes.Buffer
	if err := (wire.HasVehicleRequest{VehicleID: vehID}).Encode(&payload); err != nil {
		return false, err
	}
	r, err := s.call(wire.OpHasVehicle, payload.Bytes())
	if err != nil {
		return false, err
	}
	reply, err := wire.DecodeBoolReply(r)
	return reply.Value, err
}

// HasVehicleInEdge asks the neighbor whether vehID is currently on
// edgeID.
func (s *Stub) HasVehicleInEdge(vehID, edgeID string) (bool, error) {
	var payload bytes.Buffer
	if err := (wire.HasVehicleInEdgeRequest{VehicleID: vehID, EdgeID: edgeID}).Encode(&payload); err != nil {
		return false, err
	}
	r, err := s.call(wire.OpHasVehicleInEdge, payload.Bytes())
	if err != nil {
		return false, err
	}
	reply, err := wire.DecodeBoolReply(r)
	return reply.Value, err
}

// SetVehicleSpeed asks the neighbor to buffer a speed change for vehID,
// applied at the neighbor's next drain phase.
func (s *Stub) SetVehicleSpeed(vehID string, speed float64) error {
	var payload bytes.Buffer
	if err := (wire.SetVehicleSpeedRequest{VehicleID: vehID, Speed: speed}).Encode(&payload); err != nil {
		return err
	}
	_, err := s.call(wire.OpSetVehicleSpeed, payload.Bytes())
	return err
}

// AddVehicle asks the neighbor to buffer the insertion of a vehicle
// crossing the border, applied at the neighbor's next drain phase.
func (s *Stub) AddVehicle(vehID, routeID, vehicleType, laneID string, laneIndex int32, lanePos, speed float64) error {
	req := wire.AddVehicleRequest{
		VehicleID:   vehID,
		RouteID:     routeID,
		VehicleType: vehicleType,
		LaneID:      laneID,
		LaneIndex:   laneIndex,
		LanePos:     lanePos,
		Speed:       speed,
	}
	var payload bytes.Buffer
	if err := req.Encode(&payload); err != nil {
		return err
	}
	_, err := s.call(wire.OpAddVehicle, payload.Bytes())
	return err
}
