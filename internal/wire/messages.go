package wire

import (
	"bufio"
	"io"
)

// GetEdgeVehiclesRequest is the GET_EDGE_VEHICLES request payload: a
// single edge id.
type GetEdgeVehiclesRequest struct {
	EdgeID string
}

func (m GetEdgeVehiclesRequest) Encode(w io.Writer) error {
	return writeCString(w, m.EdgeID)
}

func DecodeGetEdgeVehiclesRequest(r *bufio.Reader) (GetEdgeVehiclesRequest, error) {
	edgeID, err := readCString(r)
	return GetEdgeVehiclesRequest{EdgeID: edgeID}, err
}

// GetEdgeVehiclesReply is the [i32 n][n c-strings] reply payload.
type GetEdgeVehiclesReply struct {
	VehicleIDs []string
}

func (m GetEdgeVehiclesReply) Encode(w io.Writer) error {
	return writeStringVector(w, m.VehicleIDs)
}

func DecodeGetEdgeVehiclesReply(r *bufio.Reader) (GetEdgeVehiclesReply, error) {
	xs, err := readStringVector(r)
	return GetEdgeVehiclesReply{VehicleIDs: xs}, err
}

// HasVehicleRequest is the HAS_VEHICLE request payload: a single vehicle
// id.
type HasVehicleRequest struct {
	VehicleID string
}

func (m HasVehicleRequest) Encode(w io.Writer) error {
	return writeCString(w, m.VehicleID)
}

func DecodeHasVehicleRequest(r *bufio.Reader) (HasVehicleRequest, error) {
	v, err := readCString(r)
	return HasVehicleRequest{VehicleID: v}, err
}

// HasVehicleInEdgeRequest is the HAS_VEHICLE_IN_EDGE request payload,
// encoded as the 2-element vec-of-strings block [veh_id, edge_id].
type HasVehicleInEdgeRequest struct {
	VehicleID string
	EdgeID    string
}

func (m HasVehicleInEdgeRequest) Encode(w io.Writer) error {
	return writeStringVector(w, []string{m.VehicleID, m.EdgeID})
}

func DecodeHasVehicleInEdgeRequest(r *bufio.Reader) (HasVehicleInEdgeRequest, error) {
	xs, err := readStringVector(r)
	if err != nil {
		return HasVehicleInEdgeRequest{}, err
	}
	if len(xs) != 2 {
		return HasVehicleInEdgeRequest{}, ErrMalformedFrame
	}
	return HasVehicleInEdgeRequest{VehicleID: xs[0], EdgeID: xs[1]}, nil
}

// BoolReply is the single-byte boolean reply shared by HAS_VEHICLE and
// HAS_VEHICLE_IN_EDGE.
type BoolReply struct {
	Value bool
}

func (m BoolReply) Encode(w io.Writer) error {
	return writeBool(w, m.Value)
}

func DecodeBoolReply(r *bufio.Reader) (BoolReply, error) {
	v, err := readBool(r)
	return BoolReply{Value: v}, err
}

// SetVehicleSpeedRequest is the SET_VEHICLE_SPEED request payload:
// [f64 speed][veh_id\0].
type SetVehicleSpeedRequest struct {
	VehicleID string
	Speed     float64
}

func (m SetVehicleSpeedRequest) Encode(w io.Writer) error {
	if err := writeFloat64(w, m.Speed); err != nil {
		return err
	}
	return writeCString(w, m.VehicleID)
}

func DecodeSetVehicleSpeedRequest(r *bufio.Reader) (SetVehicleSpeedRequest, error) {
	speed, err := readFloat64(r)
	if err != nil {
		return SetVehicleSpeedRequest{}, err
	}
	veh, err := readCString(r)
	if err != nil {
		return SetVehicleSpeedRequest{}, err
	}
	return SetVehicleSpeedRequest{VehicleID: veh, Speed: speed}, nil
}

// AddVehicleRequest is the ADD_VEHICLE request payload:
// [i32 lane_idx][f64 lane_pos][f64 speed][i32 n=4][veh_id\0][route_id\0][veh_type\0][lane_id\0].
type AddVehicleRequest struct {
	VehicleID   string
	RouteID     string
	VehicleType string
	LaneID      string
	LaneIndex   int32
	LanePos     float64
	Speed       float64
}

func (m AddVehicleRequest) Encode(w io.Writer) error {
	if err := writeInt32(w, m.LaneIndex); err != nil {
		return err
	}
	if err := writeFloat64(w, m.LanePos); err != nil {
		return err
	}
	if err := writeFloat64(w, m.Speed); err != nil {
		return err
	}
	return writeStringVector(w, []string{m.VehicleID, m.RouteID, m.VehicleType, m.LaneID})
}

func DecodeAddVehicleRequest(r *bufio.Reader) (AddVehicleRequest, error) {
	laneIdx, err := readInt32(r)
	if err != nil {
		return AddVehicleRequest{}, err
	}
	lanePos, err := readFloat64(r)
	if err != nil {
		return AddVehicleRequest{}, err
	}
	speed, err := readFloat64(r)
	if err != nil {
		return AddVehicleRequest{}, err
	}
	xs, err := readStringVector(r)
	if err != nil {
		return AddVehicleRequest{}, err
	}
	if len(xs) != 4 {
		return AddVehicleRequest{}, ErrMalformedFrame
	}
	return AddVehicleRequest{
		LaneIndex:   laneIdx,
		LanePos:     lanePos,
		Speed:       speed,
		VehicleID:   xs[0],
		RouteID:     xs[1],
		VehicleType: xs[2],
		LaneID:      xs[3],
	}, nil
}

// BarrierStepRequest is the BARRIER_STEP request payload: a single bool
// indicating the sending partition believes it may be finished.
type BarrierStepRequest struct {
	MaybeFinished bool
}

func (m BarrierStepRequest) Encode(w io.Writer) error {
	return writeBool(w, m.MaybeFinished)
}

func DecodeBarrierStepRequest(r *bufio.Reader) (BarrierStepRequest, error) {
	v, err := readBool(r)
	return BarrierStepRequest{MaybeFinished: v}, err
}

// BarrierStepReply is the BARRIER_STEP reply payload: a single bool,
// true iff every partition reported maybe-finished this round.
type BarrierStepReply struct {
	AllEmpty bool
}

func (m BarrierStepReply) Encode(w io.Writer) error {
	return writeBool(w, m.AllEmpty)
}

func DecodeBarrierStepReply(r *bufio.Reader) (BarrierStepReply, error) {
	v, err := readBool(r)
	return BarrierStepReply{AllEmpty: v}, err
}
