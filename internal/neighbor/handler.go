package neighbor

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/partsim/partsim/internal/transport"
	"github.com/partsim/partsim/internal/wire"
)

// ErrProtocol classifies a malformed or out-of-sequence request: the
// handler logs it, replies with a sentinel, and keeps serving (spec.md
// §7.2).
var ErrProtocol = errors.New("neighbor: protocol error")

// ErrTerminated is returned by ListenOn once the handler has been
// stopped.
var ErrTerminated = errors.New("neighbor: handler terminated")

// SimReader is the read-only view of the local Sim a Handler needs to
// serve GET_EDGE_VEHICLES, HAS_VEHICLE, and HAS_VEHICLE_IN_EDGE without
// going through the partition runtime's write path. Implemented by
// internal/partition.Runtime.
type SimReader interface {
	EdgeVehicles(edgeID string) ([]string, error)
	HasVehicle(vehID string) bool
	HasVehicleInEdge(vehID, edgeID string) bool
}

type controlSignal int

const (
	signalStop controlSignal = iota
	signalTerm
)

// requestFrame is one decoded-enough-to-dispatch message pulled off the
// wire by readLoop and handed to the dispatcher goroutine.
type requestFrame struct {
	opcode int32
	body   *bufio.Reader
}

// Handler serves one specific neighbor's requests. See doc.go for the
// Idle/Listening/Terminated state machine.
type Handler struct {
	ClientID int // the neighbor this handler serves
	OwnerID  int // the partition that owns this handler

	reads SimReader

	addQueue   *OperationQueue[AddVehicleOp]
	speedQueue *OperationQueue[SetSpeedOp]

	mu        sync.Mutex
	cond      *sync.Cond
	listening bool
	term      bool

	control  chan controlSignal
	requests chan requestFrame
	done     chan struct{}

	conn   net.Conn
	reader *bufio.Reader

	log *logrus.Entry
}

// NewHandler constructs a Handler in the Idle state. The caller must
// call Accept before ListenOn can have any effect.
func NewHandler(ownerID, clientID int, reads SimReader, log *logrus.Entry) *Handler {
	h := &Handler{
		ClientID:   clientID,
		OwnerID:    ownerID,
		reads:      reads,
		addQueue:   NewOperationQueue[AddVehicleOp](DefaultQueueCapacity),
		speedQueue: NewOperationQueue[SetSpeedOp](DefaultQueueCapacity),
		control:    make(chan controlSignal, 1),
		requests:   make(chan requestFrame),
		done:       make(chan struct{}),
		log:        log.WithField("neighbor", clientID),
	}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// Accept blocks until the neighbor's Stub connects to ln, then starts
// the handler's read loop and dispatcher goroutine. Accept returns once
// the connection is established; the handler remains Idle until
// ListenOn is called.
func (h *Handler) Accept(ln net.Listener) error {
	conn, err := ln.Accept()
	if err != nil {
		return fmt.Errorf("neighbor: accept from neighbor %d: %w", h.ClientID, err)
	}
	h.conn = conn
	h.reader = bufio.NewReader(conn)
	go h.readLoop()
	go h.run()
	return nil
}

// ListenOn transitions the handler to Listening. It requires the
// handler not be terminated and is idempotent.
func (h *Handler) ListenOn() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.term {
		return ErrTerminated
	}
	h.listening = true
	h.cond.Broadcast()
	return nil
}

// ListenOff signals the listener to return to Idle on its next poll
// iteration. It does not wait for the transition and does not drain
// queues (spec.md §4.3).
func (h *Handler) ListenOff() {
	select {
	case h.control <- signalStop:
	default:
		// A stop is already pending; nothing more to do.
	}
}

// WaitIdle blocks until the handler is Idle (or Terminated).
func (h *Handler) WaitIdle() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for h.listening && !h.term {
		h.cond.Wait()
	}
}

// Stop terminates the handler and wakes the dispatcher so it can exit.
// Stop does not block; call Join to wait for full shutdown.
func (h *Handler) Stop() {
	h.mu.Lock()
	h.term = true
	h.listening = false
	h.cond.Broadcast()
	h.mu.Unlock()
	select {
	case h.control <- signalTerm:
	default:
	}
}

// Join waits for the dispatcher goroutine to exit and closes the
// underlying connection, which ends the reader goroutine; Join does not
// wait for the reader itself. Valid only after Stop.
func (h *Handler) Join() {
	<-h.done
	if h.conn != nil {
		transport.SetNoLinger(h.conn)
		_ = h.conn.Close()
	}
}

// ApplyMutableOperations replays buffered writes against apply, in the
// order the protocol guarantees: every AddVehicle buffered this tick
// before any SetSpeed, FIFO within each kind. Precondition: the handler
// is Idle (the caller must ListenOff and WaitIdle first).
func (h *Handler) ApplyMutableOperations(apply Writer) {
	adds := h.addQueue.Drain()
	speeds := h.speedQueue.Drain()
	for _, op := range adds {
		apply.ApplyAddVehicle(op)
	}
	for _, op := range speeds {
		apply.ApplySetSpeed(op)
	}
}

// Writer is the partition runtime's write-side Sim access, used only
// from ApplyMutableOperations while the handler is quiesced.
type Writer interface {
	ApplyAddVehicle(op AddVehicleOp)
	ApplySetSpeed(op SetSpeedOp)
}

// readLoop pulls one framed message at a time off the connection and
// hands it to the dispatcher over an unbuffered channel, so it naturally
// stalls — without losing bytes already read off the wire — whenever the
// dispatcher is not ready to receive (e.g. the handler is Idle).
func (h *Handler) readLoop() {
	for {
		body, err := transport.ReadMessage(h.reader)
		if err != nil {
			return
		}
		if len(body) < 4 {
			h.log.WithError(ErrProtocol).Warn("malformed request frame")
			// Hand on an opcode no request uses, so the dispatcher answers
			// with the empty sentinel reply and the Stub is not left waiting.
			body = []byte{0xff, 0xff, 0xff, 0xff}
		}
		r := bufio.NewReader(bytes.NewReader(body[4:]))
		opcode, _ := wire.ReadOpcode(bytes.NewReader(body[:4]))
		select {
		case h.requests <- requestFrame{opcode: opcode, body: r}:
		case <-h.done:
			return
		}
	}
}

// run is the dispatcher goroutine implementing the Idle/Listening/
// Terminated state machine (see doc.go).
func (h *Handler) run() {
	defer close(h.done)
	for {
		h.mu.Lock()
		for !h.listening && !h.term {
			h.cond.Wait()
		}
		term := h.term
		h.mu.Unlock()
		if term {
			return
		}

		select {
		case sig := <-h.control:
			h.mu.Lock()
			h.listening = false
			if sig == signalTerm {
				h.term = true
			}
			h.cond.Broadcast()
			h.mu.Unlock()
			if sig == signalTerm {
				return
			}
		case req := <-h.requests:
			h.dispatch(req)
		}
	}
}

func (h *Handler) dispatch(req requestFrame) {
	var reply []byte
	var err error

	switch wire.NeighborOp(req.opcode) {
	case wire.OpGetEdgeVehicles:
		reply, err = h.handleGetEdgeVehicles(req.body)
	case wire.OpHasVehicle:
		reply, err = h.handleHasVehicle(req.body)
	case wire.OpHasVehicleInEdge:
		reply, err = h.handleHasVehicleInEdge(req.body)
	case wire.OpSetVehicleSpeed:
		reply, err = h.handleSetVehicleSpeed(req.body)
	case wire.OpAddVehicle:
		reply, err = h.handleAddVehicle(req.body)
	default:
		h.log.WithField("opcode", req.opcode).Warn("unknown opcode")
		reply, err = []byte{}, nil
	}

	if err != nil {
		h.log.WithError(err).Warn("request handling failed")
		if reply == nil {
			reply = []byte{}
		}
	}

	if werr := transport.WriteMessage(h.conn, reply); werr != nil {
		h.log.WithError(werr).Warn("failed to send reply")
	}
}

func (h *Handler) handleGetEdgeVehicles(body *bufio.Reader) ([]byte, error) {
	req, err := wire.DecodeGetEdgeVehiclesRequest(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	ids, err := h.reads.EdgeVehicles(req.EdgeID)
	if err != nil {
		// Sim read error: treated as "no data" (spec.md §7.3).
		ids = nil
	}
	var buf bytes.Buffer
	if err := (wire.GetEdgeVehiclesReply{VehicleIDs: ids}).Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (h *Handler) handleHasVehicle(body *bufio.Reader) ([]byte, error) {
	req, err := wire.DecodeHasVehicleRequest(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	found := h.reads.HasVehicle(req.VehicleID)
	var buf bytes.Buffer
	if err := (wire.BoolReply{Value: found}).Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (h *Handler) handleHasVehicleInEdge(body *bufio.Reader) ([]byte, error) {
	req, err := wire.DecodeHasVehicleInEdgeRequest(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	found := h.reads.HasVehicleInEdge(req.VehicleID, req.EdgeID)
	var buf bytes.Buffer
	if err := (wire.BoolReply{Value: found}).Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (h *Handler) handleSetVehicleSpeed(body *bufio.Reader) ([]byte, error) {
	req, err := wire.DecodeSetVehicleSpeedRequest(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if ok := h.speedQueue.Append(SetSpeedOp{VehicleID: req.VehicleID, Speed: req.Speed}); !ok {
		h.log.WithField("vehicle", req.VehicleID).Error("set-speed queue overflow, dropping operation")
	}
	return []byte("ok"), nil
}

func (h *Handler) handleAddVehicle(body *bufio.Reader) ([]byte, error) {
	req, err := wire.DecodeAddVehicleRequest(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	op := AddVehicleOp{
		VehicleID:   req.VehicleID,
		RouteID:     req.RouteID,
		VehicleType: req.VehicleType,
		LaneID:      req.LaneID,
		LaneIndex:   req.LaneIndex,
		LanePos:     req.LanePos,
		Speed:       req.Speed,
	}
	if ok := h.addQueue.Append(op); !ok {
		h.log.WithField("vehicle", req.VehicleID).Error("add-vehicle queue overflow, dropping operation")
	}
	return []byte("ok"), nil
}
