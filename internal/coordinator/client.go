package coordinator

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net"

	"github.com/partsim/partsim/internal/transport"
	"github.com/partsim/partsim/internal/wire"
)

// ErrRepeated is returned when the coordinator replies "repeated" to a
// BARRIER or BARRIER_STEP: the caller sent the same opcode twice before
// the coordinator released the prior round. This is always a
// programming error in the partition runtime and is not retried.
var ErrRepeated = errors.New("coordinator: repeated barrier arrival")

// Client is a partition process's connection to the coordinator. It is
// used only from the partition's main goroutine and, like neighbor.Stub,
// adds no internal locking.
type Client struct {
	pool     *transport.ContextPool
	endpoint transport.Endpoint

	conn   net.Conn
	reader *bufio.Reader
}

// NewClient constructs an unconnected coordinator Client for the given
// partition.
func NewClient(pool *transport.ContextPool, dataDir string, partitionID int) *Client {
	return &Client{pool: pool, endpoint: transport.SyncEndpoint(dataDir, partitionID)}
}

// Connect dials the coordinator's sync endpoint for this partition.
func (c *Client) Connect() error {
	conn, err := c.pool.Dial(c.endpoint)
	if err != nil {
		return fmt.Errorf("coordinator: connect: %w", err)
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

// Close closes the connection to the coordinator.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	transport.SetNoLinger(c.conn)
	return c.conn.Close()
}

func (c *Client) call(opcode wire.SyncOp, payload []byte) ([]byte, error) {
	var body bytes.Buffer
	if err := wire.WriteOpcode(&body, int32(opcode)); err != nil {
		return nil, err
	}
	if _, err := body.Write(payload); err != nil {
		return nil, err
	}
	if err := transport.WriteMessage(c.conn, body.Bytes()); err != nil {
		return nil, fmt.Errorf("coordinator: send %s: %w", opcode, err)
	}
	reply, err := transport.ReadMessage(c.reader)
	if err != nil {
		return nil, fmt.Errorf("coordinator: recv reply to %s: %w", opcode, err)
	}
	return reply, nil
}

// Barrier blocks until every partition has called Barrier for this
// round, then returns. Used at startup.
func (c *Client) Barrier() error {
	reply, err := c.call(wire.OpBarrier, nil)
	if err != nil {
		return err
	}
	if bytes.Equal(reply, []byte("repeated")) {
		return ErrRepeated
	}
	return nil
}

// BarrierStep blocks until every partition has called BarrierStep for
// this round, reporting maybeFinished, and returns the AND of every
// partition's maybeFinished bit.
func (c *Client) BarrierStep(maybeFinished bool) (allEmpty bool, err error) {
	var payload bytes.Buffer
	if err := (wire.BarrierStepRequest{MaybeFinished: maybeFinished}).Encode(&payload); err != nil {
		return false, err
	}
	reply, err := c.call(wire.OpBarrierStep, payload.Bytes())
	if err != nil {
		return false, err
	}
	if bytes.Equal(reply, []byte("repeated")) {
		return false, ErrRepeated
	}
	r, err := wire.DecodeBarrierStepReply(bufio.NewReader(bytes.NewReader(reply)))
	if err != nil {
		return false, err
	}
	return r.AllEmpty, nil
}

// Finished signals the coordinator that this partition has exited its
// main loop. Fire-and-forget: the coordinator replies "ok" immediately
// without waiting for other partitions.
func (c *Client) Finished() error {
	_, err := c.call(wire.OpFinished, nil)
	return err
}
