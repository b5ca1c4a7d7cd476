package coordinator

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

// ErrAllFinished is returned by Run once every partition has signaled
// FINISHED and no watchdog failure was observed.
var ErrAllFinished = errors.New("coordinator: all partitions finished")

// conn is the coordinator's per-partition connection bookkeeping.
type conn struct {
	partitionID int
	netConn     net.Conn
	reader      *bufio.Reader
}

// Coordinator binds one acceptor per partition and drives the barrier
// protocol from a single event loop, mirroring the reference design's
// unified poll over per-partition REP sockets plus the watchdog pair.
type Coordinator struct {
	numPartitions int
	pool          *transport.ContextPool
	log           *logrus.Entry

	mu      sync.Mutex
	conns   []*conn
	round   *roundState
	stopped []bool

	watchdog chan watchdogReport
}

// New constructs a Coordinator for a run of n partitions. Endpoint naming
// is rooted at the dataDir later passed to AcceptAll.
func New(pool *transport.ContextPool, numPartitions int, log *logrus.Entry) *Coordinator {
	return &Coordinator{
		numPartitions: numPartitions,
		pool:          pool,
		log:           log,
		round:         newRoundState(numPartitions),
		conns:         make([]*conn, numPartitions),
		stopped:       make([]bool, numPartitions),
		watchdog:      make(chan watchdogReport, numPartitions),
	}
}

// AcceptAll blocks until every partition has connected to its sync
// endpoint. Call once, before Run.
func (c *Coordinator) AcceptAll(dataDir string) error {
	for i := 0; i < c.numPartitions; i++ {
		ep := transport.SyncEndpoint(dataDir, i)
		ln, err := c.pool.Listen(ep)
		if err != nil {
			return fmt.Errorf("coordinator: listen for partition %d: %w", i, err)
		}
		nc, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("coordinator: accept partition %d: %w", i, err)
		}
		c.conns[i] = &conn{partitionID: i, netConn: nc, reader: bufio.NewReader(nc)}
		c.log.WithField("partition", i).Info("partition connected")
	}
	return nil
}

// WatchdogReports exposes the channel the watchdog posts exit failures
// on, so cmd/partsim can wire exec.Cmd.Wait() results into it.
func (c *Coordinator) WatchdogReports() chan<- watchdogReport {
	return c.watchdog
}

// Run drives the event loop until every partition reports FINISHED or
// the watchdog reports a fatal child exit. It returns ErrAllFinished on
// the clean path, or the propagated non-zero-status error from the
// watchdog otherwise.
func (c *Coordinator) Run() error {
	replyCh := make(chan replyWork, c.numPartitions)
	requestCh := make(chan requestWork, c.numPartitions)
	errCh := make(chan error, c.numPartitions)

	for _, cn := range c.conns {
		go c.readPartition(cn, requestCh, errCh)
	}

	for {
		select {
		case report := <-c.watchdog:
			if report.err != nil && !c.round.allStopped() {
				c.log.WithFields(logrus.Fields{
					"partition": report.partitionID,
					"pid":       report.pid,
					"status":    report.status,
				}).Error("partition exited abnormally, killing survivors")
				c.killSurvivors(report.partitionID)
				return fmt.Errorf("coordinator: partition %d exited with status %d: %w", report.partitionID, report.status, report.err)
			}
		case req := <-requestCh:
			c.handleRequest(req, replyCh)
		case rep := <-replyCh:
			c.sendReplies(rep)
		case err := <-errCh:
			if !c.round.allStopped() {
				return err
			}
		}
		if c.round.allStopped() {
			return ErrAllFinished
		}
	}
}

type requestWork struct {
	partitionID int
	opcode      int32
	body        *bufio.Reader
}

type replyWork struct {
	targets []int
	payload []byte
}

func (c *Coordinator) readPartition(cn *conn, out chan<- requestWork, errCh chan<- error) {
	for {
		body, err := transport.ReadMessage(cn.reader)
		if err != nil {
			errCh <- fmt.Errorf("coordinator: read from partition %d: %w", cn.partitionID, err)
			return
		}
		if len(body) < 4 {
			c.log.WithField("partition", cn.partitionID).Warn("malformed sync frame, dropping")
			continue
		}
		opcode, _ := wire.ReadOpcode(bytes.NewReader(body[:4]))
		out <- requestWork{partitionID: cn.partitionID, opcode: opcode, body: bufio.NewReader(bytes.NewReader(body[4:]))}
		// A partition sends nothing after FINISHED; its later disconnect
		// is not a failure.
		if wire.SyncOp(opcode) == wire.OpFinished {
			return
		}
	}
}

func (c *Coordinator) handleRequest(req requestWork, replyCh chan<- replyWork) {
	i := req.partitionID
	switch wire.SyncOp(req.opcode) {
	case wire.OpBarrier:
		if repeated := c.round.markBarrier(i); repeated {
			c.log.WithField("partition", i).Error("repeated BARRIER before release")
			c.writeSingle(i, repeatedFrame())
			return
		}
		if c.round.barrierCount == c.numPartitions {
			c.round.releaseBarrier()
			replyCh <- replyWork{targets: allPartitions(c.numPartitions), payload: okFrame()}
		}
	case wire.OpBarrierStep:
		stepReq, err := wire.DecodeBarrierStepRequest(req.body)
		if err != nil {
			c.log.WithField("partition", i).WithError(err).Warn("malformed BARRIER_STEP")
			return
		}
		if repeated := c.round.markStepBarrier(i, stepReq.MaybeFinished); repeated {
			c.log.WithField("partition", i).Error("repeated BARRIER_STEP before release")
			c.writeSingle(i, repeatedFrame())
			return
		}
		if c.round.stepBarrierCount == c.numPartitions {
			allEmpty := c.round.allEmpty()
			c.round.releaseStepBarrier()
			replyCh <- replyWork{targets: allPartitions(c.numPartitions), payload: stepReplyFrame(allEmpty)}
		}
	case wire.OpFinished:
		c.round.markStopped(i)
		c.writeSingle(i, okFrame())
	default:
		c.log.WithFields(logrus.Fields{"partition": i, "opcode": req.opcode}).Warn("unknown sync opcode")
	}
}

func (c *Coordinator) sendReplies(rep replyWork) {
	for _, i := range rep.targets {
		c.writeSingle(i, rep.payload)
	}
}

func (c *Coordinator) writeSingle(partitionID int, payload []byte) {
	cn := c.conns[partitionID]
	if cn == nil {
		return
	}
	if err := transport.WriteMessage(cn.netConn, payload); err != nil {
		c.log.WithField("partition", partitionID).WithError(err).Warn("failed to send sync reply")
	}
}

// killSurvivors is called with the coordinator's connection list; actual
// process termination is cmd/partsim's responsibility (it owns the
// exec.Cmd handles), so this only marks every non-failed partition as a
// kill target for the caller to act on via Survivors().
func (c *Coordinator) killSurvivors(failedPartition int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.stopped {
		if i != failedPartition {
			c.stopped[i] = true
		}
	}
}

// Survivors returns the ids of every partition that was not the one
// reported by the watchdog as having failed, i.e. the set cmd/partsim
// should SIGKILL.
func (c *Coordinator) Survivors(failedPartition int) []int {
	var out []int
	for i := 0; i < c.numPartitions; i++ {
		if i != failedPartition {
			out = append(out, i)
		}
	}
	return out
}

func allPartitions(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func okFrame() []byte      { var b bytes.Buffer; _ = wire.WriteOk(&b); return b.Bytes() }
func repeatedFrame() []byte {
	var b bytes.Buffer
	_ = wire.WriteRepeated(&b)
	return b.Bytes()
}
func stepReplyFrame(allEmpty bool) []byte {
	var b bytes.Buffer
	_ = (wire.BarrierStepReply{AllEmpty: allEmpty}).Encode(&b)
	return b.Bytes()
}
