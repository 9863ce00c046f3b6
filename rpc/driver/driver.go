package driver

import (
	"errors"
	"fmt"
	"io"

	"github.com/ValentinKolb/amqpio/lib/buffer"
	"github.com/ValentinKolb/amqpio/rpc/codec"
	"github.com/ValentinKolb/amqpio/rpc/common"
	"github.com/ValentinKolb/amqpio/rpc/protocol"
	"github.com/ValentinKolb/amqpio/rpc/stream"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("driver")

// Protocol is the codec side of the driver, implemented by *protocol.Connection
type Protocol interface {
	State() protocol.State
	Err() error
	HasOutbound() bool
	Serialize(dst []byte) (int, protocol.State)
	Parse(src []byte) (int, protocol.State, error)
	HandleFrames()
	SetError(err error)
	EndOfStream()
	Flushed()
}

// Run performs all the I/O that is possible without blocking and returns the
// resulting state once no step can make progress. Each pass makes at most one
// write attempt, one read attempt and one parse attempt, in that order.
//
// Run never waits: would-block and incomplete frames end the call, the caller
// invokes it again after the next readiness notification or newly queued frame.
// A connection in the Error state fails with common.ErrConnectionAborted and a
// closed connection returns immediately, both without touching the stream.
func Run(conn Protocol, s stream.Stream, send, recv *buffer.Buffer) (state protocol.State, err error) {
	switch conn.State() {
	case protocol.Error:
		return protocol.Error, common.ErrConnectionAborted
	case protocol.Closed:
		return protocol.Closed, nil
	}
	runsTotal.Inc()

	// a panic must not leave the connection half updated behind the transport lock
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("driver panic: %v", r)
			log.Errorf("%v", err)
			conn.SetError(err)
			state = conn.State()
		}
	}()

	d := &run{conn: conn, stream: s, send: send, recv: recv}
	return d.loop()
}

// run holds the per invocation flags, they never outlive one Run call
type run struct {
	conn   Protocol
	stream stream.Stream
	send   *buffer.Buffer
	recv   *buffer.Buffer

	writeBlocked bool
	readBlocked  bool
	parseStalled bool // the buffered bytes do not hold a complete frame
	eof          bool
}

func (d *run) loop() (protocol.State, error) {
	for {
		canWrite := !d.writeBlocked && (d.send.AvailableData() > 0 || d.conn.HasOutbound())
		canRead := !d.readBlocked && d.recv.AvailableSpace() > 0
		canParse := !d.parseStalled && d.recv.AvailableData() > 0

		if !canWrite && !canRead && !canParse {
			return d.conn.State(), nil
		}

		if canWrite {
			if err := d.write(); err != nil {
				return d.fail(err)
			}
			if d.conn.State().Terminal() {
				return d.exit()
			}
		}

		if canRead {
			if err := d.read(); err != nil {
				return d.fail(err)
			}
			if d.eof {
				return d.finish()
			}
		}

		// the read may have completed a frame that stalled before
		if !d.parseStalled && d.recv.AvailableData() > 0 {
			if err := d.parse(); err != nil {
				return d.fail(err)
			}
			if d.conn.State().Terminal() {
				return d.exit()
			}
		}
	}
}

// --------------------------------------------------------------------------
// Steps
// --------------------------------------------------------------------------

// write moves queued frames into the send buffer and makes one write attempt
func (d *run) write() error {
	if d.conn.HasOutbound() && d.send.AvailableSpace() > 0 {
		n, _ := d.conn.Serialize(d.send.Space())
		d.send.Fill(n)
	}
	if d.send.AvailableData() == 0 {
		return nil
	}

	n, err := d.stream.Write(d.send.Data())
	switch {
	case errors.Is(err, stream.ErrWouldBlock), err == nil && n == 0:
		d.writeBlocked = true
		wouldBlockWrite.Inc()
		return nil
	case err != nil:
		return fmt.Errorf("write: %w", err)
	}

	d.send.Consume(n)
	bytesWrittenTotal.Add(n)
	if d.send.AvailableData() == 0 && !d.conn.HasOutbound() {
		d.conn.Flushed()
	}
	return nil
}

// read makes one read attempt into the receive buffer
func (d *run) read() error {
	if state := d.conn.State(); state == protocol.Initial || state == protocol.Error {
		return fmt.Errorf("%w: read in state %s", common.ErrSequencing, state)
	}

	n, err := d.stream.Read(d.recv.Space())
	switch {
	case errors.Is(err, stream.ErrWouldBlock):
		d.readBlocked = true
		wouldBlockRead.Inc()
		return nil
	case errors.Is(err, io.EOF), err == nil && n == 0:
		d.eof = true
		return nil
	case err != nil:
		return fmt.Errorf("read: %w", err)
	}

	d.recv.Fill(n)
	d.parseStalled = false
	bytesReadTotal.Add(n)
	return nil
}

// parse decodes at most one frame and hands it to the protocol
func (d *run) parse() error {
	n, _, err := d.conn.Parse(d.recv.Data())
	if errors.Is(err, codec.ErrIncomplete) {
		d.parseStalled = true
		incompleteTotal.Inc()

		// a frame larger than the free space would never complete
		missing := n - d.recv.AvailableData()
		if missing > d.recv.AvailableSpace() {
			capacity := d.recv.Capacity()
			if err := d.recv.Grow(missing); err != nil {
				return fmt.Errorf("frame of %d bytes: %w", n, err)
			}
			if d.recv.Capacity() != capacity {
				bufferGrowthsTotal.Inc()
				log.Debugf("receive buffer grown to %d of %d bytes", d.recv.Capacity(), d.recv.MaxCapacity())
			}
		}
		return nil
	}
	if err != nil {
		return err
	}

	d.recv.Consume(n)
	framesParsedTotal.Inc()
	d.conn.HandleFrames()
	return nil
}

// --------------------------------------------------------------------------
// Exits
// --------------------------------------------------------------------------

// finish handles the end of the stream: complete frames that are still buffered
// are handled before the connection enters its terminal state
func (d *run) finish() (protocol.State, error) {
	for d.recv.AvailableData() > 0 && !d.parseStalled && !d.conn.State().Terminal() {
		if err := d.parse(); err != nil {
			return d.fail(err)
		}
	}
	if d.conn.State().Terminal() {
		return d.exit()
	}
	if d.parseStalled {
		log.Warningf("stream ended with %d bytes of an incomplete frame", d.recv.AvailableData())
	}

	prev := d.conn.State()
	d.conn.EndOfStream()
	log.Infof("stream ended (%s -> %s)", prev, d.conn.State())
	return d.exit()
}

// exit reports a terminal state entered during this run, the error of the Error
// state surfaces here exactly once
func (d *run) exit() (protocol.State, error) {
	state := d.conn.State()
	if state == protocol.Error {
		return state, d.conn.Err()
	}
	return state, nil
}

// fail moves the connection into the Error state and reports err once
func (d *run) fail(err error) (protocol.State, error) {
	errorsTotal.Inc()
	log.Errorf("connection failed: %v", err)
	d.conn.SetError(err)
	return d.conn.State(), err
}
