package protocol

import (
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/amqpio/lib/util"
	"github.com/ValentinKolb/amqpio/rpc/codec"
	"github.com/ValentinKolb/amqpio/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/valyala/bytebufferpool"
)

var log = logger.GetLogger("protocol")

// ErrPending is returned by Result for a request that has no reply yet
var ErrPending = errors.New("request pending")

// --------------------------------------------------------------------------
// Channel table
// --------------------------------------------------------------------------

type channelStatus uint8

const (
	channelAllocated channelStatus = iota // id reserved, channel.open not sent yet
	channelOpening
	channelOpen
	channelClosing
)

type channel struct {
	id      uint16
	name    string
	status  channelStatus
	waiting []RequestID // requests awaiting their reply, in send order
}

// shutdown is a terminal transition deferred until the outbound queue is flushed
type shutdown struct {
	state State
	err   error
}

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

// Connection is the protocol state of one broker connection.
// It is not safe for concurrent use, the owning transport serializes all calls.
type Connection struct {
	conf  Config
	state State
	err   error
	opts  common.ConnectionOptions

	// negotiated during tuning
	channelMax uint16
	frameMax   uint32
	heartbeat  time.Duration
	started    bool

	nextChannel uint16
	channels    *xsync.MapOf[uint16, *channel]

	nextRequest RequestID
	pending     *xsync.MapOf[RequestID, *request]
	expiry      *util.ExpiryHeap

	outbound []*bytebufferpool.ByteBuffer
	outOff   int // bytes of outbound[0] already serialized
	inbound  []codec.Frame
	deferred *shutdown

	lastSend time.Time
	lastRecv time.Time
}

// NewConnection creates a connection in the Initial state
func NewConnection(conf Config) *Connection {
	conf = conf.withDefaults()
	c := &Connection{
		conf:        conf,
		state:       Initial,
		channelMax:  conf.ChannelMax,
		channels:    xsync.NewMapOf[uint16, *channel](),
		nextRequest: 1,
		pending:     xsync.NewMapOf[RequestID, *request](),
		expiry:      util.NewExpiryHeap(),
	}
	// channel 0 carries the connection class methods
	c.channels.Store(0, &channel{id: 0, status: channelOpen})
	return c
}

// State returns the current connection state
func (c *Connection) State() State { return c.state }

// Err returns the error that moved the connection into the Error state
func (c *Connection) Err() error { return c.err }

// FrameMax returns the negotiated frame size limit, 0 before tuning
func (c *Connection) FrameMax() uint32 { return c.frameMax }

// ChannelMax returns the highest usable channel id
func (c *Connection) ChannelMax() uint16 { return c.channelMax }

// Heartbeat returns the negotiated heartbeat interval, 0 if disabled
func (c *Connection) Heartbeat() time.Duration { return c.heartbeat }

// PendingCount returns the number of requests in the pending table, finished or not
func (c *Connection) PendingCount() int { return c.pending.Size() }

// OpenChannels returns the number of allocated channel ids
func (c *Connection) OpenChannels() int { return c.channels.Size() - 1 }

// HasOutbound reports whether queued bytes wait for Serialize
func (c *Connection) HasOutbound() bool { return len(c.outbound) > 0 }

func (c *Connection) setState(s State) {
	if c.state == s {
		return
	}
	log.Infof("connection %s -> %s", c.state, s)
	c.state = s
}

// --------------------------------------------------------------------------
// Requests
// --------------------------------------------------------------------------

// Connect starts the handshake: it queues the protocol header and returns the
// request that finishes once the broker opened the connection
func (c *Connection) Connect(opts common.ConnectionOptions) (RequestID, error) {
	if c.state != Initial {
		return 0, fmt.Errorf("%w: connect in state %s", common.ErrSequencing, c.state)
	}
	c.opts = opts

	bb := bytebufferpool.Get()
	bb.B = append(bb.B[:0], codec.ProtocolHeader...)
	c.outbound = append(c.outbound, bb)

	now := c.conf.Now()
	c.lastSend, c.lastRecv = now, now
	c.setState(Connecting)

	ch, _ := c.channels.Load(0)
	return c.expect(ch, codec.MethodConnectionOpenOk), nil
}

// CreateChannel reserves the next unused channel id. It queues nothing.
func (c *Connection) CreateChannel() (uint16, error) {
	if err := c.checkState(); err != nil {
		return 0, err
	}

	for i := 0; i < int(c.channelMax); i++ {
		c.nextChannel++
		if c.nextChannel == 0 || c.nextChannel > c.channelMax {
			c.nextChannel = 1
		}
		id := c.nextChannel
		if _, used := c.channels.Load(id); !used {
			c.channels.Store(id, &channel{id: id, status: channelAllocated})
			return id, nil
		}
	}
	return 0, common.ErrNoFreeChannel
}

// ChannelOpen queues channel.open for a channel returned by CreateChannel
func (c *Connection) ChannelOpen(id uint16, name string) (RequestID, error) {
	ch, ok := c.channels.Load(id)
	if !ok || id == 0 {
		return 0, fmt.Errorf("%w: channel %d was not created", common.ErrSequencing, id)
	}
	if ch.status != channelAllocated {
		return 0, fmt.Errorf("%w: channel %d is already open", common.ErrSequencing, id)
	}
	ch.name = name
	return c.Call(id, &codec.ChannelOpen{})
}

// Call queues a method that expects a reply and returns the request that the
// reply completes. Every synchronous channel method goes through Call.
func (c *Connection) Call(channelID uint16, m codec.Method) (RequestID, error) {
	reply, ok := codec.ExpectedReply(m)
	if !ok {
		return 0, fmt.Errorf("%s expects no reply", m.ID())
	}

	ch, err := c.usableChannel(channelID, m)
	if err != nil {
		return 0, err
	}
	if err := c.enqueue(channelID, m); err != nil {
		return 0, err
	}

	switch m.(type) {
	case *codec.ChannelOpen:
		ch.status = channelOpening
	case *codec.ChannelClose:
		ch.status = channelClosing
	}
	return c.expect(ch, reply), nil
}

// Send queues a method without reply (including no-wait variants)
func (c *Connection) Send(channelID uint16, m codec.Method) error {
	if _, ok := codec.ExpectedReply(m); ok {
		return fmt.Errorf("%s expects a reply", m.ID())
	}
	if _, err := c.usableChannel(channelID, m); err != nil {
		return err
	}
	return c.enqueue(channelID, m)
}

// Close starts a client initiated connection close
func (c *Connection) Close() (RequestID, error) {
	if c.state != Connected {
		if err := c.checkState(); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("%w: close in state %s", common.ErrSequencing, c.state)
	}

	m := &codec.ConnectionClose{ReplyCode: 200, ReplyText: "client shutdown"}
	if err := c.enqueue(0, m); err != nil {
		return 0, err
	}
	c.setState(Closing)

	ch, _ := c.channels.Load(0)
	return c.expect(ch, codec.MethodConnectionCloseOk), nil
}

// IsFinished reports whether a reply or a failure was recorded for the request
func (c *Connection) IsFinished(id RequestID) bool {
	req, ok := c.pending.Load(id)
	return ok && req.finished
}

// Result claims the outcome of a finished request and removes it from the
// pending table. A second claim reports ErrRequestExpired.
func (c *Connection) Result(id RequestID) (codec.Method, error) {
	req, ok := c.pending.Load(id)
	if !ok {
		if id > 0 && id < c.nextRequest {
			return nil, common.ErrRequestExpired
		}
		return nil, common.ErrUnknownRequest
	}
	if !req.finished {
		return nil, ErrPending
	}

	c.pending.Delete(id)
	c.expiry.Cancel(uint64(id))
	return req.reply, req.err
}

func (c *Connection) checkState() error {
	switch c.state {
	case Connecting, Connected:
		return nil
	case Error:
		return common.ErrConnectionAborted
	case Closing, Closed:
		return common.ErrConnectionClosed
	default:
		return fmt.Errorf("%w: connection not started", common.ErrSequencing)
	}
}

func (c *Connection) usableChannel(id uint16, m codec.Method) (*channel, error) {
	if err := c.checkState(); err != nil {
		return nil, err
	}
	if c.state != Connected {
		// channel frames must not overtake start-ok, tune-ok and connection.open
		return nil, fmt.Errorf("%w: %s before the connection is open", common.ErrSequencing, m.ID())
	}
	if id == 0 {
		return nil, fmt.Errorf("%w: %s on channel 0", common.ErrSequencing, m.ID())
	}

	ch, ok := c.channels.Load(id)
	if !ok || ch.status == channelClosing {
		return nil, common.ErrChannelClosed
	}
	_, opening := m.(*codec.ChannelOpen)
	if ch.status == channelAllocated && !opening {
		return nil, fmt.Errorf("%w: channel %d is not open", common.ErrSequencing, id)
	}
	return ch, nil
}

func (c *Connection) enqueue(channelID uint16, m codec.Method) error {
	return c.enqueueFrame(codec.MethodFrame(channelID, m))
}

func (c *Connection) enqueueFrame(f codec.Frame) error {
	bb := bytebufferpool.Get()
	b, err := codec.AppendFrame(bb.B[:0], f)
	if err != nil {
		bytebufferpool.Put(bb)
		return err
	}
	bb.B = b
	c.outbound = append(c.outbound, bb)
	log.Debugf("queued %s", f)
	return nil
}

// --------------------------------------------------------------------------
// Codec collaborator (called by the driver)
// --------------------------------------------------------------------------

// Serialize copies queued bytes into dst. A frame may be split across calls.
func (c *Connection) Serialize(dst []byte) (int, State) {
	n := 0
	for n < len(dst) && len(c.outbound) > 0 {
		head := c.outbound[0]
		k := copy(dst[n:], head.B[c.outOff:])
		n += k
		c.outOff += k
		if c.outOff == len(head.B) {
			bytebufferpool.Put(head)
			c.outbound[0] = nil
			c.outbound = c.outbound[1:]
			c.outOff = 0
		}
	}
	if n > 0 {
		c.lastSend = c.conf.Now()
	}
	return n, c.state
}

// Flushed tells the connection that every serialized byte reached the stream.
// A broker close that waits for its close-ok enters its terminal state here.
func (c *Connection) Flushed() {
	if len(c.outbound) == 0 && c.deferred != nil {
		c.applyDeferred()
	}
}

// Parse decodes one frame from src and queues it for HandleFrames.
// On codec.ErrIncomplete the returned count is the size the frame needs.
// Any other error moves the connection to Error.
func (c *Connection) Parse(src []byte) (int, State, error) {
	f, n, err := codec.Parse(src, c.frameMax)
	if err != nil {
		if errors.Is(err, codec.ErrIncomplete) {
			return n, c.state, err
		}
		c.SetError(err)
		return 0, c.state, err
	}

	c.lastRecv = c.conf.Now()
	c.inbound = append(c.inbound, f)
	log.Debugf("received %s", f)
	return n, c.state, nil
}

// HandleFrames applies every parsed frame to the connection state and prunes
// results nobody claimed in time. Calling it with nothing new is a no-op.
func (c *Connection) HandleFrames() {
	for len(c.inbound) > 0 && !c.state.Terminal() {
		f := c.inbound[0]
		c.inbound[0] = codec.Frame{}
		c.inbound = c.inbound[1:]

		if err := c.handleFrame(f); err != nil {
			log.Errorf("handling %s: %v", f, err)
			c.SetError(err)
		}
	}
	if len(c.inbound) == 0 || c.state.Terminal() {
		c.inbound = nil
	}
	c.prune()
}

// SetError moves the connection into the Error state and fails every pending request.
// The first error is kept, later calls and calls in a terminal state are ignored.
func (c *Connection) SetError(err error) {
	if c.state.Terminal() {
		return
	}
	c.err = err
	c.terminate(Error, fmt.Errorf("%w: %w", common.ErrConnectionAborted, err))
}

// EndOfStream handles the broker closing the byte stream
func (c *Connection) EndOfStream() {
	switch {
	case c.state.Terminal():
		return
	case c.deferred != nil:
		c.applyDeferred()
	case c.state == Closing:
		c.terminate(Closed, common.ErrConnectionClosed)
	default:
		log.Warningf("broker closed the stream in state %s", c.state)
		c.terminate(Closed, common.ErrConnectionClosed)
	}
}

func (c *Connection) applyDeferred() {
	d := c.deferred
	c.deferred = nil
	if d.state == Error {
		c.err = d.err
	}
	c.terminate(d.state, d.err)
}

// terminate enters a terminal state and fails all unfinished requests with reqErr
func (c *Connection) terminate(s State, reqErr error) {
	c.setState(s)
	c.channels.Range(func(id uint16, ch *channel) bool {
		c.failChannel(ch, reqErr)
		if id != 0 {
			c.channels.Delete(id)
		}
		return true
	})
	for _, bb := range c.outbound {
		bytebufferpool.Put(bb)
	}
	c.outbound = nil
	c.outOff = 0
	c.inbound = nil
}
