package protocol

import (
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/amqpio/rpc/codec"
	"github.com/ValentinKolb/amqpio/rpc/common"
)

// Product is announced to the broker in the client properties
const Product = "amqpio"

// --------------------------------------------------------------------------
// Frame dispatch
// --------------------------------------------------------------------------

func (c *Connection) handleFrame(f codec.Frame) error {
	switch f.Type {
	case codec.FrameMethod:
	case codec.FrameHeartbeat:
		return nil
	default:
		// content frames belong to consumers, which this client does not register
		log.Debugf("ignoring %s", f)
		return nil
	}

	if c.state == Closing {
		// after connection.close only close and close-ok are meaningful
		switch f.Method.(type) {
		case *codec.ConnectionClose, *codec.ConnectionCloseOk:
		default:
			log.Debugf("discarding %s while closing", f)
			return nil
		}
	}

	if f.Channel == 0 {
		return c.handleConnectionMethod(f.Method)
	}
	return c.handleChannelMethod(f.Channel, f.Method)
}

func (c *Connection) handleConnectionMethod(m codec.Method) error {
	switch m := m.(type) {
	case *codec.ConnectionStart:
		return c.onStart(m)
	case *codec.ConnectionTune:
		return c.onTune(m)
	case *codec.ConnectionClose:
		return c.onConnectionClose(m)
	}

	ch, _ := c.channels.Load(0)
	if err := c.complete(ch, m); err != nil {
		return err
	}

	switch m.(type) {
	case *codec.ConnectionOpenOk:
		c.setState(Connected)
	case *codec.ConnectionCloseOk:
		c.terminate(Closed, common.ErrConnectionClosed)
	}
	return nil
}

func (c *Connection) handleChannelMethod(id uint16, m codec.Method) error {
	ch, ok := c.channels.Load(id)
	if !ok {
		// a reply racing with a broker side close of the same channel
		log.Warningf("ignoring %s on released channel %d", m.ID(), id)
		return nil
	}

	if closeReq, ok := m.(*codec.ChannelClose); ok {
		return c.onChannelClose(ch, closeReq)
	}

	if err := c.complete(ch, m); err != nil {
		return err
	}

	switch m.(type) {
	case *codec.ChannelOpenOk:
		ch.status = channelOpen
		log.Debugf("channel %d (%s) open", ch.id, ch.name)
	case *codec.ChannelCloseOk:
		c.failChannel(ch, common.ErrChannelClosed)
		c.channels.Delete(ch.id)
		log.Debugf("channel %d (%s) closed", ch.id, ch.name)
	}
	return nil
}

// --------------------------------------------------------------------------
// Handshake
// --------------------------------------------------------------------------

func (c *Connection) onStart(m *codec.ConnectionStart) error {
	if c.state != Connecting || c.started {
		return &ProtocolError{Reason: "unexpected connection.start"}
	}
	c.started = true

	if m.VersionMajor != 0 || m.VersionMinor != 9 {
		return &ProtocolError{Reason: fmt.Sprintf("unsupported protocol version %d-%d", m.VersionMajor, m.VersionMinor)}
	}
	if !containsWord(m.Mechanisms, "PLAIN") {
		return &ProtocolError{Reason: fmt.Sprintf("broker offers no PLAIN mechanism (%q)", m.Mechanisms)}
	}
	log.Debugf("broker properties: %v", m.ServerProperties)

	return c.enqueue(0, &codec.ConnectionStartOk{
		ClientProperties: codec.Table{
			"product":  Product,
			"platform": "Go",
			"capabilities": codec.Table{
				"connection.blocked": false,
			},
		},
		Mechanism: "PLAIN",
		Response:  []byte("\x00" + c.opts.Username + "\x00" + c.opts.Password),
		Locale:    "en_US",
	})
}

func (c *Connection) onTune(m *codec.ConnectionTune) error {
	if c.state != Connecting || !c.started || c.frameMax != 0 {
		return &ProtocolError{Reason: "unexpected connection.tune"}
	}

	c.channelMax = negotiateLimit(c.conf.ChannelMax, m.ChannelMax)
	frameMax := negotiateLimit(c.conf.FrameMax, m.FrameMax)
	if frameMax < codec.FrameMinSize {
		return &ProtocolError{Reason: fmt.Sprintf("frame_max %d below the protocol minimum", frameMax)}
	}
	heartbeat := negotiateHeartbeat(c.opts.Heartbeat, m.Heartbeat)

	if err := c.enqueue(0, &codec.ConnectionTuneOk{
		ChannelMax: c.channelMax,
		FrameMax:   frameMax,
		Heartbeat:  heartbeat,
	}); err != nil {
		return err
	}
	c.frameMax = frameMax
	c.heartbeat = time.Duration(heartbeat) * time.Second
	log.Infof("tuned: channel_max=%d frame_max=%d heartbeat=%s", c.channelMax, c.frameMax, c.heartbeat)

	return c.enqueue(0, &codec.ConnectionOpen{VirtualHost: c.opts.VirtualHost})
}

// negotiateLimit picks the smaller of two limits where 0 means unlimited
func negotiateLimit[T uint16 | uint32](client, server T) T {
	switch {
	case client == 0:
		return server
	case server == 0:
		return client
	default:
		return min(client, server)
	}
}

// negotiateHeartbeat honors a client that disabled heartbeats, otherwise it picks
// the shorter non-zero interval
func negotiateHeartbeat(client, server uint16) uint16 {
	if client == 0 {
		return 0
	}
	return negotiateLimit(client, server)
}

func containsWord(list, word string) bool {
	for _, w := range strings.Fields(list) {
		if w == word {
			return true
		}
	}
	return false
}

// --------------------------------------------------------------------------
// Broker initiated close
// --------------------------------------------------------------------------

func (c *Connection) onConnectionClose(m *codec.ConnectionClose) error {
	closeErr := &common.AMQPError{
		Code:     m.ReplyCode,
		Text:     m.ReplyText,
		ClassID:  m.ClassID,
		MethodID: m.MethodID,
	}
	log.Warningf("%v", closeErr)

	if err := c.enqueue(0, &codec.ConnectionCloseOk{}); err != nil {
		return err
	}

	// the terminal transition waits until close-ok was written, see Flushed
	terminal := Error
	if m.ReplyCode == 200 {
		terminal = Closed
	}
	c.deferred = &shutdown{state: terminal, err: closeErr}
	c.setState(Closing)
	return nil
}

func (c *Connection) onChannelClose(ch *channel, m *codec.ChannelClose) error {
	closeErr := &common.AMQPError{
		Channel:  ch.id,
		Code:     m.ReplyCode,
		Text:     m.ReplyText,
		ClassID:  m.ClassID,
		MethodID: m.MethodID,
	}
	log.Warningf("%v", closeErr)

	c.failChannel(ch, closeErr)
	c.channels.Delete(ch.id)
	return c.enqueue(ch.id, &codec.ChannelCloseOk{})
}

// --------------------------------------------------------------------------
// Heartbeats
// --------------------------------------------------------------------------

// Tick queues a heartbeat if nothing was sent for half the negotiated interval and
// fails the connection with ErrHeartbeatTimeout after two silent intervals.
// It returns the time until the next tick is due, 0 when heartbeats are off.
func (c *Connection) Tick() time.Duration {
	if c.state != Connected || c.heartbeat == 0 {
		return 0
	}

	now := c.conf.Now()
	timeout := 2 * c.heartbeat
	if now.Sub(c.lastRecv) >= timeout {
		log.Errorf("no traffic from the broker for %s", now.Sub(c.lastRecv))
		c.SetError(common.ErrHeartbeatTimeout)
		return 0
	}

	interval := c.heartbeat / 2
	if now.Sub(c.lastSend) >= interval {
		if err := c.enqueueFrame(codec.HeartbeatFrame()); err != nil {
			c.SetError(err)
			return 0
		}
		c.lastSend = now
	}

	next := min(c.lastSend.Add(interval).Sub(now), c.lastRecv.Add(timeout).Sub(now))
	return max(next, time.Millisecond)
}
