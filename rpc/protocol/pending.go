package protocol

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/amqpio/rpc/codec"
)

// request is one entry of the pending table. Entries are replaced, never
// mutated, so a loaded value stays consistent.
type request struct {
	channel  uint16
	expect   codec.MethodID
	queued   time.Time
	finished bool
	reply    codec.Method
	err      error
}

// expect allocates a request id for a reply on ch
func (c *Connection) expect(ch *channel, reply codec.MethodID) RequestID {
	id := c.nextRequest
	c.nextRequest++

	c.pending.Store(id, &request{
		channel: ch.id,
		expect:  reply,
		queued:  c.conf.Now(),
	})
	ch.waiting = append(ch.waiting, id)
	return id
}

// complete matches a reply against the oldest request waiting on ch
func (c *Connection) complete(ch *channel, m codec.Method) error {
	if len(ch.waiting) == 0 {
		return &ProtocolError{Channel: ch.id, Reason: fmt.Sprintf("unexpected %s", m.ID())}
	}

	id := ch.waiting[0]
	req, ok := c.pending.Load(id)
	if !ok {
		return &ProtocolError{Channel: ch.id, Reason: fmt.Sprintf("request %d missing from the pending table", id)}
	}
	if req.expect != m.ID() {
		return &ProtocolError{Channel: ch.id, Reason: fmt.Sprintf("expected %s, got %s", req.expect, m.ID())}
	}

	ch.waiting = ch.waiting[1:]
	c.finish(id, req, m, nil)
	return nil
}

// finish records the outcome of a request and schedules it for pruning
func (c *Connection) finish(id RequestID, req *request, reply codec.Method, err error) {
	done := *req
	done.finished = true
	done.reply = reply
	done.err = err
	c.pending.Store(id, &done)

	deadline := c.conf.Now().Add(c.conf.ResultTTL)
	c.expiry.Schedule(uint64(id), uint64(deadline.UnixNano()))
	log.Debugf("request %d finished (channel %d, err=%v) after %s", id, req.channel, err, c.conf.Now().Sub(req.queued))
}

// failChannel finishes every request waiting on ch with err
func (c *Connection) failChannel(ch *channel, err error) {
	for _, id := range ch.waiting {
		if req, ok := c.pending.Load(id); ok && !req.finished {
			c.finish(id, req, nil, err)
		}
	}
	ch.waiting = nil
}

// prune drops finished results that were not claimed within the result TTL.
// A correlator that was abandoned leaves its entry behind until then.
func (c *Connection) prune() {
	now := uint64(c.conf.Now().UnixNano())
	for _, key := range c.expiry.PopExpired(now) {
		c.pending.Delete(RequestID(key))
		log.Debugf("request %d expired unclaimed", key)
	}
}
