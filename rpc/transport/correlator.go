package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/amqpio/rpc/codec"
	"github.com/ValentinKolb/amqpio/rpc/common"
	"github.com/ValentinKolb/amqpio/rpc/protocol"
	"github.com/jpillora/backoff"
)

var _ IPoller = (*Correlator)(nil)

// Correlator waits for the reply of one request. It is polled by a scheduler
// (Poll) or awaited by a goroutine (Wait). Dropping a correlator is always safe:
// the unclaimed result is pruned by the connection later.
//
// A Correlator must not be polled from several goroutines at once.
type Correlator struct {
	t      *Transport
	id     protocol.RequestID
	issued time.Time

	done  bool
	reply codec.Method
	err   error
}

func newCorrelator(t *Transport, id protocol.RequestID) *Correlator {
	return &Correlator{t: t, id: id, issued: time.Now()}
}

// ID returns the request id the correlator waits for
func (c *Correlator) ID() protocol.RequestID { return c.id }

// Reply returns the reply after Poll reported done, nil before or on failure
func (c *Correlator) Reply() codec.Method { return c.reply }

// Poll checks for the reply without blocking. It reports false while the reply
// is missing or another participant holds the transport lock. Once done, Poll
// keeps returning the same outcome.
func (c *Correlator) Poll() (bool, error) {
	if c.done {
		return true, c.err
	}

	t := c.t
	if !t.mu.TryLock() {
		t.stats.lockMisses.Inc(1)
		return false, nil
	}
	defer t.mu.Unlock()

	conn := t.conn
	if conn.State() == protocol.Error {
		c.settle(nil, fmt.Errorf("%w: %w", common.ErrConnectionAborted, conn.Err()))
		return true, c.err
	}

	// handling one frame can unblock the next one, so frames get a second chance
	conn.HandleFrames()
	if !conn.IsFinished(c.id) {
		conn.HandleFrames()
	}

	reply, err := conn.Result(c.id)
	if errors.Is(err, protocol.ErrPending) {
		return false, nil
	}
	c.settle(reply, err)
	return true, c.err
}

// Wait polls until the reply arrived or ctx ends. Between polls it sleeps until
// the next driver run or a short backoff, whatever comes first.
func (c *Correlator) Wait(ctx context.Context) (codec.Method, error) {
	pace := &backoff.Backoff{
		Factor: 2,
		Jitter: true,
		Min:    100 * time.Microsecond,
		Max:    20 * time.Millisecond,
	}
	timer := time.NewTimer(pace.Max)
	defer timer.Stop()

	for {
		progress := c.t.progress.wait()
		if done, err := c.Poll(); done {
			return c.reply, err
		}

		timer.Reset(pace.Duration())
		select {
		case <-progress:
			pace.Reset()
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// settle records the outcome once
func (c *Correlator) settle(reply codec.Method, err error) {
	c.done = true
	c.reply = reply
	c.err = err

	elapsed := time.Since(c.issued)
	c.t.stats.latency.Update(elapsed.Microseconds())
	if err != nil {
		c.t.stats.failures.Inc(1)
		Logger.Debugf("request %d failed after %s: %v", c.id, elapsed, err)
	}
}
