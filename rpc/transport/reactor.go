package transport

import (
	"context"
	"errors"
	"time"

	"github.com/ValentinKolb/amqpio/rpc/protocol"
	"github.com/jpillora/backoff"
)

// reactor is the scheduler of a started transport. It runs the driver whenever
// the stream is ready or frames were queued, and keeps the heartbeat going.
// It returns once the connection is terminal or the transport shuts down.
func (t *Transport) reactor() {
	defer close(t.done)

	pace := &backoff.Backoff{
		Factor: 2,
		Jitter: true,
		Min:    50 * time.Microsecond,
		Max:    10 * time.Millisecond,
	}

	if !t.awaitConnect() {
		return
	}
	Logger.Debugf("reactor started")

	for {
		state, ok, err := t.tryRun()
		if !ok {
			// a correlator holds the lock for a moment
			if !t.sleep(pace.Duration()) {
				return
			}
			continue
		}
		if err != nil {
			Logger.Warningf("connection failed: %v", err)
		}
		if state.Terminal() {
			Logger.Infof("reactor stopped, connection %s", state)
			t.closeStream()
			return
		}

		timeout, write, alive := t.schedule()
		if !alive {
			Logger.Warningf("reactor stopped, heartbeat failed: %v", t.Err())
			t.closeStream()
			return
		}
		if !t.await(timeout, write, pace) {
			return
		}
	}
}

// awaitConnect blocks until the handshake was queued, reading before that is a
// sequencing fault
func (t *Transport) awaitConnect() bool {
	for t.State() == protocol.Initial {
		select {
		case <-t.wake:
		case <-t.ctx.Done():
			return false
		}
	}
	return true
}

// schedule sends a due heartbeat and returns how long the reactor may wait and
// whether it must wait for writability too. alive is false if the heartbeat
// timed out.
func (t *Transport) schedule() (timeout time.Duration, write, alive bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	timeout = t.conn.Tick()
	write = t.conn.HasOutbound() || t.send.AvailableData() > 0
	return timeout, write, !t.conn.State().Terminal()
}

// await waits for readiness, queued frames or the heartbeat timeout. It returns
// false once the transport shuts down.
func (t *Transport) await(timeout time.Duration, write bool, pace *backoff.Backoff) bool {
	ctx, cancel := t.ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(t.ctx, timeout)
	}
	defer cancel()

	if t.waiter == nil {
		// no readiness notifications, poll the stream at a backoff pace
		select {
		case <-t.wake:
			pace.Reset()
		case <-time.After(pace.Duration()):
		case <-ctx.Done():
		}
		return t.ctx.Err() == nil
	}

	err := t.waiter.Wait(ctx, t.wake, write)
	switch {
	case t.ctx.Err() != nil:
		return false
	case err == nil, errors.Is(err, context.DeadlineExceeded):
		pace.Reset()
		return true
	default:
		// the next run surfaces a broken stream, avoid spinning until then
		Logger.Debugf("wait failed: %v", err)
		return t.sleep(pace.Duration())
	}
}

// sleep pauses the reactor and returns false if the transport shuts down meanwhile
func (t *Transport) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-t.ctx.Done():
		return false
	}
}
