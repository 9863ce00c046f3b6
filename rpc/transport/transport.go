package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/amqpio/lib/buffer"
	"github.com/ValentinKolb/amqpio/rpc/common"
	"github.com/ValentinKolb/amqpio/rpc/driver"
	"github.com/ValentinKolb/amqpio/rpc/protocol"
	"github.com/ValentinKolb/amqpio/rpc/stream"
)

var _ IRunner = (*Transport)(nil)

// Transport owns one broker connection: the stream, both buffers and the protocol
// state, all behind a single mutex. The mutex is held for one driver run or one
// state update and never while waiting.
type Transport struct {
	mu     sync.Mutex
	conn   *protocol.Connection
	stream stream.Stream
	send   *buffer.Buffer
	recv   *buffer.Buffer

	waiter   stream.Waiter // nil if the stream cannot wait for readiness
	wake     chan struct{} // frames were queued, the reactor must write
	progress *broadcast
	stats    *Stats

	started     atomic.Bool
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{} // closed when the reactor returned
	closeOnce   sync.Once
	streamClose sync.Once
}

// New creates a transport for an established stream. The transport is passive
// until Start launches its reactor, or an external scheduler calls Run.
func New(s stream.Stream, config common.ClientConfig) *Transport {
	size, maxSize := config.BufferSize, config.MaxBufferSize
	if size <= 0 {
		size = common.DefaultBufferSize
	}
	if maxSize < size {
		maxSize = max(size, common.DefaultMaxBufferSize)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		conn: protocol.NewConnection(protocol.Config{
			ResultTTL: time.Duration(config.ResultTTLSecond) * time.Second,
		}),
		stream:   s,
		send:     buffer.New(size, maxSize),
		recv:     buffer.New(size, maxSize),
		wake:     make(chan struct{}, 1),
		progress: newBroadcast(),
		stats:    newStats(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	if w, ok := s.(stream.Waiter); ok {
		t.waiter = w
	}
	return t
}

// Start launches the reactor goroutine that drives the transport until the
// connection reaches a terminal state or the transport is closed
func (t *Transport) Start() {
	if t.ctx.Err() != nil || !t.started.CompareAndSwap(false, true) {
		return
	}
	go t.reactor()
}

// Run performs one driver run under TryLock for an external scheduler. It returns
// ErrBusy if the lock is held, and fails if the reactor drives the transport.
func (t *Transport) Run() (protocol.State, error) {
	if t.started.Load() {
		return t.State(), fmt.Errorf("%w: transport is driven by its reactor", common.ErrSequencing)
	}
	state, ok, err := t.tryRun()
	if !ok {
		return state, ErrBusy
	}
	return state, err
}

// tryRun performs one driver run if the lock is free
func (t *Transport) tryRun() (protocol.State, bool, error) {
	if !t.mu.TryLock() {
		t.stats.lockMisses.Inc(1)
		return protocol.Initial, false, nil
	}
	state, err := driver.Run(t.conn, t.stream, t.send, t.recv)
	t.mu.Unlock()

	t.stats.runs.Inc(1)
	t.progress.signal()
	return state, true, err
}

// --------------------------------------------------------------------------
// Requests
// --------------------------------------------------------------------------

// call is the single path for every request: it locks, queues exactly one method
// through fn, unlocks, wakes the reactor and returns the correlator for the reply
func (t *Transport) call(fn func(conn *protocol.Connection) (protocol.RequestID, error)) (*Correlator, error) {
	t.mu.Lock()
	id, err := fn(t.conn)
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}

	t.stats.requests.Inc(1)
	t.notify()
	return newCorrelator(t, id), nil
}

// Connect starts the handshake with opts. The correlator finishes once the
// broker accepted the connection.
func (t *Transport) Connect(opts common.ConnectionOptions) (*Correlator, error) {
	return t.call(func(conn *protocol.Connection) (protocol.RequestID, error) {
		return conn.Connect(opts)
	})
}

// CreateChannel reserves the next free channel id without any I/O. The channel
// becomes usable once the correlator of its Open finished.
func (t *Transport) CreateChannel() (*Channel, error) {
	t.mu.Lock()
	id, err := t.conn.CreateChannel()
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &Channel{ID: id, t: t}, nil
}

// OpenChannel creates a channel and waits until the broker opened it
func (t *Transport) OpenChannel(ctx context.Context, name string) (*Channel, error) {
	ch, err := t.CreateChannel()
	if err != nil {
		return nil, err
	}
	c, err := ch.Open(name)
	if err != nil {
		return nil, err
	}
	if _, err := c.Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed to open channel %d: %w", ch.ID, err)
	}
	return ch, nil
}

// notify wakes the reactor without blocking
func (t *Transport) notify() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// --------------------------------------------------------------------------
// State
// --------------------------------------------------------------------------

// State returns the connection state
func (t *Transport) State() protocol.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.State()
}

// Err returns the error that moved the connection into the Error state
func (t *Transport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.Err()
}

// Heartbeat returns the negotiated heartbeat interval, 0 if disabled
func (t *Transport) Heartbeat() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.Heartbeat()
}

// Done is closed once the reactor stopped
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// --------------------------------------------------------------------------
// Shutdown
// --------------------------------------------------------------------------

// Close closes the connection gracefully: it sends connection.close and waits
// for the broker's close-ok until ctx ends. The stream is closed in any case.
func (t *Transport) Close(ctx context.Context) error {
	var closeErr error
	c, err := t.call(func(conn *protocol.Connection) (protocol.RequestID, error) {
		if conn.State() != protocol.Connected {
			return 0, errNotConnected
		}
		return conn.Close()
	})
	if err == nil {
		_, closeErr = c.Wait(ctx)
	}

	t.shutdown()
	return closeErr
}

var errNotConnected = fmt.Errorf("%w: not connected", common.ErrSequencing)

// shutdown stops the reactor and closes the stream
func (t *Transport) shutdown() {
	t.closeOnce.Do(func() {
		t.cancel()
		if t.started.Load() {
			<-t.done
		} else {
			close(t.done)
		}
		t.closeStream()
		t.progress.signal()
	})
}

func (t *Transport) closeStream() {
	t.streamClose.Do(func() {
		if err := t.stream.Close(); err != nil {
			Logger.Debugf("closing the stream: %v", err)
		}
	})
}

// --------------------------------------------------------------------------
// Progress broadcast
// --------------------------------------------------------------------------

// broadcast wakes every waiter after a driver run
type broadcast struct {
	mu sync.Mutex
	ch chan struct{}
}

func newBroadcast() *broadcast {
	return &broadcast{ch: make(chan struct{})}
}

// wait returns a channel that is closed by the next signal
func (b *broadcast) wait() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ch
}

func (b *broadcast) signal() {
	b.mu.Lock()
	close(b.ch)
	b.ch = make(chan struct{})
	b.mu.Unlock()
}
