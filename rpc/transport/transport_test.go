package transport

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/amqpio/rpc/codec"
	"github.com/ValentinKolb/amqpio/rpc/common"
	"github.com/ValentinKolb/amqpio/rpc/protocol"
	"github.com/ValentinKolb/amqpio/rpc/stream"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// --------------------------------------------------------------------------
// Manually driven transport over an in-memory stream
// --------------------------------------------------------------------------

// countingStream counts the I/O attempts on the wrapped stream
type countingStream struct {
	stream.Stream
	reads, writes int
}

func (s *countingStream) Read(p []byte) (int, error) {
	s.reads++
	return s.Stream.Read(p)
}

func (s *countingStream) Write(p []byte) (int, error) {
	s.writes++
	return s.Stream.Write(p)
}

// pipeBroker plays the broker side of a pipe synchronously
type pipeBroker struct {
	t    *testing.T
	end  *stream.PipeEnd
	recv []byte
}

func (b *pipeBroker) send(channel uint16, m codec.Method) {
	b.t.Helper()
	raw, err := codec.AppendFrame(nil, codec.MethodFrame(channel, m))
	require.NoError(b.t, err)
	for len(raw) > 0 {
		n, err := b.end.Write(raw)
		require.NoError(b.t, err)
		raw = raw[n:]
	}
}

// expect decodes the next frame the client sent and checks its method
func (b *pipeBroker) expect(id codec.MethodID) codec.Frame {
	b.t.Helper()
	buf := make([]byte, 4096)
	for {
		n, err := b.end.Read(buf)
		if errors.Is(err, stream.ErrWouldBlock) {
			break
		}
		require.NoError(b.t, err)
		b.recv = append(b.recv, buf[:n]...)
	}
	b.recv = bytes.TrimPrefix(b.recv, codec.ProtocolHeader)

	f, n, err := codec.Parse(b.recv, 0)
	require.NoError(b.t, err, "no complete frame from the client")
	b.recv = b.recv[n:]
	require.NotNil(b.t, f.Method)
	require.Equal(b.t, id, f.Method.ID())
	return f
}

// newPipeTransport returns a passive transport and the broker side of its stream
func newPipeTransport(t *testing.T) (*Transport, *countingStream, *pipeBroker) {
	client, brokerEnd := stream.Pipe(8192)
	s := &countingStream{Stream: client}
	config := common.DefaultClientConfig()
	config.BufferSize = 1024
	tr := New(s, config)
	return tr, s, &pipeBroker{t: t, end: brokerEnd}
}

func run(t *testing.T, tr *Transport) {
	t.Helper()
	_, err := tr.Run()
	require.NoError(t, err)
}

// handshake completes the connection setup by hand
func handshake(t *testing.T, tr *Transport, broker *pipeBroker) {
	t.Helper()
	c, err := tr.Connect(common.DefaultConnectionOptions())
	require.NoError(t, err)
	run(t, tr)

	broker.send(0, &codec.ConnectionStart{VersionMinor: 9, Mechanisms: "PLAIN", Locales: "en_US"})
	run(t, tr)
	broker.expect(codec.MethodConnectionStartOk)

	broker.send(0, &codec.ConnectionTune{ChannelMax: 16, FrameMax: 4096})
	run(t, tr)
	broker.expect(codec.MethodConnectionTuneOk)
	broker.expect(codec.MethodConnectionOpen)

	broker.send(0, &codec.ConnectionOpenOk{})
	run(t, tr)
	done, err := c.Poll()
	require.NoError(t, err)
	require.True(t, done, "handshake not finished")
	require.Equal(t, protocol.Connected, tr.State())
}

// openChannel opens a channel by hand
func openChannel(t *testing.T, tr *Transport, broker *pipeBroker) *Channel {
	t.Helper()
	ch, err := tr.CreateChannel()
	require.NoError(t, err)
	c, err := ch.Open("test")
	require.NoError(t, err)
	run(t, tr)
	broker.expect(codec.MethodChannelOpen)
	broker.send(ch.ID, &codec.ChannelOpenOk{})
	run(t, tr)
	done, err := c.Poll()
	require.NoError(t, err)
	require.True(t, done)
	return ch
}

// TestChannelOpenCorrelation tests that an open completes with its own reply only
func TestChannelOpenCorrelation(t *testing.T) {
	tr, _, broker := newPipeTransport(t)
	handshake(t, tr, broker)

	ch1, err := tr.CreateChannel()
	require.NoError(t, err)
	ch2, err := tr.CreateChannel()
	require.NoError(t, err)
	require.NotEqual(t, ch1.ID, ch2.ID)

	c1, err := ch1.Open("first")
	require.NoError(t, err)
	c2, err := ch2.Open("second")
	require.NoError(t, err)

	done, err := c1.Poll()
	require.NoError(t, err)
	require.False(t, done, "finished before the request was even sent")

	run(t, tr)
	broker.expect(codec.MethodChannelOpen)
	broker.expect(codec.MethodChannelOpen)

	// a reply on the other channel must not complete c1
	broker.send(ch2.ID, &codec.ChannelOpenOk{})
	run(t, tr)
	done, err = c1.Poll()
	require.NoError(t, err)
	require.False(t, done)
	done, err = c2.Poll()
	require.NoError(t, err)
	require.True(t, done)

	broker.send(ch1.ID, &codec.ChannelOpenOk{})
	run(t, tr)
	done, err = c1.Poll()
	require.NoError(t, err)
	require.True(t, done)
	require.IsType(t, &codec.ChannelOpenOk{}, c1.Reply())

	// the outcome is claimed once and then served from the correlator
	done, err = c1.Poll()
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, 0, tr.conn.PendingCount())
}

// TestConcurrentCorrelators tests two correlators polled from two goroutines
func TestConcurrentCorrelators(t *testing.T) {
	defer goleak.VerifyNone(t)
	tr, _, broker := newPipeTransport(t)
	handshake(t, tr, broker)
	ch1 := openChannel(t, tr, broker)
	ch2 := openChannel(t, tr, broker)

	c1, err := ch1.DeclareQueue("q1", QueueOptions{})
	require.NoError(t, err)
	c2, err := ch2.DeclareQueue("q2", QueueOptions{Durable: true})
	require.NoError(t, err)
	require.NotEqual(t, c1.ID(), c2.ID())

	run(t, tr)
	broker.expect(codec.MethodQueueDeclare)
	broker.expect(codec.MethodQueueDeclare)

	names := make([]string, 2)
	var wg sync.WaitGroup
	for i, c := range []*Correlator{c1, c2} {
		i, c := i, c
		wg.Add(1)
		go func() {
			defer wg.Done()
			deadline := time.Now().Add(5 * time.Second)
			for time.Now().Before(deadline) {
				done, err := c.Poll()
				if !done {
					time.Sleep(100 * time.Microsecond)
					continue
				}
				if err != nil {
					t.Errorf("correlator %d failed: %v", i, err)
					return
				}
				names[i] = c.Reply().(*codec.QueueDeclareOk).Queue
				return
			}
			t.Errorf("correlator %d never finished", i)
		}()
	}

	// replies arrive in the opposite order, the driver competes with the pollers
	runUntilDone := func(r IRunner) {
		for {
			_, err := r.Run()
			if !errors.Is(err, ErrBusy) {
				require.NoError(t, err)
				return
			}
		}
	}
	broker.send(ch2.ID, &codec.QueueDeclareOk{Queue: "q2"})
	runUntilDone(tr)
	broker.send(ch1.ID, &codec.QueueDeclareOk{Queue: "q1"})
	runUntilDone(tr)

	wg.Wait()
	require.Equal(t, []string{"q1", "q2"}, names)
}

// TestPollLockUnavailable tests that Poll and Run never wait for the lock
func TestPollLockUnavailable(t *testing.T) {
	tr, _, broker := newPipeTransport(t)
	handshake(t, tr, broker)
	ch := openChannel(t, tr, broker)

	c, err := ch.DeleteQueue("q", false, false)
	require.NoError(t, err)
	run(t, tr)
	broker.expect(codec.MethodQueueDelete)
	broker.send(ch.ID, &codec.QueueDeleteOk{MessageCount: 7})

	tr.mu.Lock()
	done, err := c.Poll()
	require.NoError(t, err)
	require.False(t, done)
	_, err = tr.Run()
	require.ErrorIs(t, err, ErrBusy)
	tr.mu.Unlock()

	run(t, tr)
	done, err = c.Poll()
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, uint32(7), c.Reply().(*codec.QueueDeleteOk).MessageCount)
	require.Positive(t, tr.Stats().LockMisses)
}

// TestErrorShortCircuit tests that an errored transport fails without I/O
func TestErrorShortCircuit(t *testing.T) {
	tr, s, broker := newPipeTransport(t)
	handshake(t, tr, broker)
	ch := openChannel(t, tr, broker)

	c, err := ch.DeclareQueue("q", QueueOptions{})
	require.NoError(t, err)

	boom := errors.New("boom")
	tr.mu.Lock()
	tr.conn.SetError(boom)
	tr.mu.Unlock()
	reads, writes := s.reads, s.writes

	state, err := tr.Run()
	require.Equal(t, protocol.Error, state)
	require.ErrorIs(t, err, common.ErrConnectionAborted)

	done, err := c.Poll()
	require.True(t, done)
	require.ErrorIs(t, err, common.ErrConnectionAborted)
	require.ErrorIs(t, err, boom)

	_, err = ch.DeclareQueue("other", QueueOptions{})
	require.ErrorIs(t, err, common.ErrConnectionAborted)
	_, err = tr.CreateChannel()
	require.ErrorIs(t, err, common.ErrConnectionAborted)

	require.Equal(t, reads, s.reads)
	require.Equal(t, writes, s.writes)
	require.ErrorIs(t, tr.Err(), boom)
}

// TestAbandonedCorrelator tests that a dropped correlator leaves other requests alone
func TestAbandonedCorrelator(t *testing.T) {
	tr, _, broker := newPipeTransport(t)
	handshake(t, tr, broker)
	ch := openChannel(t, tr, broker)

	_, err := ch.DeclareQueue("abandoned", QueueOptions{})
	require.NoError(t, err)
	c, err := ch.DeclareQueue("kept", QueueOptions{})
	require.NoError(t, err)

	run(t, tr)
	broker.expect(codec.MethodQueueDeclare)
	broker.expect(codec.MethodQueueDeclare)
	broker.send(ch.ID, &codec.QueueDeclareOk{Queue: "abandoned"})
	broker.send(ch.ID, &codec.QueueDeclareOk{Queue: "kept", MessageCount: 2})
	run(t, tr)

	done, err := c.Poll()
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, "kept", c.Reply().(*codec.QueueDeclareOk).Queue)

	// the unclaimed result waits for pruning
	require.Equal(t, 1, tr.conn.PendingCount())
}

// TestBrokerChannelClose tests that a broker side channel close fails the channel's requests
func TestBrokerChannelClose(t *testing.T) {
	tr, _, broker := newPipeTransport(t)
	handshake(t, tr, broker)
	ch := openChannel(t, tr, broker)
	other := openChannel(t, tr, broker)

	c, err := ch.DeclareQueue("forbidden", QueueOptions{})
	require.NoError(t, err)
	run(t, tr)
	broker.expect(codec.MethodQueueDeclare)

	broker.send(ch.ID, &codec.ChannelClose{ReplyCode: 403, ReplyText: "ACCESS_REFUSED", ClassID: 50, MethodID: 10})
	run(t, tr)
	broker.expect(codec.MethodChannelCloseOk)

	done, err := c.Poll()
	require.True(t, done)
	var amqpErr *common.AMQPError
	require.ErrorAs(t, err, &amqpErr)
	require.Equal(t, uint16(403), amqpErr.Code)

	_, err = ch.DeclareQueue("again", QueueOptions{})
	require.ErrorIs(t, err, common.ErrChannelClosed)

	// the connection and the other channel are unaffected
	require.Equal(t, protocol.Connected, tr.State())
	c, err = other.DeclareQueue("fine", QueueOptions{})
	require.NoError(t, err)
	run(t, tr)
	broker.expect(codec.MethodQueueDeclare)
	broker.send(other.ID, &codec.QueueDeclareOk{Queue: "fine"})
	run(t, tr)
	done, err = c.Poll()
	require.NoError(t, err)
	require.True(t, done)
}

// TestClientChannelClose tests closing a channel from the client side
func TestClientChannelClose(t *testing.T) {
	tr, _, broker := newPipeTransport(t)
	handshake(t, tr, broker)
	ch := openChannel(t, tr, broker)

	c, err := ch.Close()
	require.NoError(t, err)
	run(t, tr)
	broker.expect(codec.MethodChannelClose)

	_, err = ch.DeclareQueue("q", QueueOptions{})
	require.ErrorIs(t, err, common.ErrChannelClosed)

	broker.send(ch.ID, &codec.ChannelCloseOk{})
	run(t, tr)
	done, err := c.Poll()
	require.NoError(t, err)
	require.True(t, done)
}

// TestRunWithReactor tests that Run refuses to compete with a started reactor
func TestRunWithReactor(t *testing.T) {
	defer goleak.VerifyNone(t)
	tr, _, _ := newPipeTransport(t)
	tr.Start()

	_, err := tr.Run()
	require.ErrorIs(t, err, common.ErrSequencing)

	require.NoError(t, tr.Close(context.Background()))
	<-tr.Done()
}
