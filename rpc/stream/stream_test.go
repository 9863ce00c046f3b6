package stream

import (
	"context"
	"errors"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/amqpio/rpc/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// tcpPair dials a loopback listener and returns the client stream and the accepted peer
func tcpPair(t *testing.T) (*Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	config := common.DefaultClientConfig()
	config.Endpoint = ln.Addr().String()
	config.TCPConf.TCPKeepAliveSec = 30
	config.SocketConf.ReadBufferSize = 64 * 1024

	c, err := Dial(context.Background(), config)
	require.NoError(t, err)
	peer, err := ln.Accept()
	require.NoError(t, err)

	t.Cleanup(func() {
		c.Close()
		peer.Close()
	})
	return c, peer
}

// waitReadable waits up to one second for c to become readable
func waitReadable(t *testing.T, w Waiter) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Wait(ctx, nil, false))
}

// TestConnReadWouldBlock tests that an empty socket reports would-block instead of parking
func TestConnReadWouldBlock(t *testing.T) {
	c, peer := tcpPair(t)
	buf := make([]byte, 16)

	_, err := c.Read(buf)
	require.ErrorIs(t, err, ErrWouldBlock)

	_, err = peer.Write([]byte("hello"))
	require.NoError(t, err)
	waitReadable(t, c)

	n, err := c.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))
}

// TestConnEOF tests that a closed peer yields io.EOF
func TestConnEOF(t *testing.T) {
	c, peer := tcpPair(t)
	require.NoError(t, peer.Close())

	waitReadable(t, c)
	_, err := c.Read(make([]byte, 4))
	require.ErrorIs(t, err, io.EOF)
}

// TestConnWaitInterrupt tests that an interrupted wait leaves the socket usable
func TestConnWaitInterrupt(t *testing.T) {
	defer goleak.VerifyNone(t)
	c, peer := tcpPair(t)

	interrupt := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(interrupt)
	}()
	require.NoError(t, c.Wait(context.Background(), interrupt, true))
	require.NoError(t, c.Wait(context.Background(), interrupt, false))

	// the deadlines used for the interruption must be gone again
	_, err := c.Read(make([]byte, 4))
	require.ErrorIs(t, err, ErrWouldBlock)

	_, err = peer.Write([]byte("x"))
	require.NoError(t, err)
	waitReadable(t, c)
	n, err := c.Read(make([]byte, 4))
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

// TestConnWaitContext tests that a wait ends with the context
func TestConnWaitContext(t *testing.T) {
	c, _ := tcpPair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, c.Wait(ctx, nil, false), context.DeadlineExceeded)
}

// TestConnWriteBackpressure tests that a full socket reports would-block and
// becomes writable again once the peer drains it
func TestConnWriteBackpressure(t *testing.T) {
	c, peer := tcpPair(t)
	chunk := make([]byte, 64*1024)

	blocked := false
	for i := 0; i < 4096 && !blocked; i++ {
		_, err := c.Write(chunk)
		if errors.Is(err, ErrWouldBlock) {
			blocked = true
			break
		}
		require.NoError(t, err)
	}
	require.True(t, blocked, "socket never reported would-block")

	go io.Copy(io.Discard, peer)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		require.NoError(t, c.Wait(ctx, nil, true))
		_, err := c.Write(chunk[:1])
		if err == nil {
			break
		}
		require.ErrorIs(t, err, ErrWouldBlock)
	}
}

// TestDialUnix tests dialing a unix socket
func TestDialUnix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broker.sock")
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	defer ln.Close()

	config := common.DefaultClientConfig()
	config.Network = "unix"
	config.Endpoint = path

	c, err := Dial(context.Background(), config)
	require.NoError(t, err)
	defer c.Close()

	peer, err := ln.Accept()
	require.NoError(t, err)
	defer peer.Close()

	_, err = c.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(peer, buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf))
}

// TestDialErrors tests unknown networks and unreachable endpoints
func TestDialErrors(t *testing.T) {
	config := common.DefaultClientConfig()
	config.Network = "udp"
	_, err := Dial(context.Background(), config)
	require.Error(t, err)

	config.Network = "unix"
	config.Endpoint = filepath.Join(t.TempDir(), "missing.sock")
	_, err = Dial(context.Background(), config)
	require.Error(t, err)
}

// TestPipe tests the in-memory stream pair
func TestPipe(t *testing.T) {
	a, b := Pipe(4)

	n, err := a.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 4, n)
	_, err = a.Write([]byte("o"))
	require.ErrorIs(t, err, ErrWouldBlock)
	require.Equal(t, 4, b.Buffered())

	waitReadable(t, b)
	buf := make([]byte, 8)
	n, err = b.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hell", string(buf[:n]))

	_, err = b.Read(buf)
	require.ErrorIs(t, err, ErrWouldBlock)

	// the drained direction is writable again
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.Wait(ctx, nil, true))

	require.NoError(t, a.Close())
	_, err = b.Read(buf)
	require.ErrorIs(t, err, io.EOF)
	_, err = a.Write([]byte("x"))
	require.ErrorIs(t, err, io.ErrClosedPipe)
}

// TestPipeWaitInterrupt tests that a pipe wait returns on interrupt and context
func TestPipeWaitInterrupt(t *testing.T) {
	a, _ := Pipe(4)

	interrupt := make(chan struct{}, 1)
	interrupt <- struct{}{}
	require.NoError(t, a.Wait(context.Background(), interrupt, false))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, a.Wait(ctx, nil, false), context.Canceled)
}
