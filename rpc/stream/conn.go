package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Conn turns a net.Conn into a non-blocking Stream. Reads and writes go straight
// to the socket through its syscall.RawConn and never park the goroutine.
type Conn struct {
	nc  net.Conn
	raw syscall.RawConn
}

// NewConn wraps a connection that exposes its file descriptor (TCP and Unix sockets)
func NewConn(nc net.Conn) (*Conn, error) {
	sc, ok := nc.(syscall.Conn)
	if !ok {
		return nil, fmt.Errorf("connection of type %T has no file descriptor", nc)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("failed to access file descriptor: %w", err)
	}
	return &Conn{nc: nc, raw: raw}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see Stream and Waiter)
// --------------------------------------------------------------------------

func (c *Conn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	var n int
	var opErr error
	if err := c.raw.Read(func(fd uintptr) bool {
		n, opErr = unix.Read(int(fd), p)
		return true
	}); err != nil {
		return 0, rawErr(err)
	}

	switch {
	case isWouldBlock(opErr):
		return 0, ErrWouldBlock
	case opErr != nil:
		return 0, os.NewSyscallError("read", opErr)
	case n == 0:
		return 0, io.EOF
	}
	return n, nil
}

func (c *Conn) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	var n int
	var opErr error
	if err := c.raw.Write(func(fd uintptr) bool {
		n, opErr = unix.Write(int(fd), p)
		return true
	}); err != nil {
		return 0, rawErr(err)
	}

	switch {
	case isWouldBlock(opErr):
		return 0, ErrWouldBlock
	case opErr != nil:
		return 0, os.NewSyscallError("write", opErr)
	case n == 0:
		return 0, ErrWouldBlock
	}
	return n, nil
}

func (c *Conn) Close() error {
	return c.nc.Close()
}

// Wait parks on the runtime poller until the socket is ready. The readiness is
// checked with poll(2) inside the RawConn callback, the poller only wakes the
// callback up again.
//
// Wait must not run concurrently with Read or Write: interrupting it moves the
// socket deadlines into the past for a moment.
func (c *Conn) Wait(ctx context.Context, interrupt <-chan struct{}, write bool) error {
	results := make(chan error, 2)
	pending := 1
	go func() { results <- c.raw.Read(pollReady(unix.POLLIN)) }()
	if write {
		pending++
		go func() { results <- c.raw.Write(pollReady(unix.POLLOUT)) }()
	}

	var err error
	select {
	case err = <-results:
		pending--
	case <-interrupt:
	case <-ctx.Done():
		err = ctx.Err()
	}

	if pending > 0 {
		past := time.Unix(1, 0)
		_ = c.nc.SetReadDeadline(past)
		if write {
			_ = c.nc.SetWriteDeadline(past)
		}
		for ; pending > 0; pending-- {
			<-results
		}
		_ = c.nc.SetReadDeadline(time.Time{})
		if write {
			_ = c.nc.SetWriteDeadline(time.Time{})
		}
	}

	if errors.Is(err, os.ErrDeadlineExceeded) {
		return nil
	}
	return err
}

// LocalAddr returns the local network address
func (c *Conn) LocalAddr() net.Addr { return c.nc.LocalAddr() }

// RemoteAddr returns the broker's network address
func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// rawErr maps the deadline used to interrupt a Wait to would-block, a read or
// write that races the interruption is retried by the next run
func rawErr(err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrWouldBlock
	}
	return err
}

func isWouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR
}

// pollReady returns a RawConn callback that reports whether fd has any of the
// requested events (hang-ups and errors count as ready)
func pollReady(events int16) func(fd uintptr) bool {
	return func(fd uintptr) bool {
		fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
		n, err := unix.Poll(fds, 0)
		return err != nil || n > 0
	}
}
