package stream

import (
	"context"
	"io"
	"sync"
)

// pipeBuffer is one direction of an in-memory pipe
type pipeBuffer struct {
	mu       sync.Mutex
	data     []byte
	capacity int
	closed   bool

	readable chan struct{} // signalled when data arrives or the writer closes
	writable chan struct{} // signalled when data is consumed
}

func newPipeBuffer(capacity int) *pipeBuffer {
	return &pipeBuffer{
		capacity: capacity,
		readable: make(chan struct{}, 1),
		writable: make(chan struct{}, 1),
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// PipeEnd is one end of an in-memory stream pair. It implements Stream and Waiter
// and is used to drive a connection without a socket.
type PipeEnd struct {
	in  *pipeBuffer
	out *pipeBuffer
}

// Pipe returns two connected ends. Each direction buffers at most capacity bytes,
// writes beyond that report ErrWouldBlock.
func Pipe(capacity int) (*PipeEnd, *PipeEnd) {
	ab := newPipeBuffer(capacity)
	ba := newPipeBuffer(capacity)
	return &PipeEnd{in: ba, out: ab}, &PipeEnd{in: ab, out: ba}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see Stream and Waiter)
// --------------------------------------------------------------------------

func (p *PipeEnd) Read(b []byte) (int, error) {
	p.in.mu.Lock()
	defer p.in.mu.Unlock()

	if len(p.in.data) == 0 {
		if p.in.closed {
			return 0, io.EOF
		}
		return 0, ErrWouldBlock
	}
	n := copy(b, p.in.data)
	p.in.data = p.in.data[n:]
	if len(p.in.data) == 0 {
		p.in.data = nil
	}
	signal(p.in.writable)
	return n, nil
}

func (p *PipeEnd) Write(b []byte) (int, error) {
	p.out.mu.Lock()
	defer p.out.mu.Unlock()

	if p.out.closed {
		return 0, io.ErrClosedPipe
	}
	space := p.out.capacity - len(p.out.data)
	if space <= 0 {
		return 0, ErrWouldBlock
	}
	n := min(space, len(b))
	p.out.data = append(p.out.data, b[:n]...)
	signal(p.out.readable)
	return n, nil
}

// Close closes the sending direction, the peer reads io.EOF once it drained the data
func (p *PipeEnd) Close() error {
	p.out.mu.Lock()
	p.out.closed = true
	p.out.mu.Unlock()
	signal(p.out.readable)
	return nil
}

func (p *PipeEnd) Wait(ctx context.Context, interrupt <-chan struct{}, write bool) error {
	if p.ready(write) {
		return nil
	}

	var writable chan struct{}
	if write {
		writable = p.out.writable
	}
	select {
	case <-p.in.readable:
	case <-writable:
	case <-interrupt:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Buffered returns the number of bytes waiting to be read from this end
func (p *PipeEnd) Buffered() int {
	p.in.mu.Lock()
	defer p.in.mu.Unlock()
	return len(p.in.data)
}

func (p *PipeEnd) ready(write bool) bool {
	p.in.mu.Lock()
	readable := len(p.in.data) > 0 || p.in.closed
	p.in.mu.Unlock()
	if readable || !write {
		return readable
	}

	p.out.mu.Lock()
	defer p.out.mu.Unlock()
	return len(p.out.data) < p.out.capacity
}
