package buffer

import (
	"errors"
	"fmt"
)

// ErrLimitExceeded is returned by Grow if the requested space would exceed the
// maximum capacity of the buffer
var ErrLimitExceeded = errors.New("buffer: maximum capacity exceeded")

// Buffer is a growable byte container with a read and a write cursor.
// The invariant 0 <= r <= w <= len(storage) holds after every call.
type Buffer struct {
	storage     []byte
	r           int // read cursor
	w           int // write cursor
	maxCapacity int
}

// New creates a buffer with the given initial capacity that may grow up to maxCapacity.
// A maxCapacity smaller than capacity is raised to capacity.
func New(capacity, maxCapacity int) *Buffer {
	if capacity < 0 {
		panic(fmt.Sprintf("buffer: negative capacity %d", capacity))
	}
	if maxCapacity < capacity {
		maxCapacity = capacity
	}
	return &Buffer{
		storage:     make([]byte, capacity),
		maxCapacity: maxCapacity,
	}
}

// Capacity returns the current size of the storage region
func (b *Buffer) Capacity() int { return len(b.storage) }

// MaxCapacity returns the upper bound for Grow
func (b *Buffer) MaxCapacity() int { return b.maxCapacity }

// AvailableData returns the number of unread bytes
func (b *Buffer) AvailableData() int { return b.w - b.r }

// AvailableSpace returns the number of bytes that can be written before the buffer is full
func (b *Buffer) AvailableSpace() int { return len(b.storage) - b.w }

// Data returns the unread region
func (b *Buffer) Data() []byte { return b.storage[b.r:b.w] }

// Space returns the free region
func (b *Buffer) Space() []byte { return b.storage[b.w:] }

// Fill marks n bytes of the free region as written.
// Filling more than AvailableSpace is a programming error.
func (b *Buffer) Fill(n int) {
	if n < 0 || n > b.AvailableSpace() {
		panic(fmt.Sprintf("buffer: fill(%d) with %d bytes of space", n, b.AvailableSpace()))
	}
	b.w += n
}

// Consume marks n bytes of the unread region as processed.
// Consuming more than AvailableData is a programming error.
func (b *Buffer) Consume(n int) {
	if n < 0 || n > b.AvailableData() {
		panic(fmt.Sprintf("buffer: consume(%d) with %d bytes of data", n, b.AvailableData()))
	}
	b.r += n

	switch {
	case b.r == b.w:
		b.r, b.w = 0, 0
	case b.r > len(b.storage)/2:
		b.Compact()
	}
}

// Compact moves the unread region to the start of the storage
func (b *Buffer) Compact() {
	if b.r == 0 {
		return
	}
	n := copy(b.storage, b.storage[b.r:b.w])
	b.r, b.w = 0, n
}

// Grow makes sure at least n bytes of free space are available, compacting first
// and reallocating only if compaction is not enough
func (b *Buffer) Grow(n int) error {
	if b.AvailableSpace() >= n {
		return nil
	}

	b.Compact()
	if b.AvailableSpace() >= n {
		return nil
	}

	needed := b.w + n
	if needed > b.maxCapacity {
		return fmt.Errorf("%w: need %d bytes, limit is %d", ErrLimitExceeded, needed, b.maxCapacity)
	}

	// double the storage, but never beyond the limit
	newCap := len(b.storage) * 2
	if newCap < needed {
		newCap = needed
	}
	if newCap > b.maxCapacity {
		newCap = b.maxCapacity
	}

	storage := make([]byte, newCap)
	copy(storage, b.storage[:b.w])
	b.storage = storage
	return nil
}
