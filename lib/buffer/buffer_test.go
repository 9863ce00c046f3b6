package buffer

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"
)

// checkInvariant verifies the cursor invariant and the space accounting of a buffer
func checkInvariant(t *testing.T, b *Buffer) {
	t.Helper()

	if b.r < 0 || b.r > b.w || b.w > len(b.storage) {
		t.Fatalf("cursor invariant violated: r=%d w=%d cap=%d", b.r, b.w, len(b.storage))
	}
	if b.AvailableData() < 0 || b.AvailableSpace() < 0 {
		t.Fatalf("negative counts: data=%d space=%d", b.AvailableData(), b.AvailableSpace())
	}
	if got := b.AvailableData() + b.AvailableSpace() + b.r; got != b.Capacity() {
		t.Fatalf("data + space + consumed = %d, want capacity %d", got, b.Capacity())
	}
}

// TestFillConsume tests the basic producer/consumer cycle
func TestFillConsume(t *testing.T) {
	b := New(16, 16)
	checkInvariant(t, b)

	n := copy(b.Space(), "hello world")
	b.Fill(n)
	checkInvariant(t, b)

	if b.AvailableData() != 11 {
		t.Fatalf("Expected 11 bytes of data, got %d", b.AvailableData())
	}
	if b.AvailableSpace() != 5 {
		t.Fatalf("Expected 5 bytes of space, got %d", b.AvailableSpace())
	}
	if !bytes.Equal(b.Data(), []byte("hello world")) {
		t.Fatalf("Unexpected data %q", b.Data())
	}

	b.Consume(6)
	checkInvariant(t, b)
	if !bytes.Equal(b.Data(), []byte("world")) {
		t.Fatalf("Unexpected data after consume %q", b.Data())
	}

	// consuming everything resets both cursors
	b.Consume(5)
	checkInvariant(t, b)
	if b.AvailableSpace() != 16 {
		t.Fatalf("Expected a drained buffer to have full space, got %d", b.AvailableSpace())
	}
}

// TestPreconditionPanics tests that violating fill/consume preconditions panics
func TestPreconditionPanics(t *testing.T) {
	cases := map[string]func(b *Buffer){
		"fill beyond space":   func(b *Buffer) { b.Fill(b.AvailableSpace() + 1) },
		"consume beyond data": func(b *Buffer) { b.Consume(b.AvailableData() + 1) },
		"negative fill":       func(b *Buffer) { b.Fill(-1) },
		"negative consume":    func(b *Buffer) { b.Consume(-1) },
	}

	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Errorf("Expected a panic")
				}
			}()
			b := New(8, 8)
			b.Fill(4)
			fn(b)
		})
	}
}

// TestCompactOnConsume tests that partial consumption frees space once the read cursor passes half the capacity
func TestCompactOnConsume(t *testing.T) {
	b := New(10, 10)
	b.Fill(10)
	if b.AvailableSpace() != 0 {
		t.Fatalf("Expected a full buffer")
	}

	b.Consume(4)
	checkInvariant(t, b)
	if b.AvailableSpace() != 0 {
		t.Fatalf("Expected no compaction below half capacity, got %d bytes of space", b.AvailableSpace())
	}

	b.Consume(2)
	checkInvariant(t, b)
	if b.AvailableSpace() != 6 {
		t.Fatalf("Expected 6 bytes of space after compaction, got %d", b.AvailableSpace())
	}
	if b.AvailableData() != 4 {
		t.Fatalf("Expected 4 bytes of data after compaction, got %d", b.AvailableData())
	}
}

// TestCompactPreservesData tests that compaction keeps the unread bytes in order
func TestCompactPreservesData(t *testing.T) {
	b := New(8, 8)
	b.Fill(copy(b.Space(), "abcdefgh"))
	b.Consume(5)

	if !bytes.Equal(b.Data(), []byte("fgh")) {
		t.Fatalf("Unexpected data after compaction %q", b.Data())
	}

	b.Fill(copy(b.Space(), "ijklm"))
	if !bytes.Equal(b.Data(), []byte("fghijklm")) {
		t.Fatalf("Unexpected data after refill %q", b.Data())
	}
}

// TestGrow tests compaction-first growth and the capacity limit
func TestGrow(t *testing.T) {
	b := New(8, 32)
	b.Fill(copy(b.Space(), "abcdefgh"))
	b.Consume(2)

	// compaction alone frees 2 bytes
	if err := b.Grow(2); err != nil {
		t.Fatalf("Grow(2) failed: %v", err)
	}
	if b.Capacity() != 8 {
		t.Fatalf("Expected no reallocation, capacity is %d", b.Capacity())
	}

	// needs reallocation
	if err := b.Grow(10); err != nil {
		t.Fatalf("Grow(10) failed: %v", err)
	}
	if b.AvailableSpace() < 10 {
		t.Fatalf("Expected at least 10 bytes of space, got %d", b.AvailableSpace())
	}
	if !bytes.Equal(b.Data(), []byte("cdefgh")) {
		t.Fatalf("Grow lost data: %q", b.Data())
	}
	checkInvariant(t, b)

	// beyond the limit
	if err := b.Grow(64); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("Expected ErrLimitExceeded, got %v", err)
	}
	if b.Capacity() > b.MaxCapacity() || b.MaxCapacity() != 32 {
		t.Fatalf("Capacity %d exceeds the limit %d", b.Capacity(), b.MaxCapacity())
	}
}

// TestRandomFillConsume checks the invariant for random sequences of fill and consume
func TestRandomFillConsume(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	b := New(64, 64)

	for i := 0; i < 10000; i++ {
		if rng.Intn(2) == 0 {
			if space := b.AvailableSpace(); space > 0 {
				b.Fill(rng.Intn(space + 1))
			}
		} else {
			if data := b.AvailableData(); data > 0 {
				b.Consume(rng.Intn(data + 1))
			}
		}
		checkInvariant(t, b)
	}
}

// TestNoStarvation tests that a reader that always consumes everything eventually keeps the writer going
func TestNoStarvation(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	b := New(32, 32)

	for i := 0; i < 10000; i++ {
		space := b.AvailableSpace()
		if space == 0 {
			// a full buffer must be recoverable by consuming what was written
			b.Consume(b.AvailableData())
			if b.AvailableSpace() == 0 {
				t.Fatalf("Iteration %d: buffer starved after consuming all data", i)
			}
			continue
		}

		// the writer always fills strictly less than the available space
		b.Fill(rng.Intn(space))

		// the reader consumes a part, in small steps
		if data := b.AvailableData(); data > 0 {
			b.Consume(rng.Intn(data) + 1)
		}
		checkInvariant(t, b)
	}
}
