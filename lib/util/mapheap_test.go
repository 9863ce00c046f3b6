package util

import (
	"math/rand"
	"sort"
	"testing"
)

// TestNewExpiryHeap tests the creation of a new ExpiryHeap
func TestNewExpiryHeap(t *testing.T) {
	eh := NewExpiryHeap()

	if eh == nil {
		t.Fatal("NewExpiryHeap() returned nil")
	}

	if eh.Len() != 0 {
		t.Errorf("New heap should be empty, but has length %d", eh.Len())
	}

	if _, _, ok := eh.Next(); ok {
		t.Error("Next on empty heap should return ok=false")
	}
}

// TestSchedule tests adding keys and the ordering by deadline
func TestSchedule(t *testing.T) {
	eh := NewExpiryHeap()

	eh.Schedule(1, 100)
	eh.Schedule(2, 200)
	eh.Schedule(3, 50)

	if eh.Len() != 3 {
		t.Errorf("Heap should have 3 keys, but has %d", eh.Len())
	}

	for _, key := range []uint64{1, 2, 3} {
		if !eh.Contains(key) {
			t.Errorf("Heap should contain key %d", key)
		}
	}

	key, deadline, ok := eh.Next()
	if !ok {
		t.Fatal("Next() should return a key")
	}
	if key != 3 || deadline != 50 {
		t.Errorf("Expected earliest key to be (3,50), got (%d,%d)", key, deadline)
	}
}

// TestReschedule tests moving the deadline of an existing key
func TestReschedule(t *testing.T) {
	eh := NewExpiryHeap()

	eh.Schedule(1, 100)
	eh.Schedule(2, 200)
	eh.Schedule(1, 300)

	if d, _ := eh.Deadline(1); d != 300 {
		t.Errorf("Key 1 should have deadline 300, got %d", d)
	}

	key, _, _ := eh.Next()
	if key != 2 {
		t.Errorf("Earliest key should now be 2, got %d", key)
	}

	eh.Schedule(2, 400)
	key, deadline, _ := eh.Next()
	if key != 1 || deadline != 300 {
		t.Errorf("Earliest key should now be (1,300), got (%d,%d)", key, deadline)
	}
}

// TestCancel tests removing keys before they expire
func TestCancel(t *testing.T) {
	eh := NewExpiryHeap()

	eh.Schedule(1, 100)
	eh.Schedule(2, 200)
	eh.Schedule(3, 300)

	deadline, exists := eh.Cancel(2)
	if !exists {
		t.Fatal("Cancel should return true for a scheduled key")
	}
	if deadline != 200 {
		t.Errorf("Cancel should return deadline 200, got %d", deadline)
	}
	if eh.Len() != 2 {
		t.Errorf("Heap should have 2 keys after cancel, has %d", eh.Len())
	}
	if eh.Contains(2) {
		t.Error("Heap should not contain key 2 after cancel")
	}

	if _, exists = eh.Cancel(99); exists {
		t.Error("Cancel should return false for an unknown key")
	}
}

// TestPopExpired tests that only keys at or before the deadline are returned, in order
func TestPopExpired(t *testing.T) {
	eh := NewExpiryHeap()

	eh.Schedule(5, 50)
	eh.Schedule(3, 30)
	eh.Schedule(1, 10)
	eh.Schedule(4, 40)
	eh.Schedule(2, 20)

	expired := eh.PopExpired(30)
	want := []uint64{1, 2, 3}
	if len(expired) != len(want) {
		t.Fatalf("Expected %d expired keys, got %v", len(want), expired)
	}
	for i := range want {
		if expired[i] != want[i] {
			t.Errorf("Expired[%d]: expected %d, got %d", i, want[i], expired[i])
		}
	}

	if eh.Len() != 2 {
		t.Errorf("Heap should keep 2 keys, has %d", eh.Len())
	}

	if expired := eh.PopExpired(5); len(expired) != 0 {
		t.Errorf("Expected nothing to expire, got %v", expired)
	}
}

// TestRandomOrder pops many random deadlines and verifies they come out sorted
func TestRandomOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	eh := NewExpiryHeap()

	deadlines := make([]uint64, 0, 1000)
	for i := 0; i < 1000; i++ {
		d := uint64(rng.Int63n(1 << 20))
		deadlines = append(deadlines, d)
		eh.Schedule(uint64(i), d)
	}
	sort.Slice(deadlines, func(i, j int) bool { return deadlines[i] < deadlines[j] })

	var last uint64
	for i := 0; eh.Len() > 0; i++ {
		_, d, _ := eh.Next()
		if d < last {
			t.Fatalf("Deadline %d popped after %d", d, last)
		}
		if d != deadlines[i] {
			t.Fatalf("Pop %d: expected deadline %d, got %d", i, deadlines[i], d)
		}
		last = d
		eh.PopExpired(d)
		// PopExpired may remove several keys with the same deadline
		for i+1 < len(deadlines) && deadlines[i+1] == d {
			i++
		}
	}
}
