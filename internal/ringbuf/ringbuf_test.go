package ringbuf

import (
	"sync"
	"testing"
	"time"

	"giftpulse/internal/model"
)

func TestRing_BasicPushPop(t *testing.T) {
	r := New(4) // rounds to 4

	s1 := model.Snapshot{GiftID: "cap", PriceTon: 3.5}
	s2 := model.Snapshot{GiftID: "hat", PriceTon: 1.2}

	if !r.Push(s1) {
		t.Fatal("push s1 should succeed")
	}
	if !r.Push(s2) {
		t.Fatal("push s2 should succeed")
	}

	if r.Len() != 2 {
		t.Fatalf("expected len=2, got %d", r.Len())
	}

	got, ok := r.Pop()
	if !ok || got.GiftID != "cap" {
		t.Fatalf("expected cap, got %v ok=%v", got.GiftID, ok)
	}

	got, ok = r.Pop()
	if !ok || got.GiftID != "hat" {
		t.Fatalf("expected hat, got %v ok=%v", got.GiftID, ok)
	}

	_, ok = r.Pop()
	if ok {
		t.Fatal("pop from empty should return false")
	}
}

func TestRing_Overflow(t *testing.T) {
	r := New(2) // capacity = 2

	r.Push(model.Snapshot{GiftID: "a"})
	r.Push(model.Snapshot{GiftID: "b"})

	// Buffer is full
	ok := r.Push(model.Snapshot{GiftID: "c"})
	if ok {
		t.Fatal("push to full buffer should return false")
	}
	if r.Overflow() != 1 {
		t.Fatalf("expected overflow=1, got %d", r.Overflow())
	}
}

func TestRing_Wraparound(t *testing.T) {
	r := New(4)

	// Fill and drain multiple times to test wraparound
	for round := 0; round < 5; round++ {
		for i := 0; i < 4; i++ {
			if !r.Push(model.Snapshot{GiftID: "x", TS: time.Unix(int64(round*10+i), 0)}) {
				t.Fatalf("round %d push %d failed", round, i)
			}
		}
		for i := 0; i < 4; i++ {
			s, ok := r.Pop()
			if !ok {
				t.Fatalf("round %d pop %d failed", round, i)
			}
			if s.TS.Unix() != int64(round*10+i) {
				t.Fatalf("round %d pop %d: expected ts=%d, got %d", round, i, round*10+i, s.TS.Unix())
			}
		}
	}
}

func TestRing_SPSC_Concurrent(t *testing.T) {
	const count = 100_000
	r := New(1024)

	var wg sync.WaitGroup
	wg.Add(2)

	// Producer
	go func() {
		defer wg.Done()
		for i := 0; i < count; i++ {
			for !r.Push(model.Snapshot{TS: time.Unix(int64(i), 0)}) {
				// spin-wait (busy loop for test only)
			}
		}
	}()

	// Consumer
	received := make([]int64, 0, count)
	go func() {
		defer wg.Done()
		for len(received) < count {
			s, ok := r.Pop()
			if ok {
				received = append(received, s.TS.Unix())
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("SPSC test timed out")
	}

	// Verify ordering
	for i, v := range received {
		if v != int64(i) {
			t.Fatalf("at index %d: expected %d, got %d", i, i, v)
		}
	}
}

func TestRing_NextPow2(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {5, 8}, {7, 8}, {8, 8}, {9, 16}, {1023, 1024},
	}
	for _, tc := range cases {
		got := nextPow2(tc.in)
		if got != tc.want {
			t.Errorf("nextPow2(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
