package feed

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"giftpulse/internal/model"
)

func TestFanOut_BroadcastsToAll(t *testing.T) {
	fo := New(10)
	out1 := fo.Subscribe()
	out2 := fo.Subscribe()

	input := make(chan model.Snapshot, 10)
	ctx, cancel := context.WithCancel(context.Background())
	go fo.Run(ctx, input)

	snap := model.Snapshot{
		GiftID:   "plush-pepe",
		TS:       time.Unix(1735732800, 0),
		PriceTon: 1250,
		OnSale:   34,
	}

	input <- snap
	time.Sleep(50 * time.Millisecond)

	select {
	case s := <-out1:
		if s.GiftID != "plush-pepe" {
			t.Errorf("out1: expected plush-pepe, got %s", s.GiftID)
		}
	case <-time.After(time.Second):
		t.Fatal("out1: timed out waiting for snapshot")
	}

	select {
	case s := <-out2:
		if s.GiftID != "plush-pepe" {
			t.Errorf("out2: expected plush-pepe, got %s", s.GiftID)
		}
	case <-time.After(time.Second):
		t.Fatal("out2: timed out waiting for snapshot")
	}

	cancel()
}

func TestFanOut_DropsForSlowConsumer(t *testing.T) {
	fo := New(1)
	var drops int64
	fo.OnDrop = func(idx int) { atomic.AddInt64(&drops, 1) }

	slow := fo.Subscribe()
	_ = slow // never read

	input := make(chan model.Snapshot, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	for i := 0; i < 3; i++ {
		input <- model.Snapshot{GiftID: "cap", TS: time.Unix(int64(i), 0)}
	}
	time.Sleep(100 * time.Millisecond)

	// Buffer holds one, the other two drop.
	if n := atomic.LoadInt64(&drops); n != 2 {
		t.Fatalf("expected 2 drops, got %d", n)
	}
}

func TestFanOut_ClosesOutputsOnInputClose(t *testing.T) {
	fo := New(1)
	out := fo.Subscribe()

	input := make(chan model.Snapshot)
	go fo.Run(context.Background(), input)
	close(input)

	select {
	case _, ok := <-out:
		if ok {
			t.Fatal("expected closed channel, got value")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for output close")
	}
}
