package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/sony/gobreaker/v2"

	"giftpulse/internal/model"
)

// deadWriter returns a Writer whose client points at a port nothing
// listens on, so every pipeline Exec errors immediately.
func deadWriter() *Writer {
	return &Writer{client: goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})}
}

func TestBufferedWriter_TripsAndBuffersOnWriteFailure(t *testing.T) {
	bw := NewBufferedWriter(context.Background(), deadWriter(), 100)

	buffered := 0
	bw.OnBuffer = func() { buffered++ }

	snap := model.Snapshot{GiftID: "cap", TS: time.Unix(1700000000, 0), PriceTon: 3.5}
	for i := 0; i < 10; i++ {
		if err := bw.WriteSnapshot(snap); err != nil {
			t.Fatalf("WriteSnapshot %d: %v", i, err)
		}
	}

	// Five consecutive failures trip the breaker; every failed or
	// rejected write lands in the local buffer.
	if st := bw.cb.State(); st != gobreaker.StateOpen {
		t.Fatalf("breaker state = %v, want open", st)
	}
	if got := bw.PendingCount(); got != 10 {
		t.Fatalf("pending = %d, want 10", got)
	}
	if buffered != 10 {
		t.Fatalf("OnBuffer calls = %d, want 10", buffered)
	}
}

func TestBufferedWriter_BuffersPoints(t *testing.T) {
	bw := NewBufferedWriter(context.Background(), deadWriter(), 100)

	pt := model.ChartPoint{
		GiftID: "cap",
		Res:    model.ResHour,
		TS:     time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		Open:   10, High: 12, Low: 9, Close: 11,
		Samples: 4,
	}
	for i := 0; i < 6; i++ {
		if err := bw.WritePoint(pt); err != nil {
			t.Fatalf("WritePoint %d: %v", i, err)
		}
	}
	if got := bw.PendingCount(); got != 6 {
		t.Fatalf("pending = %d, want 6", got)
	}
}

func TestBufferedWriter_DropsOldestWhenFull(t *testing.T) {
	bw := NewBufferedWriter(context.Background(), deadWriter(), 3)

	for i := 0; i < 5; i++ {
		bw.WriteSnapshot(model.Snapshot{GiftID: "cap", TS: time.Unix(int64(i), 0)})
	}
	if got := bw.PendingCount(); got != 3 {
		t.Fatalf("pending = %d, want cap of 3", got)
	}
}
