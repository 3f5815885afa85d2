package series

import (
	"context"
	"testing"
	"time"

	"giftpulse/internal/model"
)

// makeSnap creates a test snapshot at the given Unix second.
func makeSnap(giftID string, unixSec int64, ton float64, onSale int64) model.Snapshot {
	return model.Snapshot{
		GiftID:   giftID,
		TS:       time.Unix(unixSec, 0).UTC(),
		PriceTon: ton,
		PriceUsd: ton * 5,
		OnSale:   onSale,
	}
}

func TestResampler_HourBucket(t *testing.T) {
	rs := NewResampler([]model.Resolution{model.ResHour})
	rs.StaleTolerance = 0 // historical timestamps in tests
	outCh := make(chan model.ChartPoint, 1000)

	baseTS := int64(1700000000)
	baseTS = baseTS - (baseTS % 3600)

	// 12 samples at 5-minute spacing, all inside one hour bucket
	for i := int64(0); i < 12; i++ {
		rs.Process(makeSnap("plush-pepe", baseTS+i*300, 100+float64(i), 50), outCh)
	}

	for len(outCh) > 0 {
		p := <-outCh
		if !p.Forming {
			t.Fatalf("unexpected finalized point before bucket close: %+v", p)
		}
	}

	// Next hour triggers finalization
	rs.Process(makeSnap("plush-pepe", baseTS+3600, 200, 40), outCh)

	var finalized *model.ChartPoint
	for len(outCh) > 0 {
		p := <-outCh
		if !p.Forming {
			finalized = &p
			break
		}
	}
	if finalized == nil {
		t.Fatal("expected a finalized point after bucket close")
	}
	p := *finalized
	if p.Res != model.ResHour {
		t.Errorf("expected res=hour, got %s", p.Res)
	}
	if p.Open != 100 {
		t.Errorf("expected open=100, got %v", p.Open)
	}
	if p.Close != 111 {
		t.Errorf("expected close=111, got %v", p.Close)
	}
	if p.High != 111 || p.Low != 100 {
		t.Errorf("expected high=111 low=100, got high=%v low=%v", p.High, p.Low)
	}
	if p.Samples != 12 {
		t.Errorf("expected samples=12, got %d", p.Samples)
	}
	if p.OnSale != 50 {
		t.Errorf("expected last onSale=50, got %d", p.OnSale)
	}
	if p.TS.Unix() != baseTS {
		t.Errorf("expected bucket start %d, got %d", baseTS, p.TS.Unix())
	}
}

func TestResampler_BothResolutions(t *testing.T) {
	rs := NewResampler([]model.Resolution{model.ResHour, model.ResDay})
	rs.StaleTolerance = 0
	outCh := make(chan model.ChartPoint, 5000)

	baseTS := int64(1700006400)
	baseTS = baseTS - (baseTS % 86400)

	// 24 hours at hourly spacing
	for i := int64(0); i < 24; i++ {
		rs.Process(makeSnap("durov-cap", baseTS+i*3600, 10, 1), outCh)
	}
	// Next day triggers finalization on both resolutions
	rs.Process(makeSnap("durov-cap", baseTS+86400, 11, 1), outCh)

	var hourly, daily []model.ChartPoint
	for len(outCh) > 0 {
		p := <-outCh
		if p.Forming {
			continue
		}
		switch p.Res {
		case model.ResHour:
			hourly = append(hourly, p)
		case model.ResDay:
			daily = append(daily, p)
		}
	}
	if len(hourly) != 24 {
		t.Errorf("expected 24 finalized hour points, got %d", len(hourly))
	}
	if len(daily) != 1 {
		t.Errorf("expected 1 finalized day point, got %d", len(daily))
	}
	if len(daily) > 0 && daily[0].Samples != 24 {
		t.Errorf("day point samples: expected 24, got %d", daily[0].Samples)
	}
}

func TestResampler_MultiGift(t *testing.T) {
	rs := NewResampler([]model.Resolution{model.ResHour})
	rs.StaleTolerance = 0
	outCh := make(chan model.ChartPoint, 1000)

	baseTS := int64(1700000000)
	baseTS = baseTS - (baseTS % 3600)

	rs.Process(makeSnap("a", baseTS, 1, 1), outCh)
	rs.Process(makeSnap("b", baseTS, 2, 2), outCh)
	rs.Process(makeSnap("a", baseTS+3600, 1, 1), outCh)
	rs.Process(makeSnap("b", baseTS+3600, 2, 2), outCh)

	gifts := map[string]bool{}
	for len(outCh) > 0 {
		p := <-outCh
		if !p.Forming {
			gifts[p.GiftID] = true
		}
	}
	if !gifts["a"] || !gifts["b"] {
		t.Errorf("expected finalized points for both gifts, got %v", gifts)
	}
}

func TestResampler_StaleRejected(t *testing.T) {
	rs := NewResampler([]model.Resolution{model.ResHour})
	rs.StaleTolerance = time.Minute
	outCh := make(chan model.ChartPoint, 1000)

	stale := 0
	rs.OnStaleSnapshot = func() { stale++ }

	baseTS := int64(1700000000)
	baseTS = baseTS - (baseTS % 3600)

	rs.Process(makeSnap("x", baseTS+7200, 5, 1), outCh)
	rs.Process(makeSnap("x", baseTS, 4, 1), outCh) // two buckets behind

	if stale != 1 {
		t.Errorf("expected 1 stale rejection, got %d", stale)
	}
}

func TestResampler_RunFlushesOnCancel(t *testing.T) {
	rs := NewResampler([]model.Resolution{model.ResHour})
	rs.StaleTolerance = 0
	snapCh := make(chan model.Snapshot, 10)
	outCh := make(chan model.ChartPoint, 1000)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rs.Run(ctx, snapCh, outCh)
		close(done)
	}()

	snapCh <- makeSnap("y", 1700000000, 3, 1)
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	finalized := 0
	for len(outCh) > 0 {
		if p := <-outCh; !p.Forming {
			finalized++
		}
	}
	if finalized != 1 {
		t.Errorf("expected forming point flushed as finalized on cancel, got %d", finalized)
	}
}
