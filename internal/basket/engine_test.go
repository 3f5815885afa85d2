package basket

import (
	"testing"
	"time"

	"giftpulse/internal/model"
)

func dayPoint(giftID string, ts time.Time, close float64) model.ChartPoint {
	return model.ChartPoint{
		GiftID: giftID,
		Res:    model.ResDay,
		TS:     ts,
		Open:   close,
		High:   close,
		Low:    close,
		Close:  close,
	}
}

func TestClosedBasketWaitsForAllMembers(t *testing.T) {
	e := NewEngine([]Config{
		{ID: "blue", Name: "Blue Chips", Members: []string{"cap", "pepe"}},
	})
	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	out := e.Process(dayPoint("cap", ts, 10))
	if len(out) != 0 {
		t.Fatalf("expected no points before all members priced, got %d", len(out))
	}

	out = e.Process(dayPoint("pepe", ts, 30))
	if len(out) != 1 {
		t.Fatalf("expected 1 point once warm, got %d", len(out))
	}
	if out[0].IndexID != "blue" || out[0].Value != 40 || out[0].Members != 2 {
		t.Fatalf("unexpected point: %+v", out[0])
	}
}

func TestSupplyWeights(t *testing.T) {
	e := NewEngine([]Config{
		{
			ID:      "blue",
			Members: []string{"cap", "pepe"},
			Weights: map[string]float64{"cap": 1000, "pepe": 50},
		},
	})
	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	e.Process(dayPoint("cap", ts, 2))
	out := e.Process(dayPoint("pepe", ts, 100))
	if len(out) != 1 {
		t.Fatalf("expected 1 point, got %d", len(out))
	}
	// 2*1000 + 100*50
	if out[0].Value != 7000 {
		t.Fatalf("value = %v, want 7000", out[0].Value)
	}
}

func TestOpenBasketAcceptsAnyGift(t *testing.T) {
	e := NewEngine([]Config{{ID: "mcap", Name: "Market Cap"}})
	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	out := e.Process(dayPoint("cap", ts, 5))
	if len(out) != 1 || out[0].Value != 5 || out[0].Members != 1 {
		t.Fatalf("first point: %+v", out)
	}

	out = e.Process(dayPoint("hat", ts, 7))
	if len(out) != 1 || out[0].Value != 12 || out[0].Members != 2 {
		t.Fatalf("second point: %+v", out)
	}

	// Re-pricing an existing member replaces, never double counts.
	out = e.Process(dayPoint("cap", ts.Add(24*time.Hour), 6))
	if len(out) != 1 || out[0].Value != 13 || out[0].Members != 2 {
		t.Fatalf("reprice point: %+v", out)
	}
}

func TestMembershipRouting(t *testing.T) {
	e := NewEngine([]Config{
		{ID: "a", Members: []string{"cap"}},
		{ID: "b", Members: []string{"hat"}},
	})
	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	out := e.Process(dayPoint("cap", ts, 3))
	if len(out) != 1 || out[0].IndexID != "a" {
		t.Fatalf("expected only basket a, got %+v", out)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	configs := []Config{
		{ID: "blue", Members: []string{"cap", "pepe"}},
		{ID: "mcap"},
	}
	e := NewEngine(configs)
	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	e.Process(dayPoint("cap", ts, 10))
	e.Process(dayPoint("pepe", ts, 30))

	snap := SnapshotEngine(e, "1717200000-0")
	if snap.StreamID != "1717200000-0" || snap.Version != 1 {
		t.Fatalf("snapshot header: %+v", snap)
	}

	restored := RestoreEngine(configs, snap)
	out := restored.Process(dayPoint("cap", ts.Add(24*time.Hour), 12))
	// blue basket stays warm across restore: 12 + 30.
	found := false
	for _, ip := range out {
		if ip.IndexID == "blue" {
			found = true
			if ip.Value != 42 {
				t.Fatalf("blue value = %v, want 42", ip.Value)
			}
		}
	}
	if !found {
		t.Fatal("expected warm blue basket after restore")
	}
}

func TestRestoreDropsRemovedMembers(t *testing.T) {
	old := []Config{{ID: "blue", Members: []string{"cap", "pepe"}}}
	e := NewEngine(old)
	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	e.Process(dayPoint("cap", ts, 10))
	e.Process(dayPoint("pepe", ts, 30))
	snap := SnapshotEngine(e, "0-0")

	// pepe removed from the basket
	next := []Config{{ID: "blue", Members: []string{"cap", "hat"}}}
	restored := RestoreEngine(next, snap)

	// cap alone is not enough; hat has never been priced.
	out := restored.Process(dayPoint("cap", ts, 11))
	if len(out) != 0 {
		t.Fatalf("expected cold basket after member change, got %+v", out)
	}
	out = restored.Process(dayPoint("hat", ts, 1))
	if len(out) != 1 || out[0].Value != 12 {
		t.Fatalf("expected warm basket 11+1, got %+v", out)
	}
}
