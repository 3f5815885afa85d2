package portfolio

import (
	"testing"

	"giftpulse/internal/model"
)

func testCatalog() map[string]model.Gift {
	return CatalogMap([]model.Gift{
		{ID: "plush-pepe", Name: "Plush Pepe", PriceTon: 100, PriceUsd: 500, PriceTon24h: 80},
		{ID: "durov-cap", Name: "Durov's Cap", PriceTon: 10, PriceUsd: 50, PriceTon24h: 10},
	})
}

func TestValueSumsPositions(t *testing.T) {
	holdings := []model.Holding{
		{GiftID: "plush-pepe", Amount: 2},
		{GiftID: "durov-cap", Amount: 5},
	}

	s := Value(holdings, testCatalog())

	if len(s.Positions) != 2 {
		t.Fatalf("positions: got %d, want 2", len(s.Positions))
	}
	if got := s.TotalTon.String(); got != "250" {
		t.Errorf("TotalTon = %s, want 250", got)
	}
	if got := s.TotalUsd.String(); got != "1250" {
		t.Errorf("TotalUsd = %s, want 1250", got)
	}
}

func TestValueChangeVersus24h(t *testing.T) {
	holdings := []model.Holding{{GiftID: "plush-pepe", Amount: 1}}

	s := Value(holdings, testCatalog())

	// 80 -> 100 is +25%
	if s.Change24h < 24.99 || s.Change24h > 25.01 {
		t.Errorf("Change24h = %f, want 25", s.Change24h)
	}
	if s.Positions[0].Change24h != 25 {
		t.Errorf("position change = %f, want 25", s.Positions[0].Change24h)
	}
}

func TestValueSkipsUnknownGifts(t *testing.T) {
	holdings := []model.Holding{
		{GiftID: "plush-pepe", Amount: 1},
		{GiftID: "delisted-gift", Amount: 99},
	}

	s := Value(holdings, testCatalog())

	if len(s.Positions) != 1 {
		t.Fatalf("positions: got %d, want 1 (unknown gift must be skipped)", len(s.Positions))
	}
	if got := s.TotalTon.String(); got != "100" {
		t.Errorf("TotalTon = %s, want 100", got)
	}
}

func TestValueEmptyHoldings(t *testing.T) {
	s := Value(nil, testCatalog())
	if !s.TotalTon.IsZero() || !s.TotalUsd.IsZero() {
		t.Errorf("empty portfolio should value to zero, got %s TON / %s USD", s.TotalTon, s.TotalUsd)
	}
	if s.Change24h != 0 {
		t.Errorf("empty portfolio change = %f, want 0", s.Change24h)
	}
}

func TestFilterKnownPreservesOrder(t *testing.T) {
	got := FilterKnown([]string{"durov-cap", "ghost", "plush-pepe"}, testCatalog())
	if len(got) != 2 || got[0] != "durov-cap" || got[1] != "plush-pepe" {
		t.Errorf("FilterKnown = %v, want [durov-cap plush-pepe]", got)
	}
}

func TestValueExactDecimalSums(t *testing.T) {
	gifts := CatalogMap([]model.Gift{
		{ID: "a", PriceTon: 0.1, PriceUsd: 0.1},
		{ID: "b", PriceTon: 0.2, PriceUsd: 0.2},
	})
	holdings := []model.Holding{
		{GiftID: "a", Amount: 1},
		{GiftID: "b", Amount: 1},
	}

	s := Value(holdings, gifts)

	// 0.1 + 0.2 must be exactly 0.3, not 0.30000000000000004
	if got := s.TotalTon.String(); got != "0.3" {
		t.Errorf("TotalTon = %s, want 0.3", got)
	}
}
