package model

import (
	"encoding/json"
	"time"
)

// Gift represents a tradable digital collectible tracked by the platform.
// Prices are float64 as delivered by the upstream analytics API; monetary
// aggregation uses decimal in the portfolio package.
type Gift struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Image          string  `json:"image"`
	SupplyInitial  int64   `json:"supplyInitial"`
	SupplyCurrent  int64   `json:"supplyCurrent"`
	SupplyUpgraded int64   `json:"supplyUpgraded"`
	StarPrice      int64   `json:"starPrice"`
	PriceTon       float64 `json:"priceTon"`
	PriceUsd       float64 `json:"priceUsd"`
	PriceTon24h    float64 `json:"priceTon24hAgo"`
	PriceTonWeek   float64 `json:"priceTonWeekAgo"`
	PriceTonMonth  float64 `json:"priceTonMonthAgo"`
	ReleaseDate    string  `json:"releaseDate"`
	PreSale        bool    `json:"preSale,omitempty"`
}

// MarketCap returns the TON market cap: upgraded supply times current price.
func (g *Gift) MarketCap() float64 {
	return float64(g.SupplyUpgraded) * g.PriceTon
}

// Change24h returns the percent change of the TON price versus 24h ago.
// Returns 0 when no 24h reference price exists.
func (g *Gift) Change24h() float64 {
	if g.PriceTon24h == 0 {
		return 0
	}
	return (g.PriceTon - g.PriceTon24h) / g.PriceTon24h * 100
}

// Snapshot represents one collector observation of a gift's market state.
// This is the unit that flows through the collector pipeline and into
// Redis/SQLite, analogous to a market-data tick.
type Snapshot struct {
	GiftID     string    `json:"giftId"`
	TS         time.Time `json:"ts"` // observation time (UTC)
	PriceTon   float64   `json:"priceTon"`
	PriceUsd   float64   `json:"priceUsd"`
	OnSale     int64     `json:"onSale"`
	Volume     float64   `json:"volume"`
	SalesCount int64     `json:"salesCount"`
	MarketCap  float64   `json:"marketCap"`
}

// Key returns the pipeline key for this snapshot's gift.
func (s *Snapshot) Key() string {
	return s.GiftID
}

// JSON returns the JSON-encoded snapshot (ignoring errors for hot-path usage).
func (s *Snapshot) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}
