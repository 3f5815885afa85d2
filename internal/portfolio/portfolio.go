// Package portfolio values user holdings against latest market prices.
//
// All monetary aggregation runs on decimals so that summed TON and USD
// totals are exact regardless of how many positions a user holds. Percent
// changes stay float64 since they only drive display coloring.
package portfolio

import (
	"github.com/shopspring/decimal"

	"giftpulse/internal/model"
)

// Position is one valued holding in a user's portfolio.
type Position struct {
	GiftID    string          `json:"giftId"`
	Name      string          `json:"name"`
	Amount    int64           `json:"amount"`
	AvgTon    float64         `json:"avgTon,omitempty"`
	PriceTon  float64         `json:"priceTon"`
	ValueTon  decimal.Decimal `json:"valueTon"`
	ValueUsd  decimal.Decimal `json:"valueUsd"`
	Change24h float64         `json:"change24hPct"`
}

// Summary is the valued portfolio returned to the client.
type Summary struct {
	TotalTon  decimal.Decimal `json:"totalTon"`
	TotalUsd  decimal.Decimal `json:"totalUsd"`
	Change24h float64         `json:"change24hPct"`
	Positions []Position      `json:"positions"`
}

// Value prices holdings against the gift catalog. Holdings that reference
// a gift absent from the catalog are skipped, not errored: the catalog is
// refreshed from upstream and may briefly lag a newly listed gift.
func Value(holdings []model.Holding, gifts map[string]model.Gift) Summary {
	s := Summary{
		TotalTon:  decimal.Zero,
		TotalUsd:  decimal.Zero,
		Positions: make([]Position, 0, len(holdings)),
	}

	// Total change needs yesterday's total, accumulated alongside.
	prevTotal := decimal.Zero

	for _, h := range holdings {
		g, ok := gifts[h.GiftID]
		if !ok || h.Amount <= 0 {
			continue
		}

		amount := decimal.NewFromInt(h.Amount)
		valueTon := decimal.NewFromFloat(g.PriceTon).Mul(amount)
		valueUsd := decimal.NewFromFloat(g.PriceUsd).Mul(amount)

		s.Positions = append(s.Positions, Position{
			GiftID:    h.GiftID,
			Name:      g.Name,
			Amount:    h.Amount,
			AvgTon:    h.AvgTon,
			PriceTon:  g.PriceTon,
			ValueTon:  valueTon,
			ValueUsd:  valueUsd,
			Change24h: g.Change24h(),
		})

		s.TotalTon = s.TotalTon.Add(valueTon)
		s.TotalUsd = s.TotalUsd.Add(valueUsd)
		prevTotal = prevTotal.Add(decimal.NewFromFloat(g.PriceTon24h).Mul(amount))
	}

	if prevTotal.IsPositive() {
		diff := s.TotalTon.Sub(prevTotal)
		pct, _ := diff.Div(prevTotal).Mul(decimal.NewFromInt(100)).Float64()
		s.Change24h = pct
	}

	return s
}

// FilterKnown drops ids that are not present in the gift catalog,
// preserving order. Used to sanitize watchlists before persisting.
func FilterKnown(ids []string, gifts map[string]model.Gift) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := gifts[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// CatalogMap indexes a gift slice by id for valuation lookups.
func CatalogMap(gifts []model.Gift) map[string]model.Gift {
	m := make(map[string]model.Gift, len(gifts))
	for _, g := range gifts {
		m[g.ID] = g
	}
	return m
}
