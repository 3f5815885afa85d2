// Package treemap computes the heatmap view of the gift market: per-gift
// cell weights, a squarified rectangle layout, and an off-screen JPEG
// rendering used for bot delivery.
package treemap

import (
	"image/color"
	"math"
)

// Mode selects which metric drives cell area.
type Mode string

const (
	ModeChange    Mode = "change"    // 24h percent-change magnitude
	ModeMarketCap Mode = "marketcap" // TON market cap
)

// ParseMode maps a query-string mode name to a Mode.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeChange, ModeMarketCap:
		return Mode(s), true
	case "":
		return ModeChange, true
	}
	return "", false
}

// ChangeWeight returns the cell weight for percent-change mode.
// The curve (|pct|+1)^1.5 * 2 is an area-emphasis shape, not a
// proportional encoding; a flat gift still gets weight 2 so every
// cell stays visible.
func ChangeWeight(pct float64) float64 {
	return math.Pow(math.Abs(pct)+1, 1.5) * 2
}

// MarketCapWeight returns the cell weight for market-cap mode.
// Floors at 1 so zero-cap gifts still occupy a sliver.
func MarketCapWeight(marketCap float64) float64 {
	w := marketCap / 1000
	if w < 1 {
		return 1
	}
	return w
}

var (
	colorUp      = color.RGBA{R: 0x16, G: 0xc7, B: 0x84, A: 0xff}
	colorDown    = color.RGBA{R: 0xea, G: 0x39, B: 0x43, A: 0xff}
	colorNeutral = color.RGBA{R: 0x6b, G: 0x72, B: 0x80, A: 0xff}
)

// CellColor returns the fill color for a cell: green for positive change,
// red for negative, neutral gray for exactly zero.
func CellColor(pct float64) color.RGBA {
	switch {
	case pct > 0:
		return colorUp
	case pct < 0:
		return colorDown
	default:
		return colorNeutral
	}
}
