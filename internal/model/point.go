package model

import (
	"encoding/json"
	"time"
)

// Resolution identifies a chart series granularity.
// Hour-resolution points back the short-horizon "week" chart,
// day-resolution points back the long-horizon "life" chart.
type Resolution string

const (
	ResHour Resolution = "hour"
	ResDay  Resolution = "day"
)

// Seconds returns the bucket width of the resolution in seconds.
func (r Resolution) Seconds() int64 {
	if r == ResDay {
		return 86400
	}
	return 3600
}

// Valid reports whether r is a known resolution.
func (r Resolution) Valid() bool {
	return r == ResHour || r == ResDay
}

// RawPoint is a time-keyed record as delivered by the upstream API:
// a DD-MM-YYYY date, an optional HH:MM time of day, and whichever numeric
// fields the endpoint happens to include. Absent fields decode to zero.
type RawPoint struct {
	Date       string  `json:"date"`
	Time       string  `json:"time,omitempty"`
	PriceTon   float64 `json:"priceTon"`
	PriceUsd   float64 `json:"priceUsd"`
	OnSale     float64 `json:"amountOnSale"`
	Volume     float64 `json:"volume"`
	SalesCount float64 `json:"salesCount"`

	// OHLC fields, present only on the candlestick endpoint.
	Open  float64 `json:"open,omitempty"`
	High  float64 `json:"high,omitempty"`
	Low   float64 `json:"low,omitempty"`
	Close float64 `json:"close,omitempty"`
}

// SeriesPoint is one normalized (timestamp, value) pair, the unit consumed
// by chart widgets. TS is Unix seconds, UTC.
type SeriesPoint struct {
	TS    int64   `json:"ts"`
	Value float64 `json:"value"`
}

// ChartPoint is a resampled OHLC point for one gift at one resolution.
// Built by the series resampler from collector snapshots.
type ChartPoint struct {
	GiftID     string     `json:"giftId"`
	Res        Resolution `json:"res"`
	TS         time.Time  `json:"ts"` // bucket start (UTC, aligned)
	Open       float64    `json:"open"`
	High       float64    `json:"high"`
	Low        float64    `json:"low"`
	Close      float64    `json:"close"`
	PriceUsd   float64    `json:"priceUsd"`
	OnSale     int64      `json:"onSale"`
	Volume     float64    `json:"volume"`
	SalesCount int64      `json:"salesCount"`
	Samples    int        `json:"samples"`
	Forming    bool       `json:"forming"`
}

// Key returns "giftID"; the per-instrument pipeline key.
func (p *ChartPoint) Key() string {
	return p.GiftID
}

// StreamKey returns the Redis stream this point is appended to.
func (p *ChartPoint) StreamKey() string {
	return "points:" + string(p.Res) + ":" + p.GiftID
}

// PubSubChannel returns the Redis PubSub channel for live updates.
func (p *ChartPoint) PubSubChannel() string {
	return "pub:gift:" + string(p.Res) + ":" + p.GiftID
}

// JSON returns the JSON-encoded point (ignoring errors for hot-path usage).
func (p *ChartPoint) JSON() []byte {
	b, _ := json.Marshal(p)
	return b
}

// BucketStart aligns ts to the start of the bucket containing it.
func (r Resolution) BucketStart(ts time.Time) int64 {
	sec := r.Seconds()
	u := ts.Unix()
	return u - (u % sec)
}

// ParseResolution maps a chart range name to a resolution.
// "week" charts are hour-resolution, "life" charts are day-resolution.
func ParseResolution(s string) (Resolution, bool) {
	switch s {
	case "week", "hour":
		return ResHour, true
	case "life", "day":
		return ResDay, true
	}
	return "", false
}
