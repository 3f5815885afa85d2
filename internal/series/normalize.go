// Package series turns heterogeneous time-keyed records from the upstream
// API into uniform chart series: strictly ascending, duplicate-free
// (timestamp, value) points, plus percent-change summaries and the
// week-into-life bridge used by the gift detail charts.
package series

import (
	"fmt"
	"sort"
	"time"

	"giftpulse/internal/model"
)

// Field selects which numeric column of a raw record becomes the series value.
type Field string

const (
	FieldTon        Field = "ton"
	FieldUsd        Field = "usd"
	FieldOnSale     Field = "onSale"
	FieldVolume     Field = "volume"
	FieldSalesCount Field = "salesCount"
)

// ParseField maps a query-string field name to a Field.
func ParseField(s string) (Field, bool) {
	switch Field(s) {
	case FieldTon, FieldUsd, FieldOnSale, FieldVolume, FieldSalesCount:
		return Field(s), true
	case "":
		return FieldTon, true
	}
	return "", false
}

// ParseStamp parses an upstream "DD-MM-YYYY" date plus optional "HH:MM"
// time of day into Unix seconds. Always UTC: mixing local-time and UTC
// parsing across call sites misaligns series by the host timezone offset.
func ParseStamp(date, tod string) (int64, error) {
	layout := "02-01-2006"
	value := date
	if tod != "" {
		layout = "02-01-2006 15:04"
		value = date + " " + tod
	}
	t, err := time.ParseInLocation(layout, value, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("parse stamp %q: %w", value, err)
	}
	return t.Unix(), nil
}

// value extracts the selected field from a raw record. Absent fields are
// zero by JSON decoding, so the mapped value is always a real number.
func value(r model.RawPoint, f Field) float64 {
	switch f {
	case FieldUsd:
		return r.PriceUsd
	case FieldOnSale:
		return r.OnSale
	case FieldVolume:
		return r.Volume
	case FieldSalesCount:
		return r.SalesCount
	default:
		return r.PriceTon
	}
}

// Normalize converts raw records into a sorted, duplicate-free series of
// the selected field. Records whose date fails to parse are skipped. When
// two records land on the same computed timestamp, the first occurrence
// after the sort is kept.
func Normalize(records []model.RawPoint, f Field) []model.SeriesPoint {
	points := make([]model.SeriesPoint, 0, len(records))
	for _, r := range records {
		ts, err := ParseStamp(r.Date, r.Time)
		if err != nil {
			continue
		}
		points = append(points, model.SeriesPoint{TS: ts, Value: value(r, f)})
	}

	sort.SliceStable(points, func(i, j int) bool { return points[i].TS < points[j].TS })

	out := points[:0]
	var prev int64 = -1
	for _, p := range points {
		if p.TS == prev {
			continue
		}
		out = append(out, p)
		prev = p.TS
	}
	return out
}

// PercentChange returns the percent change from the first to the last point.
// Empty series or a zero base value yield 0, never NaN or Inf.
func PercentChange(points []model.SeriesPoint) float64 {
	if len(points) < 2 {
		return 0
	}
	first := points[0].Value
	if first == 0 {
		return 0
	}
	return (points[len(points)-1].Value - first) / first * 100
}

// CurrentValue returns the newest point's value, or nil for an empty series.
func CurrentValue(points []model.SeriesPoint) *float64 {
	if len(points) == 0 {
		return nil
	}
	v := points[len(points)-1].Value
	return &v
}

// BridgeLife appends the week series' newest point to the life series when
// it is strictly newer, bridging the gap between the coarse daily source
// and the fine-grained hourly one. Inputs are assumed normalized.
func BridgeLife(life, week []model.SeriesPoint) []model.SeriesPoint {
	if len(week) == 0 {
		return life
	}
	last := week[len(week)-1]
	if len(life) > 0 && last.TS <= life[len(life)-1].TS {
		return life
	}
	return append(life, last)
}
