package series

import (
	"math"
	"testing"
	"time"

	"giftpulse/internal/model"
)

func TestParseStamp_DateOnly(t *testing.T) {
	ts, err := ParseStamp("01-01-2024", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	if ts != want {
		t.Errorf("expected %d, got %d", want, ts)
	}
}

func TestParseStamp_DateAndTime(t *testing.T) {
	ts, err := ParseStamp("15-06-2024", "13:45")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2024, 6, 15, 13, 45, 0, 0, time.UTC).Unix()
	if ts != want {
		t.Errorf("expected %d, got %d", want, ts)
	}
}

func TestParseStamp_Invalid(t *testing.T) {
	if _, err := ParseStamp("2024-01-01", ""); err == nil {
		t.Error("expected error for ISO-formatted date")
	}
	if _, err := ParseStamp("32-01-2024", ""); err == nil {
		t.Error("expected error for out-of-range day")
	}
}

func TestNormalize_SortedAscending(t *testing.T) {
	records := []model.RawPoint{
		{Date: "03-01-2024", PriceTon: 3},
		{Date: "01-01-2024", PriceTon: 1},
		{Date: "02-01-2024", PriceTon: 2},
	}
	points := Normalize(records, FieldTon)
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(points))
	}
	for i := 1; i < len(points); i++ {
		if points[i].TS < points[i-1].TS {
			t.Errorf("points not sorted: ts[%d]=%d < ts[%d]=%d", i, points[i].TS, i-1, points[i-1].TS)
		}
	}
	if points[0].Value != 1 || points[1].Value != 2 || points[2].Value != 3 {
		t.Errorf("unexpected values: %+v", points)
	}
}

func TestNormalize_DuplicateTimestampKeepsFirst(t *testing.T) {
	records := []model.RawPoint{
		{Date: "01-01-2024", Time: "10:00", PriceTon: 5},
		{Date: "01-01-2024", Time: "10:00", PriceTon: 9},
	}
	points := Normalize(records, FieldTon)
	if len(points) != 1 {
		t.Fatalf("expected 1 point after dedupe, got %d", len(points))
	}
	if points[0].Value != 5 {
		t.Errorf("expected first occurrence (5) to win, got %v", points[0].Value)
	}
}

func TestNormalize_MissingFieldMapsToZero(t *testing.T) {
	records := []model.RawPoint{{Date: "01-01-2024", PriceTon: 7}}
	points := Normalize(records, FieldVolume)
	if len(points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(points))
	}
	if points[0].Value != 0 {
		t.Errorf("expected 0 for absent field, got %v", points[0].Value)
	}
	if math.IsNaN(points[0].Value) {
		t.Error("value must never be NaN")
	}
}

func TestNormalize_SkipsUnparsableDates(t *testing.T) {
	records := []model.RawPoint{
		{Date: "garbage", PriceTon: 1},
		{Date: "01-01-2024", PriceTon: 2},
	}
	points := Normalize(records, FieldTon)
	if len(points) != 1 || points[0].Value != 2 {
		t.Errorf("expected only the parsable record, got %+v", points)
	}
}

func TestNormalize_FieldSelectors(t *testing.T) {
	r := model.RawPoint{
		Date: "01-01-2024", PriceTon: 1, PriceUsd: 2,
		OnSale: 3, Volume: 4, SalesCount: 5,
	}
	cases := []struct {
		field Field
		want  float64
	}{
		{FieldTon, 1},
		{FieldUsd, 2},
		{FieldOnSale, 3},
		{FieldVolume, 4},
		{FieldSalesCount, 5},
	}
	for _, c := range cases {
		points := Normalize([]model.RawPoint{r}, c.field)
		if len(points) != 1 || points[0].Value != c.want {
			t.Errorf("field %s: expected %v, got %+v", c.field, c.want, points)
		}
	}
}

func TestPercentChange_Example(t *testing.T) {
	records := []model.RawPoint{
		{Date: "01-01-2024", PriceTon: 10},
		{Date: "02-01-2024", PriceTon: 12},
	}
	points := Normalize(records, FieldTon)
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	pct := PercentChange(points)
	if math.Abs(pct-20) > 1e-9 {
		t.Errorf("expected +20%%, got %v", pct)
	}
}

func TestPercentChange_EmptyAndZeroBase(t *testing.T) {
	if pct := PercentChange(nil); pct != 0 {
		t.Errorf("empty series: expected 0, got %v", pct)
	}
	points := []model.SeriesPoint{{TS: 1, Value: 0}, {TS: 2, Value: 5}}
	if pct := PercentChange(points); pct != 0 {
		t.Errorf("zero base: expected 0, got %v", pct)
	}
	if math.IsNaN(PercentChange(points)) {
		t.Error("percent change must never be NaN")
	}
}

func TestCurrentValue(t *testing.T) {
	if v := CurrentValue(nil); v != nil {
		t.Errorf("empty series: expected nil, got %v", *v)
	}
	points := []model.SeriesPoint{{TS: 1, Value: 3}, {TS: 2, Value: 8}}
	v := CurrentValue(points)
	if v == nil || *v != 8 {
		t.Errorf("expected 8, got %v", v)
	}
}

func TestBridgeLife(t *testing.T) {
	life := []model.SeriesPoint{{TS: 100, Value: 1}}
	week := []model.SeriesPoint{{TS: 50, Value: 2}, {TS: 200, Value: 3}}

	bridged := BridgeLife(life, week)
	if len(bridged) != 2 {
		t.Fatalf("expected bridge point appended, got %d points", len(bridged))
	}
	if bridged[1].TS != 200 || bridged[1].Value != 3 {
		t.Errorf("unexpected bridge point: %+v", bridged[1])
	}

	// Week point not strictly newer; no append
	stale := []model.SeriesPoint{{TS: 100, Value: 9}}
	if got := BridgeLife(life, stale); len(got) != 1 {
		t.Errorf("expected no bridge for equal timestamp, got %d points", len(got))
	}

	// Empty week; life unchanged
	if got := BridgeLife(life, nil); len(got) != 1 {
		t.Errorf("expected life unchanged for empty week, got %d points", len(got))
	}

	// Empty life; week's newest becomes the only point
	if got := BridgeLife(nil, week); len(got) != 1 || got[0].TS != 200 {
		t.Errorf("expected single bridge point, got %+v", got)
	}
}

func TestParseField(t *testing.T) {
	if f, ok := ParseField(""); !ok || f != FieldTon {
		t.Errorf("empty field should default to ton, got %v %v", f, ok)
	}
	if _, ok := ParseField("bogus"); ok {
		t.Error("expected bogus field to be rejected")
	}
}
