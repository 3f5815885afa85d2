package treemap

import (
	"bytes"
	"math"
	"testing"
)

func TestChangeWeight(t *testing.T) {
	// Zero metric gives (0+1)^1.5 * 2 = 2, never 0.
	if w := ChangeWeight(0); w != 2 {
		t.Errorf("expected weight 2 for zero change, got %v", w)
	}
	// Sign is irrelevant; magnitude drives area.
	if ChangeWeight(-5) != ChangeWeight(5) {
		t.Error("expected symmetric weights for +/-5")
	}
	want := math.Pow(11, 1.5) * 2
	if w := ChangeWeight(10); math.Abs(w-want) > 1e-9 {
		t.Errorf("expected %v for change 10, got %v", want, w)
	}
}

func TestMarketCapWeight(t *testing.T) {
	if w := MarketCapWeight(0); w != 1 {
		t.Errorf("expected floor weight 1 for zero cap, got %v", w)
	}
	if w := MarketCapWeight(500); w != 1 {
		t.Errorf("expected floor weight 1 for cap below 1000, got %v", w)
	}
	if w := MarketCapWeight(5000); w != 5 {
		t.Errorf("expected 5 for cap 5000, got %v", w)
	}
}

func TestWeights_EqualMetricEqualWeight(t *testing.T) {
	if ChangeWeight(3.7) != ChangeWeight(3.7) {
		t.Error("equal change must give equal weight")
	}
	if MarketCapWeight(1234) != MarketCapWeight(1234) {
		t.Error("equal cap must give equal weight")
	}
}

func TestCellColor(t *testing.T) {
	if CellColor(1) != colorUp {
		t.Error("positive change should be green")
	}
	if CellColor(-1) != colorDown {
		t.Error("negative change should be red")
	}
	if CellColor(0) != colorNeutral {
		t.Error("zero change should be neutral")
	}
}

func TestLayout_AreaProportionalToWeight(t *testing.T) {
	items := []Item{
		{Name: "a", Weight: 3},
		{Name: "b", Weight: 1},
	}
	cells := Layout(items, 400, 300)
	if len(cells) != 2 {
		t.Fatalf("expected 2 cells, got %d", len(cells))
	}

	areas := map[string]float64{}
	for _, c := range cells {
		areas[c.Name] = c.W * c.H
	}
	total := areas["a"] + areas["b"]
	if math.Abs(total-400*300) > 1e-6 {
		t.Errorf("cell areas should cover the canvas, got %v", total)
	}
	if math.Abs(areas["a"]/areas["b"]-3) > 1e-6 {
		t.Errorf("expected 3:1 area ratio, got %v", areas["a"]/areas["b"])
	}
}

func TestLayout_CellsInsideCanvas(t *testing.T) {
	items := []Item{
		{Name: "a", Weight: 8}, {Name: "b", Weight: 5},
		{Name: "c", Weight: 3}, {Name: "d", Weight: 2},
		{Name: "e", Weight: 1},
	}
	cells := Layout(items, 1920, 1080)
	if len(cells) != 5 {
		t.Fatalf("expected 5 cells, got %d", len(cells))
	}
	const eps = 1e-6
	for _, c := range cells {
		if c.X < -eps || c.Y < -eps || c.X+c.W > 1920+eps || c.Y+c.H > 1080+eps {
			t.Errorf("cell %s escapes canvas: %+v", c.Name, c)
		}
		if c.W <= 0 || c.H <= 0 {
			t.Errorf("cell %s degenerate: %+v", c.Name, c)
		}
	}
}

func TestLayout_DropsNonPositiveWeights(t *testing.T) {
	items := []Item{
		{Name: "ok", Weight: 1},
		{Name: "zero", Weight: 0},
		{Name: "neg", Weight: -2},
	}
	cells := Layout(items, 100, 100)
	if len(cells) != 1 || cells[0].Name != "ok" {
		t.Errorf("expected only the positive-weight cell, got %+v", cells)
	}
}

func TestLayout_Empty(t *testing.T) {
	if cells := Layout(nil, 100, 100); cells != nil {
		t.Errorf("expected nil for empty input, got %+v", cells)
	}
	if cells := Layout([]Item{{Name: "a", Weight: 1}}, 0, 100); cells != nil {
		t.Errorf("expected nil for zero canvas, got %+v", cells)
	}
}

func TestRender_ProducesJPEG(t *testing.T) {
	items := []Item{
		{Name: "Plush Pepe", Weight: 10, Change: 4.2, Label: "+4.2%"},
		{Name: "Durov's Cap", Weight: 5, Change: -1.3, Label: "-1.3%"},
		{Name: "Flat Gift", Weight: 2, Change: 0, Label: "0.0%"},
	}
	cells := Layout(items, 320, 180)
	data, err := Render(cells, 320, 180)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	// JPEG SOI marker
	if !bytes.HasPrefix(data, []byte{0xff, 0xd8}) {
		t.Error("output is not a JPEG")
	}
}

func TestRender_InvalidCanvas(t *testing.T) {
	if _, err := Render(nil, 0, 0); err == nil {
		t.Error("expected error for zero canvas")
	}
}
