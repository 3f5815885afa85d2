package gateway

import "giftpulse/internal/model"

// ChartResponse is the REST response type for /api/gifts/{id}/chart.
type ChartResponse struct {
	GiftID  string              `json:"giftId"`
	Range   string              `json:"range"`
	Field   string              `json:"field"`
	Model   string              `json:"model,omitempty"`
	Change  float64             `json:"changePct"`
	Current *float64            `json:"current,omitempty"`
	Points  []model.SeriesPoint `json:"points"`
}

// IndexChartResponse is the REST response type for /api/indexes/{id}/chart.
type IndexChartResponse struct {
	IndexID string             `json:"indexId"`
	Points  []model.IndexPoint `json:"points"`
}

// HeatmapCell is one laid-out treemap rectangle in the /api/heatmap JSON.
type HeatmapCell struct {
	GiftID string  `json:"giftId"`
	Name   string  `json:"name"`
	Change float64 `json:"changePct"`
	Label  string  `json:"label"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	W      float64 `json:"w"`
	H      float64 `json:"h"`
}

// VoteTotals is the REST response type for GET /api/vote.
type VoteTotals struct {
	GiftID string `json:"giftId"`
	Up     int    `json:"up"`
	Down   int    `json:"down"`
}
