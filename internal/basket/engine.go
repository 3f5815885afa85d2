// Package basket computes index values over named baskets of gifts. An
// index value is the supply-weighted sum of member prices, updated as
// finalized chart points arrive. Designed for single-goroutine usage;
// no locks needed.
package basket

import (
	"context"

	"giftpulse/internal/model"
)

// Config specifies one basket to track.
type Config struct {
	ID      string
	Name    string
	Members []string // gift ids; empty = every gift seen
	// Weights maps gift id to its weight (upgraded supply). Unlisted
	// members get weight 1.
	Weights map[string]float64
}

// memberState tracks the last known price per member of one basket.
type memberState struct {
	prices map[string]float64
	open   bool // true when Members is empty (basket accepts any gift)
}

// Engine computes values for multiple baskets from a single stream of
// finalized day-resolution chart points.
type Engine struct {
	configs []Config

	// state[i] corresponds to configs[i]
	state []*memberState
	// membership[giftID] → indexes into configs that include the gift
	membership map[string][]int
}

// NewEngine creates an engine for the given basket configs.
func NewEngine(configs []Config) *Engine {
	e := &Engine{
		configs:    configs,
		state:      make([]*memberState, len(configs)),
		membership: make(map[string][]int),
	}
	for i, cfg := range configs {
		e.state[i] = &memberState{
			prices: make(map[string]float64, len(cfg.Members)),
			open:   len(cfg.Members) == 0,
		}
		for _, id := range cfg.Members {
			e.membership[id] = append(e.membership[id], i)
		}
	}
	return e
}

// Process takes one finalized chart point and returns the index points
// for every basket the gift belongs to. A closed basket emits nothing
// until every member has reported at least one price.
func (e *Engine) Process(pt model.ChartPoint) []model.IndexPoint {
	var out []model.IndexPoint

	touch := func(idx int) {
		st := e.state[idx]
		st.prices[pt.GiftID] = pt.Close

		cfg := &e.configs[idx]
		if !st.open && len(st.prices) < len(cfg.Members) {
			return // basket not warm yet
		}

		value := 0.0
		for id, price := range st.prices {
			w := 1.0
			if cfg.Weights != nil {
				if sw, ok := cfg.Weights[id]; ok && sw > 0 {
					w = sw
				}
			}
			value += price * w
		}
		out = append(out, model.IndexPoint{
			IndexID: cfg.ID,
			TS:      pt.TS,
			Value:   value,
			Members: len(st.prices),
		})
	}

	for _, idx := range e.membership[pt.GiftID] {
		touch(idx)
	}
	for idx, st := range e.state {
		if st.open {
			touch(idx)
		}
	}
	return out
}

// Run consumes chart points and emits index points. Forming points are
// skipped. Blocks until ctx done or the input channel closes.
func (e *Engine) Run(ctx context.Context, pointCh <-chan model.ChartPoint, out chan<- model.IndexPoint) {
	for {
		select {
		case <-ctx.Done():
			return
		case pt, ok := <-pointCh:
			if !ok {
				return
			}
			if pt.Forming {
				continue
			}
			for _, ip := range e.Process(pt) {
				select {
				case out <- ip:
				default:
					// drop if channel full
				}
			}
		}
	}
}
