package basket

// BasketSnapshot holds the serialized state of a single basket.
type BasketSnapshot struct {
	ID     string             `json:"id"`
	Prices map[string]float64 `json:"prices"`
}

// EngineSnapshot holds the full state of the basket engine.
type EngineSnapshot struct {
	StreamID string           `json:"stream_id"` // Redis Stream ID at checkpoint time
	Baskets  []BasketSnapshot `json:"baskets"`
	Version  int              `json:"version"` // schema version for forward compat
}

// SnapshotEngine captures the full state of an Engine.
func SnapshotEngine(e *Engine, streamID string) *EngineSnapshot {
	snap := &EngineSnapshot{
		StreamID: streamID,
		Version:  1,
	}
	for i, cfg := range e.configs {
		st := e.state[i]
		prices := make(map[string]float64, len(st.prices))
		for id, p := range st.prices {
			prices[id] = p
		}
		snap.Baskets = append(snap.Baskets, BasketSnapshot{ID: cfg.ID, Prices: prices})
	}
	return snap
}

// RestoreEngine rebuilds an Engine from a snapshot. It is tolerant of
// config changes; baskets are matched by ID; prices for members no
// longer configured are dropped, and new baskets start cold.
func RestoreEngine(configs []Config, snap *EngineSnapshot) *Engine {
	e := NewEngine(configs)
	if snap == nil {
		return e
	}

	byID := make(map[string]BasketSnapshot, len(snap.Baskets))
	for _, bs := range snap.Baskets {
		byID[bs.ID] = bs
	}

	for i, cfg := range e.configs {
		bs, ok := byID[cfg.ID]
		if !ok {
			continue // new basket; stays cold
		}
		st := e.state[i]
		if st.open {
			for id, p := range bs.Prices {
				st.prices[id] = p
			}
			continue
		}
		for _, id := range cfg.Members {
			if p, ok := bs.Prices[id]; ok {
				st.prices[id] = p
			}
		}
	}
	return e
}
