package series

import (
	"context"
	"log"
	"time"

	"giftpulse/internal/model"
)

// resState holds the forming chart point for one (gift, resolution) pair.
type resState struct {
	bucket  int64 // bucket start (Unix seconds)
	point   model.ChartPoint
	started bool
}

// Resampler buckets collector snapshots into hour- and day-resolution chart
// points. Forming points are updated in O(1) per snapshot per resolution;
// when a snapshot arrives in a new bucket, the previous point is finalized
// and emitted. Designed to run in a single goroutine (single consumer).
type Resampler struct {
	resolutions []model.Resolution

	// Per-resolution per-gift state.
	states []map[string]*resState

	// Staleness validation: reject snapshots whose bucket is behind the
	// current forming bucket by more than StaleTolerance. 0 disables.
	StaleTolerance time.Duration

	// Metrics hooks
	OnPoint         func(p model.ChartPoint) // called on finalized point (optional)
	OnStaleSnapshot func()                   // called when a stale snapshot is rejected (optional)
}

// NewResampler creates a resampler for the given resolutions.
func NewResampler(resolutions []model.Resolution) *Resampler {
	states := make([]map[string]*resState, len(resolutions))
	for i := range states {
		states[i] = make(map[string]*resState, 256) // preallocate for the gift universe
	}
	return &Resampler{
		resolutions:    resolutions,
		states:         states,
		StaleTolerance: 2 * time.Minute,
	}
}

// Run consumes snapshots from snapCh and sends chart points to outCh.
// Blocks until ctx is cancelled or snapCh is closed.
func (rs *Resampler) Run(ctx context.Context, snapCh <-chan model.Snapshot, outCh chan<- model.ChartPoint) {
	for {
		select {
		case <-ctx.Done():
			rs.FlushAll(outCh)
			return
		case s, ok := <-snapCh:
			if !ok {
				rs.FlushAll(outCh)
				return
			}
			rs.Process(s, outCh)
		}
	}
}

// Process handles a single snapshot against all resolutions (hot path).
func (rs *Resampler) Process(s model.Snapshot, outCh chan<- model.ChartPoint) {
	key := s.Key()

	for i, res := range rs.resolutions {
		bucket := res.BucketStart(s.TS)

		st, exists := rs.states[i][key]

		if rs.StaleTolerance > 0 && exists && bucket < st.bucket {
			lag := time.Duration(st.bucket-bucket) * time.Second
			if lag > rs.StaleTolerance {
				if rs.OnStaleSnapshot != nil {
					rs.OnStaleSnapshot()
				}
				continue
			}
		}

		if exists && bucket > st.bucket {
			// New bucket; finalize the forming point
			st.point.Forming = false
			emit(outCh, st.point)
			if rs.OnPoint != nil {
				rs.OnPoint(st.point)
			}
			exists = false
		}

		if !exists {
			st = &resState{
				bucket:  bucket,
				started: true,
				point: model.ChartPoint{
					GiftID:     s.GiftID,
					Res:        res,
					TS:         time.Unix(bucket, 0).UTC(),
					Open:       s.PriceTon,
					High:       s.PriceTon,
					Low:        s.PriceTon,
					Close:      s.PriceTon,
					PriceUsd:   s.PriceUsd,
					OnSale:     s.OnSale,
					Volume:     s.Volume,
					SalesCount: s.SalesCount,
					Samples:    1,
					Forming:    true,
				},
			}
			rs.states[i][key] = st
			// Emit immediately so live subscribers see the first sample.
			emit(outCh, st.point)
			continue
		}

		// Same bucket; merge
		p := &st.point
		if s.PriceTon > p.High {
			p.High = s.PriceTon
		}
		if s.PriceTon < p.Low {
			p.Low = s.PriceTon
		}
		p.Close = s.PriceTon
		p.PriceUsd = s.PriceUsd
		p.OnSale = s.OnSale
		p.Volume = s.Volume
		p.SalesCount = s.SalesCount
		p.Samples++

		// Copy before emitting so the receiver never races the next merge.
		snap := *p
		emit(outCh, snap)
	}
}

// FlushAll finalizes and emits every forming point.
func (rs *Resampler) FlushAll(outCh chan<- model.ChartPoint) {
	for i := range rs.resolutions {
		for key, st := range rs.states[i] {
			if st.started {
				st.point.Forming = false
				emit(outCh, st.point)
			}
			delete(rs.states[i], key)
		}
	}
}

// Resolutions returns the enabled resolutions.
func (rs *Resampler) Resolutions() []model.Resolution {
	return rs.resolutions
}

// emit sends a chart point to the output channel. Non-blocking to avoid
// stalling the collector pipeline.
func emit(outCh chan<- model.ChartPoint, p model.ChartPoint) {
	select {
	case outCh <- p:
	default:
		log.Printf("[resample] outCh full, dropping point %s res=%s ts=%v", p.GiftID, p.Res, p.TS)
	}
}
