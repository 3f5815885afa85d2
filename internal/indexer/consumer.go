package indexer

import (
	"context"
	"log"
	"time"
)

// startConsumer starts the Redis stream XREADGROUP consumer in a goroutine.
func (svc *Service) startConsumer(ctx context.Context) {
	if len(svc.streams) == 0 {
		log.Println("[indexer] no point streams discovered yet; consumer idle")
		return
	}
	go func() {
		if err := svc.redisReader.ConsumePoints(ctx, svc.streams, svc.pointCh); err != nil {
			log.Printf("[indexer] consumer error: %v", err)
		}
	}()
}

// processLoop consumes chart points from the channel and computes index
// values. Forming points never reach the streams, but guard anyway.
func (svc *Service) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case pt, ok := <-svc.pointCh:
			if !ok {
				return
			}
			if pt.Forming {
				continue
			}

			start := time.Now()
			points := svc.engine.Process(pt)
			svc.prom.IndexComputeDur.Observe(time.Since(start).Seconds())

			if len(points) == 0 {
				continue
			}
			svc.prom.IndexPointsTotal.Add(float64(len(points)))

			// Batch all results into a single Redis pipeline
			svc.redisWriter.WriteIndexBatch(ctx, points)

			// Durable copy via the batched SQLite writer
			for _, ip := range points {
				select {
				case svc.indexCh <- ip:
				default:
					// drop if channel full; Redis stream remains authoritative
				}
			}
		}
	}
}
