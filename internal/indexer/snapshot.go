package indexer

import (
	"context"
	"log"
	"strconv"
	"time"

	"giftpulse/internal/basket"
)

// snapshotLoop periodically saves engine state to Redis and SQLite.
func (svc *Service) snapshotLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(svc.cfg.SnapshotIntervalS) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := basket.SnapshotEngine(svc.engine, svc.checkpointStreamID())

			// Save to Redis
			if err := svc.redisReader.WriteSnapshot(ctx, svc.cfg.SnapshotKey, snap); err != nil {
				log.Printf("[indexer] redis snapshot write error: %v", err)
			}

			// Save to SQLite
			if svc.sqlWriter != nil {
				if err := svc.sqlWriter.SaveSnapshot(snap); err != nil {
					log.Printf("[indexer] sqlite snapshot write error: %v", err)
				}
			}

			log.Printf("[indexer] checkpoint saved (%d baskets)", len(snap.Baskets))
		}
	}
}

// checkpointStreamID returns a time-based stream ID marker for snapshots.
func (svc *Service) checkpointStreamID() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10) + "-0"
}
