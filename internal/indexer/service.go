// Package indexer is the index engine service: it consumes finalized
// day-resolution chart points from Redis streams, runs them through the
// basket engine, and publishes index points back to Redis and SQLite.
// Engine state is checkpointed so a restart resumes where it left off.
package indexer

import (
	"context"
	"database/sql"
	"log"
	"os"
	"time"

	"giftpulse/internal/basket"
	"giftpulse/internal/metrics"
	"giftpulse/internal/model"
	redisstore "giftpulse/internal/store/redis"
	sqlitestore "giftpulse/internal/store/sqlite"
	"giftpulse/internal/upstream"
)

// Service is the top-level orchestrator for the index engine.
// It wires all dependencies, manages lifecycle, and coordinates goroutines.
type Service struct {
	cfg Config

	engine      *basket.Engine
	upstream    *upstream.Client
	redisReader *redisstore.Reader
	redisWriter *redisstore.Writer
	sqlReader   *sqlitestore.Reader
	sqlWriter   *sqlitestore.Writer
	prom        *metrics.Metrics
	health      *metrics.HealthStatus

	baskets []basket.Config
	giftIDs []string
	streams []string
	pointCh chan model.ChartPoint
	indexCh chan model.IndexPoint
}

// New creates a new Service from the given Config.
// It connects to Redis and SQLite; the engine is restored in Run.
func New(cfg Config) (*Service, error) {
	svc := &Service{
		cfg:     cfg,
		prom:    metrics.NewMetrics(),
		health:  metrics.NewHealthStatus(),
		pointCh: make(chan model.ChartPoint, 5000),
		indexCh: make(chan model.IndexPoint, 5000),
	}

	var err error
	svc.upstream, err = upstream.New(cfg.UpstreamBaseURL, cfg.UpstreamSecret,
		upstream.WithRateLimit(cfg.UpstreamRPS, cfg.UpstreamBurst))
	if err != nil {
		return nil, err
	}

	svc.redisReader, err = redisstore.NewReader(redisstore.ReaderConfig{
		Addr:          cfg.RedisAddr,
		Password:      cfg.RedisPassword,
		ConsumerGroup: cfg.ConsumerGroup,
		ConsumerName:  cfg.ConsumerName,
	})
	if err != nil {
		return nil, err
	}

	svc.redisWriter, err = redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		svc.redisReader.Close()
		return nil, err
	}

	svc.sqlReader, err = sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Printf("[indexer] WARNING: sqlite reader init failed: %v (continuing without SQLite restore)", err)
	}

	os.MkdirAll("data", 0o755)
	svc.sqlWriter, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Printf("[indexer] WARNING: sqlite writer init failed: %v", err)
	}

	return svc, nil
}

// Run starts all subsystems and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	cfg := svc.cfg
	log.Println("[indexer] starting index engine service...")

	// ---- Discover gifts and build basket configs ----
	if err := svc.buildBaskets(ctx); err != nil {
		return err
	}

	// ---- Restore engine from snapshot ----
	svc.restoreEngine(ctx)

	// ---- Discover streams ----
	svc.streams = svc.redisReader.DiscoverPointStreams(ctx, model.ResDay, svc.giftIDs)
	log.Printf("[indexer] consuming from %d streams", len(svc.streams))

	// ---- Replay delta from snapshot ----
	svc.replayDelta(ctx)

	// ---- Ensure consumer groups ----
	if len(svc.streams) > 0 {
		if err := svc.redisReader.EnsureConsumerGroup(ctx, svc.streams); err != nil {
			log.Printf("[indexer] WARNING: consumer group setup: %v", err)
		}
	}

	// ---- Recover pending messages ----
	if len(svc.streams) > 0 {
		if err := svc.redisReader.RecoverPending(ctx, svc.streams, svc.pointCh); err != nil {
			log.Printf("[indexer] pending recovery error: %v", err)
		}
	}

	// ---- Start subsystems ----
	go svc.processLoop(ctx)
	svc.startConsumer(ctx)
	go svc.snapshotLoop(ctx)
	if svc.sqlWriter != nil {
		go svc.sqlWriter.RunIndexPoints(ctx, svc.indexCh)
	}

	svc.health.SetUpstreamOK(true)
	svc.health.SetIndexerOK(true)
	svc.health.StartLivenessChecker(ctx, svc.redisWriter.Client(), sqlDB(svc.sqlWriter), 15*time.Second)
	metricsSrv := metrics.NewServer(cfg.HTTPAddr, svc.health)
	metricsSrv.Start()

	log.Printf("[indexer] active: %d baskets, snapshot every %ds", len(svc.baskets), cfg.SnapshotIntervalS)

	// Block until context cancelled
	<-ctx.Done()

	// ---- Graceful shutdown ----
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 3*time.Second)
	metricsSrv.Stop(shutCtx)
	shutCancel()
	svc.shutdown()
	return nil
}

// shutdown saves a final snapshot and closes connections.
func (svc *Service) shutdown() {
	log.Println("[indexer] shutdown signal received, saving final snapshot...")

	finalSnap := basket.SnapshotEngine(svc.engine, "shutdown")
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutCancel()

	if svc.redisReader != nil {
		svc.redisReader.WriteSnapshot(shutCtx, svc.cfg.SnapshotKey, finalSnap)
	}
	if svc.sqlWriter != nil {
		svc.sqlWriter.SaveSnapshot(finalSnap)
	}
	log.Println("[indexer] final snapshot saved")

	if svc.sqlReader != nil {
		svc.sqlReader.Close()
	}
	if svc.sqlWriter != nil {
		svc.sqlWriter.Close()
	}
	svc.redisWriter.Close()
	svc.redisReader.Close()

	log.Println("[indexer] shutdown complete.")
}

// buildBaskets fetches the gift catalogue and turns configured basket
// definitions into engine configs with supply weights.
func (svc *Service) buildBaskets(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	gifts, err := svc.upstream.Gifts(fetchCtx)
	if err != nil {
		// The engine can still run for closed baskets without weights;
		// supply-weighting degrades to equal weights.
		log.Printf("[indexer] WARNING: catalogue fetch failed: %v (running unweighted)", err)
	}

	weights := make(map[string]float64, len(gifts))
	for _, g := range gifts {
		svc.giftIDs = append(svc.giftIDs, g.ID)
		if g.SupplyUpgraded > 0 {
			weights[g.ID] = float64(g.SupplyUpgraded)
		}
	}

	svc.baskets = svc.baskets[:0]
	for _, b := range svc.cfg.Baskets {
		svc.baskets = append(svc.baskets, basket.Config{
			ID:      b.ID,
			Name:    b.Name,
			Members: b.Members,
			Weights: weights,
		})
	}
	return nil
}

// restoreEngine restores the basket engine from a Redis snapshot,
// falling back to SQLite.
func (svc *Service) restoreEngine(ctx context.Context) {
	snap, err := svc.redisReader.ReadSnapshot(ctx, svc.cfg.SnapshotKey)
	if err != nil {
		log.Printf("[indexer] redis snapshot read error: %v", err)
	}

	if snap == nil && svc.sqlReader != nil {
		snap, err = svc.sqlReader.ReadLatestSnapshot()
		if err != nil {
			log.Printf("[indexer] sqlite snapshot read error: %v", err)
		}
	}

	svc.engine = basket.RestoreEngine(svc.baskets, snap)
	if snap != nil {
		log.Printf("[indexer] engine restored from snapshot (stream ID %s)", snap.StreamID)
	} else {
		log.Println("[indexer] no snapshot found, engine starts cold")
	}
}

// replayDelta replays points since the snapshot to catch up on missed data.
func (svc *Service) replayDelta(ctx context.Context) {
	snap, _ := svc.redisReader.ReadSnapshot(ctx, svc.cfg.SnapshotKey)
	startID := "0"
	if snap != nil && snap.StreamID != "" && snap.StreamID != "shutdown" {
		startID = snap.StreamID
	}

	replayCh := make(chan model.ChartPoint, 5000)
	go func() {
		for _, stream := range svc.streams {
			_, err := svc.redisReader.ReplayFromID(ctx, stream, startID, replayCh)
			if err != nil {
				log.Printf("[indexer] replay error on %s: %v", stream, err)
			}
		}
		close(replayCh)
	}()

	deltaCount := 0
	for pt := range replayCh {
		if !pt.Forming {
			points := svc.engine.Process(pt)
			if len(points) > 0 {
				svc.redisWriter.WriteIndexBatch(ctx, points)
			}
			deltaCount++
		}
	}
	if deltaCount > 0 {
		log.Printf("[indexer] replayed %d points from %s", deltaCount, startID)
	}
}

func sqlDB(w *sqlitestore.Writer) *sql.DB {
	if w == nil {
		return nil
	}
	return w.DB()
}
