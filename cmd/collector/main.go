package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"giftpulse/config"
	"giftpulse/internal/feed"
	"giftpulse/internal/metrics"
	"giftpulse/internal/model"
	"giftpulse/internal/ringbuf"
	"giftpulse/internal/series"
	redisstore "giftpulse/internal/store/redis"
	sqlitestore "giftpulse/internal/store/sqlite"
	"giftpulse/internal/upstream"
)

var resolutions = []model.Resolution{model.ResHour, model.ResDay}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[collector] starting...")

	cfg := config.Load()

	// ---- Setup pipeline channels ----
	snapCh := make(chan model.Snapshot, 10000)
	pointCh := make(chan model.ChartPoint, 5000)

	// Channels for async store writes (separate from compute path)
	redisPointCh := make(chan model.ChartPoint, 5000)
	sqlitePointCh := make(chan model.ChartPoint, 5000)

	// ---- Setup metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	resNames := make([]string, len(resolutions))
	for i, r := range resolutions {
		resNames[i] = string(r)
	}
	health.SetResolutions(resNames)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Setup context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Start SQLite writer (off hot path) ----
	os.MkdirAll("data", 0o755)
	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[collector] sqlite init failed: %v", err)
	}
	defer sqlWriter.Close()
	health.SetSQLiteOK(true)
	log.Println("[collector] sqlite writer ready")

	// ---- Start Redis writer ----
	redisWriter, err := redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Printf("[collector] WARNING: redis init failed: %v (continuing without redis)", err)
		health.SetRedisConnected(false)
		redisWriter = nil
	} else {
		health.SetRedisConnected(true)
		log.Println("[collector] redis writer ready")
	}

	// ---- Periodic liveness checks ----
	if redisWriter != nil {
		health.StartLivenessChecker(ctx, redisWriter.Client(), sqlWriter.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, sqlWriter.DB(), 10*time.Second)
	}

	// ---- Upstream client ----
	client, err := upstream.New(cfg.UpstreamBaseURL, cfg.UpstreamSecret,
		upstream.WithRateLimit(cfg.UpstreamRPS, cfg.UpstreamBurst))
	if err != nil {
		log.Fatalf("[collector] upstream client init failed: %v", err)
	}

	// ---- Fan-out snapshots (Redis live store + resampler) ----
	fanout := feed.New(5000)
	fanout.OnDrop = func(subscriberIdx int) {
		prom.FanoutDropsTotal.WithLabelValues(strconv.Itoa(subscriberIdx)).Inc()
	}

	resamplerIn := fanout.Subscribe()
	var redisSnapCh <-chan model.Snapshot
	if redisWriter != nil {
		redisSnapCh = fanout.Subscribe()
	}

	go fanout.Run(ctx, snapCh)

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := fanout.ChannelStats()
				for i, s := range stats {
					if s.Cap > 0 {
						pct := float64(s.Len) / float64(s.Cap) * 100
						prom.ChannelSaturationPct.WithLabelValues("fanout_" + strconv.Itoa(i)).Set(pct)
					}
				}
			}
		}
	}()

	// ---- Buffered Redis snapshot writer (survives short Redis outages) ----
	if redisWriter != nil && redisSnapCh != nil {
		bw := redisstore.NewBufferedWriter(ctx, redisWriter, 10000)
		bw.OnBuffer = func() { prom.RedisBufferedWrites.Inc() }
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case snap, ok := <-redisSnapCh:
					if !ok {
						return
					}
					bw.WriteSnapshot(snap)
				}
			}
		}()
	}

	// ---- Resampler (HOT PATH) ----
	sampler := series.NewResampler(resolutions)
	sampler.OnPoint = func(p model.ChartPoint) {
		prom.PointsTotal.WithLabelValues(string(p.Res)).Inc()
	}
	sampler.OnStaleSnapshot = func() {
		prom.StaleSnapshotsRejected.Inc()
	}
	health.SetResamplerOK(true)
	log.Printf("[collector] resampler started with resolutions=%v (stale tolerance=%v)",
		resNames, sampler.StaleTolerance)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case s, ok := <-resamplerIn:
				if !ok {
					return
				}
				start := time.Now()
				sampler.Process(s, pointCh)
				prom.ResampleDur.Observe(time.Since(start).Seconds())
			}
		}
	}()

	// ---- Fan out chart points to Redis + SQLite (OFF hot path) ----
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case pt, ok := <-pointCh:
				if !ok {
					return
				}
				select {
				case redisPointCh <- pt:
				default:
				}
				if pt.Forming {
					continue // SQLite keeps finalized points only
				}
				select {
				case sqlitePointCh <- pt:
				default:
				}
			}
		}
	}()

	if redisWriter != nil {
		go redisWriter.RunPoints(ctx, redisPointCh)
	}
	go sqlWriter.Run(ctx, sqlitePointCh)

	// ---- Ring buffer between poller and pipeline ----
	ring := ringbuf.New(8192)
	go func() {
		var lastOverflow uint64
		for {
			if ctx.Err() != nil {
				return
			}
			snap, ok := ring.Pop()
			if !ok {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			if ov := ring.Overflow(); ov > lastOverflow {
				prom.RingBufOverflow.Add(float64(ov - lastOverflow))
				lastOverflow = ov
			}
			select {
			case snapCh <- snap:
			case <-ctx.Done():
				return
			}
		}
	}()

	// ---- Poll loop ----
	go func() {
		ticker := time.NewTicker(cfg.PollInterval)
		defer ticker.Stop()

		backfilled := false
		for {
			start := time.Now()
			gifts, err := client.Gifts(ctx)
			prom.UpstreamFetchDur.Observe(time.Since(start).Seconds())
			prom.PollsTotal.Inc()

			if err != nil {
				prom.FetchErrors.Inc()
				health.SetUpstreamOK(false)
				log.Printf("[collector] catalog fetch failed: %v", err)
			} else {
				health.SetUpstreamOK(true)
				health.SetLastPollTime(time.Now())

				now := time.Now().UTC()
				for i := range gifts {
					g := &gifts[i]
					ring.Push(model.Snapshot{
						GiftID:    g.ID,
						TS:        now,
						PriceTon:  g.PriceTon,
						PriceUsd:  g.PriceUsd,
						MarketCap: g.MarketCap(),
					})
				}
				prom.SnapshotsTotal.Add(float64(len(gifts)))

				// One-time history backfill after the first good catalog.
				if !backfilled {
					backfilled = true
					go backfillHistory(ctx, client, sqlWriter, gifts, cfg.FetchParallel, pointCh)
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	log.Println("[collector] pipeline ready (24/7)")
	log.Printf("[collector] [Upstream poll %v] -> [Ring] -> [FanOut] -> [Resampler %v] -> [Redis/SQLite]",
		cfg.PollInterval, resNames)

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[collector] shutdown signal received, cleaning up...")

	// Flush forming points before tearing the pipeline down.
	sampler.FlushAll(pointCh)
	time.Sleep(500 * time.Millisecond)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	if redisWriter != nil {
		redisWriter.Close()
	}

	log.Println("[collector] shutdown complete.")
}

// backfillHistory seeds chart history for every gift that has no stored
// points yet: week history at hour resolution, life history at day
// resolution. Fetches run in parallel, bounded so the upstream rate
// limiter is not the only throttle.
func backfillHistory(ctx context.Context, client *upstream.Client, sqlWriter *sqlitestore.Writer,
	gifts []model.Gift, parallel int, pointCh chan<- model.ChartPoint) {

	log.Printf("[collector] history backfill starting for %d gifts", len(gifts))
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)

	var total atomic.Int64
	for i := range gifts {
		gift := gifts[i]
		g.Go(func() error {
			total.Add(int64(backfillGift(ctx, client, sqlWriter, gift.ID, pointCh)))
			return nil
		})
	}
	g.Wait()

	log.Printf("[collector] history backfill done: %d points in %v", total.Load(), time.Since(start))
}

func backfillGift(ctx context.Context, client *upstream.Client, sqlWriter *sqlitestore.Writer,
	giftID string, pointCh chan<- model.ChartPoint) int {

	sent := 0
	fetches := []struct {
		res   model.Resolution
		fetch func(context.Context, string) ([]model.RawPoint, error)
	}{
		{model.ResHour, client.GiftWeek},
		{model.ResDay, client.GiftLife},
	}

	for _, f := range fetches {
		last, err := sqlWriter.GetLastTimestamp(giftID, f.res)
		if err != nil {
			log.Printf("[collector] backfill %s/%s: last timestamp lookup failed: %v", giftID, f.res, err)
			continue
		}

		raw, err := f.fetch(ctx, giftID)
		if err != nil {
			log.Printf("[collector] backfill %s/%s: fetch failed: %v", giftID, f.res, err)
			continue
		}

		for _, pt := range historyPoints(raw, giftID, f.res, last) {
			select {
			case pointCh <- pt:
				sent++
			case <-ctx.Done():
				return sent
			}
		}
	}
	return sent
}

// historyPoints converts upstream history records into finalized chart
// points, skipping anything at or before lastTS (already stored).
func historyPoints(raw []model.RawPoint, giftID string, res model.Resolution, lastTS int64) []model.ChartPoint {
	points := make([]model.ChartPoint, 0, len(raw))
	for _, r := range raw {
		ts, err := series.ParseStamp(r.Date, r.Time)
		if err != nil {
			continue
		}
		ts = res.BucketStart(time.Unix(ts, 0).UTC())
		if ts <= lastTS {
			continue
		}

		p := model.ChartPoint{
			GiftID:     giftID,
			Res:        res,
			TS:         time.Unix(ts, 0).UTC(),
			Open:       r.PriceTon,
			High:       r.PriceTon,
			Low:        r.PriceTon,
			Close:      r.PriceTon,
			PriceUsd:   r.PriceUsd,
			OnSale:     int64(r.OnSale),
			Volume:     r.Volume,
			SalesCount: int64(r.SalesCount),
			Samples:    1,
		}
		if r.Open != 0 || r.Close != 0 {
			p.Open, p.High, p.Low, p.Close = r.Open, r.High, r.Low, r.Close
		}
		points = append(points, p)
	}
	return points
}
