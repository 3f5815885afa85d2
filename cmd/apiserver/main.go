package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"giftpulse/config"
	"giftpulse/internal/gateway"
	"giftpulse/internal/logger"
	"giftpulse/internal/metrics"
	"giftpulse/internal/model"
	"giftpulse/internal/proxy"
	redisstore "giftpulse/internal/store/redis"
	sqlitestore "giftpulse/internal/store/sqlite"
	"giftpulse/internal/upstream"
)

var processStart = time.Now()

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[apiserver] starting...")

	slogger := logger.Init("apiserver", slog.LevelInfo)

	cfg := config.Load()
	listenAddr := getEnv("GATEWAY_ADDR", ":8080")
	metricsAddr := getEnv("GATEWAY_METRICS_ADDR", ":9092")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- Redis (PubSub fan-in + stream history) ----
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("[apiserver] redis connection failed: %v", err)
	}
	log.Printf("[apiserver] redis connected at %s", cfg.RedisAddr)

	redisReader, err := redisstore.NewReader(redisstore.ReaderConfig{
		Addr:          cfg.RedisAddr,
		Password:      cfg.RedisPassword,
		ConsumerGroup: "gateway",
		ConsumerName:  hostname(),
	})
	if err != nil {
		log.Fatalf("[apiserver] redis reader init failed: %v", err)
	}

	// ---- SQLite (user state, chart fallback) ----
	os.MkdirAll("data", 0o755)
	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[apiserver] sqlite init failed: %v", err)
	}
	defer sqlWriter.Close()

	sqlReader, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[apiserver] sqlite reader init failed: %v", err)
	}
	defer sqlReader.Close()

	// ---- Upstream client (catalog, charts, proxy mirror) ----
	client, err := upstream.New(cfg.UpstreamBaseURL, cfg.UpstreamSecret,
		upstream.WithRateLimit(cfg.UpstreamRPS, cfg.UpstreamBurst))
	if err != nil {
		log.Fatalf("[apiserver] upstream client init failed: %v", err)
	}

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetUpstreamOK(true)
	health.StartLivenessChecker(ctx, rdb, sqlWriter.DB(), 10*time.Second)
	metricsSrv := metrics.NewServer(metricsAddr, health)
	metricsSrv.Start()

	// ---- Index baskets ----
	baskets := cfg.ParseBaskets()
	indexes := make([]model.Index, len(baskets))
	indexIDs := make([]string, len(baskets))
	for i, b := range baskets {
		indexes[i] = model.Index{ID: b.ID, Name: b.Name, Members: b.Members}
		indexIDs[i] = b.ID
	}
	indexes = mergeRemoteIndexes(ctx, client, indexes)

	// ---- Upstream passthrough proxy ----
	proxyHandler := proxy.New(cfg.UpstreamBaseURL, cfg.UpstreamSecret, "/api/proxy",
		proxy.WithStatusHook(func(status int) {
			prom.ProxyRequests.WithLabelValues(statusClass(status)).Inc()
		}))

	// ---- Hub manages all WebSocket connections ----
	hub := gateway.NewHub(rdb, indexIDs)
	hub.Prom = prom
	go hub.Run(ctx)
	go hub.StartMetricsBroadcast(ctx, processStart)

	deps := &gateway.Deps{
		Hub:      hub,
		Redis:    redisReader,
		SQL:      sqlReader,
		SQLW:     sqlWriter,
		Upstream: client,
		Prom:     prom,
		Proxy:    proxyHandler,
		Indexes:  indexes,
		Start:    processStart,
	}

	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, deps)

	srv := &http.Server{Addr: listenAddr, Handler: mux}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slogger.Info("serving", "addr", listenAddr, "indexes", len(indexes))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[apiserver] server error: %v", err)
		}
	}()

	<-sigCh
	log.Println("[apiserver] shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
}

// mergeRemoteIndexes extends the configured basket list with any indexes the
// upstream catalog knows about that are not configured locally. The merge is
// best-effort; a fetch failure leaves the local list untouched.
func mergeRemoteIndexes(ctx context.Context, client *upstream.Client, local []model.Index) []model.Index {
	fetchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	remote, err := client.Indexes(fetchCtx)
	if err != nil {
		log.Printf("[apiserver] upstream index catalog unavailable: %v", err)
		return local
	}

	seen := make(map[string]bool, len(local))
	for _, ix := range local {
		seen[ix.ID] = true
	}
	for _, ix := range remote {
		if ix.ID == "" || seen[ix.ID] {
			continue
		}
		seen[ix.ID] = true
		local = append(local, ix)
	}
	return local
}

// statusClass maps an HTTP status to its class label ("2xx", "5xx", ...).
func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "gateway-1"
	}
	return h
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
