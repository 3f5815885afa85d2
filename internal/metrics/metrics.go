package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the gift analytics pipeline.
type Metrics struct {
	PollsTotal     prometheus.Counter
	SnapshotsTotal prometheus.Counter
	FetchErrors    prometheus.Counter

	UpstreamFetchDur prometheus.Histogram
	RedisWriteDur    prometheus.Histogram
	SQLiteCommitDur  prometheus.Histogram
	SnapshotLag      prometheus.Gauge

	// Resampler metrics
	PointsTotal *prometheus.CounterVec // labels: res
	ResampleDur prometheus.Histogram

	// Index engine metrics
	IndexComputeDur  prometheus.Histogram
	IndexPointsTotal prometheus.Counter

	// Ring buffer overflow
	RingBufOverflow prometheus.Counter

	// Backpressure metrics
	FanoutDropsTotal     *prometheus.CounterVec // labels: subscriber
	ChannelSaturationPct *prometheus.GaugeVec   // labels: channel_name

	// Staleness metrics
	StaleSnapshotsRejected prometheus.Counter

	// Circuit breaker metrics
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter

	// Gateway metrics
	WSClients        prometheus.Gauge
	WSMessagesTotal  prometheus.Counter
	BroadcastDur     prometheus.Histogram
	ProxyRequests    *prometheus.CounterVec // labels: code_class
	HeatmapRenderDur prometheus.Histogram
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		PollsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collector_polls_total",
			Help: "Total upstream poll cycles completed",
		}),
		SnapshotsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collector_snapshots_total",
			Help: "Total gift snapshots produced",
		}),
		FetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collector_fetch_errors_total",
			Help: "Upstream fetch failures after retries",
		}),
		UpstreamFetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "collector_upstream_fetch_duration_seconds",
			Help:    "Upstream API fetch latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "collector_redis_write_duration_seconds",
			Help:    "Redis write latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "collector_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		SnapshotLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "collector_snapshot_lag_seconds",
			Help: "Lag between snapshot timestamp and emission time",
		}),

		// Resampler metrics
		PointsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_points_total",
			Help: "Total chart points finalized (by resolution)",
		}, []string{"res"}),
		ResampleDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "collector_resample_duration_seconds",
			Help:    "Resampler processing latency per snapshot",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),

		// Index metrics
		IndexComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "indexengine_compute_duration_seconds",
			Help:    "Basket engine compute latency per chart point",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),
		IndexPointsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indexengine_points_total",
			Help: "Total index points computed",
		}),

		// Ring buffer
		RingBufOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collector_ringbuf_overflow_total",
			Help: "Ring buffer push overflows (dropped snapshots)",
		}),

		// Backpressure
		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_fanout_drops_total",
			Help: "Snapshots dropped by the feed fan-out per subscriber",
		}, []string{"subscriber"}),
		ChannelSaturationPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "collector_channel_saturation_pct",
			Help: "Channel fill percentage (len/cap * 100)",
		}, []string{"channel_name"}),

		// Staleness
		StaleSnapshotsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collector_stale_snapshots_rejected_total",
			Help: "Snapshots rejected by the resampler due to staleness",
		}),

		// Circuit breaker
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "collector_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collector_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collector_redis_buffered_writes_total",
			Help: "Writes buffered locally during Redis circuit breaker open state",
		}),

		// Gateway
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_ws_clients",
			Help: "Currently connected WebSocket clients",
		}),
		WSMessagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_ws_messages_total",
			Help: "Total WebSocket messages sent",
		}),
		BroadcastDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gateway_broadcast_duration_seconds",
			Help:    "Hub broadcast latency per message",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		ProxyRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_proxy_requests_total",
			Help: "Forwarded proxy requests (by upstream status class)",
		}, []string{"code_class"}),
		HeatmapRenderDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gateway_heatmap_render_duration_seconds",
			Help:    "Treemap layout + JPEG encode latency",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
	}

	prometheus.MustRegister(
		m.PollsTotal,
		m.SnapshotsTotal,
		m.FetchErrors,
		m.UpstreamFetchDur,
		m.RedisWriteDur,
		m.SQLiteCommitDur,
		m.SnapshotLag,
		m.PointsTotal,
		m.ResampleDur,
		m.IndexComputeDur,
		m.IndexPointsTotal,
		m.RingBufOverflow,
		m.FanoutDropsTotal,
		m.ChannelSaturationPct,
		m.StaleSnapshotsRejected,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
		m.WSClients,
		m.WSMessagesTotal,
		m.BroadcastDur,
		m.ProxyRequests,
		m.HeatmapRenderDur,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	UpstreamOK     bool      `json:"upstream_ok"`
	LastPollTime   time.Time `json:"last_poll_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	ResamplerOK    bool      `json:"resampler_ok"`
	IndexerOK      bool      `json:"indexer_ok"`
	Resolutions    []string  `json:"resolutions"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetUpstreamOK(v bool) {
	h.mu.Lock()
	h.UpstreamOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastPollTime(t time.Time) {
	h.mu.Lock()
	h.LastPollTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetResamplerOK(v bool) {
	h.mu.Lock()
	h.ResamplerOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetIndexerOK(v bool) {
	h.mu.Lock()
	h.IndexerOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetResolutions(res []string) {
	h.mu.Lock()
	h.Resolutions = res
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	// Determine overall status
	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.UpstreamOK || !h.RedisConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	// Poll age
	pollAge := ""
	if !h.LastPollTime.IsZero() {
		pollAge = time.Since(h.LastPollTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string   `json:"status"`
		Uptime          string   `json:"uptime"`
		UpstreamOK      bool     `json:"upstream_ok"`
		LastPollTime    string   `json:"last_poll_time"`
		PollAge         string   `json:"poll_age"`
		RedisConnected  bool     `json:"redis_connected"`
		RedisLatencyMs  float64  `json:"redis_latency_ms"`
		SQLiteOK        bool     `json:"sqlite_ok"`
		SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
		ResamplerOK     bool     `json:"resampler_ok"`
		IndexerOK       bool     `json:"indexer_ok"`
		Resolutions     []string `json:"resolutions"`
		LastCheckAt     string   `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		UpstreamOK:      h.UpstreamOK,
		LastPollTime:    h.LastPollTime.Format(time.RFC3339),
		PollAge:         pollAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		ResamplerOK:     h.ResamplerOK,
		IndexerOK:       h.IndexerOK,
		Resolutions:     h.Resolutions,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
