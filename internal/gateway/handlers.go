package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"giftpulse/internal/metrics"
	"giftpulse/internal/model"
	"giftpulse/internal/portfolio"
	"giftpulse/internal/series"
	redisstore "giftpulse/internal/store/redis"
	sqlitestore "giftpulse/internal/store/sqlite"
	"giftpulse/internal/treemap"
	"giftpulse/internal/upstream"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Deps bundles everything the REST handlers touch.
type Deps struct {
	Hub      *Hub
	Redis    *redisstore.Reader
	SQL      *sqlitestore.Reader
	SQLW     *sqlitestore.Writer
	Upstream *upstream.Client
	Prom     *metrics.Metrics
	Proxy    http.Handler
	Indexes  []model.Index
	Start    time.Time

	catMu     sync.Mutex
	catalog   []model.Gift
	catByID   map[string]model.Gift
	catLoaded time.Time
}

// catalogTTL bounds how stale the cached upstream gift list may get.
const catalogTTL = time.Minute

var errNoUpstream = errors.New("no upstream client configured")

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// getCatalog returns the cached gift list, refreshing from upstream when
// stale. A refresh failure reuses the stale copy rather than erroring.
func (d *Deps) getCatalog(ctx context.Context) ([]model.Gift, map[string]model.Gift, error) {
	d.catMu.Lock()
	defer d.catMu.Unlock()

	if time.Since(d.catLoaded) < catalogTTL && d.catalog != nil {
		return d.catalog, d.catByID, nil
	}
	if d.Upstream == nil {
		return nil, nil, errNoUpstream
	}

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	gifts, err := d.Upstream.Gifts(cctx)
	if err != nil {
		if d.catalog != nil {
			log.Printf("[gateway] WARNING: catalog refresh failed, serving stale: %v", err)
			return d.catalog, d.catByID, nil
		}
		return nil, nil, err
	}

	d.catalog = gifts
	d.catByID = portfolio.CatalogMap(gifts)
	d.catLoaded = time.Now()
	return d.catalog, d.catByID, nil
}

// RegisterRoutes registers all HTTP routes on the provided mux.
func RegisterRoutes(mux *http.ServeMux, d *Deps) {
	hub := d.Hub

	// WebSocket endpoint
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		lastTS := r.URL.Query().Get("last_ts")
		hub.HandleWSRequest(conn, lastTS)
	})

	// REST: gift catalog
	mux.HandleFunc("/api/gifts", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		gifts, _, err := d.getCatalog(r.Context())
		if err != nil {
			writeError(w, http.StatusBadGateway, "catalog unavailable")
			return
		}
		writeJSON(w, gifts)
	})

	// REST: /api/gifts/{id}/chart; normalized series + percent change
	mux.HandleFunc("/api/gifts/", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		rest := strings.TrimPrefix(r.URL.Path, "/api/gifts/")
		parts := strings.Split(rest, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] != "chart" {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		d.handleGiftChart(w, r, parts[0])
	})

	// REST: configured indexes
	mux.HandleFunc("/api/indexes", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		writeJSON(w, d.Indexes)
	})

	// REST: /api/indexes/{id}/chart
	mux.HandleFunc("/api/indexes/", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		rest := strings.TrimPrefix(r.URL.Path, "/api/indexes/")
		parts := strings.Split(rest, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] != "chart" {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		d.handleIndexChart(w, r, parts[0])
	})

	// REST: heatmap layout JSON and JPEG export
	mux.HandleFunc("/api/heatmap", d.handleHeatmapJSON)
	mux.HandleFunc("/api/heatmap.jpg", d.handleHeatmapJPEG)

	// REST: user profile
	mux.HandleFunc("/api/user", d.handleUser)

	// REST: watchlist
	mux.HandleFunc("/api/watchlist", d.handleWatchlist)

	// REST: portfolio valuation + holding mutations
	mux.HandleFunc("/api/portfolio", d.handlePortfolio)

	// REST: display preferences
	mux.HandleFunc("/api/prefs", d.handlePrefs)

	// REST: votes
	mux.HandleFunc("/api/vote", d.handleVote)

	// REST: shared view config
	mux.HandleFunc("/api/view", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusOK)
		case http.MethodPost:
			var body json.RawMessage
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON")
				return
			}
			if err := hub.Views.Set(r.Context(), body); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeJSON(w, map[string]string{"status": "ok"})
		default:
			cfg := hub.Views.Get()
			if cfg == nil {
				cfg = json.RawMessage(`{}`)
			}
			writeJSON(w, cfg)
		}
	})

	// REST: replay buffer gap backfill
	mux.HandleFunc("/api/missed", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		channel := r.URL.Query().Get("channel")
		if channel == "" {
			writeError(w, http.StatusBadRequest, "channel is required")
			return
		}
		from, _ := strconv.ParseInt(r.URL.Query().Get("from"), 10, 64)
		to, _ := strconv.ParseInt(r.URL.Query().Get("to"), 10, 64)
		if to == 0 {
			to = hub.GetChannelSeq(channel)
		}

		envelopes := hub.GetReplayRange(channel, from, to)
		msgs := make([]json.RawMessage, len(envelopes))
		for i, e := range envelopes {
			msgs[i] = e
		}
		writeJSON(w, map[string]interface{}{
			"channel":     channel,
			"current_seq": hub.GetChannelSeq(channel),
			"messages":    msgs,
		})
	})

	// REST: system metrics snapshot
	mux.HandleFunc("/api/metrics", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		m := CollectMetrics(d.Start)
		if hub.Latency != nil {
			m.LatencyP50, m.LatencyP95, m.LatencyP99 = hub.Latency.Percentiles()
		}
		writeJSON(w, m)
	})

	// Proxy to the upstream gifts API
	if d.Proxy != nil {
		mux.Handle("/api/proxy/", d.Proxy)
	}

	// Health endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		redisOK := hub.Rdb.Ping(r.Context()).Err() == nil
		writeJSON(w, map[string]interface{}{
			"status":     "ok",
			"redis":      redisOK,
			"ws_clients": hub.ClientCount(),
			"uptime_sec": int64(time.Since(d.Start).Seconds()),
			"ts":         time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}

// handleGiftChart serves /api/gifts/{id}/chart?range=week|life&field=ton.
// An optional model parameter narrows the series to one gift model
// variant. Life charts merge the coarse lifetime series with the fine
// week series so the most recent days come from the higher-resolution
// source.
func (d *Deps) handleGiftChart(w http.ResponseWriter, r *http.Request, giftID string) {
	rng := r.URL.Query().Get("range")
	if rng == "" {
		rng = "week"
	}
	if rng != "week" && rng != "life" {
		writeError(w, http.StatusBadRequest, "unknown range: "+rng)
		return
	}
	field, ok := series.ParseField(r.URL.Query().Get("field"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown field: "+r.URL.Query().Get("field"))
		return
	}

	fetchWeek := d.Upstream.GiftWeek
	fetchLife := d.Upstream.GiftLife
	modelName := r.URL.Query().Get("model")
	if modelName != "" {
		fetchWeek = func(ctx context.Context, id string) ([]model.RawPoint, error) {
			return d.Upstream.ModelWeek(ctx, id, modelName)
		}
		fetchLife = func(ctx context.Context, id string) ([]model.RawPoint, error) {
			return d.Upstream.ModelLife(ctx, id, modelName)
		}
	}

	ctx := r.Context()
	var points []model.SeriesPoint

	if rng == "week" {
		raw, err := fetchWeek(ctx, giftID)
		if err != nil {
			writeError(w, http.StatusBadGateway, "upstream fetch failed")
			return
		}
		points = series.Normalize(raw, field)
	} else {
		// One round trip each for life and week, concurrently; the week
		// series refines the tail of the life series.
		var rawLife, rawWeek []model.RawPoint
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			rawLife, err = fetchLife(gctx, giftID)
			return err
		})
		g.Go(func() error {
			var err error
			rawWeek, err = fetchWeek(gctx, giftID)
			return err
		})
		if err := g.Wait(); err != nil {
			writeError(w, http.StatusBadGateway, "upstream fetch failed")
			return
		}
		points = series.BridgeLife(
			series.Normalize(rawLife, field),
			series.Normalize(rawWeek, field),
		)
	}

	writeJSON(w, ChartResponse{
		GiftID:  giftID,
		Range:   rng,
		Field:   string(field),
		Model:   modelName,
		Change:  series.PercentChange(points),
		Current: series.CurrentValue(points),
		Points:  points,
	})
}

// handleIndexChart serves /api/indexes/{id}/chart. Redis streams hold the
// hot window; SQLite backfills when the stream has been trimmed away, and
// the upstream index history covers indexes the local engine has never
// computed, such as remote-only catalog entries.
func (d *Deps) handleIndexChart(w http.ResponseWriter, r *http.Request, indexID string) {
	limit := int64(500)
	if s := r.URL.Query().Get("limit"); s != "" {
		if l, err := strconv.ParseInt(s, 10, 64); err == nil && l > 0 && l <= 2000 {
			limit = l
		}
	}

	var points []model.IndexPoint
	var err error
	if d.Redis != nil {
		points, err = d.Redis.ReadIndexRange(r.Context(), indexID, limit)
	}
	if err != nil || len(points) == 0 {
		if d.SQL != nil {
			if stored, serr := d.SQL.ReadIndexPoints(indexID, 0); serr == nil {
				points = stored
			}
		}
	}
	if len(points) == 0 && d.Upstream != nil {
		if raw, uerr := d.Upstream.IndexHistory(r.Context(), indexID); uerr == nil {
			for _, sp := range series.Normalize(raw, series.FieldTon) {
				points = append(points, model.IndexPoint{
					IndexID: indexID,
					TS:      time.Unix(sp.TS, 0).UTC(),
					Value:   sp.Value,
				})
			}
		}
	}
	if points == nil {
		points = []model.IndexPoint{}
	}

	writeJSON(w, IndexChartResponse{IndexID: indexID, Points: points})
}

// buildHeatmapItems assembles treemap inputs from the catalog, preferring
// the collector's live Redis price over the catalog price when available.
func (d *Deps) buildHeatmapItems(ctx context.Context, mode treemap.Mode) ([]treemap.Item, error) {
	gifts, _, err := d.getCatalog(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(gifts))
	for i, g := range gifts {
		ids[i] = g.ID
	}
	live, _ := d.Redis.ReadLatestSnapshots(ctx, ids)

	items := make([]treemap.Item, 0, len(gifts))
	for _, g := range gifts {
		price := g.PriceTon
		if snap, ok := live[g.ID]; ok && snap.PriceTon > 0 {
			price = snap.PriceTon
		}
		change := 0.0
		if g.PriceTon24h > 0 {
			change = (price - g.PriceTon24h) / g.PriceTon24h * 100
		}

		var weight float64
		switch mode {
		case treemap.ModeMarketCap:
			weight = treemap.MarketCapWeight(float64(g.SupplyUpgraded) * price)
		default:
			weight = treemap.ChangeWeight(change)
		}

		items = append(items, treemap.Item{
			ID:     g.ID,
			Name:   g.Name,
			Weight: weight,
			Change: change,
			Label:  fmt.Sprintf("%+.1f%%", change),
		})
	}
	return items, nil
}

func (d *Deps) handleHeatmapJSON(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	mode, ok := treemap.ParseMode(r.URL.Query().Get("mode"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown mode: "+r.URL.Query().Get("mode"))
		return
	}

	width, height := float64(treemap.ExportWidth), float64(treemap.ExportHeight)
	if s := r.URL.Query().Get("w"); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil && v > 0 {
			width = v
		}
	}
	if s := r.URL.Query().Get("h"); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil && v > 0 {
			height = v
		}
	}

	items, err := d.buildHeatmapItems(r.Context(), mode)
	if err != nil {
		writeError(w, http.StatusBadGateway, "catalog unavailable")
		return
	}

	cells := treemap.Layout(items, width, height)
	out := make([]HeatmapCell, len(cells))
	for i, c := range cells {
		out[i] = HeatmapCell{
			GiftID: c.ID, Name: c.Name, Change: c.Change, Label: c.Label,
			X: c.X, Y: c.Y, W: c.W, H: c.H,
		}
	}
	writeJSON(w, map[string]interface{}{
		"mode":   string(mode),
		"width":  width,
		"height": height,
		"cells":  out,
	})
}

func (d *Deps) handleHeatmapJPEG(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	mode, ok := treemap.ParseMode(r.URL.Query().Get("mode"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown mode: "+r.URL.Query().Get("mode"))
		return
	}

	items, err := d.buildHeatmapItems(r.Context(), mode)
	if err != nil {
		writeError(w, http.StatusBadGateway, "catalog unavailable")
		return
	}

	start := time.Now()
	img, err := treemap.RenderExport(items)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "render failed")
		return
	}
	if d.Prom != nil {
		d.Prom.HeatmapRenderDur.Observe(time.Since(start).Seconds())
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(img)
}

func (d *Deps) handleUser(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)

	case http.MethodPost:
		var u model.User
		if err := json.NewDecoder(r.Body).Decode(&u); err != nil || u.ID == 0 {
			writeError(w, http.StatusBadRequest, "invalid user")
			return
		}
		if err := d.SQLW.UpsertUser(&u); err != nil {
			writeError(w, http.StatusInternalServerError, "save failed")
			return
		}
		saved, err := d.SQL.GetUser(u.ID)
		if err != nil || saved == nil {
			writeError(w, http.StatusInternalServerError, "read-back failed")
			return
		}
		writeJSON(w, saved)

	default:
		userID, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
		if err != nil || userID == 0 {
			writeError(w, http.StatusBadRequest, "id is required")
			return
		}
		u, err := d.SQL.GetUser(userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "read failed")
			return
		}
		if u == nil {
			u = d.importUser(r.Context(), userID)
		}
		if u == nil {
			writeError(w, http.StatusNotFound, "unknown user")
			return
		}
		writeJSON(w, u)
	}
}

// importUser pulls a profile the backend already knows about into the
// local store, so users who onboarded before this service was deployed
// resolve on first lookup. Returns nil when the backend has no profile
// either.
func (d *Deps) importUser(ctx context.Context, userID int64) *model.User {
	if d.Upstream == nil {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	u, err := d.Upstream.GetUser(cctx, userID)
	if err != nil || u == nil {
		return nil
	}
	if err := d.SQLW.UpsertUser(u); err != nil {
		log.Printf("[gateway] WARNING: imported user %d not persisted: %v", userID, err)
		return u
	}
	if len(u.Watchlist) > 0 {
		if err := d.SQLW.ReplaceWatchlist(userID, u.Watchlist); err != nil {
			log.Printf("[gateway] WARNING: imported watchlist for %d not persisted: %v", userID, err)
		}
	}
	return u
}

func (d *Deps) handleWatchlist(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)

	case http.MethodPost:
		var req struct {
			UserID  int64    `json:"userId"`
			GiftIDs []string `json:"giftIds"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == 0 {
			writeError(w, http.StatusBadRequest, "invalid watchlist")
			return
		}

		// Ids that don't resolve to a known gift are silently dropped
		kept := req.GiftIDs
		if _, byID, err := d.getCatalog(r.Context()); err == nil {
			kept = portfolio.FilterKnown(req.GiftIDs, byID)
		}

		if err := d.SQLW.ReplaceWatchlist(req.UserID, kept); err != nil {
			writeError(w, http.StatusInternalServerError, "save failed")
			return
		}
		writeJSON(w, map[string]interface{}{"userId": req.UserID, "giftIds": kept})

	default:
		userID, err := strconv.ParseInt(r.URL.Query().Get("userId"), 10, 64)
		if err != nil || userID == 0 {
			writeError(w, http.StatusBadRequest, "userId is required")
			return
		}
		u, err := d.SQL.GetUser(userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "read failed")
			return
		}
		giftIDs := []string{}
		if u != nil && u.Watchlist != nil {
			giftIDs = u.Watchlist
		}
		writeJSON(w, map[string]interface{}{"userId": userID, "giftIds": giftIDs})
	}
}

func (d *Deps) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)

	case http.MethodPost:
		var req struct {
			UserID int64   `json:"userId"`
			GiftID string  `json:"giftId"`
			Amount int64   `json:"amount"`
			AvgTon float64 `json:"avgTon"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == 0 || req.GiftID == "" {
			writeError(w, http.StatusBadRequest, "invalid holding")
			return
		}
		if req.Amount < 0 {
			writeError(w, http.StatusBadRequest, "amount must be >= 0")
			return
		}

		// The journal records the delta against the previous amount
		var prev int64
		if holdings, err := d.SQL.ReadHoldings(req.UserID); err == nil {
			for _, h := range holdings {
				if h.GiftID == req.GiftID {
					prev = h.Amount
					break
				}
			}
		}

		err := d.SQLW.UpsertHolding(model.Holding{
			UserID: req.UserID, GiftID: req.GiftID,
			Amount: req.Amount, AvgTon: req.AvgTon,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "save failed")
			return
		}

		if delta := req.Amount - prev; delta != 0 {
			price := req.AvgTon
			if _, byID, cerr := d.getCatalog(r.Context()); cerr == nil {
				if g, ok := byID[req.GiftID]; ok {
					price = g.PriceTon
				}
			}
			if jerr := d.SQLW.AppendJournal(req.UserID, req.GiftID, float64(delta), price); jerr != nil {
				log.Printf("[gateway] WARNING: journal append failed: %v", jerr)
			}
		}
		writeJSON(w, map[string]string{"status": "ok"})

	default:
		userID, err := strconv.ParseInt(r.URL.Query().Get("userId"), 10, 64)
		if err != nil || userID == 0 {
			writeError(w, http.StatusBadRequest, "userId is required")
			return
		}
		holdings, err := d.SQL.ReadHoldings(userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "read failed")
			return
		}
		_, byID, err := d.getCatalog(r.Context())
		if err != nil {
			writeError(w, http.StatusBadGateway, "catalog unavailable")
			return
		}
		writeJSON(w, portfolio.Value(holdings, byID))
	}
}

func (d *Deps) handlePrefs(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	userID, err := strconv.ParseInt(r.URL.Query().Get("userId"), 10, 64)
	if r.Method != http.MethodOptions && (err != nil || userID == 0) {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)

	case http.MethodPost:
		// The blob is stored as-is; validation happens on read, where a
		// bad blob decodes to defaults instead of failing the client.
		var body json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		if err := d.SQLW.SavePreferences(userID, body); err != nil {
			writeError(w, http.StatusInternalServerError, "save failed")
			return
		}
		writeJSON(w, model.DecodePreferences(body))

	default:
		writeJSON(w, d.SQL.ReadPreferences(userID))
	}
}

func (d *Deps) mirrorVote(userID int64, giftID string, up bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.Upstream.Vote(ctx, userID, giftID, up); err != nil {
		log.Printf("[gateway] WARNING: upstream vote mirror failed: %v", err)
	}
}

func (d *Deps) handleVote(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)

	case http.MethodPost:
		var req struct {
			UserID int64  `json:"userId"`
			GiftID string `json:"giftId"`
			Up     bool   `json:"up"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == 0 || req.GiftID == "" {
			writeError(w, http.StatusBadRequest, "invalid vote")
			return
		}

		v := model.Vote{UserID: req.UserID, GiftID: req.GiftID, Up: req.Up, TS: time.Now().UTC()}
		if err := d.SQLW.SaveVote(v); err != nil {
			writeError(w, http.StatusInternalServerError, "save failed")
			return
		}

		// Mirror the vote upstream; local tally is already committed
		if d.Upstream != nil {
			go d.mirrorVote(req.UserID, req.GiftID, req.Up)
		}

		up, down, err := d.SQL.ReadVoteTotals(req.GiftID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "tally failed")
			return
		}
		writeJSON(w, VoteTotals{GiftID: req.GiftID, Up: up, Down: down})

	default:
		giftID := r.URL.Query().Get("giftId")
		if giftID == "" {
			writeError(w, http.StatusBadRequest, "giftId is required")
			return
		}
		up, down, err := d.SQL.ReadVoteTotals(giftID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "tally failed")
			return
		}
		writeJSON(w, VoteTotals{GiftID: giftID, Up: up, Down: down})
	}
}
