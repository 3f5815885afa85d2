package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"giftpulse/internal/model"
	sqlitestore "giftpulse/internal/store/sqlite"
	"giftpulse/internal/upstream"
)

func newTestDeps(t *testing.T) *Deps {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway_test.db")
	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: path})
	if err != nil {
		t.Fatalf("sqlite writer: %v", err)
	}
	t.Cleanup(func() { w.Close() })

	r, err := sqlitestore.NewReader(path)
	if err != nil {
		t.Fatalf("sqlite reader: %v", err)
	}
	t.Cleanup(func() { r.Close() })

	return &Deps{SQL: r, SQLW: w}
}

func TestVoteEndpointTallies(t *testing.T) {
	d := newTestDeps(t)

	post := func(body string) VoteTotals {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/vote", strings.NewReader(body))
		d.handleVote(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
		}
		var out VoteTotals
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatal(err)
		}
		return out
	}

	post(`{"userId":1,"giftId":"plush-pepe","up":true}`)
	post(`{"userId":2,"giftId":"plush-pepe","up":false}`)
	// User 1 flips their vote; tally must not double-count
	got := post(`{"userId":1,"giftId":"plush-pepe","up":false}`)

	if got.Up != 0 || got.Down != 2 {
		t.Errorf("totals = (%d,%d), want (0,2)", got.Up, got.Down)
	}
}

func TestVoteEndpointRejectsBadBody(t *testing.T) {
	d := newTestDeps(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/vote", strings.NewReader(`{"giftId":""}`))
	d.handleVote(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestPrefsRoundTripAndDefaults(t *testing.T) {
	d := newTestDeps(t)

	// No stored prefs: GET must return the defaults, not an error
	rec := httptest.NewRecorder()
	d.handlePrefs(rec, httptest.NewRequest(http.MethodGet, "/api/prefs?userId=7", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var prefs model.Preferences
	if err := json.Unmarshal(rec.Body.Bytes(), &prefs); err != nil {
		t.Fatal(err)
	}
	if prefs.Currency != "ton" || prefs.GiftType != "line" || prefs.GiftBackground != "none" {
		t.Errorf("defaults = %+v", prefs)
	}

	// Store a partial blob; absent fields keep defaults on read
	rec = httptest.NewRecorder()
	d.handlePrefs(rec, httptest.NewRequest(http.MethodPost, "/api/prefs?userId=7",
		strings.NewReader(`{"currency":"usd"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("POST status = %d, body = %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	d.handlePrefs(rec, httptest.NewRequest(http.MethodGet, "/api/prefs?userId=7", nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &prefs); err != nil {
		t.Fatal(err)
	}
	if prefs.Currency != "usd" || prefs.GiftType != "line" {
		t.Errorf("stored prefs = %+v", prefs)
	}
}

func TestPrefsRequiresUserID(t *testing.T) {
	d := newTestDeps(t)
	rec := httptest.NewRecorder()
	d.handlePrefs(rec, httptest.NewRequest(http.MethodGet, "/api/prefs", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUserEndpointRoundTrip(t *testing.T) {
	d := newTestDeps(t)

	rec := httptest.NewRecorder()
	d.handleUser(rec, httptest.NewRequest(http.MethodPost, "/api/user",
		strings.NewReader(`{"id":42,"wallet":"UQabc"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("POST status = %d, body = %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	d.handleUser(rec, httptest.NewRequest(http.MethodGet, "/api/user?id=42", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d", rec.Code)
	}
	var u model.User
	if err := json.Unmarshal(rec.Body.Bytes(), &u); err != nil {
		t.Fatal(err)
	}
	if u.ID != 42 || u.Wallet != "UQabc" {
		t.Errorf("user = %+v", u)
	}
}

func TestUserEndpointUnknownIs404(t *testing.T) {
	d := newTestDeps(t)
	rec := httptest.NewRecorder()
	d.handleUser(rec, httptest.NewRequest(http.MethodGet, "/api/user?id=999", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestWatchlistRoundTrip(t *testing.T) {
	d := newTestDeps(t)

	// Watchlist rows reference the user row
	rec := httptest.NewRecorder()
	d.handleUser(rec, httptest.NewRequest(http.MethodPost, "/api/user",
		strings.NewReader(`{"id":5}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("user POST status = %d", rec.Code)
	}

	// No catalog configured: ids pass through unfiltered
	rec = httptest.NewRecorder()
	d.handleWatchlist(rec, httptest.NewRequest(http.MethodPost, "/api/watchlist",
		strings.NewReader(`{"userId":5,"giftIds":["plush-pepe","durov-cap"]}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("POST status = %d, body = %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	d.handleWatchlist(rec, httptest.NewRequest(http.MethodGet, "/api/watchlist?userId=5", nil))
	var out struct {
		GiftIDs []string `json:"giftIds"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	// GetUser returns the watchlist sorted by gift id
	if len(out.GiftIDs) != 2 || out.GiftIDs[0] != "durov-cap" || out.GiftIDs[1] != "plush-pepe" {
		t.Errorf("watchlist = %v", out.GiftIDs)
	}
}

func newTestUpstream(t *testing.T, handler http.Handler) *upstream.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := upstream.New(srv.URL, "", upstream.WithRateLimit(1000, 1000), upstream.WithRetries(0))
	if err != nil {
		t.Fatalf("upstream client: %v", err)
	}
	return c
}

func TestGiftChartServesModelVariant(t *testing.T) {
	d := newTestDeps(t)
	d.Upstream = newTestUpstream(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/gifts/plush-pepe/models/Cyber Frog/week":
			w.Write([]byte(`[{"date":"01-01-2025","priceTon":9.5},{"date":"02-01-2025","priceTon":10.5}]`))
		case "/gifts/plush-pepe/week":
			w.Write([]byte(`[{"date":"01-01-2025","priceTon":2.0}]`))
		default:
			http.NotFound(w, r)
		}
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/api/gifts/plush-pepe/chart?range=week&model=Cyber+Frog", nil)
	d.handleGiftChart(rec, req, "plush-pepe")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var resp ChartResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Model != "Cyber Frog" {
		t.Errorf("model = %q, want Cyber Frog", resp.Model)
	}
	// The variant series, not the gift-wide one
	if len(resp.Points) != 2 || resp.Points[0].Value != 9.5 || resp.Points[1].Value != 10.5 {
		t.Errorf("points = %+v", resp.Points)
	}
	if resp.Current == nil || *resp.Current != 10.5 {
		t.Errorf("current = %v, want 10.5", resp.Current)
	}
}

func TestIndexChartFallsBackToRemoteHistory(t *testing.T) {
	d := newTestDeps(t)
	d.Upstream = newTestUpstream(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/indexes/blue-chips/history" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`[{"date":"01-01-2025","priceTon":120},{"date":"02-01-2025","priceTon":125}]`))
	}))

	// Neither Redis nor SQLite knows this index; the remote catalog does
	rec := httptest.NewRecorder()
	d.handleIndexChart(rec, httptest.NewRequest(http.MethodGet, "/api/indexes/blue-chips/chart", nil), "blue-chips")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var resp IndexChartResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.IndexID != "blue-chips" || len(resp.Points) != 2 {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Points[0].Value != 120 || resp.Points[1].Value != 125 {
		t.Errorf("points = %+v", resp.Points)
	}
}

func TestUserEndpointImportsFromBackend(t *testing.T) {
	d := newTestDeps(t)
	var calls int32
	d.Upstream = newTestUpstream(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/users/77" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"id":77,"wallet":"UQxyz","watchlist":["plush-pepe"]}`))
	}))

	rec := httptest.NewRecorder()
	d.handleUser(rec, httptest.NewRequest(http.MethodGet, "/api/user?id=77", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var u model.User
	if err := json.Unmarshal(rec.Body.Bytes(), &u); err != nil {
		t.Fatal(err)
	}
	if u.ID != 77 || u.Wallet != "UQxyz" {
		t.Errorf("user = %+v", u)
	}

	// The import persists locally, so a second lookup stays offline
	rec = httptest.NewRecorder()
	d.handleUser(rec, httptest.NewRequest(http.MethodGet, "/api/user?id=77", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("second GET status = %d", rec.Code)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("backend calls = %d, want 1", n)
	}

	stored, err := d.SQL.GetUser(77)
	if err != nil || stored == nil {
		t.Fatalf("local store after import: %v, %v", stored, err)
	}
	if len(stored.Watchlist) != 1 || stored.Watchlist[0] != "plush-pepe" {
		t.Errorf("imported watchlist = %v", stored.Watchlist)
	}
}
