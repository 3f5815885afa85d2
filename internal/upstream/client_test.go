package upstream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"giftpulse/internal/model"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithRateLimit(1000, 1000), WithRetries(1)}, opts...)
	c, err := New(srv.URL, "s3cret", opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, srv
}

func TestSecretHeaderInjected(t *testing.T) {
	var got string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(SecretHeader)
		w.Write([]byte(`[]`))
	}))
	if _, err := c.Gifts(context.Background()); err != nil {
		t.Fatalf("Gifts: %v", err)
	}
	if got != "s3cret" {
		t.Fatalf("secret header = %q, want s3cret", got)
	}
}

func TestEnvelopeShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want int
	}{
		{"bare array", `[{"id":"g1"},{"id":"g2"}]`, 2},
		{"data key", `{"data":[{"id":"g1"}]}`, 1},
		{"items key", `{"items":[{"id":"g1"}]}`, 1},
		{"results key", `{"results":[{"id":"g1"},{"id":"g2"},{"id":"g3"}]}`, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tc.body))
			}))
			gifts, err := c.Gifts(context.Background())
			if err != nil {
				t.Fatalf("Gifts: %v", err)
			}
			if len(gifts) != tc.want {
				t.Fatalf("got %d gifts, want %d", len(gifts), tc.want)
			}
		})
	}
}

func TestEnvelopeUnknownShapeIsError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"payload":[{"id":"g1"}]}`))
	}))
	if _, err := c.Gifts(context.Background()); err == nil {
		t.Fatal("expected decode error for unknown wrapper key, got nil")
	}
}

func TestClientErrorNotRetried(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "nope", http.StatusNotFound)
	}), WithRetries(3))

	_, err := c.Gifts(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Fatalf("error = %v, want StatusError 404", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("server called %d times, want 1", n)
	}
}

func TestServerErrorRetriedThenSucceeds(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"data":[{"id":"g1"}]}`))
	}))

	gifts, err := c.Gifts(context.Background())
	if err != nil {
		t.Fatalf("Gifts after retry: %v", err)
	}
	if len(gifts) != 1 || gifts[0].ID != "g1" {
		t.Fatalf("unexpected gifts: %+v", gifts)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("server called %d times, want 2", n)
	}
}

func TestSaveUserSendsPatch(t *testing.T) {
	var method, path string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.Write([]byte(`{}`))
	}))

	u := &model.User{ID: 42, Watchlist: []string{"g1"}}
	if err := c.SaveUser(context.Background(), u); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	if method != http.MethodPatch {
		t.Fatalf("method = %s, want PATCH", method)
	}
	if path != "/users/42" {
		t.Fatalf("path = %s, want /users/42", path)
	}
}

func TestHistoryDecodesRawPoints(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gifts/g1/week" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"items":[{"date":"02-01-2025","time":"14:30","priceTon":3.5,"amountOnSale":12}]}`))
	}))

	points, err := c.GiftWeek(context.Background(), "g1")
	if err != nil {
		t.Fatalf("GiftWeek: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("got %d points, want 1", len(points))
	}
	p := points[0]
	if p.Date != "02-01-2025" || p.Time != "14:30" || p.PriceTon != 3.5 || p.OnSale != 12 {
		t.Fatalf("unexpected point: %+v", p)
	}
}

func TestSendImageUploadsMultipart(t *testing.T) {
	var gotImage []byte
	var gotCaption, gotSecret string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		gotSecret = r.Header.Get(SecretHeader)
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, _, err := r.FormFile("image")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		gotImage, _ = io.ReadAll(f)
		gotCaption = r.FormValue("caption")
		w.WriteHeader(http.StatusOK)
	}))

	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x01, 0x02}
	if err := c.SendImage(context.Background(), jpeg, "market heatmap"); err != nil {
		t.Fatalf("SendImage: %v", err)
	}
	if !bytes.Equal(gotImage, jpeg) {
		t.Fatalf("uploaded bytes = %v, want %v", gotImage, jpeg)
	}
	if gotCaption != "market heatmap" {
		t.Fatalf("caption = %q", gotCaption)
	}
	if gotSecret != "s3cret" {
		t.Fatalf("secret header = %q", gotSecret)
	}
}

func TestIndexesDecodesCatalog(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/indexes" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"data":[{"id":"blue-chips","name":"Blue Chips"},{"id":"new-mints","name":"New Mints"}]}`))
	}))

	indexes, err := c.Indexes(context.Background())
	if err != nil {
		t.Fatalf("Indexes: %v", err)
	}
	if len(indexes) != 2 || indexes[0].ID != "blue-chips" || indexes[1].Name != "New Mints" {
		t.Fatalf("catalog = %+v", indexes)
	}
}
