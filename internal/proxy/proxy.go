// Package proxy relays mini-app requests to the upstream gifts API,
// attaching the internal shared secret so the upstream never has to be
// exposed to browsers directly.
package proxy

import (
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// SecretHeader carries the shared secret on forwarded requests.
const SecretHeader = "X-Internal-Secret"

// Hop-by-hop headers per RFC 7230 §6.1; never forwarded.
var hopByHop = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Handler forwards requests under its mount prefix to the backend.
type Handler struct {
	backend string // base URL, no trailing slash
	secret  string
	prefix  string // mount path stripped before forwarding
	client  *http.Client
	onDone  func(status int) // optional, for metrics
}

// Option configures a Handler.
type Option func(*Handler)

// WithHTTPClient overrides the forwarding client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *Handler) { h.client = c }
}

// WithStatusHook installs a callback invoked with the mirrored status code.
func WithStatusHook(fn func(status int)) Option {
	return func(h *Handler) { h.onDone = fn }
}

// New creates a proxy handler. Requests to prefix+"/path" are forwarded
// to backend+"/path" with the original method, query, and body.
func New(backend, secret, prefix string, opts ...Option) *Handler {
	h := &Handler{
		backend: strings.TrimRight(backend, "/"),
		secret:  secret,
		prefix:  prefix,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	target := h.backend + strings.TrimPrefix(r.URL.Path, h.prefix)
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	var body io.Reader
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		// Stream the body through rather than buffering uploads.
		body = r.Body
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target, body)
	if err != nil {
		h.fail(w, err)
		return
	}

	copyHeaders(req.Header, r.Header)
	for _, k := range hopByHop {
		req.Header.Del(k)
	}
	req.Header.Set(SecretHeader, h.secret)

	resp, err := h.client.Do(req)
	if err != nil {
		h.fail(w, err)
		return
	}
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	for _, k := range hopByHop {
		w.Header().Del(k)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)

	if h.onDone != nil {
		h.onDone(resp.StatusCode)
	}
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	log.Printf("[proxy] forward failed: %v", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	w.Write([]byte(`{"error":"upstream unavailable"}`))
	if h.onDone != nil {
		h.onDone(http.StatusBadGateway)
	}
}

func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
