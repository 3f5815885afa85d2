package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	redisstore "giftpulse/internal/store/redis"
)

const (
	viewRedisKey = redisstore.ViewConfigKey
	viewChannel  = redisstore.ViewConfigChannel
)

var errInvalidView = errors.New("view config is not valid JSON")

// ViewStore manages the shared display configuration: the treemap view
// the mini-app renders for everyone, adjustable by any client and pushed
// to all of them. Persisted in Redis so a gateway restart keeps the view.
type ViewStore struct {
	hub *Hub
	rdb *goredis.Client
}

// NewViewStore creates a ViewStore backed by the given Hub.
func NewViewStore(hub *Hub, rdb *goredis.Client) *ViewStore {
	return &ViewStore{hub: hub, rdb: rdb}
}

// Load restores the view config from Redis (if available).
// Called once during gateway startup. Returns true if config was restored.
func (vs *ViewStore) Load(ctx context.Context) bool {
	data, err := vs.rdb.Get(ctx, viewRedisKey).Result()
	if err != nil {
		return false
	}
	if !json.Valid([]byte(data)) {
		return false
	}
	vs.apply([]byte(data))
	log.Printf("[gateway] restored view config from Redis (%d bytes)", len(data))
	return true
}

// Get returns the current view config, or nil when none has been set.
func (vs *ViewStore) Get() json.RawMessage {
	vs.hub.mu.RLock()
	defer vs.hub.mu.RUnlock()
	return vs.hub.viewConfig
}

// Set validates, stores, persists, and announces a new view config.
// The announce goes through Redis PubSub so that every gateway replica
// (and this one, via its own subscription) broadcasts it to WS clients.
func (vs *ViewStore) Set(ctx context.Context, data []byte) error {
	if !json.Valid(data) {
		return errInvalidView
	}
	vs.apply(data)

	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	pipe := vs.rdb.Pipeline()
	pipe.Set(cctx, viewRedisKey, data, 0)
	pipe.Publish(cctx, viewChannel, data)
	if _, err := pipe.Exec(cctx); err != nil {
		log.Printf("[gateway] WARNING: failed to persist view config: %v", err)
		return err
	}
	return nil
}

// apply caches the config on the hub without persisting.
func (vs *ViewStore) apply(data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	vs.hub.mu.Lock()
	vs.hub.viewConfig = cp
	vs.hub.mu.Unlock()
}
