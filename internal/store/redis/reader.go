package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"giftpulse/internal/basket"
	"giftpulse/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// ReaderConfig configures the Redis reader.
type ReaderConfig struct {
	Addr          string
	Password      string
	DB            int
	ConsumerGroup string // consumer group name, e.g. "indexengine"
	ConsumerName  string // unique consumer name, e.g. hostname
}

// Reader reads chart points from Redis Streams via Consumer Groups
// and manages index engine snapshots.
type Reader struct {
	client        *goredis.Client
	consumerGroup string
	consumerName  string
}

// NewReader creates a new Redis Reader and pings the server.
func NewReader(cfg ReaderConfig) (*Reader, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	group := cfg.ConsumerGroup
	if group == "" {
		group = "indexengine"
	}
	consumer := cfg.ConsumerName
	if consumer == "" {
		consumer = "worker-1"
	}

	log.Printf("[redis-reader] connected to %s (group=%s, consumer=%s)", cfg.Addr, group, consumer)
	return &Reader{
		client:        client,
		consumerGroup: group,
		consumerName:  consumer,
	}, nil
}

// Client returns the underlying Redis client.
func (r *Reader) Client() *goredis.Client { return r.client }

// EnsureConsumerGroup creates a consumer group on the given streams if it doesn't exist.
// Uses "$" as start ID (only new messages) for fresh groups.
func (r *Reader) EnsureConsumerGroup(ctx context.Context, streams []string) error {
	for _, stream := range streams {
		err := r.client.XGroupCreateMkStream(ctx, stream, r.consumerGroup, "$").Err()
		if err != nil {
			// Ignore "BUSYGROUP" error; group already exists
			if err.Error() != "BUSYGROUP Consumer Group name already exists" {
				return fmt.Errorf("xgroup create %s: %w", stream, err)
			}
		}
	}
	return nil
}

// EnsureConsumerGroupFrom creates a consumer group starting from a specific stream ID.
// Used for replay after snapshot restore.
func (r *Reader) EnsureConsumerGroupFrom(ctx context.Context, stream, startID string) error {
	err := r.client.XGroupCreateMkStream(ctx, stream, r.consumerGroup, startID).Err()
	if err != nil {
		if err.Error() == "BUSYGROUP Consumer Group name already exists" {
			// Group exists; set the last delivered ID
			return r.client.XGroupSetID(ctx, stream, r.consumerGroup, startID).Err()
		}
		return fmt.Errorf("xgroup create from %s at %s: %w", stream, startID, err)
	}
	return nil
}

// ConsumePoints reads finalized chart points from Redis Streams using
// consumer groups. Blocks on XREADGROUP and sends parsed points to the
// output channel. Returns when ctx is cancelled.
func (r *Reader) ConsumePoints(ctx context.Context, streams []string, out chan<- model.ChartPoint) error {
	// Build stream args: [stream1, stream2, ..., ">", ">", ...]
	args := make([]string, len(streams)*2)
	for i, s := range streams {
		args[i] = s
		args[len(streams)+i] = ">"
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		results, err := r.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    r.consumerGroup,
			Consumer: r.consumerName,
			Streams:  args,
			Count:    100,
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			if err == goredis.Nil || ctx.Err() != nil {
				continue
			}
			log.Printf("[redis-reader] xreadgroup error: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range results {
			for _, msg := range stream.Messages {
				data, ok := msg.Values["data"].(string)
				if !ok {
					continue
				}

				var pt model.ChartPoint
				if err := json.Unmarshal([]byte(data), &pt); err != nil {
					log.Printf("[redis-reader] unmarshal ChartPoint error: %v", err)
					// ACK even on bad message to avoid poison pill
					r.client.XAck(ctx, stream.Stream, r.consumerGroup, msg.ID)
					continue
				}

				select {
				case out <- pt:
				case <-ctx.Done():
					return ctx.Err()
				}

				// ACK after successful processing
				r.client.XAck(ctx, stream.Stream, r.consumerGroup, msg.ID)
			}
		}
	}
}

// RecoverPending processes any pending (unACKed) messages from a previous crash.
// This ensures at-least-once delivery semantics.
func (r *Reader) RecoverPending(ctx context.Context, streams []string, out chan<- model.ChartPoint) error {
	for _, stream := range streams {
		for {
			pending, err := r.client.XPendingExt(ctx, &goredis.XPendingExtArgs{
				Stream: stream,
				Group:  r.consumerGroup,
				Start:  "-",
				End:    "+",
				Count:  100,
			}).Result()
			if err != nil || len(pending) == 0 {
				break
			}

			ids := make([]string, len(pending))
			for i, p := range pending {
				ids[i] = p.ID
			}

			claimed, err := r.client.XClaim(ctx, &goredis.XClaimArgs{
				Stream:   stream,
				Group:    r.consumerGroup,
				Consumer: r.consumerName,
				MinIdle:  0,
				Messages: ids,
			}).Result()
			if err != nil {
				log.Printf("[redis-reader] xclaim error on %s: %v", stream, err)
				break
			}

			for _, msg := range claimed {
				data, ok := msg.Values["data"].(string)
				if !ok {
					r.client.XAck(ctx, stream, r.consumerGroup, msg.ID)
					continue
				}

				var pt model.ChartPoint
				if err := json.Unmarshal([]byte(data), &pt); err != nil {
					r.client.XAck(ctx, stream, r.consumerGroup, msg.ID)
					continue
				}

				select {
				case out <- pt:
				case <-ctx.Done():
					return ctx.Err()
				}

				r.client.XAck(ctx, stream, r.consumerGroup, msg.ID)
			}

			if len(claimed) < len(ids) {
				break
			}
		}
	}
	return nil
}

// ReadSnapshot loads the latest index engine snapshot from Redis.
func (r *Reader) ReadSnapshot(ctx context.Context, snapshotKey string) (*basket.EngineSnapshot, error) {
	data, err := r.client.Get(ctx, snapshotKey).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil // no snapshot found
		}
		return nil, fmt.Errorf("redis get snapshot %s: %w", snapshotKey, err)
	}

	var snap basket.EngineSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// WriteSnapshot saves an index engine snapshot to Redis.
func (r *Reader) WriteSnapshot(ctx context.Context, snapshotKey string, snap *basket.EngineSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	// Store with TTL of 24h (snapshots are also in SQLite for durability)
	return r.client.Set(ctx, snapshotKey, string(data), 24*time.Hour).Err()
}

// ReplayFromID reads all messages from a stream starting from a given ID.
// Used during restore to replay points since the last snapshot.
func (r *Reader) ReplayFromID(ctx context.Context, stream, startID string, out chan<- model.ChartPoint) (string, error) {
	lastID := startID
	for {
		results, err := r.client.XRange(ctx, stream, "("+lastID, "+").Result()
		if err != nil {
			return lastID, fmt.Errorf("xrange %s from %s: %w", stream, lastID, err)
		}

		if len(results) == 0 {
			break
		}

		for _, msg := range results {
			data, ok := msg.Values["data"].(string)
			if !ok {
				lastID = msg.ID
				continue
			}

			var pt model.ChartPoint
			if err := json.Unmarshal([]byte(data), &pt); err != nil {
				lastID = msg.ID
				continue
			}

			select {
			case out <- pt:
			case <-ctx.Done():
				return lastID, ctx.Err()
			}

			lastID = msg.ID
		}

		// If we got fewer than expected, we've reached the end
		if len(results) < 1000 {
			break
		}
	}
	return lastID, nil
}

// DiscoverPointStreams finds existing chart point streams for the given
// resolution and gift ids.
func (r *Reader) DiscoverPointStreams(ctx context.Context, res model.Resolution, giftIDs []string) []string {
	var streams []string
	for _, id := range giftIDs {
		stream := "points:" + string(res) + ":" + id
		exists, err := r.client.Exists(ctx, stream).Result()
		if err == nil && exists > 0 {
			streams = append(streams, stream)
		}
	}
	return streams
}

// ReadPointRange reads finalized points for one gift/resolution from the
// stream, oldest first. Used for chart backfill in the gateway.
func (r *Reader) ReadPointRange(ctx context.Context, res model.Resolution, giftID string, limit int64) ([]model.ChartPoint, error) {
	stream := "points:" + string(res) + ":" + giftID
	msgs, err := r.client.XRevRangeN(ctx, stream, "+", "-", limit).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("xrevrange %s: %w", stream, err)
	}

	points := make([]model.ChartPoint, 0, len(msgs))
	// XRevRange returns newest first; reverse while decoding.
	for i := len(msgs) - 1; i >= 0; i-- {
		data, ok := msgs[i].Values["data"].(string)
		if !ok {
			continue
		}
		var pt model.ChartPoint
		if err := json.Unmarshal([]byte(data), &pt); err != nil {
			continue
		}
		points = append(points, pt)
	}
	return points, nil
}

// ReadIndexRange reads index points for one index, oldest first.
func (r *Reader) ReadIndexRange(ctx context.Context, indexID string, limit int64) ([]model.IndexPoint, error) {
	stream := "index:points:" + indexID
	msgs, err := r.client.XRevRangeN(ctx, stream, "+", "-", limit).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("xrevrange %s: %w", stream, err)
	}

	points := make([]model.IndexPoint, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		data, ok := msgs[i].Values["data"].(string)
		if !ok {
			continue
		}
		var ip model.IndexPoint
		if err := json.Unmarshal([]byte(data), &ip); err != nil {
			continue
		}
		points = append(points, ip)
	}
	return points, nil
}

// ReadLatestSnapshots fetches the latest gift snapshots for the given ids.
// Missing keys are skipped, never an error.
func (r *Reader) ReadLatestSnapshots(ctx context.Context, giftIDs []string) (map[string]model.Snapshot, error) {
	if len(giftIDs) == 0 {
		return map[string]model.Snapshot{}, nil
	}
	keys := make([]string, len(giftIDs))
	for i, id := range giftIDs {
		keys[i] = "gift:latest:" + id
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget latest snapshots: %w", err)
	}

	out := make(map[string]model.Snapshot, len(giftIDs))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var snap model.Snapshot
		if err := json.Unmarshal([]byte(s), &snap); err != nil {
			continue
		}
		out[giftIDs[i]] = snap
	}
	return out, nil
}

// ReadViewConfig fetches the shared display configuration blob.
// Returns "" when unset.
func (r *Reader) ReadViewConfig(ctx context.Context) (string, error) {
	data, err := r.client.Get(ctx, ViewConfigKey).Result()
	if err != nil {
		if err == goredis.Nil {
			return "", nil
		}
		return "", err
	}
	return data, nil
}

// SubscribeChannel subscribes to a Redis Pub/Sub channel.
// Returns the PubSub handle so the caller can listen on .Channel().
func (r *Reader) SubscribeChannel(ctx context.Context, channel string) *goredis.PubSub {
	pubsub := r.client.Subscribe(ctx, channel)
	// Wait for confirmation
	_, err := pubsub.Receive(ctx)
	if err != nil {
		log.Printf("[redis-reader] subscribe to %s failed: %v", channel, err)
		pubsub.Close()
		return nil
	}
	return pubsub
}

// PSubscribe subscribes to a Redis Pub/Sub pattern.
func (r *Reader) PSubscribe(ctx context.Context, pattern string) *goredis.PubSub {
	return r.client.PSubscribe(ctx, pattern)
}

// Publish publishes a message to a Redis Pub/Sub channel.
func (r *Reader) Publish(ctx context.Context, channel, message string) error {
	return r.client.Publish(ctx, channel, message).Err()
}

// Close closes the Redis client.
func (r *Reader) Close() error {
	return r.client.Close()
}
