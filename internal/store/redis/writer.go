package redis

import (
	"context"
	"fmt"
	"log"
	"time"
	"unsafe"

	"giftpulse/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// Stream trimming: two weeks of hour points plus buffer.
	streamHourMaxLen = 500
	// Day points are cheap; keep several years.
	streamDayMaxLen = 2000

	defaultLatestTTL = 30 * time.Minute

	// ViewConfigKey holds the shared display configuration blob.
	ViewConfigKey = "view:config"
	// ViewConfigChannel announces display configuration changes.
	ViewConfigChannel = "pub:view"
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer writes gift snapshots, resampled chart points, and index points
// to Redis.
type Writer struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
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

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client}, nil
}

// Run reads gift snapshots from snapCh and writes them to Redis.
// Blocks until ctx is cancelled or snapCh is closed.
func (w *Writer) Run(ctx context.Context, snapCh <-chan model.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapCh:
			if !ok {
				return
			}
			if err := w.writeSnapshot(ctx, snap); err != nil {
				log.Printf("[redis] %v", err)
			}
		}
	}
}

// RunPoints reads resampled chart points and writes them to Redis.
// Forming points go out via PubSub only; finalized points get the full
// XADD + SET + PUBLISH pipeline. Blocks until ctx is cancelled or the
// channel is closed.
func (w *Writer) RunPoints(ctx context.Context, pointCh <-chan model.ChartPoint) {
	for {
		select {
		case <-ctx.Done():
			return
		case pt, ok := <-pointCh:
			if !ok {
				return
			}
			if pt.Forming {
				w.publishForming(ctx, pt)
				continue
			}
			if err := w.writePoint(ctx, pt); err != nil {
				log.Printf("[redis] %v", err)
			}
		}
	}
}

// publishForming publishes a forming chart point via PubSub ONLY (no XADD).
// Used for live chart-tip updates between bucket rollovers.
// OPTIMIZED: uses string concat instead of fmt.Sprintf.
func (w *Writer) publishForming(ctx context.Context, pt model.ChartPoint) {
	jsonBytes := pt.JSON()
	jsonData := *(*string)(unsafe.Pointer(&jsonBytes))
	w.client.Publish(ctx, "pub:gift:"+string(pt.Res)+":"+pt.GiftID, jsonData)
}

// WriteIndexBatch writes multiple index points in a single Redis pipeline.
// This batches XADD + SET + PUBLISH for all points into one network roundtrip.
func (w *Writer) WriteIndexBatch(ctx context.Context, points []model.IndexPoint) {
	if len(points) == 0 {
		return
	}

	pipe := w.client.Pipeline()
	for i := range points {
		ip := &points[i]

		jsonBytes := ip.JSON()
		// Zero-copy []byte→string (safe: jsonBytes is not mutated after this)
		jsonData := *(*string)(unsafe.Pointer(&jsonBytes))

		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: ip.StreamKey(),
			MaxLen: streamDayMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": jsonData},
		})
		pipe.Set(ctx, "index:latest:"+ip.IndexID, jsonData, 0)
		pipe.Publish(ctx, ip.PubSubChannel(), jsonData)
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		log.Printf("[redis] index batch pipeline error (%d points): %v", len(points), err)
	}
}

// WriteViewConfig stores the shared display configuration and announces
// the change to subscribers.
func (w *Writer) WriteViewConfig(ctx context.Context, data string) error {
	pipe := w.client.Pipeline()
	pipe.Set(ctx, ViewConfigKey, data, 0)
	pipe.Publish(ctx, ViewConfigChannel, data)
	_, err := pipe.Exec(ctx)
	return err
}

// writeSnapshot performs pipelined writes for one gift snapshot:
// SET latest + PUBLISH for live subscribers. The error surfaces so the
// buffered writer's breaker can count failures.
func (w *Writer) writeSnapshot(ctx context.Context, snap model.Snapshot) error {
	latestKey := "gift:latest:" + snap.GiftID
	pubsubCh := "pub:gift:live:" + snap.GiftID
	jsonData := string(snap.JSON())

	pipe := w.client.Pipeline()
	pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)
	pipe.Publish(ctx, pubsubCh, jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("snapshot pipeline %s: %w", snap.Key(), err)
	}
	return nil
}

// writePoint persists a finalized chart point to its Redis Stream.
func (w *Writer) writePoint(ctx context.Context, pt model.ChartPoint) error {
	streamKey := pt.StreamKey()
	maxLen := int64(streamHourMaxLen)
	if pt.Res == model.ResDay {
		maxLen = streamDayMaxLen
	}

	jsonData := string(pt.JSON())

	pipe := w.client.Pipeline()

	// XADD to the per-resolution stream
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey,
		MaxLen: maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": jsonData,
		},
	})

	// SET latest finalized point
	latestKey := "points:latest:" + string(pt.Res) + ":" + pt.GiftID
	pipe.Set(ctx, latestKey, jsonData, 0)

	// PUBLISH for real-time subscribers
	pipe.Publish(ctx, pt.PubSubChannel(), jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("point pipeline %s: %w", pt.Key(), err)
	}
	return nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
