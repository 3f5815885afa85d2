package redis

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"giftpulse/internal/model"
)

// pendingWrite represents a write that was buffered during circuit-open state.
type pendingWrite struct {
	WriteType string // "snapshot", "point"
	Data      []byte // JSON-encoded payload
}

// BufferedWriter wraps a Redis Writer with a circuit breaker.
// During circuit-open state, writes are buffered locally and flushed
// when the circuit closes again.
type BufferedWriter struct {
	writer *Writer
	cb     *gobreaker.CircuitBreaker[struct{}]
	ctx    context.Context

	mu     sync.Mutex
	buffer []pendingWrite
	maxBuf int // max buffered writes before dropping oldest (default: 10000)

	// Callbacks
	OnBuffer func()          // called when a write is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered writes
}

// NewBufferedWriter creates a BufferedWriter wrapping the given Writer.
func NewBufferedWriter(ctx context.Context, w *Writer, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		writer: w,
		ctx:    ctx,
		buffer: make([]pendingWrite, 0, 256),
		maxBuf: maxBufferSize,
	}

	bw.cb = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "redis-writer",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[buffered-writer] breaker %s -> %s", from, to)
			if to == gobreaker.StateClosed {
				go bw.flush()
			}
		},
	})

	return bw
}

// WriteSnapshot writes a gift snapshot through the circuit breaker.
// A failed or rejected write is buffered locally for replay once the
// circuit closes again.
func (bw *BufferedWriter) WriteSnapshot(snap model.Snapshot) error {
	_, err := bw.cb.Execute(func() (struct{}, error) {
		return struct{}{}, bw.writer.writeSnapshot(bw.ctx, snap)
	})
	if err != nil {
		bw.bufferWrite("snapshot", snap)
	}
	return nil // buffered, not lost
}

// WritePoint writes a finalized chart point through the circuit breaker.
func (bw *BufferedWriter) WritePoint(pt model.ChartPoint) error {
	_, err := bw.cb.Execute(func() (struct{}, error) {
		return struct{}{}, bw.writer.writePoint(bw.ctx, pt)
	})
	if err != nil {
		bw.bufferWrite("point", pt)
	}
	return nil
}

func (bw *BufferedWriter) bufferWrite(writeType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[buffered-writer] marshal error: %v", err)
		return
	}

	bw.mu.Lock()
	defer bw.mu.Unlock()

	if len(bw.buffer) >= bw.maxBuf {
		// Buffer full, drop oldest
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, pendingWrite{WriteType: writeType, Data: data})

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays all buffered writes through the underlying writer.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	// Take ownership of the buffer
	toFlush := bw.buffer
	bw.buffer = make([]pendingWrite, 0, 256)
	bw.mu.Unlock()

	flushed := 0
	for _, pw := range toFlush {
		var err error
		switch pw.WriteType {
		case "snapshot":
			var snap model.Snapshot
			if err = json.Unmarshal(pw.Data, &snap); err == nil {
				err = bw.writer.writeSnapshot(bw.ctx, snap)
			}
		case "point":
			var pt model.ChartPoint
			if err = json.Unmarshal(pw.Data, &pt); err == nil {
				err = bw.writer.writePoint(bw.ctx, pt)
			}
		}
		if err != nil {
			log.Printf("[buffered-writer] replay: %v", err)
			continue
		}
		flushed++
	}

	log.Printf("[buffered-writer] flushed %d buffered writes", flushed)
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered writes waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Underlying returns the underlying Redis writer for direct access.
func (bw *BufferedWriter) Underlying() *Writer {
	return bw.writer
}
