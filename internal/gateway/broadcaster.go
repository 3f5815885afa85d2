package gateway

import (
	"encoding/json"
	"strconv"
	"time"
)

// Broadcaster constructs envelope JSON and sends filtered messages to clients.
type Broadcaster struct {
	hub *Hub
}

// NewBroadcaster creates a Broadcaster backed by the given Hub.
func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// Broadcast sends data on a channel to all subscribed clients.
// Uses hand-crafted JSON envelope for performance (~1μs vs ~25μs for json.Marshal).
// Includes per-channel seq for client-side gap detection.
func (b *Broadcaster) Broadcast(channel string, data []byte) {
	start := time.Now()
	now := start.UTC()

	// Record e2e latency when the payload carries its source timestamp
	if b.hub.Latency != nil {
		if srcTS := extractTS(data); !srcTS.IsZero() {
			b.hub.Latency.Record(now.Sub(srcTS))
		}
	}

	b.hub.mu.Lock()
	// Per-channel seq for gap detection
	b.hub.channelSeqs[channel]++
	channelSeq := b.hub.channelSeqs[channel]
	b.hub.latest[channel] = latestEntry{Data: data, TS: now, Seq: channelSeq}

	// Global seq (backwards compatible)
	b.hub.seq++
	seq := b.hub.seq
	b.hub.mu.Unlock()

	// Hand-craft envelope JSON
	buf := make([]byte, 0, len(channel)+len(data)+160)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')

	// Retain for gap backfill
	b.hub.mu.Lock()
	rl, exists := b.hub.replayBufs[channel]
	if !exists {
		rl = NewReplayLog(defaultReplayDepth)
		b.hub.replayBufs[channel] = rl
	}
	b.hub.mu.Unlock()
	rl.Append(channelSeq, buf)

	// Fan out to subscribed clients
	b.hub.mu.RLock()
	for client := range b.hub.clients {
		if !client.matchesChannel(channel) {
			continue
		}
		select {
		case client.send <- buf:
		default:
		}
	}
	b.hub.mu.RUnlock()

	if b.hub.Prom != nil {
		b.hub.Prom.WSMessagesTotal.Inc()
		b.hub.Prom.BroadcastDur.Observe(time.Since(start).Seconds())
	}
}

// extractTS attempts to extract a "ts" field from a JSON payload for e2e latency.
func extractTS(data []byte) time.Time {
	var partial struct {
		TS time.Time `json:"ts"`
	}
	if err := json.Unmarshal(data, &partial); err == nil && !partial.TS.IsZero() {
		return partial.TS
	}
	return time.Time{}
}
