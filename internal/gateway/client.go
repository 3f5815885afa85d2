package gateway

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"giftpulse/internal/model"
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// Per-client subscriptions, keyed by ClientSubscription.SubKey
	subMu sync.RWMutex
	subs  map[string]*ClientSubscription
}

func (c *Client) sendInitialState(lastTS string) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	var cutoff time.Time
	if lastTS != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, lastTS); err == nil {
			cutoff = parsed
		}
	}

	for channel, entry := range c.hub.latest {
		if !cutoff.IsZero() && !entry.TS.After(cutoff) {
			continue
		}

		envelope, _ := json.Marshal(map[string]interface{}{
			"channel": channel,
			"data":    json.RawMessage(entry.Data),
			"ts":      entry.TS.Format(time.RFC3339Nano),
			"initial": true,
		})
		select {
		case c.send <- envelope:
		default:
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			// Write coalescing: use NextWriter to batch queued messages
			// into a single WebSocket frame with newline separators
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			// Drain any queued messages into the same write
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var base struct {
			Type string `json:"type"`
			Ping int64  `json:"ping"`
		}
		if json.Unmarshal(msg, &base) != nil {
			continue
		}

		switch base.Type {
		case "SUBSCRIBE":
			var subMsg SubscribeMsg
			if err := json.Unmarshal(msg, &subMsg); err != nil {
				SendError(c, "", "invalid SUBSCRIBE: "+err.Error())
				continue
			}
			go c.handleSubscribe(subMsg)

		case "UNSUBSCRIBE":
			var unsubMsg UnsubscribeMsg
			if err := json.Unmarshal(msg, &unsubMsg); err != nil {
				continue
			}
			c.handleUnsubscribe(unsubMsg)

		default:
			// App-level ping for RTT measurement
			if base.Ping > 0 {
				pong, _ := json.Marshal(map[string]interface{}{
					"type":      "pong",
					"ping":      base.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
				select {
				case c.send <- pong:
				default:
				}
			}
		}
	}
}

// handleSubscribe processes a SUBSCRIBE message from the client.
func (c *Client) handleSubscribe(msg SubscribeMsg) {
	sub, err := ResolveSubscription(msg)
	if err != nil {
		SendError(c, msg.ReqID, err.Error())
		return
	}

	c.subMu.Lock()
	if c.subs == nil {
		c.subs = make(map[string]*ClientSubscription)
	}
	c.subs[sub.SubKey()] = sub
	c.subMu.Unlock()

	log.Printf("[gateway] client subscribed: %s", sub.SubKey())

	limit := msg.History.Points
	if limit <= 0 {
		limit = 500
	}

	snap, err := BuildSnapshotFromRedis(context.Background(), c.hub.Rdb, sub, limit)
	if err != nil {
		SendError(c, msg.ReqID, "snapshot build failed: "+err.Error())
		return
	}
	snap.ReqID = msg.ReqID

	SendJSON(c, snap)
	log.Printf("[gateway] sent snapshot: %s points=%d", sub.SubKey(), snap.Len())
}

// handleUnsubscribe removes a subscription.
func (c *Client) handleUnsubscribe(msg UnsubscribeMsg) {
	sub, err := ResolveSubscription(SubscribeMsg{
		GiftID: msg.GiftID, IndexID: msg.IndexID, Range: msg.Range,
	})
	if err != nil {
		return
	}
	c.subMu.Lock()
	delete(c.subs, sub.SubKey())
	c.subMu.Unlock()

	log.Printf("[gateway] client unsubscribed: %s", sub.SubKey())
}

// matchesChannel checks if a PubSub channel matches any of this client's
// subscriptions. Clients with no subscriptions receive everything.
func (c *Client) matchesChannel(channel string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	if len(c.subs) == 0 {
		return true
	}

	parsed := parseChannel(channel)
	if parsed == nil {
		return true // non-data channel (view, metrics), always deliver
	}

	for _, sub := range c.subs {
		switch parsed.chType {
		case chanLive:
			// Live price ticks go to anyone watching the gift at any range
			if sub.GiftID == parsed.id {
				return true
			}
		case chanPoint:
			if sub.GiftID == parsed.id && sub.Res == parsed.res {
				return true
			}
		case chanIndex:
			if sub.IndexID == parsed.id {
				return true
			}
		}
	}
	return false
}

// parsedChannel holds the parsed components of a Redis PubSub channel name.
type parsedChannel struct {
	chType string // chanLive, chanPoint, chanIndex
	res    model.Resolution
	id     string // gift or index id
}

const (
	chanLive  = "live"
	chanPoint = "point"
	chanIndex = "index"
)

// parseChannel parses a PubSub channel like "pub:gift:live:plush-pepe",
// "pub:gift:hour:plush-pepe", or "pub:index:mcap". Returns nil for
// anything else (view config, metrics).
func parseChannel(channel string) *parsedChannel {
	const (
		giftPrefix  = "pub:gift:"
		indexPrefix = "pub:index:"
	)

	if len(channel) > len(indexPrefix) && channel[:len(indexPrefix)] == indexPrefix {
		return &parsedChannel{chType: chanIndex, id: channel[len(indexPrefix):]}
	}
	if len(channel) <= len(giftPrefix) || channel[:len(giftPrefix)] != giftPrefix {
		return nil
	}

	rest := channel[len(giftPrefix):] // "live:plush-pepe" or "hour:plush-pepe"
	for i := 0; i < len(rest); i++ {
		if rest[i] != ':' {
			continue
		}
		kind, id := rest[:i], rest[i+1:]
		if id == "" {
			return nil
		}
		if kind == "live" {
			return &parsedChannel{chType: chanLive, id: id}
		}
		if res := model.Resolution(kind); res.Valid() {
			return &parsedChannel{chType: chanPoint, res: res, id: id}
		}
		return nil
	}
	return nil
}
