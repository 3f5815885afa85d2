package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sort"

	goredis "github.com/go-redis/redis/v8"

	"giftpulse/internal/model"
)

// ── WS Protocol Message Types ──

// SubscribeMsg is the client → server SUBSCRIBE request. Exactly one of
// giftId or indexId must be set; range selects the chart resolution and
// only applies to gifts.
type SubscribeMsg struct {
	Type    string         `json:"type"`  // "SUBSCRIBE"
	ReqID   string         `json:"reqId"` // client-generated request ID
	GiftID  string         `json:"giftId,omitempty"`
	IndexID string         `json:"indexId,omitempty"`
	Range   string         `json:"range,omitempty"` // "week" (default) or "life"
	History HistoryRequest `json:"history"`
}

// HistoryRequest specifies how many historical points the snapshot carries.
type HistoryRequest struct {
	Points int `json:"points"`
}

// UnsubscribeMsg is the client → server UNSUBSCRIBE request.
type UnsubscribeMsg struct {
	Type    string `json:"type"` // "UNSUBSCRIBE"
	ReqID   string `json:"reqId"`
	GiftID  string `json:"giftId,omitempty"`
	IndexID string `json:"indexId,omitempty"`
	Range   string `json:"range,omitempty"`
}

// SnapshotResponse is the server → client SNAPSHOT with historical data.
type SnapshotResponse struct {
	Type        string             `json:"type"` // "SNAPSHOT"
	ReqID       string             `json:"reqId"`
	GiftID      string             `json:"giftId,omitempty"`
	IndexID     string             `json:"indexId,omitempty"`
	Res         model.Resolution   `json:"res,omitempty"`
	Points      []model.ChartPoint `json:"points,omitempty"`
	IndexPoints []model.IndexPoint `json:"indexPoints,omitempty"`
}

// Len returns the number of historical points in the snapshot.
func (s *SnapshotResponse) Len() int {
	return len(s.Points) + len(s.IndexPoints)
}

// ErrorResponse is the server → client ERROR message.
type ErrorResponse struct {
	Type  string `json:"type"` // "ERROR"
	ReqID string `json:"reqId,omitempty"`
	Error string `json:"error"`
}

// ── Subscription State ──

// ClientSubscription holds one resolved subscription for a client:
// either a (gift, resolution) pair or an index.
type ClientSubscription struct {
	GiftID  string
	IndexID string
	Res     model.Resolution
}

// SubKey returns the map key for this subscription.
func (s *ClientSubscription) SubKey() string {
	if s.IndexID != "" {
		return "index:" + s.IndexID
	}
	return "gift:" + s.GiftID + ":" + string(s.Res)
}

// ResolveSubscription validates a SUBSCRIBE message into subscription state.
func ResolveSubscription(msg SubscribeMsg) (*ClientSubscription, error) {
	if msg.GiftID != "" && msg.IndexID != "" {
		return nil, errors.New("giftId and indexId are mutually exclusive")
	}
	if msg.IndexID != "" {
		return &ClientSubscription{IndexID: msg.IndexID}, nil
	}
	if msg.GiftID == "" {
		return nil, errors.New("giftId or indexId is required")
	}

	rng := msg.Range
	if rng == "" {
		rng = "week"
	}
	res, ok := model.ParseResolution(rng)
	if !ok {
		return nil, errors.New("unknown range: " + msg.Range)
	}
	return &ClientSubscription{GiftID: msg.GiftID, Res: res}, nil
}

// ── Redis History Fetching ──

// BuildSnapshotFromRedis reads historical points for a subscription from
// its Redis stream. Missing streams yield an empty snapshot, not an error:
// a freshly listed gift simply has no history yet.
func BuildSnapshotFromRedis(ctx context.Context, rdb *goredis.Client, sub *ClientSubscription, limit int) (*SnapshotResponse, error) {
	if limit <= 0 {
		limit = 500
	}
	if limit > 2000 {
		limit = 2000
	}

	snap := &SnapshotResponse{
		Type:    "SNAPSHOT",
		GiftID:  sub.GiftID,
		IndexID: sub.IndexID,
		Res:     sub.Res,
	}

	if sub.IndexID != "" {
		streamKey := "index:points:" + sub.IndexID
		raw, err := readStreamData(ctx, rdb, streamKey, limit)
		if err != nil {
			log.Printf("[gateway] index stream read error for %s: %v", streamKey, err)
			return snap, nil
		}
		points := make([]model.IndexPoint, 0, len(raw))
		for _, data := range raw {
			var p model.IndexPoint
			if json.Unmarshal(data, &p) == nil {
				points = append(points, p)
			}
		}
		sort.SliceStable(points, func(i, j int) bool {
			return points[i].TS.Before(points[j].TS)
		})
		snap.IndexPoints = points
		return snap, nil
	}

	streamKey := "points:" + string(sub.Res) + ":" + sub.GiftID
	raw, err := readStreamData(ctx, rdb, streamKey, limit)
	if err != nil {
		log.Printf("[gateway] point stream read error for %s: %v", streamKey, err)
		return snap, nil
	}

	points := make([]model.ChartPoint, 0, len(raw))
	for _, data := range raw {
		var p model.ChartPoint
		if json.Unmarshal(data, &p) == nil {
			points = append(points, p)
		}
	}
	snap.Points = dedupePoints(points)
	return snap, nil
}

// readStreamData fetches the newest entries of a stream and returns their
// "data" payloads in chronological order.
func readStreamData(ctx context.Context, rdb *goredis.Client, streamKey string, limit int) ([]json.RawMessage, error) {
	msgs, err := rdb.XRevRangeN(ctx, streamKey, "+", "-", int64(limit)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]json.RawMessage, 0, len(msgs))
	// XRevRange yields newest first; walk backwards for chronological order
	for i := len(msgs) - 1; i >= 0; i-- {
		dataStr, ok := msgs[i].Values["data"].(string)
		if !ok {
			continue
		}
		out = append(out, json.RawMessage(dataStr))
	}
	return out, nil
}

// dedupePoints keeps the last value per bucket timestamp and returns the
// result sorted chronologically. The stream may hold several entries per
// bucket when a tail bucket was re-finalized after a restart replay.
func dedupePoints(points []model.ChartPoint) []model.ChartPoint {
	seen := make(map[int64]int, len(points))
	deduped := make([]model.ChartPoint, 0, len(points))
	for _, pt := range points {
		key := pt.TS.Unix()
		if idx, ok := seen[key]; ok {
			deduped[idx] = pt // newer entry wins
		} else {
			seen[key] = len(deduped)
			deduped = append(deduped, pt)
		}
	}
	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].TS.Before(deduped[j].TS)
	})
	return deduped
}

// SendJSON marshals and sends a message to the client's send channel.
func SendJSON(c *Client, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[gateway] json marshal error: %v", err)
		return
	}
	select {
	case c.send <- data:
	default:
		log.Println("[gateway] client send buffer full, dropping message")
	}
}

// SendError sends an error response to the client.
func SendError(c *Client, reqID, errMsg string) {
	SendJSON(c, ErrorResponse{
		Type:  "ERROR",
		ReqID: reqID,
		Error: errMsg,
	})
}
