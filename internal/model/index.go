package model

import (
	"encoding/json"
	"time"
)

// Index is a named basket of gifts tracked as a single synthetic asset.
type Index struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Members []string `json:"members,omitempty"` // gift ids; empty = all gifts
}

// IndexPoint is one computed value of an index basket.
type IndexPoint struct {
	IndexID string    `json:"indexId"`
	TS      time.Time `json:"ts"`
	Value   float64   `json:"value"` // basket value in TON
	Members int       `json:"members"`
}

// StreamKey returns the Redis stream index points are appended to.
func (p *IndexPoint) StreamKey() string {
	return "index:points:" + p.IndexID
}

// PubSubChannel returns the Redis PubSub channel for live index updates.
func (p *IndexPoint) PubSubChannel() string {
	return "pub:index:" + p.IndexID
}

// JSON returns the JSON-encoded point (ignoring errors for hot-path usage).
func (p *IndexPoint) JSON() []byte {
	b, _ := json.Marshal(p)
	return b
}
