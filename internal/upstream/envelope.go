package upstream

import (
	"encoding/json"
	"fmt"
)

// envelope is the documented response wrapper for list endpoints. The
// remote API is not consistent about its wrapper key; historical
// deployments answer with "data", "items" or "results", and some
// endpoints return a bare array. All of that is accepted here, at one
// boundary, and nowhere else; an unrecognized shape is an error rather
// than a silently empty list.
type envelope struct {
	Data    json.RawMessage `json:"data"`
	Items   json.RawMessage `json:"items"`
	Results json.RawMessage `json:"results"`
}

// decodeList unmarshals a list payload into out, unwrapping the response
// envelope when present.
func decodeList(body []byte, out interface{}) error {
	trimmed := firstByte(body)
	if trimmed == '[' {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode list: %w", err)
		}
		return nil
	}
	if trimmed != '{' {
		return fmt.Errorf("decode list: unexpected payload shape")
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}

	inner := env.Data
	if inner == nil {
		inner = env.Items
	}
	if inner == nil {
		inner = env.Results
	}
	if inner == nil {
		return fmt.Errorf("decode envelope: no data/items/results key")
	}
	if err := json.Unmarshal(inner, out); err != nil {
		return fmt.Errorf("decode envelope payload: %w", err)
	}
	return nil
}

// firstByte returns the first non-whitespace byte of b, or 0.
func firstByte(b []byte) byte {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return c
	}
	return 0
}
