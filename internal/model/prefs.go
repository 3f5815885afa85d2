package model

import "encoding/json"

// Preferences holds per-user display settings. Stored as a single JSON
// blob; a missing or unparsable blob always yields the defaults, never
// an error to the caller.
type Preferences struct {
	Currency       string `json:"currency"`       // "ton" | "usd"
	GiftType       string `json:"giftType"`       // chart style: "line" | "candle" | ...
	GiftBackground string `json:"giftBackground"` // "none" | ...
}

// DefaultPreferences returns the preference defaults.
func DefaultPreferences() Preferences {
	return Preferences{
		Currency:       "ton",
		GiftType:       "line",
		GiftBackground: "none",
	}
}

// DecodePreferences parses a stored preference blob, falling back to
// defaults on empty or malformed input. Unknown fields are ignored;
// fields absent from the blob keep their default values.
func DecodePreferences(data []byte) Preferences {
	p := DefaultPreferences()
	if len(data) == 0 {
		return p
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return DefaultPreferences()
	}
	if p.Currency == "" {
		p.Currency = "ton"
	}
	if p.GiftType == "" {
		p.GiftType = "line"
	}
	if p.GiftBackground == "" {
		p.GiftBackground = "none"
	}
	return p
}
