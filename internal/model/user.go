package model

import "time"

// User is an application profile keyed by the mini-app host identity.
type User struct {
	ID        int64     `json:"id"` // telegram user id
	Wallet    string    `json:"wallet,omitempty"`
	Watchlist []string  `json:"watchlist"` // gift ids
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Holding is one held gift position in a user's portfolio.
type Holding struct {
	UserID int64   `json:"userId"`
	GiftID string  `json:"giftId"`
	Amount int64   `json:"amount"`
	AvgTon float64 `json:"avgTon,omitempty"` // average acquisition price, TON
}

// Vote is a user's up/down vote on a gift.
type Vote struct {
	UserID int64     `json:"userId"`
	GiftID string    `json:"giftId"`
	Up     bool      `json:"up"`
	TS     time.Time `json:"ts"`
}
