package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"giftpulse/internal/basket"
	"giftpulse/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to SQLite for chart backfill, user
// state, and snapshot restore.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadPoints reads finalized chart points for one gift and resolution.
// Results are ordered by timestamp ascending for correct replay order.
func (r *Reader) ReadPoints(giftID string, res model.Resolution, afterTS int64) ([]model.ChartPoint, error) {
	rows, err := r.db.Query(`
		SELECT gift_id, res, ts, open, high, low, close, price_usd, on_sale, volume, sales_count, samples
		FROM points
		WHERE gift_id = ? AND res = ? AND ts > ?
		ORDER BY ts ASC
	`, giftID, string(res), afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query points: %w", err)
	}
	defer rows.Close()

	var points []model.ChartPoint
	for rows.Next() {
		var p model.ChartPoint
		var res string
		var tsUnix int64
		if err := rows.Scan(&p.GiftID, &res, &tsUnix, &p.Open, &p.High, &p.Low, &p.Close, &p.PriceUsd, &p.OnSale, &p.Volume, &p.SalesCount, &p.Samples); err != nil {
			return nil, fmt.Errorf("sqlite scan points: %w", err)
		}
		p.Res = model.Resolution(res)
		p.TS = time.Unix(tsUnix, 0).UTC()
		points = append(points, p)
	}
	return points, rows.Err()
}

// ReadIndexPoints reads index points for one index, ordered ascending.
func (r *Reader) ReadIndexPoints(indexID string, afterTS int64) ([]model.IndexPoint, error) {
	rows, err := r.db.Query(`
		SELECT index_id, ts, value
		FROM index_points
		WHERE index_id = ? AND ts > ?
		ORDER BY ts ASC
	`, indexID, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query index_points: %w", err)
	}
	defer rows.Close()

	var points []model.IndexPoint
	for rows.Next() {
		var p model.IndexPoint
		var tsUnix int64
		if err := rows.Scan(&p.IndexID, &tsUnix, &p.Value); err != nil {
			return nil, fmt.Errorf("sqlite scan index_points: %w", err)
		}
		p.TS = time.Unix(tsUnix, 0).UTC()
		points = append(points, p)
	}
	return points, rows.Err()
}

// ReadLatestSnapshot loads the most recent index engine snapshot.
func (r *Reader) ReadLatestSnapshot() (*basket.EngineSnapshot, error) {
	var data string
	err := r.db.QueryRow(`
		SELECT data FROM index_snapshots
		ORDER BY id DESC
		LIMIT 1
	`).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // no snapshot
		}
		return nil, fmt.Errorf("sqlite read snapshot: %w", err)
	}

	var snap basket.EngineSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// GetUser loads a user with watchlist and holdings. Returns nil when the
// user does not exist.
func (r *Reader) GetUser(userID int64) (*model.User, error) {
	u := &model.User{ID: userID}
	var created, updated int64
	err := r.db.QueryRow(`SELECT wallet, created_at, updated_at FROM users WHERE id = ?`, userID).
		Scan(&u.Wallet, &created, &updated)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite read user %d: %w", userID, err)
	}
	u.CreatedAt = time.Unix(created, 0).UTC()
	u.UpdatedAt = time.Unix(updated, 0).UTC()

	rows, err := r.db.Query(`SELECT gift_id FROM watchlist WHERE user_id = ? ORDER BY gift_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite read watchlist: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		u.Watchlist = append(u.Watchlist, id)
	}
	return u, rows.Err()
}

// ReadHoldings loads all holdings for a user.
func (r *Reader) ReadHoldings(userID int64) ([]model.Holding, error) {
	rows, err := r.db.Query(`
		SELECT user_id, gift_id, amount, avg_ton FROM holdings WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite read holdings: %w", err)
	}
	defer rows.Close()

	var holdings []model.Holding
	for rows.Next() {
		var h model.Holding
		if err := rows.Scan(&h.UserID, &h.GiftID, &h.Amount, &h.AvgTon); err != nil {
			return nil, err
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

// ReadPreferences loads display preferences for a user. A missing row or
// an unparsable blob yields defaults, never an error.
func (r *Reader) ReadPreferences(userID int64) model.Preferences {
	var data string
	err := r.db.QueryRow(`SELECT data FROM preferences WHERE user_id = ?`, userID).Scan(&data)
	if err != nil {
		if err != sql.ErrNoRows {
			log.Printf("[sqlite-reader] preferences read for %d: %v", userID, err)
		}
		return model.DefaultPreferences()
	}
	return model.DecodePreferences([]byte(data))
}

// ReadVoteTotals returns (up, down) vote counts for a gift.
func (r *Reader) ReadVoteTotals(giftID string) (int, int, error) {
	var up, down int
	err := r.db.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN up = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN up = 0 THEN 1 ELSE 0 END), 0)
		FROM votes WHERE gift_id = ?
	`, giftID).Scan(&up, &down)
	if err != nil {
		return 0, 0, fmt.Errorf("sqlite read votes: %w", err)
	}
	return up, down, nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
