package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"giftpulse/internal/basket"
	"giftpulse/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/giftpulse.db"
}

// Writer is a single-goroutine SQLite writer with transaction batching.
type Writer struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS points (
			gift_id     TEXT    NOT NULL,
			res         TEXT    NOT NULL,
			ts          INTEGER NOT NULL,
			open        REAL    NOT NULL,
			high        REAL    NOT NULL,
			low         REAL    NOT NULL,
			close       REAL    NOT NULL,
			price_usd   REAL,
			on_sale     INTEGER,
			volume      REAL,
			sales_count INTEGER,
			samples     INTEGER,
			PRIMARY KEY (gift_id, res, ts)
		);

		CREATE TABLE IF NOT EXISTS index_points (
			index_id TEXT    NOT NULL,
			ts       INTEGER NOT NULL,
			value    REAL    NOT NULL,
			PRIMARY KEY (index_id, ts)
		);

		CREATE TABLE IF NOT EXISTS index_snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			data       TEXT    NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);

		CREATE TABLE IF NOT EXISTS users (
			id         INTEGER PRIMARY KEY,
			wallet     TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS watchlist (
			user_id INTEGER NOT NULL,
			gift_id TEXT    NOT NULL,
			PRIMARY KEY (user_id, gift_id)
		);

		CREATE TABLE IF NOT EXISTS holdings (
			user_id INTEGER NOT NULL,
			gift_id TEXT    NOT NULL,
			amount  REAL    NOT NULL,
			avg_ton REAL    NOT NULL,
			PRIMARY KEY (user_id, gift_id)
		);

		CREATE TABLE IF NOT EXISTS preferences (
			user_id INTEGER PRIMARY KEY,
			data    TEXT    NOT NULL
		);

		CREATE TABLE IF NOT EXISTS votes (
			user_id INTEGER NOT NULL,
			gift_id TEXT    NOT NULL,
			up      INTEGER NOT NULL,
			ts      INTEGER NOT NULL,
			PRIMARY KEY (user_id, gift_id)
		);

		CREATE TABLE IF NOT EXISTS holdings_journal (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id   INTEGER NOT NULL,
			gift_id   TEXT    NOT NULL,
			delta     REAL    NOT NULL,
			price_ton REAL    NOT NULL,
			ts        INTEGER NOT NULL
		);
	`)
	return err
}

// Run reads finalized chart points from pointCh and inserts them in
// batched transactions. Flushes every batchSize points OR every
// flushDelay, whichever first. Blocks until ctx is cancelled or pointCh
// is closed.
func (w *Writer) Run(ctx context.Context, pointCh <-chan model.ChartPoint) {
	batch := make([]model.ChartPoint, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertBatch(batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		} else {
			log.Printf("[sqlite] committed %d points in %v", len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case pt, ok := <-pointCh:
			if !ok {
				flush()
				return
			}
			if pt.Forming {
				continue // only finalized points are durable
			}
			batch = append(batch, pt)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// insertBatch inserts a batch of chart points in a single transaction.
func (w *Writer) insertBatch(points []model.ChartPoint) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO points (gift_id, res, ts, open, high, low, close, price_usd, on_sale, volume, sales_count, samples)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, p := range points {
		_, err := stmt.Exec(p.GiftID, string(p.Res), p.TS.Unix(), p.Open, p.High, p.Low, p.Close, p.PriceUsd, p.OnSale, p.Volume, p.SalesCount, p.Samples)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// GetLastTimestamp returns the last stored point timestamp for a gift at
// a resolution. Returns 0 if no points exist.
func (w *Writer) GetLastTimestamp(giftID string, res model.Resolution) (int64, error) {
	var ts sql.NullInt64
	err := w.db.QueryRow(
		`SELECT MAX(ts) FROM points WHERE gift_id = ? AND res = ?`,
		giftID, string(res),
	).Scan(&ts)
	if err != nil {
		return 0, err
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

// RunIndexPoints reads index points from a channel and inserts them in
// batched transactions.
func (w *Writer) RunIndexPoints(ctx context.Context, pointCh <-chan model.IndexPoint) {
	batch := make([]model.IndexPoint, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertIndexBatch(batch); err != nil {
			log.Printf("[sqlite] index batch insert error: %v", err)
		} else {
			log.Printf("[sqlite] committed %d index points in %v", len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case ip, ok := <-pointCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ip)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}
		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// insertIndexBatch inserts a batch of index points in a single transaction.
func (w *Writer) insertIndexBatch(points []model.IndexPoint) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO index_points (index_id, ts, value)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.Exec(p.IndexID, p.TS.Unix(), p.Value); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// SaveSnapshot saves an index engine snapshot to SQLite.
func (w *Writer) SaveSnapshot(snap *basket.EngineSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = w.db.Exec(`INSERT INTO index_snapshots (data) VALUES (?)`, string(data))
	if err != nil {
		return fmt.Errorf("sqlite insert snapshot: %w", err)
	}

	// Prune old snapshots; keep last 10. Ordered by rowid so rows from
	// databases created before created_at was populated still prune
	// newest-first.
	_, err = w.db.Exec(`DELETE FROM index_snapshots WHERE id NOT IN (SELECT id FROM index_snapshots ORDER BY id DESC LIMIT 10)`)
	if err != nil {
		log.Printf("[sqlite] prune snapshots warning: %v", err)
	}

	return nil
}

// UpsertUser creates or refreshes a user row.
func (w *Writer) UpsertUser(u *model.User) error {
	now := time.Now().Unix()
	_, err := w.db.Exec(`
		INSERT INTO users (id, wallet, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET wallet = excluded.wallet, updated_at = excluded.updated_at
	`, u.ID, u.Wallet, now, now)
	if err != nil {
		return fmt.Errorf("sqlite upsert user %d: %w", u.ID, err)
	}
	return nil
}

// ReplaceWatchlist replaces a user's watchlist wholesale, in one transaction.
func (w *Writer) ReplaceWatchlist(userID int64, giftIDs []string) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM watchlist WHERE user_id = ?`, userID); err != nil {
		tx.Rollback()
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO watchlist (user_id, gift_id) VALUES (?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, id := range giftIDs {
		if _, err := stmt.Exec(userID, id); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// UpsertHolding sets the held amount and average cost for one gift.
// An amount of zero deletes the row.
func (w *Writer) UpsertHolding(h model.Holding) error {
	if h.Amount == 0 {
		_, err := w.db.Exec(`DELETE FROM holdings WHERE user_id = ? AND gift_id = ?`, h.UserID, h.GiftID)
		return err
	}
	_, err := w.db.Exec(`
		INSERT INTO holdings (user_id, gift_id, amount, avg_ton) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, gift_id) DO UPDATE SET amount = excluded.amount, avg_ton = excluded.avg_ton
	`, h.UserID, h.GiftID, h.Amount, h.AvgTon)
	return err
}

// AppendJournal records one holding mutation.
func (w *Writer) AppendJournal(userID int64, giftID string, delta, priceTon float64) error {
	_, err := w.db.Exec(`
		INSERT INTO holdings_journal (user_id, gift_id, delta, price_ton, ts) VALUES (?, ?, ?, ?, ?)
	`, userID, giftID, delta, priceTon, time.Now().Unix())
	return err
}

// SavePreferences stores the raw preferences blob for a user. The blob
// is stored as-is; validation happens on read.
func (w *Writer) SavePreferences(userID int64, data []byte) error {
	_, err := w.db.Exec(`
		INSERT INTO preferences (user_id, data) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET data = excluded.data
	`, userID, string(data))
	return err
}

// SaveVote records an up/down vote, replacing any previous vote by the
// same user on the same gift.
func (w *Writer) SaveVote(v model.Vote) error {
	up := 0
	if v.Up {
		up = 1
	}
	_, err := w.db.Exec(`
		INSERT INTO votes (user_id, gift_id, up, ts) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, gift_id) DO UPDATE SET up = excluded.up, ts = excluded.ts
	`, v.UserID, v.GiftID, up, v.TS.Unix())
	return err
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
