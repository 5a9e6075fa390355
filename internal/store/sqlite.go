package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"pairflow-go/internal/market"
)

// BarStore mirrors the most recent resampled bars to a SQLite database so a
// restart does not lose the bar history entirely. Writes are upserts keyed by
// (symbol, timeframe, timestamp); re-resampling the same bucket overwrites,
// never duplicates.
type BarStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewBarStore opens (or creates) the SQLite database and runs migrations.
func NewBarStore(dbPath string) (*BarStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode keeps reads cheap while the resampler writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &BarStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *BarStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ohlcv (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol    TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			open      REAL NOT NULL,
			high      REAL NOT NULL,
			low       REAL NOT NULL,
			close     REAL NOT NULL,
			volume    REAL NOT NULL,
			UNIQUE(symbol, timeframe, timestamp)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ohlcv_symbol_tf_ts ON ohlcv(symbol, timeframe, timestamp)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// UpsertBars writes the given bars in one transaction.
func (s *BarStore) UpsertBars(bars []market.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO ohlcv
		(symbol, timeframe, timestamp, open, high, low, close, volume)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(symbol, timeframe, timestamp) DO UPDATE SET
			open=excluded.open, high=excluded.high, low=excluded.low,
			close=excluded.close, volume=excluded.volume`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, bar := range bars {
		if _, err := stmt.Exec(
			bar.Symbol, bar.Timeframe, bar.Ts.UTC().Format(time.RFC3339Nano),
			bar.Open, bar.High, bar.Low, bar.Close, bar.Volume,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert bar %s/%s@%s: %w", bar.Symbol, bar.Timeframe, bar.Ts, err)
		}
	}
	return tx.Commit()
}

// QueryBars returns up to the last limit persisted bars for
// (symbol, timeframe), oldest first. limit <= 0 returns all of them.
func (s *BarStore) QueryBars(symbol, timeframe string, limit int) ([]market.Bar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT symbol, timeframe, timestamp, open, high, low, close, volume
		FROM ohlcv WHERE symbol = ? AND timeframe = ? ORDER BY timestamp DESC`
	args := []any{symbol, timeframe}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var bars []market.Bar
	for rows.Next() {
		var bar market.Bar
		var ts string
		if err := rows.Scan(&bar.Symbol, &bar.Timeframe, &ts,
			&bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse bar timestamp %q: %w", ts, err)
		}
		bar.Ts = parsed
		bars = append(bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bars: %w", err)
	}
	// Rows come newest-first for the LIMIT; flip back to ascending.
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

// Symbols lists every distinct symbol with persisted bars.
func (s *BarStore) Symbols() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT DISTINCT symbol FROM ohlcv ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// Close releases the underlying database handle.
func (s *BarStore) Close() error {
	return s.db.Close()
}
