// Package bars stores historical bars and ticks in SQLite and reads them
// from CSV exports.
package bars

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/newthinker/cta/internal/core"
	"go.uber.org/zap"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

const schema = `
CREATE TABLE IF NOT EXISTS bars (
	symbol   TEXT    NOT NULL,
	interval TEXT    NOT NULL,
	time     INTEGER NOT NULL,
	open     REAL    NOT NULL,
	high     REAL    NOT NULL,
	low      REAL    NOT NULL,
	close    REAL    NOT NULL,
	volume   REAL    NOT NULL,
	PRIMARY KEY (symbol, interval, time)
);
CREATE TABLE IF NOT EXISTS ticks (
	symbol      TEXT    NOT NULL,
	time        INTEGER NOT NULL,
	last_price  REAL    NOT NULL,
	last_volume REAL    NOT NULL,
	volume      REAL    NOT NULL,
	bid         REAL    NOT NULL,
	ask         REAL    NOT NULL,
	PRIMARY KEY (symbol, time)
);`

// SQLiteStore keeps bars and ticks in a SQLite database. Times are stored as
// unix milliseconds and read back in UTC.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (or creates) the database at path and applies the schema
func Open(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, err)
	}
	// a single connection keeps :memory: databases shared and serializes writes
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("migrate %s: %w", path, err))
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// WriteBars upserts bars in one transaction and returns how many were written
func (s *SQLiteStore) WriteBars(ctx context.Context, bars []core.Bar) (int, error) {
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, core.WrapError(core.ErrStorageFailed, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bars (symbol, interval, time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, interval, time) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume`)
	if err != nil {
		return 0, core.WrapError(core.ErrStorageFailed, err)
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err := stmt.ExecContext(ctx,
			b.Symbol,
			string(b.Interval),
			b.Time.UnixMilli(),
			b.Open,
			b.High,
			b.Low,
			b.Close,
			b.Volume,
		)
		if err != nil {
			return 0, core.WrapError(core.ErrStorageFailed, fmt.Errorf("write bar %s %s: %w", b.Symbol, b.Time, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, core.WrapError(core.ErrStorageFailed, err)
	}

	s.logger.Debug("bars written", zap.Int("count", len(bars)), zap.Duration("took", time.Since(start)))
	return len(bars), nil
}

// ReadBars returns bars with start <= Time < end, oldest first
func (s *SQLiteStore) ReadBars(ctx context.Context, symbol string, interval core.Interval, start, end time.Time) ([]core.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT time, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND interval = ? AND time >= ? AND time < ?
		ORDER BY time ASC`,
		symbol, string(interval), start.UnixMilli(), end.UnixMilli(),
	)
	if err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, err)
	}
	defer rows.Close()

	var out []core.Bar
	for rows.Next() {
		b := core.Bar{Symbol: symbol, Interval: interval}
		var ms int64
		if err := rows.Scan(&ms, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, core.WrapError(core.ErrStorageFailed, err)
		}
		b.Time = time.UnixMilli(ms).UTC()
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, err)
	}
	return out, nil
}

// WriteTicks upserts ticks in one transaction and returns how many were written
func (s *SQLiteStore) WriteTicks(ctx context.Context, ticks []core.Tick) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, core.WrapError(core.ErrStorageFailed, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ticks (symbol, time, last_price, last_volume, volume, bid, ask)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, time) DO UPDATE SET
			last_price = excluded.last_price,
			last_volume = excluded.last_volume,
			volume = excluded.volume,
			bid = excluded.bid,
			ask = excluded.ask`)
	if err != nil {
		return 0, core.WrapError(core.ErrStorageFailed, err)
	}
	defer stmt.Close()

	for _, t := range ticks {
		_, err := stmt.ExecContext(ctx, t.Symbol, t.Time.UnixMilli(), t.LastPrice, t.LastVolume, t.Volume, t.Bid, t.Ask)
		if err != nil {
			return 0, core.WrapError(core.ErrStorageFailed, fmt.Errorf("write tick %s %s: %w", t.Symbol, t.Time, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, core.WrapError(core.ErrStorageFailed, err)
	}
	return len(ticks), nil
}

// ReadTicks returns ticks with start <= Time < end, oldest first
func (s *SQLiteStore) ReadTicks(ctx context.Context, symbol string, start, end time.Time) ([]core.Tick, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT time, last_price, last_volume, volume, bid, ask
		FROM ticks
		WHERE symbol = ? AND time >= ? AND time < ?
		ORDER BY time ASC`,
		symbol, start.UnixMilli(), end.UnixMilli(),
	)
	if err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, err)
	}
	defer rows.Close()

	var out []core.Tick
	for rows.Next() {
		t := core.Tick{Symbol: symbol}
		var ms int64
		if err := rows.Scan(&ms, &t.LastPrice, &t.LastVolume, &t.Volume, &t.Bid, &t.Ask); err != nil {
			return nil, core.WrapError(core.ErrStorageFailed, err)
		}
		t.Time = time.UnixMilli(ms).UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, err)
	}
	return out, nil
}

// Count returns the number of stored bars for symbol and interval
func (s *SQLiteStore) Count(ctx context.Context, symbol string, interval core.Interval) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bars WHERE symbol = ? AND interval = ?`,
		symbol, string(interval),
	).Scan(&n)
	if err != nil {
		return 0, core.WrapError(core.ErrStorageFailed, err)
	}
	return n, nil
}

// Span returns the times of the first and last stored bar.
// It returns core.ErrNoData when nothing is stored.
func (s *SQLiteStore) Span(ctx context.Context, symbol string, interval core.Interval) (first, last time.Time, err error) {
	var lo, hi sql.NullInt64
	err = s.db.QueryRowContext(ctx,
		`SELECT MIN(time), MAX(time) FROM bars WHERE symbol = ? AND interval = ?`,
		symbol, string(interval),
	).Scan(&lo, &hi)
	if err != nil {
		return first, last, core.WrapError(core.ErrStorageFailed, err)
	}
	if !lo.Valid {
		return first, last, core.WrapError(core.ErrNoData, fmt.Errorf("no %s bars for %s", interval, symbol))
	}
	return time.UnixMilli(lo.Int64).UTC(), time.UnixMilli(hi.Int64).UTC(), nil
}
