package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ Store = (*SQLite)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS app_config (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    key TEXT NOT NULL UNIQUE,
    value TEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS recent_quotes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol TEXT NOT NULL UNIQUE,
    data TEXT NOT NULL,
    fetched_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS historical_data (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol TEXT NOT NULL,
    interval TEXT NOT NULL,
    range_key TEXT NOT NULL,
    adjusted INTEGER DEFAULT 1,
    as_of_date TEXT,
    data TEXT NOT NULL,
    fetched_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(symbol, interval, range_key, adjusted)
);

CREATE TABLE IF NOT EXISTS indicator_data (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol TEXT NOT NULL,
    indicator TEXT NOT NULL,
    interval TEXT NOT NULL,
    params TEXT NOT NULL,
    as_of_date TEXT,
    data TEXT NOT NULL,
    fetched_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(symbol, indicator, interval, params)
);
`

// SQLite implements Store backed by a SQLite database. Records are stored
// as JSON blobs; the lookup keys live in dedicated columns.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at dbPath and ensures the
// schema exists.
func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The driver serializes access itself, but a single connection avoids
	// SQLITE_BUSY on concurrent writers to a file database.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) GetQuote(ctx context.Context, symbol string) (*CachedQuote, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data FROM recent_quotes WHERE symbol = ?`, symbol)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get quote: %w", err)
	}
	var rec CachedQuote
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode quote record: %w", err)
	}
	return &rec, nil
}

func (s *SQLite) PutQuote(ctx context.Context, rec *CachedQuote) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode quote record: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO recent_quotes (symbol, data, fetched_at)
        VALUES (?, ?, ?)
        ON CONFLICT(symbol) DO UPDATE SET data=excluded.data, fetched_at=excluded.fetched_at`,
		rec.Symbol, string(raw), rec.FetchedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("put quote: %w", err)
	}
	return nil
}

func (s *SQLite) GetSeries(ctx context.Context, key SeriesKey) (*CachedSeries, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT data FROM historical_data
        WHERE symbol = ? AND interval = ? AND range_key = ? AND adjusted = ?`,
		key.Symbol, key.Interval, key.Range, boolToInt(key.Adjusted))
	var raw string
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get series: %w", err)
	}
	var rec CachedSeries
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode series record: %w", err)
	}
	return &rec, nil
}

func (s *SQLite) PutSeries(ctx context.Context, rec *CachedSeries) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode series record: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO historical_data (symbol, interval, range_key, adjusted, as_of_date, data, fetched_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(symbol, interval, range_key, adjusted) DO UPDATE SET
            as_of_date=excluded.as_of_date, data=excluded.data, fetched_at=excluded.fetched_at`,
		rec.Symbol, rec.Interval, rec.Range, boolToInt(rec.Adjusted),
		rec.AsOfDate, string(raw), rec.FetchedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("put series: %w", err)
	}
	return nil
}

func (s *SQLite) GetIndicator(ctx context.Context, key IndicatorKey) (*CachedIndicator, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT data FROM indicator_data
        WHERE symbol = ? AND indicator = ? AND interval = ? AND params = ?`,
		key.Symbol, key.Indicator, key.Interval, key.Params)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get indicator: %w", err)
	}
	var rec CachedIndicator
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode indicator record: %w", err)
	}
	return &rec, nil
}

func (s *SQLite) PutIndicator(ctx context.Context, rec *CachedIndicator) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode indicator record: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO indicator_data (symbol, indicator, interval, params, as_of_date, data, fetched_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(symbol, indicator, interval, params) DO UPDATE SET
            as_of_date=excluded.as_of_date, data=excluded.data, fetched_at=excluded.fetched_at`,
		rec.Symbol, rec.Indicator, rec.Interval, CanonicalParams(rec.Params),
		rec.AsOfDate, string(raw), rec.FetchedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("put indicator: %w", err)
	}
	return nil
}

func (s *SQLite) DeleteQuotes(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM recent_quotes`)
	return err
}

func (s *SQLite) DeleteSeries(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM historical_data`)
	return err
}

func (s *SQLite) DeleteIndicators(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM indicator_data`)
	return err
}

func (s *SQLite) ConfigValues(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM app_config`)
	if err != nil {
		return nil, fmt.Errorf("config values: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("config values: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *SQLite) PutConfigValue(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO app_config (key, value, updated_at)
        VALUES (?, ?, ?)
        ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("put config value: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
