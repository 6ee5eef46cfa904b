package saver

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"trend-data/internal/model"
)

const sqliteFile = "bars.db"

// SQLiteStore keeps every snapshot in one table keyed by (code, granularity, date).
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) {dir}/bars.db in WAL mode.
func OpenSQLite(dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return OpenSQLiteDSN(filepath.Join(dir, sqliteFile) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
}

// OpenSQLiteDSN opens a store from a raw DSN (":memory:" in tests).
func OpenSQLiteDSN(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// single writer; also keeps an in-memory database on one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			code          TEXT NOT NULL,
			granularity   TEXT NOT NULL,
			date          TEXT NOT NULL,
			open          REAL,
			close         REAL,
			high          REAL,
			low           REAL,
			volume        REAL,
			turnover      REAL,
			amplitude     REAL,
			pct_change    REAL,
			change_amount REAL,
			turnover_rate REAL,
			PRIMARY KEY (code, granularity, date)
		);
	`)
	return err
}

func (s *SQLiteStore) Extension() string { return "db" }

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Load(code string, g model.Granularity) ([]model.Bar, error) {
	rows, err := s.db.Query(`
		SELECT date, open, close, high, low, volume, turnover, amplitude, pct_change, change_amount, turnover_rate
		FROM bars WHERE code = ? AND granularity = ? ORDER BY date`, code, string(g))
	if err != nil {
		return nil, fmt.Errorf("sqlite query: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Date, &r.Open, &r.Close, &r.High, &r.Low, &r.Volume,
			&r.Turnover, &r.Amplitude, &r.PctChange, &r.ChangeAmount, &r.TurnoverRate); err != nil {
			return nil, fmt.Errorf("sqlite scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite rows: %w", err)
	}
	if len(out) == 0 {
		return nil, &StaleSnapshotError{Code: code, Granularity: g, Err: errEmptySnapshot}
	}
	bars, err := fromRows(out)
	if err != nil {
		return nil, &StaleSnapshotError{Code: code, Granularity: g, Err: err}
	}
	return bars, nil
}

// Save replaces the rows of (code, g) in one transaction.
func (s *SQLiteStore) Save(code string, g model.Granularity, bars []model.Bar) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM bars WHERE code = ? AND granularity = ?`, code, string(g)); err != nil {
		return fmt.Errorf("sqlite delete: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO bars (code, granularity, date, open, close, high, low, volume, turnover, amplitude, pct_change, change_amount, turnover_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range toRows(bars) {
		if _, err := stmt.Exec(code, string(g), r.Date, r.Open, r.Close, r.High, r.Low, r.Volume,
			r.Turnover, r.Amplitude, r.PctChange, r.ChangeAmount, r.TurnoverRate); err != nil {
			return fmt.Errorf("sqlite insert: %w", err)
		}
	}
	return tx.Commit()
}
