// Package audit keeps a SQLite journal of parameter writes.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tetragramaton/seplos-go/internal/write"
	_ "modernc.org/sqlite"
)

type Entry struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Outcome      string    `json:"outcome"`
	Requested    float64   `json:"requested"`
	RequestedRaw int64     `json:"requested_raw"`
	ReadBack     *float64  `json:"read_back,omitempty"`
	Previous     *float64  `json:"previous,omitempty"`
	Forced       bool      `json:"forced"`
	Sent         bool      `json:"sent"`
	Retries      int       `json:"retries"`
	Error        string    `json:"error,omitempty"`
	At           time.Time `json:"at"`
}

type Journal struct {
	db *sql.DB
}

var _ write.Journal = (*Journal)(nil)

func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer; sqlite serialises anyway
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open audit journal %s: %w", path, err)
	}
	j := &Journal{db: db}
	if err := j.init(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) init() error {
	_, err := j.db.Exec(`
	CREATE TABLE IF NOT EXISTS writes (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		outcome TEXT NOT NULL,
		requested REAL NOT NULL,
		requested_raw INTEGER NOT NULL,
		read_back REAL,
		previous REAL,
		forced INTEGER NOT NULL,
		sent INTEGER NOT NULL,
		retries INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_writes_name_at ON writes(name, at);
	`)
	return err
}

func (j *Journal) Record(ctx context.Context, r write.Result) error {
	var readBack, previous sql.NullFloat64
	if r.Outcome == write.Confirmed || r.Outcome == write.Mismatch {
		readBack = sql.NullFloat64{Float64: r.ReadBack, Valid: true}
	}
	if r.HasPrevious {
		previous = sql.NullFloat64{Float64: r.Previous, Valid: true}
	}
	var msg string
	if r.Err != nil {
		msg = r.Err.Error()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO writes (id, name, outcome, requested, requested_raw, read_back, previous, forced, sent, retries, error, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.Outcome.String(), r.Requested, r.RequestedRaw, readBack, previous, r.Forced, r.Sent, r.Retries, msg, r.At.UTC())
	if err != nil {
		return fmt.Errorf("record write %s: %w", r.ID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. An empty name means every parameter.
func (j *Journal) Recent(ctx context.Context, name string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, name, outcome, requested, requested_raw, read_back, previous, forced, sent, retries, error, at
		FROM writes WHERE (? = '' OR name = ?) ORDER BY at DESC LIMIT ?`, name, name, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                  Entry
			readBack, previous sql.NullFloat64
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.Outcome, &e.Requested, &e.RequestedRaw, &readBack, &previous,
			&e.Forced, &e.Sent, &e.Retries, &e.Error, &e.At); err != nil {
			return nil, err
		}
		if readBack.Valid {
			e.ReadBack = &readBack.Float64
		}
		if previous.Valid {
			e.Previous = &previous.Float64
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *Journal) Close() error {
	return j.db.Close()
}
