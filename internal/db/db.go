// Package db persists the emitted alert stream to sqlite. The sequence
// number is the primary key, so consumers that disconnect resume exactly
// where they left off with an EventsSince query.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/airfield-data/surfacewatch/internal/alert"
)

type DB struct {
	*sql.DB
}

// NewDB opens (or creates) the sqlite database at path. The schema is
// managed by migrations; call MigrateUp before first use.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// sqlite is a single-writer store; WAL keeps readers unblocked during
	// the per-tick insert batch.
	if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA foreign_keys = ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}

	return &DB{db}, nil
}

// SaveEvents appends one tick's events in a single transaction. The whole
// batch lands or none of it does, so a crash never leaves a sequence gap.
func (db *DB) SaveEvents(ctx context.Context, events []alert.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (seq, time_unix, kind, episode_id, subject, feature, severity, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encoding event %d: %w", ev.Seq, err)
		}

		var episodeID, subject, feature, severity string
		switch ev.Kind {
		case alert.KindConflict:
			episodeID = ev.Conflict.EpisodeID
			subject = ev.Conflict.PairKey()
			severity = string(ev.Conflict.Severity)
		case alert.KindCompliance:
			episodeID = ev.Compliance.EpisodeID
			subject = ev.Compliance.Aircraft
			feature = ev.Compliance.Feature
		}

		if _, err := stmt.ExecContext(ctx,
			ev.Seq, float64(ev.Time.UnixNano())/1e9, string(ev.Kind),
			episodeID, subject, feature, severity, string(payload),
		); err != nil {
			return fmt.Errorf("inserting event %d: %w", ev.Seq, err)
		}
	}

	return tx.Commit()
}

// EventsSince returns up to limit events with seq greater than after, in
// sequence order. A limit of zero or less means no limit.
func (db *DB) EventsSince(ctx context.Context, after uint64, limit int) ([]alert.Event, error) {
	query := `SELECT payload FROM events WHERE seq > ? ORDER BY seq`
	args := []interface{}{after}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []alert.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var ev alert.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("decoding stored event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// LastSeq returns the highest persisted sequence number, zero for an empty
// store.
func (db *DB) LastSeq(ctx context.Context) (uint64, error) {
	var seq sql.NullInt64
	err := db.QueryRowContext(ctx, `SELECT MAX(seq) FROM events`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return uint64(seq.Int64), nil
}

// CountByKind returns event counts grouped by kind, for the report tooling.
func (db *DB) CountByKind(ctx context.Context) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM events GROUP BY kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		out[kind] = n
	}
	return out, rows.Err()
}
