package sightings

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tagbridge/tagbridge-core/internal/protocol"
)

const (
	defaultQueryLimit = 50
	maxQueryLimit     = 500
)

// Sighting is one persisted tag read.
type Sighting struct {
	ID       int64     `json:"id"`
	ReaderID string    `json:"reader_id"`
	TagID    string    `json:"tag_id"`
	RSSI     int       `json:"rssi,omitempty"`
	Raw      []byte    `json:"raw,omitempty"`
	SeenAt   time.Time `json:"seen_at"`
}

// SQLiteStore implements the sighting log using SQLite.
//
// It writes to the sightings table created by the embedded migrations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite sighting store.
//
// Parameters:
//   - db: Open SQLite connection used for queries
//
// Returns:
//   - *SQLiteStore: Store instance ready for use
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Record inserts one sighting for a tag event.
//
// A zero RSSI is stored as NULL: the wire carried no signal byte.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - readerID: Identifier of the reader that produced the event
//   - ev: Decoded tag event
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (s *SQLiteStore) Record(ctx context.Context, readerID string, ev protocol.TagEvent) error {
	if readerID == "" {
		return fmt.Errorf("reader id is required")
	}
	if ev.ID == "" {
		return fmt.Errorf("tag id is required")
	}

	var rssi sql.NullInt64
	if ev.RSSI != 0 {
		rssi = sql.NullInt64{Int64: int64(ev.RSSI), Valid: true}
	}

	seenAt := ev.Timestamp
	if seenAt.IsZero() {
		seenAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sightings (reader_id, tag_id, rssi, raw, seen_at) VALUES (?, ?, ?, ?, ?)",
		readerID,
		ev.ID,
		rssi,
		ev.Raw,
		seenAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting sighting: %w", err)
	}

	return nil
}

// Recent returns the most recent sightings across all tags, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - limit: Maximum rows to return (default 50, max 500)
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Sighting, error) {
	return s.query(ctx,
		`SELECT id, reader_id, tag_id, rssi, raw, seen_at
		 FROM sightings
		 ORDER BY seen_at DESC, id DESC
		 LIMIT ?`,
		clampLimit(limit),
	)
}

// ByTag returns recent sightings of a single tag, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - tagID: Tag identifier to look up
//   - limit: Maximum rows to return (default 50, max 500)
func (s *SQLiteStore) ByTag(ctx context.Context, tagID string, limit int) ([]Sighting, error) {
	if tagID == "" {
		return nil, fmt.Errorf("tag id is required")
	}
	return s.query(ctx,
		`SELECT id, reader_id, tag_id, rssi, raw, seen_at
		 FROM sightings
		 WHERE tag_id = ?
		 ORDER BY seen_at DESC, id DESC
		 LIMIT ?`,
		tagID,
		clampLimit(limit),
	)
}

// PurgeOlderThan deletes sightings seen before the cutoff and returns
// how many rows were removed.
func (s *SQLiteStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM sightings WHERE seen_at < ?",
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("purging sightings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting purged sightings: %w", err)
	}
	return n, nil
}

// query runs a sighting SELECT and scans the result rows.
func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]Sighting, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sightings: %w", err)
	}
	defer rows.Close()

	var out []Sighting
	for rows.Next() {
		var sg Sighting
		var rssi sql.NullInt64
		var seenAt string

		if err := rows.Scan(&sg.ID, &sg.ReaderID, &sg.TagID, &rssi, &sg.Raw, &seenAt); err != nil {
			return nil, fmt.Errorf("scanning sighting: %w", err)
		}
		if rssi.Valid {
			sg.RSSI = int(rssi.Int64)
		}
		sg.SeenAt, err = time.Parse(time.RFC3339Nano, seenAt)
		if err != nil {
			return nil, fmt.Errorf("parsing sighting timestamp: %w", err)
		}
		out = append(out, sg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sightings: %w", err)
	}
	return out, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultQueryLimit
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}
