// Package history records check outcomes in SQLite. Only run metadata is
// stored: never credentials, cookies or page content.
package history

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/otarkhan/slotwatch/internal/logging"
)

//go:embed schema.sql
var schemaFS embed.FS

// Record is one check outcome row.
type Record struct {
	ID         string    `json:"id"`
	Appd       string    `json:"appd"`
	Success    bool      `json:"success"`
	ErrorKind  string    `json:"errorKind,omitempty"`
	TotalSlots int       `json:"totalSlots"`
	CheckedAt  time.Time `json:"checkedAt"`
}

type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// NewStore runs migrations from schema.sql and returns a Store. db should
// typically be the SQLite DB at <storage root>/history.db.
func NewStore(db *sql.DB, logger logging.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}

	return &Store{db: db, logger: logging.OrNop(logger)}, nil
}

// Add inserts rec, generating an id when it has none, and returns the stored
// record.
func (s *Store) Add(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CheckedAt.IsZero() {
		rec.CheckedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checks (id, appd, success, error_kind, total_slots, checked_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Appd, rec.Success, rec.ErrorKind, rec.TotalSlots, rec.CheckedAt)
	if err != nil {
		return Record{}, fmt.Errorf("insert check record: %w", err)
	}

	s.logger.Debug("check recorded",
		logging.Field{Key: "appd", Value: rec.Appd},
		logging.Field{Key: "success", Value: rec.Success})
	return rec, nil
}

// List returns the most recent records, newest first, optionally filtered by
// appd. limit <= 0 means a default of 50.
func (s *Store) List(ctx context.Context, appd string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, appd, success, error_kind, total_slots, checked_at
	          FROM checks`
	args := []any{}
	if appd != "" {
		query += ` WHERE appd = ?`
		args = append(args, appd)
	}
	query += ` ORDER BY checked_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list check records: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Appd, &rec.Success, &rec.ErrorKind, &rec.TotalSlots, &rec.CheckedAt); err != nil {
			return nil, fmt.Errorf("scan check record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
