package store

import (
	"context"
	"database/sql"
	"time"

	"garage-opener/internal/domain"
)

const eventsSchema = `
	CREATE TABLE IF NOT EXISTS access_events (
		id          TEXT PRIMARY KEY,
		type        TEXT NOT NULL,
		at          TEXT NOT NULL,
		link        INTEGER NOT NULL DEFAULT 0,
		remote_hash TEXT NOT NULL DEFAULT '',
		granted     INTEGER NOT NULL,
		code        TEXT NOT NULL DEFAULT '',
		detail      TEXT NOT NULL DEFAULT ''
	)
`

// SQLiteEventStore implements domain.AccessEventStore with SQLite.
type SQLiteEventStore struct {
	db *sql.DB
}

// NewSQLiteEventStore opens (or creates) the access-event database at path.
func NewSQLiteEventStore(path string) (*SQLiteEventStore, error) {
	db, err := openSQLite(path, eventsSchema)
	if err != nil {
		return nil, domain.NewDomainError("NewSQLiteEventStore", domain.ErrStore, err.Error())
	}
	return &SQLiteEventStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteEventStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteEventStore) Append(ctx context.Context, rec domain.AccessRecord) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO access_events (id, type, at, link, remote_hash, granted, code, detail) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		rec.ID, string(rec.Type), rec.Timestamp.UTC().Format(time.RFC3339Nano), int(rec.Link),
		rec.RemoteHash, rec.Granted, string(rec.Code), rec.Detail,
	)
	if err != nil {
		return domain.NewDomainError("SQLiteEventStore.Append", domain.ErrStore, err.Error())
	}
	return nil
}

// Recent returns up to n records, newest first. IDs are ULIDs, so ordering
// by id is ordering by time.
func (s *SQLiteEventStore) Recent(ctx context.Context, n int) ([]domain.AccessRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, type, at, link, remote_hash, granted, code, detail FROM access_events ORDER BY id DESC LIMIT ?", n)
	if err != nil {
		return nil, domain.NewDomainError("SQLiteEventStore.Recent", domain.ErrStore, err.Error())
	}
	defer rows.Close()

	var out []domain.AccessRecord
	for rows.Next() {
		var rec domain.AccessRecord
		var typ, at, code string
		var link int
		if err := rows.Scan(&rec.ID, &typ, &at, &link, &rec.RemoteHash, &rec.Granted, &code, &rec.Detail); err != nil {
			return nil, domain.NewDomainError("SQLiteEventStore.Recent", domain.ErrStore, err.Error())
		}
		rec.Type = domain.EventType(typ)
		rec.Code = domain.ErrorCode(code)
		rec.Link = domain.LinkID(link)
		rec.Timestamp, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, rec)
	}
	return out, rows.Err()
}

var _ domain.AccessEventStore = (*SQLiteEventStore)(nil)
