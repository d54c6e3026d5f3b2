package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"garage-opener/internal/domain"
)

const bondsSchema = `
	CREATE TABLE IF NOT EXISTS bonds (
		seq       INTEGER PRIMARY KEY AUTOINCREMENT,
		identity  TEXT NOT NULL UNIQUE,
		keys      BLOB NOT NULL,
		bonded_at TEXT NOT NULL
	)
`

var keyEncoding, _ = cbor.CoreDetEncOptions().EncMode()

// SQLiteBondStore implements domain.BondStore with SQLite. Key material is
// stored as an opaque CBOR blob. When capacity is positive, saving a new bond
// into a full store evicts the oldest one.
type SQLiteBondStore struct {
	db       *sql.DB
	capacity int
}

// NewSQLiteBondStore opens (or creates) the bond database at path. A
// capacity of zero or less leaves the store unbounded.
func NewSQLiteBondStore(path string, capacity int) (*SQLiteBondStore, error) {
	db, err := openSQLite(path, bondsSchema)
	if err != nil {
		return nil, domain.NewDomainError("NewSQLiteBondStore", domain.ErrStore, err.Error())
	}
	return &SQLiteBondStore{db: db, capacity: capacity}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteBondStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteBondStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bonds").Scan(&n); err != nil {
		return 0, domain.NewDomainError("SQLiteBondStore.Count", domain.ErrStore, err.Error())
	}
	return n, nil
}

// Enumerate fills buf in bonding order.
func (s *SQLiteBondStore) Enumerate(ctx context.Context, buf []domain.BondedDevice) (int, error) {
	const op = "SQLiteBondStore.Enumerate"

	// One transaction so the count and the rows describe the same snapshot.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, domain.NewDomainError(op, domain.ErrStore, err.Error())
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM bonds").Scan(&total); err != nil {
		return 0, domain.NewDomainError(op, domain.ErrStore, err.Error())
	}
	if total > len(buf) {
		return 0, domain.NewDomainError(op, domain.ErrAllocation,
			fmt.Sprintf("%d bonds, buffer holds %d", total, len(buf)))
	}

	rows, err := tx.QueryContext(ctx, "SELECT identity, keys, bonded_at FROM bonds ORDER BY seq")
	if err != nil {
		return 0, domain.NewDomainError(op, domain.ErrStore, err.Error())
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		if n == len(buf) {
			return 0, domain.NewDomainError(op, domain.ErrAllocation, "bond set grew during enumeration")
		}
		dev, err := scanBond(rows)
		if err != nil {
			return 0, domain.NewDomainError(op, domain.ErrStore, err.Error())
		}
		buf[n] = dev
		n++
	}
	if err := rows.Err(); err != nil {
		return 0, domain.NewDomainError(op, domain.ErrStore, err.Error())
	}
	return n, nil
}

// Save records a bond, replacing the keys of an existing identity. An
// existing identity keeps its place in bonding order.
func (s *SQLiteBondStore) Save(ctx context.Context, dev domain.BondedDevice) error {
	const op = "SQLiteBondStore.Save"

	keys, err := keyEncoding.Marshal(dev.Keys)
	if err != nil {
		return domain.NewDomainError(op, domain.ErrStore, err.Error())
	}
	if dev.BondedAt.IsZero() {
		dev.BondedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewDomainError(op, domain.ErrStore, err.Error())
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bonds (identity, keys, bonded_at) VALUES (?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET keys = excluded.keys, bonded_at = excluded.bonded_at`,
		dev.Identity.String(), keys, dev.BondedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return domain.NewDomainError(op, domain.ErrStore, err.Error())
	}

	if s.capacity > 0 {
		var total int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM bonds").Scan(&total); err != nil {
			return domain.NewDomainError(op, domain.ErrStore, err.Error())
		}
		if excess := total - s.capacity; excess > 0 {
			_, err = tx.ExecContext(ctx,
				"DELETE FROM bonds WHERE seq IN (SELECT seq FROM bonds ORDER BY seq LIMIT ?)", excess)
			if err != nil {
				return domain.NewDomainError(op, domain.ErrStore, err.Error())
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.NewDomainError(op, domain.ErrStore, err.Error())
	}
	return nil
}

// EraseAll removes every bond.
func (s *SQLiteBondStore) EraseAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM bonds"); err != nil {
		return domain.NewDomainError("SQLiteBondStore.EraseAll", domain.ErrStore, err.Error())
	}
	return nil
}

func scanBond(rows *sql.Rows) (domain.BondedDevice, error) {
	var dev domain.BondedDevice
	var identity, bondedAt string
	var keys []byte
	if err := rows.Scan(&identity, &keys, &bondedAt); err != nil {
		return dev, err
	}
	id, err := domain.ParseIdentity(identity)
	if err != nil {
		return dev, err
	}
	dev.Identity = id
	if err := cbor.Unmarshal(keys, &dev.Keys); err != nil {
		return dev, fmt.Errorf("decode key material: %w", err)
	}
	dev.BondedAt, _ = time.Parse(time.RFC3339Nano, bondedAt)
	return dev, nil
}

var _ domain.BondStore = (*SQLiteBondStore)(nil)
