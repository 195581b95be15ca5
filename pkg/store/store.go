// Package store persists bridge records in SQLite.
//
// Uniqueness of a link is enforced by the schema: each row holds the canonical
// (channel_low, channel_high) pair as its primary key, with a CHECK that the two
// differ. Concurrent inserts of the same pair in any orientation therefore race
// on the constraint, and exactly one of them wins.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/tinyland-inc/crossbridge/pkg/bridge"
	"github.com/tinyland-inc/crossbridge/pkg/store/migrations"
)

// Store is a SQLite-backed bridge.Store.
// WAL mode lets lookups proceed while a link or unlink is being written.
type Store struct {
	db *sql.DB
}

var _ bridge.Store = (*Store)(nil)

// Open creates or opens the database at path and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_txlock=immediate"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database is reachable. Used by readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func toColumn(id bridge.ChannelID) (int64, error) {
	if uint64(id) > math.MaxInt64 {
		return 0, fmt.Errorf("channel id %s out of range", id)
	}
	return int64(id), nil
}

// InsertBridge stores b, which must already be canonical. A collision with an
// existing pair is reported as bridge.ErrDuplicateBridge.
func (s *Store) InsertBridge(ctx context.Context, b bridge.Bridge) error {
	low, err := toColumn(b.Low)
	if err != nil {
		return err
	}
	high, err := toColumn(b.High)
	if err != nil {
		return err
	}
	createdAt := b.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bridges (channel_low, channel_high, created_at) VALUES (?, ?, ?)`,
		low, high, createdAt.UTC().UnixMilli(),
	)
	switch {
	case err == nil:
		return nil
	case isConstraint(err, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE):
		return bridge.ErrDuplicateBridge
	case isConstraint(err, sqlite3lib.SQLITE_CONSTRAINT_CHECK):
		return bridge.ErrSelfLink
	default:
		return fmt.Errorf("insert bridge %s: %w", b, err)
	}
}

// DeleteBridge removes the canonical pair b and reports whether a row existed.
func (s *Store) DeleteBridge(ctx context.Context, b bridge.Bridge) (bool, error) {
	low, err := toColumn(b.Low)
	if err != nil {
		return false, err
	}
	high, err := toColumn(b.High)
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM bridges WHERE channel_low = ? AND channel_high = ?`,
		low, high,
	)
	if err != nil {
		return false, fmt.Errorf("delete bridge %s: %w", b, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete bridge %s: %w", b, err)
	}
	return n > 0, nil
}

// ListTargets returns the opposite endpoint of every row touching ch.
func (s *Store) ListTargets(ctx context.Context, ch bridge.ChannelID) ([]bridge.ChannelID, error) {
	id, err := toColumn(ch)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT channel_high FROM bridges WHERE channel_low = ?
		 UNION ALL
		 SELECT channel_low FROM bridges WHERE channel_high = ?`,
		id, id,
	)
	if err != nil {
		return nil, fmt.Errorf("query targets of %s: %w", ch, err)
	}
	defer rows.Close()

	var targets []bridge.ChannelID
	for rows.Next() {
		var target int64
		if err := rows.Scan(&target); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		targets = append(targets, bridge.ChannelID(target))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate targets: %w", err)
	}
	return targets, nil
}

// ListBridges returns every bridge, oldest first.
func (s *Store) ListBridges(ctx context.Context) ([]bridge.Bridge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel_low, channel_high, created_at FROM bridges
		 ORDER BY created_at, channel_low, channel_high`,
	)
	if err != nil {
		return nil, fmt.Errorf("query bridges: %w", err)
	}
	defer rows.Close()

	var out []bridge.Bridge
	for rows.Next() {
		var low, high, createdAt int64
		if err := rows.Scan(&low, &high, &createdAt); err != nil {
			return nil, fmt.Errorf("scan bridge: %w", err)
		}
		out = append(out, bridge.Bridge{
			Low:       bridge.ChannelID(low),
			High:      bridge.ChannelID(high),
			CreatedAt: time.UnixMilli(createdAt).UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bridges: %w", err)
	}
	return out, nil
}

func isConstraint(err error, codes ...int) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	for _, code := range codes {
		if sqliteErr.Code() == code {
			return true
		}
	}
	return false
}
