package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/blackmichael/skyreader/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS cursors (
	service      TEXT PRIMARY KEY,
	cursor_value INTEGER NOT NULL,
	updated_at   TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	did         TEXT PRIMARY KEY,
	handle      TEXT NOT NULL,
	pds         TEXT NOT NULL,
	access_jwt  TEXT NOT NULL,
	refresh_jwt TEXT NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);
`

// Repository implements domain.CursorRepository and domain.SessionRepository
// on a local SQLite file.
type Repository struct {
	db *sql.DB
}

// NewRepository opens (creating if needed) the SQLite database at path,
// verifies the connection, and applies the schema. The caller should call
// Close when the repository is no longer needed.
func NewRepository(path string) (*Repository, error) {
	connStr := path
	if path == ":memory:" {
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One writer at a time; avoids SQLITE_BUSY between the firehose and the
	// refresh job.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// GetCursor retrieves the saved firehose cursor for a service.
func (r *Repository) GetCursor(ctx context.Context, service string) (int64, error) {
	var cursor int64
	err := r.db.QueryRowContext(ctx,
		`SELECT cursor_value FROM cursors WHERE service = ?`, service,
	).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return cursor, err
}

// UpdateCursor upserts the firehose cursor for a service.
func (r *Repository) UpdateCursor(ctx context.Context, service string, cursor int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cursors (service, cursor_value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (service) DO UPDATE SET
			cursor_value = excluded.cursor_value,
			updated_at = excluded.updated_at`,
		service, cursor, time.Now().UTC(),
	)
	return err
}

// SaveSession upserts a session keyed by DID.
func (r *Repository) SaveSession(ctx context.Context, s *domain.Session) error {
	if s == nil || s.DID == "" {
		return errors.New("save session: missing did")
	}
	updated := s.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (did, handle, pds, access_jwt, refresh_jwt, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (did) DO UPDATE SET
			handle = excluded.handle,
			pds = excluded.pds,
			access_jwt = excluded.access_jwt,
			refresh_jwt = excluded.refresh_jwt,
			updated_at = excluded.updated_at`,
		s.DID, s.Handle, s.PDS, s.AccessJwt, s.RefreshJwt, updated.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", s.DID, err)
	}
	return nil
}

// LatestSession returns the most recently saved session, or nil if none.
func (r *Repository) LatestSession(ctx context.Context) (*domain.Session, error) {
	var s domain.Session
	err := r.db.QueryRowContext(ctx, `
		SELECT did, handle, pds, access_jwt, refresh_jwt, updated_at
		FROM sessions
		ORDER BY updated_at DESC
		LIMIT 1`,
	).Scan(&s.DID, &s.Handle, &s.PDS, &s.AccessJwt, &s.RefreshJwt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest session: %w", err)
	}
	return &s, nil
}

// DeleteSession removes the session for did.
func (r *Repository) DeleteSession(ctx context.Context, did string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE did = ?`, did)
	return err
}
