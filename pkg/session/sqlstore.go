package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// SQLStore implements Store over database/sql. The SQL sticks to the
// subset shared by PostgreSQL and SQLite so production and tests run
// the same statements. Placeholder numbers must follow the argument
// order: PostgreSQL reads $n as an ordinal, but SQLite treats it as a
// named parameter slotted in order of first appearance, so the two
// engines only agree when $1..$n appear in sequence.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an open database handle and ensures the sessions
// table exists. The caller owns the handle's lifecycle unless it was
// opened by NewPostgresStore.
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	s := &SQLStore{db: db}
	if err := s.ensureTable(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewPostgresStore opens a PostgreSQL connection and builds a store on it.
func NewPostgresStore(url string, maxConns int) (*SQLStore, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns / 2)
	db.SetConnMaxLifetime(1 * time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return NewSQLStore(db)
}

func (s *SQLStore) ensureTable() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			access_token_hash TEXT NOT NULL,
			refresh_token_hash TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			browser TEXT NOT NULL DEFAULT '',
			os TEXT NOT NULL DEFAULT '',
			device_type TEXT NOT NULL DEFAULT '',
			country TEXT NOT NULL DEFAULT '',
			city TEXT NOT NULL DEFAULT '',
			ip_address TEXT NOT NULL DEFAULT '',
			mfa_verified BOOLEAN NOT NULL DEFAULT FALSE,
			suspicious BOOLEAN NOT NULL DEFAULT FALSE,
			last_activity TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL,
			revoked_at TIMESTAMP,
			revoke_reason TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_token_hash ON sessions(access_token_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_state_expires ON sessions(state, expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_state_activity ON sessions(state, last_activity)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to ensure sessions table: %w", err)
		}
	}
	return nil
}

const sessionColumns = `id, user_id, access_token_hash, refresh_token_hash, state,
	browser, os, device_type, country, city, ip_address,
	mfa_verified, suspicious, last_activity, expires_at, created_at,
	revoked_at, revoke_reason`

func (s *SQLStore) Insert(ctx context.Context, sess *Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		sess.ID, sess.UserID, sess.AccessTokenHash, sess.RefreshTokenHash, string(sess.State),
		sess.Device.Browser, sess.Device.OS, sess.Device.DeviceType,
		sess.Location.Country, sess.Location.City, sess.IPAddress,
		sess.MfaVerified, sess.Suspicious, sess.LastActivity, sess.ExpiresAt, sess.CreatedAt,
		nullableTime(sess.RevokedAt), string(sess.RevokeReason),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (s *SQLStore) FindBySessionID(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return sess, nil
}

func (s *SQLStore) FindByAccessTokenHash(ctx context.Context, hash string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE access_token_hash = $1`, hash)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session by token: %w", err)
	}
	return sess, nil
}

func (s *SQLStore) UpdateActivity(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_activity = $1 WHERE id = $2 AND last_activity < $1`, at, id)
	if err != nil {
		return fmt.Errorf("failed to update activity: %w", err)
	}
	// A zero-row result is either a missing session or an older
	// timestamp losing the race, both fine to ignore for this field.
	_ = res
	return nil
}

func (s *SQLStore) MarkMfaVerified(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET state = $1, mfa_verified = $2
		WHERE id = $3 AND state = $4`,
		string(StateActive), true, id, string(StatePendingMFA))
	if err != nil {
		return fmt.Errorf("failed to mark mfa verified: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark mfa verified: %w", err)
	}
	if n == 0 {
		if _, err := s.FindBySessionID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: session %s is not pending MFA", ErrInvalidState, id)
	}
	return nil
}

func (s *SQLStore) MarkSuspicious(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET suspicious = $1 WHERE id = $2`, true, id)
	if err != nil {
		return fmt.Errorf("failed to mark suspicious: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark suspicious: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) Revoke(ctx context.Context, id string, reason RevokeReason, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET state = $1, revoked_at = $2, revoke_reason = $3
		WHERE id = $4 AND state IN ($5, $6)`,
		string(reason.State()), at, string(reason), id,
		string(StatePendingMFA), string(StateActive))
	if err != nil {
		return false, fmt.Errorf("failed to revoke session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to revoke session: %w", err)
	}
	if n == 0 {
		// Already terminal (idempotent no-op) or missing. Only the
		// missing case is an error.
		if _, err := s.FindBySessionID(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (s *SQLStore) RevokeAllForUser(ctx context.Context, userID, exceptID string, reason RevokeReason, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET state = $1, revoked_at = $2, revoke_reason = $3
		WHERE user_id = $4 AND id <> $5 AND state IN ($6, $7)`,
		string(reason.State()), at, string(reason), userID, exceptID,
		string(StatePendingMFA), string(StateActive))
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions for user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions for user: %w", err)
	}
	return int(n), nil
}

func (s *SQLStore) CountActiveForUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sessions WHERE user_id = $1 AND state IN ($2, $3)`,
		userID, string(StatePendingMFA), string(StateActive)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count active sessions: %w", err)
	}
	return n, nil
}

func (s *SQLStore) FindExpired(ctx context.Context, now time.Time, limit int) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE state IN ($1, $2) AND expires_at < $3
		ORDER BY expires_at LIMIT $4`,
		string(StatePendingMFA), string(StateActive), now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired sessions: %w", err)
	}
	return collectSessions(rows)
}

func (s *SQLStore) FindInactive(ctx context.Context, threshold time.Time, limit int) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE state IN ($1, $2) AND last_activity < $3
		ORDER BY last_activity LIMIT $4`,
		string(StatePendingMFA), string(StateActive), threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find inactive sessions: %w", err)
	}
	return collectSessions(rows)
}

func (s *SQLStore) DeleteCreatedBefore(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	// DELETE ... LIMIT is not portable; the subquery form runs on both
	// PostgreSQL and SQLite.
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE id IN (
			SELECT id FROM sessions WHERE created_at < $1 ORDER BY created_at LIMIT $2
		)`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete old sessions: %w", err)
	}
	return int(n), nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*Session, error) {
	var sess Session
	var state, reason string
	var revokedAt sql.NullTime
	err := row.Scan(
		&sess.ID, &sess.UserID, &sess.AccessTokenHash, &sess.RefreshTokenHash, &state,
		&sess.Device.Browser, &sess.Device.OS, &sess.Device.DeviceType,
		&sess.Location.Country, &sess.Location.City, &sess.IPAddress,
		&sess.MfaVerified, &sess.Suspicious, &sess.LastActivity, &sess.ExpiresAt, &sess.CreatedAt,
		&revokedAt, &reason,
	)
	if err != nil {
		return nil, err
	}
	sess.State = State(state)
	sess.RevokeReason = RevokeReason(reason)
	if revokedAt.Valid {
		t := revokedAt.Time
		sess.RevokedAt = &t
	}
	return &sess, nil
}

func collectSessions(rows *sql.Rows) ([]*Session, error) {
	defer rows.Close()
	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return out, nil
}
