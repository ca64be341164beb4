package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wardenhq/warden/pkg/rbac"
)

// ErrNoRole means the user directory has no role assignment for the
// user. The resolver turns this into an authentication failure.
var ErrNoRole = errors.New("no role assigned")

// SQLRoleLookup reads role assignments from the user_roles table,
// which the user directory writes. It is the default RoleLookup for
// deployments that keep the directory in the same database.
type SQLRoleLookup struct {
	db *sql.DB
}

// NewSQLRoleLookup creates the lookup and ensures the user_roles table
// exists.
func NewSQLRoleLookup(db *sql.DB) (*SQLRoleLookup, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	l := &SQLRoleLookup{db: db}
	if err := l.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure user_roles table: %w", err)
	}
	return l, nil
}

func (l *SQLRoleLookup) ensureTable() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS user_roles (
			user_id VARCHAR(255) PRIMARY KEY,
			role VARCHAR(100) NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`)
	return err
}

// Lookup returns the user's current role. Usable as a RoleLookup.
func (l *SQLRoleLookup) Lookup(ctx context.Context, userID string) (rbac.Role, error) {
	var role string
	err := l.db.QueryRowContext(ctx,
		`SELECT role FROM user_roles WHERE user_id = $1`, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: user %s", ErrNoRole, userID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up role: %w", err)
	}
	return rbac.Role(role), nil
}

// Assign sets or replaces the user's role.
func (l *SQLRoleLookup) Assign(ctx context.Context, userID string, role rbac.Role) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET role = $2, updated_at = $3`,
		userID, string(role), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return nil
}

// Remove drops the user's role assignment.
func (l *SQLRoleLookup) Remove(ctx context.Context, userID string) error {
	if _, err := l.db.ExecContext(ctx,
		`DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to remove role: %w", err)
	}
	return nil
}
