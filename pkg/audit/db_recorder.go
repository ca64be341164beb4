package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// DBRecorder persists audit entries to PostgreSQL
type DBRecorder struct {
	db *sql.DB
}

// NewDBRecorder creates a database-backed recorder and ensures the
// audit_entries table exists.
func NewDBRecorder(db *sql.DB) (*DBRecorder, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	r := &DBRecorder{db: db}
	if err := r.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_entries table: %w", err)
	}
	return r, nil
}

func (r *DBRecorder) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_entries (
		id UUID PRIMARY KEY,
		action VARCHAR(100) NOT NULL,
		performed_by VARCHAR(255),
		resource_type VARCHAR(50),
		resource_id VARCHAR(255),
		status VARCHAR(20) NOT NULL,
		severity VARCHAR(20) NOT NULL,
		ip_address VARCHAR(45),
		changes_summary TEXT,
		metadata JSONB,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_entries_timestamp ON audit_entries(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_entries_action ON audit_entries(action);
	CREATE INDEX IF NOT EXISTS idx_audit_entries_performed_by ON audit_entries(performed_by);
	CREATE INDEX IF NOT EXISTS idx_audit_entries_severity ON audit_entries(severity);
	`

	_, err := r.db.Exec(query)
	return err
}

// Record inserts a single entry
func (r *DBRecorder) Record(ctx context.Context, entry *Entry) error {
	var metadataJSON []byte
	var err error

	if entry.Metadata != nil {
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_entries (
			id, action, performed_by, resource_type, resource_id,
			status, severity, ip_address, changes_summary, metadata, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.ExecContext(ctx, query,
		entry.ID, entry.Action, entry.PerformedBy, entry.ResourceType, entry.ResourceID,
		entry.Status, entry.Severity, entry.IPAddress, entry.ChangesSummary,
		metadataJSON, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// Search returns entries matching the filter, newest first
func (r *DBRecorder) Search(ctx context.Context, filter SearchFilter) ([]*Entry, error) {
	query := `
		SELECT id, action, performed_by, resource_type, resource_id,
		       status, severity, ip_address, changes_summary, metadata, timestamp
		FROM audit_entries
	`

	var conditions []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.StartTime != nil {
		conditions = append(conditions, "timestamp >= "+arg(*filter.StartTime))
	}
	if filter.EndTime != nil {
		conditions = append(conditions, "timestamp <= "+arg(*filter.EndTime))
	}
	if filter.PerformedBy != "" {
		conditions = append(conditions, "performed_by = "+arg(filter.PerformedBy))
	}
	if filter.Status != nil {
		conditions = append(conditions, "status = "+arg(string(*filter.Status)))
	}
	if filter.Severity != nil {
		conditions = append(conditions, "severity = "+arg(string(*filter.Severity)))
	}
	if len(filter.Actions) > 0 {
		placeholders := make([]string, 0, len(filter.Actions))
		for _, a := range filter.Actions {
			placeholders = append(placeholders, arg(string(a)))
		}
		conditions = append(conditions, "action IN ("+strings.Join(placeholders, ", ")+")")
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC"

	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var performedBy, resourceType, resourceID, ipAddress, changesSummary sql.NullString
		var metadataJSON []byte

		err := rows.Scan(
			&e.ID, &e.Action, &performedBy, &resourceType, &resourceID,
			&e.Status, &e.Severity, &ipAddress, &changesSummary,
			&metadataJSON, &e.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}

		e.PerformedBy = performedBy.String
		e.ResourceType = resourceType.String
		e.ResourceID = resourceID.String
		e.IPAddress = ipAddress.String
		e.ChangesSummary = changesSummary.String

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}

		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

// Close releases the recorder. The database handle is owned by the caller.
func (r *DBRecorder) Close() error {
	return nil
}
