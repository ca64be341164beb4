package audit

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRecorder(t *testing.T) (*DBRecorder, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_entries").
		WillReturnResult(sqlmock.NewResult(0, 0))

	rec, err := NewDBRecorder(db)
	require.NoError(t, err)
	return rec, mock
}

func TestDBRecorderRequiresConnection(t *testing.T) {
	_, err := NewDBRecorder(nil)
	assert.Error(t, err)
}

func TestDBRecorderRecord(t *testing.T) {
	rec, mock := newMockRecorder(t)
	ts := time.Now().UTC()

	mock.ExpectExec("INSERT INTO audit_entries").
		WithArgs(
			"e1", ActionAccessDenied, "u1", "session", "s1",
			StatusFailure, SeverityMedium, "203.0.113.9", "denied: sessions:delete",
			[]byte(`{"role":"support"}`), ts,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := rec.Record(context.Background(), &Entry{
		ID:             "e1",
		Action:         ActionAccessDenied,
		PerformedBy:    "u1",
		ResourceType:   "session",
		ResourceID:     "s1",
		Status:         StatusFailure,
		Severity:       SeverityMedium,
		IPAddress:      "203.0.113.9",
		ChangesSummary: "denied: sessions:delete",
		Metadata:       map[string]interface{}{"role": "support"},
		Timestamp:      ts,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBRecorderRecordNilMetadata(t *testing.T) {
	rec, mock := newMockRecorder(t)
	ts := time.Now().UTC()

	mock.ExpectExec("INSERT INTO audit_entries").
		WithArgs(
			"e2", ActionSessionCreated, "u1", "", "",
			StatusSuccess, SeverityLow, "", "",
			[]byte(nil), ts,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := rec.Record(context.Background(), &Entry{
		ID:          "e2",
		Action:      ActionSessionCreated,
		PerformedBy: "u1",
		Status:      StatusSuccess,
		Severity:    SeverityLow,
		Timestamp:   ts,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBRecorderSearch(t *testing.T) {
	rec, mock := newMockRecorder(t)
	ts := time.Now().UTC()
	high := SeverityHigh

	rows := sqlmock.NewRows([]string{
		"id", "action", "performed_by", "resource_type", "resource_id",
		"status", "severity", "ip_address", "changes_summary", "metadata", "timestamp",
	}).AddRow(
		"e1", string(ActionSessionSuspicious), "u1", "session", "s1",
		string(StatusSuccess), string(SeverityHigh), "203.0.113.9", "ip changed",
		[]byte(`{"old_ip":"198.51.100.4"}`), ts,
	)

	mock.ExpectQuery(`FROM audit_entries\s+WHERE performed_by = \$1 AND severity = \$2 ORDER BY timestamp DESC LIMIT \$3`).
		WithArgs("u1", string(SeverityHigh), 10).
		WillReturnRows(rows)

	got, err := rec.Search(context.Background(), SearchFilter{
		PerformedBy: "u1",
		Severity:    &high,
		Limit:       10,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "e1", got[0].ID)
	assert.Equal(t, ActionSessionSuspicious, got[0].Action)
	assert.Equal(t, "u1", got[0].PerformedBy)
	assert.Equal(t, "198.51.100.4", got[0].Metadata["old_ip"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBRecorderSearchNoFilter(t *testing.T) {
	rec, mock := newMockRecorder(t)

	mock.ExpectQuery(`FROM audit_entries\s+ORDER BY timestamp DESC`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "action", "performed_by", "resource_type", "resource_id",
			"status", "severity", "ip_address", "changes_summary", "metadata", "timestamp",
		}))

	got, err := rec.Search(context.Background(), SearchFilter{})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
