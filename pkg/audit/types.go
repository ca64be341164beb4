package audit

import (
	"encoding/json"
	"time"
)

// Action identifies the category of a recorded event
type Action string

const (
	// Authorization actions
	ActionAccessDenied    Action = "authz.access_denied"
	ActionOwnershipDenied Action = "authz.ownership_denied"

	// Session lifecycle actions
	ActionSessionCreated     Action = "session.created"
	ActionSessionValidated   Action = "session.validated"
	ActionSessionRevoked     Action = "session.revoked"
	ActionSessionMfaVerified Action = "session.mfa_verified"
	ActionSessionSuspicious  Action = "session.suspicious"
	ActionConcurrentLogin    Action = "session.concurrent_login"
	ActionSessionCleanup     Action = "session.cleanup"

	// Catalog actions
	ActionRoleDefined   Action = "catalog.role_defined"
	ActionCatalogReload Action = "catalog.reloaded"
	ActionCatalogError  Action = "catalog.error"
)

// Status represents the outcome of the recorded operation
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Severity classifies entries for routing and filtering
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Entry is a single immutable audit record
type Entry struct {
	ID             string                 `json:"id,omitempty"`
	Action         Action                 `json:"action"`
	PerformedBy    string                 `json:"performed_by,omitempty"`
	ResourceType   string                 `json:"resource_type,omitempty"`
	ResourceID     string                 `json:"resource_id,omitempty"`
	Status         Status                 `json:"status"`
	Severity       Severity               `json:"severity"`
	IPAddress      string                 `json:"ip_address,omitempty"`
	ChangesSummary string                 `json:"changes_summary,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
}

// ToJSON converts the entry to JSON
func (e *Entry) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an entry from JSON
func FromJSON(data []byte) (*Entry, error) {
	var entry Entry
	err := json.Unmarshal(data, &entry)
	return &entry, err
}

// SearchFilter narrows queries against persisted entries
type SearchFilter struct {
	StartTime   *time.Time
	EndTime     *time.Time
	PerformedBy string
	Actions     []Action
	Status      *Status
	Severity    *Severity
	Limit       int
	Offset      int
}
