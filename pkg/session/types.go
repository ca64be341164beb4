package session

import (
	"time"
)

// State is a session's position in its lifecycle.
type State string

const (
	StatePendingMFA State = "pending_mfa"
	StateActive     State = "active"

	// Terminal states. A terminal session never transitions again.
	StateExpired         State = "expired"
	StateRevokedManual   State = "revoked_manual"
	StateRevokedSecurity State = "revoked_security"
	StateRevokedInactive State = "revoked_inactive"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	switch s {
	case StatePendingMFA, StateActive:
		return false
	}
	return true
}

// RevokeReason records why a session was revoked.
type RevokeReason string

const (
	ReasonExpired  RevokeReason = "expired"
	ReasonInactive RevokeReason = "inactive"
	ReasonManual   RevokeReason = "manual"
	ReasonSecurity RevokeReason = "security"
)

// State returns the terminal state a reason maps to.
func (r RevokeReason) State() State {
	switch r {
	case ReasonExpired:
		return StateExpired
	case ReasonInactive:
		return StateRevokedInactive
	case ReasonSecurity:
		return StateRevokedSecurity
	default:
		return StateRevokedManual
	}
}

// DeviceInfo describes the client a session was created from. Compared
// field by field for anomaly detection.
type DeviceInfo struct {
	Browser    string `json:"browser,omitempty"`
	OS         string `json:"os,omitempty"`
	DeviceType string `json:"device_type,omitempty"`
}

// Location is the coarse geo lookup captured at session creation.
type Location struct {
	Country string `json:"country,omitempty"`
	City    string `json:"city,omitempty"`
}

// Session is the persisted record of one login.
type Session struct {
	ID               string       `json:"id"`
	UserID           string       `json:"user_id"`
	AccessTokenHash  string       `json:"-"`
	RefreshTokenHash string       `json:"-"`
	State            State        `json:"state"`
	Device           DeviceInfo   `json:"device"`
	Location         Location     `json:"location"`
	IPAddress        string       `json:"ip_address,omitempty"`
	MfaVerified      bool         `json:"mfa_verified"`
	Suspicious       bool         `json:"suspicious"`
	LastActivity     time.Time    `json:"last_activity"`
	ExpiresAt        time.Time    `json:"expires_at"`
	CreatedAt        time.Time    `json:"created_at"`
	RevokedAt        *time.Time   `json:"revoked_at,omitempty"`
	RevokeReason     RevokeReason `json:"revoke_reason,omitempty"`
}

// Active reports whether the session is in a non-terminal state. Expiry
// by time is checked separately; a session can be Active and still past
// its deadline.
func (s *Session) Active() bool {
	return !s.State.Terminal()
}

// ExpiredAt reports whether the session's fixed deadline has passed at
// the given instant.
func (s *Session) ExpiredAt(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Anomaly is the result of comparing a session's stored metadata
// against a new observation.
type Anomaly struct {
	DeviceChanged   bool `json:"device_changed"`
	LocationChanged bool `json:"location_changed"`
}

// Any reports whether anything changed.
func (a Anomaly) Any() bool {
	return a.DeviceChanged || a.LocationChanged
}
