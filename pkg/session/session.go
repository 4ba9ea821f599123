package session

import (
	"time"
)

// Status is the lifecycle state of one QR login attempt
type Status string

const (
	// StatusPending means the code has been issued but not scanned yet
	StatusPending Status = "pending"
	// StatusScanned means the code was scanned on the external device but
	// not confirmed yet
	StatusScanned Status = "scanned"
	// StatusConfirmed means the user confirmed the login; terminal
	StatusConfirmed Status = "confirmed"
	// StatusExpired means the code timed out before confirmation; terminal
	StatusExpired Status = "expired"
	// StatusRejected means the user refused the login on the device; terminal
	StatusRejected Status = "rejected"
)

// DefaultTTL is how long a freshly issued code stays valid
const DefaultTTL = 180 * time.Second

// LoginSession tracks one scannable-code login attempt. It is mutated in
// place by the polling orchestrator and discarded once the poll loop
// returns; it is never persisted.
type LoginSession struct {
	SessionID   string
	Status      Status
	CreatedAt   time.Time
	ScannedAt   *time.Time
	ConfirmedAt *time.Time
	// ExpiresAt is fixed at creation and never moves
	ExpiresAt time.Time
}

// New creates a pending session for a freshly issued code
func New(sessionID string, ttl time.Duration) *LoginSession {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now()
	return &LoginSession{
		SessionID: sessionID,
		Status:    StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// IsExpired reports whether the session has timed out. True when wall-clock
// time passed ExpiresAt or the status is already Expired, so the check stays
// idempotent regardless of timer precision.
func (s *LoginSession) IsExpired() bool {
	return s.Status == StatusExpired || time.Now().After(s.ExpiresAt)
}

// IsFinal reports whether the session reached a terminal status
func (s *LoginSession) IsFinal() bool {
	switch s.Status {
	case StatusConfirmed, StatusExpired, StatusRejected:
		return true
	}
	return false
}

// MarkScanned records that the code was scanned on the external device
func (s *LoginSession) MarkScanned() {
	now := time.Now()
	s.Status = StatusScanned
	s.ScannedAt = &now
}

// MarkConfirmed records user confirmation; terminal
func (s *LoginSession) MarkConfirmed() {
	now := time.Now()
	s.Status = StatusConfirmed
	s.ConfirmedAt = &now
}

// MarkExpired records a timeout; terminal
func (s *LoginSession) MarkExpired() {
	s.Status = StatusExpired
}

// MarkRejected records an explicit user refusal; terminal
func (s *LoginSession) MarkRejected() {
	s.Status = StatusRejected
}

// Remaining returns the time left before expiry, clamped at zero. UI
// countdown only; termination decisions use IsExpired/IsFinal.
func (s *LoginSession) Remaining() time.Duration {
	r := time.Until(s.ExpiresAt)
	if r < 0 {
		return 0
	}
	return r
}

// Duration returns how long the session has existed. UI display only.
func (s *LoginSession) Duration() time.Duration {
	return time.Since(s.CreatedAt)
}
