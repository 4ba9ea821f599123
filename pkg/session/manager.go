package session

import (
	"context"
	"sync"

	"snscraper/pkg/logger"
)

// Manager enforces the single-flight rule for login polling: at most one
// polling task is current system-wide, and installing a new one cancels the
// previous one. Cancellation is cooperative through the task's context, so
// a replaced task stops at its next suspension point.
//
// Construct one Manager and pass it to every operation that needs it; there
// is no package-level instance.
type Manager struct {
	mu        sync.Mutex
	sessionID string
	cancel    context.CancelFunc
	logger    logger.Logger
}

// NewManager creates an empty coordinator
func NewManager(log logger.Logger) *Manager {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Manager{logger: log}
}

// SetCurrent atomically replaces the current session slot. Any prior entry
// is cancelled inside the same critical section, so at most one polling task
// is ever logically current. Replacing an empty slot is not an error.
func (m *Manager) SetCurrent(sessionID string, cancel context.CancelFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.logger.InfoWithFields("cancelling previous login session", map[string]interface{}{
			"previous_session_id": m.sessionID,
			"new_session_id":      sessionID,
		})
		m.cancel()
	}

	m.sessionID = sessionID
	m.cancel = cancel
}

// CancelCurrent removes and cancels the current entry if present. A no-op
// when the slot is empty; idempotent.
func (m *Manager) CancelCurrent() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel == nil {
		return
	}

	m.logger.InfoWithFields("cancelling login session", map[string]interface{}{
		"session_id": m.sessionID,
	})
	m.cancel()
	m.sessionID = ""
	m.cancel = nil
}

// Clear empties the slot without cancelling, for a task that finished on its
// own. Only clears if sessionID still matches, so a newer session installed
// meanwhile is left untouched.
func (m *Manager) Clear(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessionID != sessionID {
		return
	}
	m.sessionID = ""
	m.cancel = nil
}

// CurrentID returns the current session id, empty when no session is
// current. Diagnostic accessor only.
func (m *Manager) CurrentID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}
