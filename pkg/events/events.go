package events

import (
	"time"
)

// ErrorCode classifies crawl failures for client-side handling
type ErrorCode string

const (
	// CaptchaDetected requires human intervention, no auto-retry
	CaptchaDetected ErrorCode = "captcha_detected"
	// NetworkError means the caller may retry the whole crawl later;
	// the persisted checkpoint makes this safe
	NetworkError ErrorCode = "network_error"
	// StorageError means the persistence layer is suspect; the caller
	// should not retry blindly
	StorageError ErrorCode = "storage_error"
)

// LoginOutcome names the terminal and notable non-terminal results of a
// login polling run
type LoginOutcome string

const (
	OutcomeScanned  LoginOutcome = "scanned"
	OutcomeSuccess  LoginOutcome = "success"
	OutcomeExpired  LoginOutcome = "expired"
	OutcomeRejected LoginOutcome = "rejected"
	OutcomeTimeout  LoginOutcome = "timeout"
	OutcomeMismatch LoginOutcome = "mismatch"
	OutcomeError    LoginOutcome = "error"
)

// ProgressEvent reports page-level crawl progress
type ProgressEvent struct {
	TaskID          string    `json:"task_id"`
	Status          string    `json:"status"`
	RangeStart      time.Time `json:"range_start"`
	RangeEnd        time.Time `json:"range_end"`
	CurrentPage     int       `json:"current_page"`
	CumulativeCount int       `json:"cumulative_count"`
	Timestamp       time.Time `json:"timestamp"`
}

// CompletedEvent reports the end of a fully crawled task
type CompletedEvent struct {
	TaskID      string        `json:"task_id"`
	FinalStatus string        `json:"final_status"`
	TotalCount  int           `json:"total_count"`
	Duration    time.Duration `json:"duration"`
	Timestamp   time.Time     `json:"timestamp"`
}

// ErrorEvent reports an unrecoverable crawl failure
type ErrorEvent struct {
	TaskID    string    `json:"task_id"`
	Message   string    `json:"message"`
	Code      ErrorCode `json:"code"`
	Timestamp time.Time `json:"timestamp"`
}

// LoginOutcomeEvent reports the observable results of a login polling run
type LoginOutcomeEvent struct {
	SessionID string       `json:"session_id"`
	Outcome   LoginOutcome `json:"outcome"`
	Identity  string       `json:"identity,omitempty"`
	Message   string       `json:"message,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// Sink accepts events on a best-effort basis. Delivery is fire-and-forget:
// implementations must never block the emitting orchestrator indefinitely,
// and emitters never treat a dropped event as an error. The authoritative
// state lives in the persisted checkpoint and stored credentials, not in
// the event stream.
type Sink interface {
	Progress(e ProgressEvent)
	Completed(e CompletedEvent)
	Error(e ErrorEvent)
	LoginOutcome(e LoginOutcomeEvent)
}

// MultiSink fans events out to several sinks
type MultiSink []Sink

func (m MultiSink) Progress(e ProgressEvent) {
	for _, s := range m {
		s.Progress(e)
	}
}

func (m MultiSink) Completed(e CompletedEvent) {
	for _, s := range m {
		s.Completed(e)
	}
}

func (m MultiSink) Error(e ErrorEvent) {
	for _, s := range m {
		s.Error(e)
	}
}

func (m MultiSink) LoginOutcome(e LoginOutcomeEvent) {
	for _, s := range m {
		s.LoginOutcome(e)
	}
}

// NopSink discards all events
type NopSink struct{}

func (NopSink) Progress(ProgressEvent)         {}
func (NopSink) Completed(CompletedEvent)       {}
func (NopSink) Error(ErrorEvent)               {}
func (NopSink) LoginOutcome(LoginOutcomeEvent) {}
