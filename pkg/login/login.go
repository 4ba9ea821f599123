package login

import (
	"context"
	"time"

	"snscraper/pkg/credentials"
	"snscraper/pkg/errors"
	"snscraper/pkg/events"
	"snscraper/pkg/logger"
	"snscraper/pkg/session"
)

// CheckState is what the automation bridge observed for a login session
type CheckState string

const (
	// CheckUnchanged means nothing happened since the last poll
	CheckUnchanged CheckState = "unchanged"
	// CheckScanned means the code was scanned but not confirmed
	CheckScanned CheckState = "scanned"
	// CheckConfirmed means the user confirmed; Identity and Cookies are set
	CheckConfirmed CheckState = "confirmed"
	// CheckRejected means the user refused the login on the device
	CheckRejected CheckState = "rejected"
)

// CheckResult is one status-check observation
type CheckResult struct {
	State    CheckState
	Identity string
	Cookies  map[string]string
}

// StatusChecker is the automation boundary polled for login progress
type StatusChecker interface {
	Check(ctx context.Context, sessionID string) (CheckResult, error)
}

// Validator confirms that a cookie set actually authenticates, returning the
// identity and display name the platform reports for it
type Validator interface {
	Validate(ctx context.Context, cookies map[string]string) (identity, displayName string, err error)
}

// Poller drives a LoginSession through repeated status checks until a
// terminal outcome. Validation and persistence failures are surfaced, never
// retried; a status-check error ends the session immediately.
type Poller struct {
	checker   StatusChecker
	validator Validator
	creds     credentials.Store
	sink      events.Sink
	interval  time.Duration
	maxPolls  int
	userAgent string
	logger    logger.Logger
}

// NewPoller creates a login poller
func NewPoller(checker StatusChecker, validator Validator, creds credentials.Store, sink events.Sink, interval time.Duration, maxPolls int, log logger.Logger) *Poller {
	if log == nil {
		log = logger.GetLogger()
	}
	if sink == nil {
		sink = events.NopSink{}
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if maxPolls <= 0 {
		maxPolls = 60
	}
	return &Poller{
		checker:   checker,
		validator: validator,
		creds:     creds,
		sink:      sink,
		interval:  interval,
		maxPolls:  maxPolls,
		logger:    log,
	}
}

// SetUserAgent records the user agent to persist alongside saved cookies
func (p *Poller) SetUserAgent(ua string) {
	p.userAgent = ua
}

// Poll runs the polling loop for one session until it terminates. The
// returned outcome matches the last emitted LoginOutcomeEvent; err is
// non-nil only for error-shaped outcomes (mismatch, validation, storage,
// check failure, cancellation).
func (p *Poller) Poll(ctx context.Context, sess *session.LoginSession) (events.LoginOutcome, error) {
	p.logger.InfoWithFields("login polling started", map[string]interface{}{
		"session_id": sess.SessionID,
		"expires_at": sess.ExpiresAt,
	})

	for i := 0; i < p.maxPolls; i++ {
		if err := ctx.Err(); err != nil {
			p.emit(sess, events.OutcomeError, "", "polling cancelled")
			return events.OutcomeError, err
		}

		result, err := p.checker.Check(ctx, sess.SessionID)
		if err != nil {
			// Transient or not, a check failure is terminal for this
			// session; the caller starts a fresh code if it wants.
			p.logger.WithError(err).WithField("session_id", sess.SessionID).Error("login status check failed")
			p.emit(sess, events.OutcomeError, "", err.Error())
			return events.OutcomeError, err
		}

		switch result.State {
		case CheckConfirmed:
			return p.confirm(ctx, sess, result)

		case CheckRejected:
			sess.MarkRejected()
			p.emit(sess, events.OutcomeRejected, "", "")
			return events.OutcomeRejected, nil

		case CheckScanned:
			// Reported once; later polls keep returning scanned.
			if sess.Status == session.StatusPending {
				sess.MarkScanned()
				p.emit(sess, events.OutcomeScanned, "", "")
			}

		case CheckUnchanged:
		}

		if sess.IsExpired() {
			sess.MarkExpired()
			p.emit(sess, events.OutcomeExpired, "", "")
			return events.OutcomeExpired, nil
		}

		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.emit(sess, events.OutcomeError, "", "polling cancelled")
			return events.OutcomeError, ctx.Err()
		case <-timer.C:
		}
	}

	sess.MarkExpired()
	p.emit(sess, events.OutcomeTimeout, "", "")
	return events.OutcomeTimeout, nil
}

// confirm validates and persists the credentials of a confirmed session
func (p *Poller) confirm(ctx context.Context, sess *session.LoginSession, result CheckResult) (events.LoginOutcome, error) {
	identity, displayName, err := p.validator.Validate(ctx, result.Cookies)
	if err != nil {
		p.logger.WithError(err).WithField("session_id", sess.SessionID).Error("credential validation failed")
		p.emit(sess, events.OutcomeError, "", err.Error())
		return events.OutcomeError, err
	}

	if result.Identity != "" && identity != result.Identity {
		err := errors.Newf(errors.ErrorTypeValidation, "login.confirm",
			"validated identity %q does not match session identity %q", identity, result.Identity)
		p.logger.WithError(err).WithField("session_id", sess.SessionID).Error("identity mismatch")
		p.emit(sess, events.OutcomeMismatch, identity, err.Error())
		return events.OutcomeMismatch, err
	}

	account := &credentials.Account{
		Identity:    identity,
		DisplayName: displayName,
		Cookies:     result.Cookies,
		UserAgent:   p.userAgent,
	}
	if err := p.creds.Store(account); err != nil {
		p.logger.WithError(err).WithFields(map[string]interface{}{
			"session_id": sess.SessionID,
			"identity":   identity,
		}).Error("failed to persist credentials")
		p.emit(sess, events.OutcomeError, identity, err.Error())
		return events.OutcomeError, err
	}

	sess.MarkConfirmed()
	p.logger.InfoWithFields("login confirmed", map[string]interface{}{
		"session_id":   sess.SessionID,
		"identity":     identity,
		"display_name": displayName,
	})
	p.emit(sess, events.OutcomeSuccess, identity, "")
	return events.OutcomeSuccess, nil
}

func (p *Poller) emit(sess *session.LoginSession, outcome events.LoginOutcome, identity, message string) {
	p.sink.LoginOutcome(events.LoginOutcomeEvent{
		SessionID: sess.SessionID,
		Outcome:   outcome,
		Identity:  identity,
		Message:   message,
		Timestamp: time.Now(),
	})
}
