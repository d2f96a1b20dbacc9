package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrBreakerOpen is returned by BreakerMailer while deliveries are
// suspended.
var ErrBreakerOpen = errors.New("notification: email circuit breaker is open")

// BreakerState represents the current state of a circuit breaker.
type BreakerState int

const (
	// BreakerClosed lets every delivery through. Failures are counted.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects deliveries until the cooldown elapses.
	BreakerOpen
	// BreakerHalfOpen lets probe deliveries through.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerMailer wraps a Mailer with a circuit breaker: after
// failureThreshold consecutive failures it stops calling the provider for
// the cooldown, then lets probes through until successThreshold of them
// succeed. It is safe for concurrent use.
type BreakerMailer struct {
	next   Mailer
	logger *zap.Logger
	now    func() time.Time

	failureThreshold int
	successThreshold int
	cooldown         time.Duration

	mu        sync.Mutex
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time
}

// NewBreakerMailer wraps next. Non-positive arguments fall back to five
// failures, two probe successes and a one-minute cooldown.
func NewBreakerMailer(next Mailer, failureThreshold, successThreshold int, cooldown time.Duration, logger *zap.Logger) *BreakerMailer {
	if failureThreshold < 1 {
		failureThreshold = 5
	}
	if successThreshold < 1 {
		successThreshold = 2
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BreakerMailer{
		next:             next,
		logger:           logger,
		now:              time.Now,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		cooldown:         cooldown,
	}
}

// Name reports the wrapped channel.
func (m *BreakerMailer) Name() string { return m.next.Name() }

// Send delivers msg unless the breaker is open.
func (m *BreakerMailer) Send(ctx context.Context, msg Email) error {
	if err := m.allow(); err != nil {
		return err
	}
	if err := m.next.Send(ctx, msg); err != nil {
		m.recordFailure()
		return err
	}
	m.recordSuccess()
	return nil
}

// HealthCheck reports an error while the breaker is open.
func (m *BreakerMailer) HealthCheck(context.Context) error {
	if m.State() == BreakerOpen {
		return ErrBreakerOpen
	}
	return nil
}

// State returns the current breaker state.
func (m *BreakerMailer) State() BreakerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maybeHalfOpen()
	return m.state
}

func (m *BreakerMailer) allow() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maybeHalfOpen()
	if m.state == BreakerOpen {
		return ErrBreakerOpen
	}
	return nil
}

// maybeHalfOpen must be called with the lock held.
func (m *BreakerMailer) maybeHalfOpen() {
	if m.state == BreakerOpen && m.now().Sub(m.openedAt) >= m.cooldown {
		m.state = BreakerHalfOpen
		m.successes = 0
	}
}

func (m *BreakerMailer) recordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case BreakerClosed:
		m.failures = 0
	case BreakerHalfOpen:
		m.successes++
		if m.successes >= m.successThreshold {
			m.state = BreakerClosed
			m.failures = 0
			m.successes = 0
			m.logger.Info("email delivery recovered", zap.String("channel", m.next.Name()))
		}
	}
}

func (m *BreakerMailer) recordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case BreakerClosed:
		m.failures++
		if m.failures >= m.failureThreshold {
			m.trip()
		}
	case BreakerHalfOpen:
		// Any failed probe reopens.
		m.trip()
	}
}

// trip must be called with the lock held.
func (m *BreakerMailer) trip() {
	m.state = BreakerOpen
	m.openedAt = m.now()
	m.successes = 0
	m.logger.Warn("email delivery suspended",
		zap.String("channel", m.next.Name()),
		zap.Int("consecutive_failures", m.failures),
		zap.Duration("cooldown", m.cooldown),
	)
}
