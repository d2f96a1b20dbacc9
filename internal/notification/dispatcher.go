package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FallSteph/Syllabuksu/internal/observability"
	"github.com/FallSteph/Syllabuksu/model"
)

const defaultSendTimeout = 30 * time.Second

// UserLookup resolves notification recipients.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (model.User, error)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher's fallback logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithMetrics records delivery outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithSubjectPrefix prefixes every email subject, e.g. "[Syllabuksu]".
func WithSubjectPrefix(p string) Option {
	return func(d *Dispatcher) { d.subjectPrefix = p }
}

// WithSendTimeout bounds each background email delivery.
func WithSendTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.sendTimeout = t
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithIDGenerator overrides notification ID generation.
func WithIDGenerator(newID func() string) Option {
	return func(d *Dispatcher) { d.newID = newID }
}

// Dispatcher persists in-app notifications and emails a copy to recipients
// who have email notifications enabled. Email delivery runs in the
// background and never fails the caller.
type Dispatcher struct {
	store         Store
	users         UserLookup
	mailer        Mailer
	logger        *zap.Logger
	metrics       *observability.Metrics
	subjectPrefix string
	sendTimeout   time.Duration
	now           func() time.Time
	newID         func() string

	wg sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. A nil mailer disables email.
func NewDispatcher(store Store, users UserLookup, mailer Mailer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:       store,
		users:       users,
		mailer:      mailer,
		logger:      zap.NewNop(),
		sendTimeout: defaultSendTimeout,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify stores a notification for userID and queues its email copy. Only
// the in-app write can fail.
func (d *Dispatcher) Notify(ctx context.Context, userID, title, message, syllabusID string) error {
	logger := observability.RequestLogger(ctx, d.logger)

	n := model.Notification{
		ID:         d.newID(),
		UserID:     userID,
		Title:      title,
		Message:    message,
		SyllabusID: syllabusID,
		CreatedAt:  d.now(),
	}
	if err := d.store.Create(ctx, n); err != nil {
		d.metrics.RecordNotification("in_app", "error")
		return fmt.Errorf("store notification for %s: %w", userID, err)
	}
	d.metrics.RecordNotification("in_app", "ok")

	if d.mailer == nil {
		return nil
	}
	if _, nop := d.mailer.(NopMailer); nop {
		return nil
	}

	user, err := d.users.GetUser(ctx, userID)
	if err != nil {
		logger.Warn("notification recipient lookup failed, email skipped",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil
	}
	if !user.NotificationsEnabled || !user.IsActive() || user.Email == "" {
		return nil
	}

	email, err := Render(d.subjectPrefix, user.Email, user.DisplayName(), title, message)
	if err != nil {
		logger.Error("email render failed", zap.String("notification_id", n.ID), zap.Error(err))
		return nil
	}

	d.wg.Add(1)
	d.metrics.EmailQueued()
	go d.deliver(context.WithoutCancel(ctx), logger, n.ID, email)
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, logger *zap.Logger, notificationID string, email Email) {
	defer d.wg.Done()
	defer d.metrics.EmailDone()

	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	channel := d.mailer.Name()
	if err := d.mailer.Send(ctx, email); err != nil {
		logger.Warn("email delivery failed",
			zap.String("notification_id", notificationID),
			zap.String("channel", channel),
			zap.Error(err),
		)
		d.metrics.RecordNotification(channel, "error")
		return
	}
	d.metrics.RecordNotification(channel, "ok")
	logger.Debug("email delivered",
		zap.String("notification_id", notificationID),
		zap.String("channel", channel),
	)
}

// Wait blocks until queued email deliveries finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
