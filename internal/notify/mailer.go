// internal/notify/mailer.go

// Package notify delivers member notifications over a pluggable transport.
package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"memberhub/internal/membership"
)

const (
	kindMessage      = "message"
	kindVerification = "verification"
	kindSuspension   = "suspension"
)

// Message is a rendered email ready for delivery.
type Message struct {
	ID      uuid.UUID
	To      string
	Subject string
	Body    string
}

// Transport hands a message to a delivery backend.
type Transport interface {
	Deliver(ctx context.Context, msg Message) error
}

// Mailer implements membership.Notifier on top of a Transport.
type Mailer struct {
	transport Transport
	baseURL   string
	logger    *zap.Logger
	sent      metric.Int64Counter
}

var _ membership.Notifier = (*Mailer)(nil)

type Option func(*Mailer)

// WithLogger sets the logger used for delivery failures.
func WithLogger(l *zap.Logger) Option {
	return func(m *Mailer) {
		m.logger = l
	}
}

// WithBaseURL prefixes verification links with baseURL.
func WithBaseURL(baseURL string) Option {
	return func(m *Mailer) {
		m.baseURL = baseURL
	}
}

func NewMailer(transport Transport, opts ...Option) *Mailer {
	sent, _ := otel.Meter("memberhub/notify").Int64Counter("notifications.sent",
		metric.WithDescription("Notifications handed to the transport, by kind and outcome"))

	m := &Mailer{
		transport: transport,
		logger:    zap.NewNop(),
		sent:      sent,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Send delivers free-text content from the admin team.
func (m *Mailer) Send(ctx context.Context, member *membership.Member, content string) error {
	return m.deliver(ctx, kindMessage, member, subjectMessage, content)
}

// SendVerification sends the welcome email with the verification link.
func (m *Mailer) SendVerification(ctx context.Context, member *membership.Member) error {
	body, err := renderVerification(member, m.baseURL)
	if err != nil {
		return err
	}
	return m.deliver(ctx, kindVerification, member, subjectVerification, body)
}

// SendSuspension sends the account suspension notice.
func (m *Mailer) SendSuspension(ctx context.Context, member *membership.Member) error {
	body, err := renderSuspension(member)
	if err != nil {
		return err
	}
	return m.deliver(ctx, kindSuspension, member, subjectSuspension, body)
}

func (m *Mailer) deliver(ctx context.Context, kind string, member *membership.Member, subject, body string) error {
	msg := Message{
		ID:      uuid.New(),
		To:      member.Email,
		Subject: subject,
		Body:    body,
	}

	err := m.transport.Deliver(ctx, msg)

	outcome := "success"
	if err != nil {
		outcome = "failure"
		m.logger.Warn("email delivery failed",
			zap.String("kind", kind),
			zap.String("account", member.Account),
			zap.String("message_id", msg.ID.String()),
			zap.Error(err))
	}
	m.sent.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))

	if err != nil {
		return fmt.Errorf("deliver %s email: %w", kind, err)
	}
	return nil
}
