// internal/membership/implementation.go
package membership

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"memberhub/internal/journal"
)

// MaxEventsPage caps the page size of Events.
const MaxEventsPage = 1000

// Config holds the collaborators of the membership service.
type Config struct {
	Store    Store
	Notifier Notifier
	Journal  *journal.Journal
	Logger   *zap.Logger
	// SendLimiter throttles ad-hoc emails. Nil disables throttling.
	SendLimiter *rate.Limiter
}

// service implements the Service interface.
type service struct {
	store       Store
	notifier    Notifier
	journal     *journal.Journal
	logger      *zap.Logger
	sendLimiter *rate.Limiter
	tracer      trace.Tracer
	operations  metric.Int64Counter
}

// NewService creates a new membership service instance.
func NewService(cfg Config) Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	j := cfg.Journal
	if j == nil {
		j = journal.New()
	}

	operations, _ := otel.Meter("memberhub/membership").Int64Counter("member.operations",
		metric.WithDescription("Member operations by outcome"))

	return &service{
		store:       cfg.Store,
		notifier:    cfg.Notifier,
		journal:     j,
		logger:      logger,
		sendLimiter: cfg.SendLimiter,
		tracer:      otel.Tracer("memberhub/membership"),
		operations:  operations,
	}
}

// ListMembers returns every member.
func (s *service) ListMembers(ctx context.Context) (members []*Member, err error) {
	ctx, end := s.begin(ctx, "list", "")
	defer func() { end(err) }()

	members, err = s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}

// GetMember retrieves a member by account.
func (s *service) GetMember(ctx context.Context, account string) (member *Member, err error) {
	ctx, end := s.begin(ctx, "get", account)
	defer func() { end(err) }()

	member, ok := s.store.Get(ctx, account)
	if !ok {
		return nil, ErrNotFound
	}
	return member, nil
}

// CreateMember stores a new member and sends the verification email.
func (s *service) CreateMember(ctx context.Context, req CreateMemberRequest) (member *Member, err error) {
	ctx, end := s.begin(ctx, "create", req.Account)
	defer func() { end(err) }()

	if err := requireFields("Missing required fields: account, password, email, name",
		"account", req.Account,
		"password", req.Password,
		"email", req.Email,
		"name", req.Name,
	); err != nil {
		return nil, err
	}

	candidate := NewMember(req.Account, req.Email, req.Name)
	candidate.LineID = req.LineID
	candidate.Address = req.Address
	if req.Role != "" {
		candidate.Role = req.Role
	}
	if err := candidate.SetPassword(req.Password); err != nil {
		return nil, err
	}

	member, err = s.store.Create(ctx, candidate)
	if err != nil {
		return nil, err
	}

	s.record(ctx, member.Account, EventMemberCreated, MemberCreatedEvent{
		Account: member.Account,
		Email:   member.Email,
		Name:    member.Name,
		Role:    member.Role,
	})

	if err := s.notifier.SendVerification(context.WithoutCancel(ctx), member); err != nil {
		s.logger.Warn("verification email failed",
			zap.String("account", member.Account), zap.Error(err))
	}

	return member, nil
}

// ActivateMember marks a member active.
func (s *service) ActivateMember(ctx context.Context, account string) (err error) {
	ctx, end := s.begin(ctx, "activate", account)
	defer func() { end(err) }()

	if err := requireFields("Member ID is required", "id", account); err != nil {
		return err
	}
	if err := s.store.Activate(ctx, account); err != nil {
		return err
	}

	s.record(ctx, account, EventMemberActivated, MemberStatusChangedEvent{Account: account, IsActive: true})
	return nil
}

// DeactivateMember suspends a member and sends the suspension notice.
func (s *service) DeactivateMember(ctx context.Context, account string) (err error) {
	ctx, end := s.begin(ctx, "deactivate", account)
	defer func() { end(err) }()

	if err := requireFields("Member ID is required", "id", account); err != nil {
		return err
	}
	if err := s.store.Deactivate(ctx, account); err != nil {
		return err
	}

	s.record(ctx, account, EventMemberDeactivated, MemberStatusChangedEvent{Account: account, IsActive: false})

	member, ok := s.store.Get(ctx, account)
	if !ok {
		s.logger.Warn("member removed before suspension notice", zap.String("account", account))
		return nil
	}
	if err := s.notifier.SendSuspension(context.WithoutCancel(ctx), member); err != nil {
		s.logger.Warn("suspension email failed",
			zap.String("account", account), zap.Error(err))
	}
	return nil
}

// UpdateMember merges the whitelisted fields of patch onto the stored member.
func (s *service) UpdateMember(ctx context.Context, account string, patch Patch) (member *Member, err error) {
	ctx, end := s.begin(ctx, "update", account)
	defer func() { end(err) }()

	if err := requireFields("Member account is required for update", "account", account); err != nil {
		return nil, err
	}

	var hash, salt string
	if patch.Password != nil {
		hash, salt, err = hashPassword(*patch.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
	}

	member, err = s.store.Modify(ctx, account, func(m *Member) error {
		patch.Apply(m)
		if patch.Password != nil {
			m.PasswordHash = hash
			m.PasswordSalt = salt
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, account, EventMemberUpdated, MemberUpdatedEvent{Account: account, Fields: patch.Fields()})
	return member, nil
}

// DeleteMembers removes all listed members, or none if any is unknown.
func (s *service) DeleteMembers(ctx context.Context, accounts []string) (deleted int, err error) {
	ctx, end := s.begin(ctx, "delete", strings.Join(accounts, ","))
	defer func() { end(err) }()

	if len(accounts) == 0 {
		return 0, &ValidationError{Message: "Member IDs array is required"}
	}

	deleted, err = s.store.DeleteAll(ctx, accounts)
	if err != nil {
		return 0, err
	}

	recorded := make(map[string]struct{}, len(accounts))
	for _, account := range accounts {
		if _, done := recorded[account]; done {
			continue
		}
		recorded[account] = struct{}{}
		s.record(ctx, account, EventMemberDeleted, MemberDeletedEvent{Account: account})
	}
	return deleted, nil
}

// VerifyEmail marks the member's email address as verified.
func (s *service) VerifyEmail(ctx context.Context, account string) (err error) {
	ctx, end := s.begin(ctx, "verify", account)
	defer func() { end(err) }()

	if _, err := s.store.Verify(ctx, account); err != nil {
		return err
	}

	s.record(ctx, account, EventMemberVerified, MemberVerifiedEvent{Account: account})
	return nil
}

// SendEmail delivers free-text content to a member. Unlike the lifecycle
// notices, a delivery failure fails the call.
func (s *service) SendEmail(ctx context.Context, account, content string) (err error) {
	ctx, end := s.begin(ctx, "send_email", account)
	defer func() { end(err) }()

	if err := requireFields("Email content is required", "content", content); err != nil {
		return err
	}
	if s.sendLimiter != nil && !s.sendLimiter.Allow() {
		return ErrRateLimited
	}

	member, ok := s.store.Get(ctx, account)
	if !ok {
		return ErrNotFound
	}

	if err := s.notifier.Send(ctx, member, content); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.record(ctx, account, EventMemberEmailed, MemberEmailedEvent{
		Account: account,
		Email:   member.Email,
		Length:  len(content),
	})
	return nil
}

// History returns the journal of a member, including deleted ones.
func (s *service) History(ctx context.Context, account string) (events []journal.Event, err error) {
	ctx, end := s.begin(ctx, "history", account)
	defer func() { end(err) }()

	events, err = s.journal.LoadEvents(ctx, account, 0, 0)
	if errors.Is(err, journal.ErrAggregateNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return events, nil
}

// Events pages through the journal of all members in sequence order.
func (s *service) Events(ctx context.Context, afterSequence int64, limit int) (events []journal.Event, err error) {
	ctx, end := s.begin(ctx, "events", "")
	defer func() { end(err) }()

	if afterSequence < 0 || limit <= 0 || limit > MaxEventsPage {
		return nil, &ValidationError{Message: fmt.Sprintf("after must be >= 0 and limit between 1 and %d", MaxEventsPage)}
	}
	events, err = s.journal.StreamEvents(ctx, afterSequence, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to stream events: %w", err)
	}
	return events, nil
}

// record appends a journal event. The store is authoritative, so a journal
// failure is logged rather than returned.
func (s *service) record(ctx context.Context, account, eventType string, data any) {
	var metadata map[string]string
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		metadata = map[string]string{"request_id": reqID}
	}
	if err := s.journal.Record(ctx, account, AggregateType, eventType, data, metadata); err != nil {
		s.logger.Error("failed to record member event",
			zap.String("account", account),
			zap.String("event", eventType),
			zap.Error(err))
	}
}

// begin starts a span for op and returns a func that closes it and counts
// the outcome.
func (s *service) begin(ctx context.Context, op, account string) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, "membership."+op,
		trace.WithAttributes(attribute.String("member.account", account)),
	)
	return ctx, func(err error) {
		outcome := Outcome(err)
		if err != nil && outcome == "error" {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("outcome", outcome))
		span.End()

		s.operations.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("outcome", outcome),
		))
	}
}

// Outcome classifies err for metrics and logs.
func Outcome(err error) string {
	var validation *ValidationError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &validation):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDuplicateAccount):
		return "duplicate"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "error"
	}
}

// requireFields takes name/value pairs and reports the names whose value is
// blank.
func requireFields(message string, pairs ...string) error {
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			missing = append(missing, pairs[i])
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &ValidationError{Message: message, Fields: missing}
}
