// internal/membership/implementation_test.go
package membership

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"memberhub/internal/journal"
)

type notice struct {
	kind    string
	member  Member
	content string
	ctxErr  error
}

type fakeNotifier struct {
	notices []notice
	err     error
}

func (n *fakeNotifier) Send(ctx context.Context, m *Member, content string) error {
	n.notices = append(n.notices, notice{kind: "message", member: *m, content: content, ctxErr: ctx.Err()})
	return n.err
}

func (n *fakeNotifier) SendVerification(ctx context.Context, m *Member) error {
	n.notices = append(n.notices, notice{kind: "verification", member: *m, ctxErr: ctx.Err()})
	return n.err
}

func (n *fakeNotifier) SendSuspension(ctx context.Context, m *Member) error {
	n.notices = append(n.notices, notice{kind: "suspension", member: *m, ctxErr: ctx.Err()})
	return n.err
}

func newTestService(t *testing.T, limiter *rate.Limiter) (Service, *fakeNotifier, *journal.Journal) {
	t.Helper()
	notifier := &fakeNotifier{}
	j := journal.New()
	svc := NewService(Config{
		Store:       NewMemoryStore(),
		Notifier:    notifier,
		Journal:     j,
		SendLimiter: limiter,
	})
	return svc, notifier, j
}

func createMember(t *testing.T, svc Service, account string) *Member {
	t.Helper()
	m, err := svc.CreateMember(context.Background(), CreateMemberRequest{
		Account:  account,
		Password: "secret-" + account,
		Email:    account + "@example.com",
		Name:     "Name " + account,
	})
	require.NoError(t, err)
	return m
}

func TestCreateMember(t *testing.T) {
	svc, notifier, _ := newTestService(t, nil)

	m, err := svc.CreateMember(context.Background(), CreateMemberRequest{
		Account:  "u1",
		Password: "pw",
		Email:    "u1@example.com",
		Name:     "Una",
		LineID:   "line",
		Address:  "1 Main St",
		Role:     "admin",
	})
	require.NoError(t, err)

	assert.True(t, m.IsActive)
	assert.False(t, m.IsVerified)
	assert.Equal(t, "admin", m.Role)
	assert.Equal(t, "line", m.LineID)
	assert.True(t, m.CheckPassword("pw"))
	assert.NotEqual(t, "pw", m.PasswordHash)

	require.Len(t, notifier.notices, 1)
	assert.Equal(t, "verification", notifier.notices[0].kind)
	assert.Equal(t, "u1@example.com", notifier.notices[0].member.Email)
}

func TestCreateMemberDefaultsRole(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	assert.Equal(t, DefaultRole, createMember(t, svc, "u1").Role)
}

func TestCreateMemberMissingFields(t *testing.T) {
	svc, notifier, _ := newTestService(t, nil)

	_, err := svc.CreateMember(context.Background(), CreateMemberRequest{Account: "u1", Email: "  "})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, []string{"password", "email", "name"}, validation.Fields)
	assert.Empty(t, notifier.notices)

	_, err = svc.GetMember(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateMemberDuplicateSendsNothing(t *testing.T) {
	svc, notifier, _ := newTestService(t, nil)
	createMember(t, svc, "u1")

	_, err := svc.CreateMember(context.Background(), CreateMemberRequest{
		Account: "u1", Password: "x", Email: "x@example.com", Name: "X",
	})
	assert.ErrorIs(t, err, ErrDuplicateAccount)
	assert.Len(t, notifier.notices, 1)
}

func TestCreateMemberSurvivesNotifierFailure(t *testing.T) {
	svc, notifier, _ := newTestService(t, nil)
	notifier.err = errors.New("mail server down")

	m := createMember(t, svc, "u1")
	assert.Equal(t, "u1", m.Account)

	_, err := svc.GetMember(context.Background(), "u1")
	assert.NoError(t, err)
}

func TestDeactivateSendsNoticeWithUpdatedRecord(t *testing.T) {
	svc, notifier, _ := newTestService(t, nil)
	createMember(t, svc, "u1")
	notifier.notices = nil

	require.NoError(t, svc.DeactivateMember(context.Background(), "u1"))
	require.Len(t, notifier.notices, 1)
	assert.Equal(t, "suspension", notifier.notices[0].kind)
	assert.False(t, notifier.notices[0].member.IsActive)

	notifier.err = errors.New("mail server down")
	assert.NoError(t, svc.DeactivateMember(context.Background(), "u1"))
}

func TestLifecycleNoticesOutliveRequestCancellation(t *testing.T) {
	svc, notifier, _ := newTestService(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.CreateMember(ctx, CreateMemberRequest{
		Account: "u1", Password: "pw", Email: "u1@example.com", Name: "Una",
	})
	require.NoError(t, err)
	require.NoError(t, svc.DeactivateMember(ctx, "u1"))

	require.Len(t, notifier.notices, 2)
	for _, n := range notifier.notices {
		assert.NoError(t, n.ctxErr, n.kind)
	}
}

func TestActivateAndDeactivateErrors(t *testing.T) {
	svc, notifier, _ := newTestService(t, nil)
	ctx := context.Background()

	var validation *ValidationError
	assert.ErrorAs(t, svc.ActivateMember(ctx, ""), &validation)
	assert.ErrorAs(t, svc.DeactivateMember(ctx, " "), &validation)
	assert.ErrorIs(t, svc.ActivateMember(ctx, "ghost"), ErrNotFound)
	assert.ErrorIs(t, svc.DeactivateMember(ctx, "ghost"), ErrNotFound)
	assert.Empty(t, notifier.notices)
}

func TestUpdateMemberWhitelistedFields(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	before := createMember(t, svc, "u1")
	require.NoError(t, svc.VerifyEmail(context.Background(), "u1"))

	name, password := "Renamed", "new-secret"
	updated, err := svc.UpdateMember(context.Background(), "u1", Patch{Name: &name, Password: &password})
	require.NoError(t, err)

	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, before.Email, updated.Email)
	assert.Equal(t, before.Role, updated.Role)
	assert.True(t, updated.IsVerified)
	assert.True(t, updated.CheckPassword("new-secret"))
	assert.False(t, updated.CheckPassword("secret-u1"))
}

func TestUpdateMemberErrors(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	name := "x"

	_, err := svc.UpdateMember(context.Background(), "", Patch{Name: &name})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "Member account is required for update", validation.Message)

	_, err = svc.UpdateMember(context.Background(), "ghost", Patch{Name: &name})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteMembers(t *testing.T) {
	svc, _, j := newTestService(t, nil)
	ctx := context.Background()
	createMember(t, svc, "a")
	createMember(t, svc, "b")

	_, err := svc.DeleteMembers(ctx, nil)
	var validation *ValidationError
	assert.ErrorAs(t, err, &validation)

	_, err = svc.DeleteMembers(ctx, []string{"a", "ghost"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.GetMember(ctx, "a")
	require.NoError(t, err)

	deleted, err := svc.DeleteMembers(ctx, []string{"a", "b", "a"})
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	version, err := j.GetCurrentVersion(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	history, err := svc.History(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, EventMemberDeleted, history[len(history)-1].EventType)
}

func TestVerifyEmail(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	createMember(t, svc, "u1")

	require.NoError(t, svc.VerifyEmail(context.Background(), "u1"))
	m, err := svc.GetMember(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, m.IsVerified)

	assert.ErrorIs(t, svc.VerifyEmail(context.Background(), "ghost"), ErrNotFound)
}

func TestSendEmail(t *testing.T) {
	svc, notifier, _ := newTestService(t, nil)
	createMember(t, svc, "u1")
	notifier.notices = nil
	ctx := context.Background()

	require.NoError(t, svc.SendEmail(ctx, "u1", "hello"))
	require.Len(t, notifier.notices, 1)
	assert.Equal(t, "hello", notifier.notices[0].content)

	var validation *ValidationError
	assert.ErrorAs(t, svc.SendEmail(ctx, "u1", ""), &validation)
	assert.ErrorIs(t, svc.SendEmail(ctx, "ghost", "hi"), ErrNotFound)

	cause := errors.New("mail server down")
	notifier.err = cause
	err := svc.SendEmail(ctx, "u1", "hello")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "error", Outcome(err))
}

func TestSendEmailRateLimit(t *testing.T) {
	svc, notifier, _ := newTestService(t, rate.NewLimiter(rate.Every(time.Hour), 2))
	createMember(t, svc, "u1")
	notifier.notices = nil
	ctx := context.Background()

	require.NoError(t, svc.SendEmail(ctx, "u1", "one"))
	require.NoError(t, svc.SendEmail(ctx, "u1", "two"))
	assert.ErrorIs(t, svc.SendEmail(ctx, "u1", "three"), ErrRateLimited)
	assert.Len(t, notifier.notices, 2)
}

func TestHistoryRecordsRequestID(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")

	_, err := svc.CreateMember(ctx, CreateMemberRequest{
		Account: "u1", Password: "pw", Email: "u1@example.com", Name: "Una",
	})
	require.NoError(t, err)
	require.NoError(t, svc.ActivateMember(ctx, "u1"))

	events, err := svc.History(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventMemberCreated, events[0].EventType)
	assert.Equal(t, EventMemberActivated, events[1].EventType)
	assert.Equal(t, "req-42", events[0].Metadata["request_id"])
	assert.NotContains(t, string(events[0].EventData), "pw")

	_, err = svc.History(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "success", Outcome(nil))
	assert.Equal(t, "invalid", Outcome(&ValidationError{Message: "x"}))
	assert.Equal(t, "not_found", Outcome(&BulkDeleteError{Missing: []string{"a"}}))
	assert.Equal(t, "duplicate", Outcome(ErrDuplicateAccount))
	assert.Equal(t, "rate_limited", Outcome(ErrRateLimited))
	assert.Equal(t, "error", Outcome(errors.New("other")))
}
