// internal/server/server_test.go
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"memberhub/internal/membership"
)

type sentNotice struct {
	kind    string
	account string
	active  bool
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []sentNotice
}

func (n *fakeNotifier) add(kind string, m *membership.Member) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, sentNotice{kind: kind, account: m.Account, active: m.IsActive})
}

func (n *fakeNotifier) Send(ctx context.Context, m *membership.Member, content string) error {
	n.add("message", m)
	return nil
}

func (n *fakeNotifier) SendVerification(ctx context.Context, m *membership.Member) error {
	n.add("verification", m)
	return nil
}

func (n *fakeNotifier) SendSuspension(ctx context.Context, m *membership.Member) error {
	n.add("suspension", m)
	return nil
}

func (n *fakeNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, notice := range n.notices {
		if notice.kind == kind {
			c++
		}
	}
	return c
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

type testServer struct {
	handler  chi.Router
	notifier *fakeNotifier
}

func newTestServer(t *testing.T, limiter *rate.Limiter) *testServer {
	t.Helper()
	notifier := &fakeNotifier{}
	svc := membership.NewService(membership.Config{
		Store:       membership.NewMemoryStore(),
		Notifier:    notifier,
		SendLimiter: limiter,
	})
	router := NewRouter(Options{
		Members: membership.NewHandler(svc, membership.HandlerOptions{}),
		Now:     func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	})
	return &testServer{handler: router, notifier: notifier}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (int, envelope, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))

	raw := rec.Body.Bytes()
	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	return rec.Code, env, raw
}

func (s *testServer) create(t *testing.T, account string) {
	t.Helper()
	code, env, _ := s.do(t, http.MethodPost, "/members", map[string]string{
		"account":  account,
		"password": "secret",
		"email":    account + "@example.com",
		"name":     "Name " + account,
	})
	require.Equal(t, http.StatusCreated, code)
	require.True(t, env.Success)
}

func (s *testServer) member(t *testing.T, account string) map[string]any {
	t.Helper()
	code, env, _ := s.do(t, http.MethodGet, "/members/"+account, nil)
	require.Equal(t, http.StatusOK, code)
	var m map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &m))
	return m
}

func TestCreateGetVerifyFlow(t *testing.T) {
	s := newTestServer(t, nil)

	code, env, raw := s.do(t, http.MethodPost, "/members", map[string]string{
		"account":  "u1",
		"password": "p",
		"email":    "u1@example.com",
		"name":     "Una",
	})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "Member created successfully. Verification email sent.", env.Message)
	assert.NotContains(t, string(raw), "password")
	assert.Equal(t, 1, s.notifier.count("verification"))

	m := s.member(t, "u1")
	assert.Equal(t, true, m["isActive"])
	assert.Equal(t, false, m["isVerified"])
	assert.Equal(t, "member", m["role"])

	code, env, _ = s.do(t, http.MethodPost, "/members/u1/verify", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Email verified successfully", env.Message)

	m = s.member(t, "u1")
	assert.Equal(t, true, m["isVerified"])
}

func TestCreateMissingFields(t *testing.T) {
	s := newTestServer(t, nil)

	code, env, _ := s.do(t, http.MethodPost, "/members", map[string]string{"account": "u1"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, env.Success)
	assert.Contains(t, string(env.Data), `"password","email","name"`)
	assert.Equal(t, 0, s.notifier.count("verification"))
}

func TestDuplicateCreateKeepsOneRecord(t *testing.T) {
	s := newTestServer(t, nil)
	s.create(t, "u1")

	code, env, _ := s.do(t, http.MethodPost, "/members", map[string]string{
		"account": "u1", "password": "x", "email": "other@example.com", "name": "Other",
	})
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Failed to create member", env.Message)
	assert.Equal(t, "Something went wrong", env.Error)

	_, env, _ = s.do(t, http.MethodGet, "/members", nil)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "u1@example.com", list[0]["email"])
}

func TestDeactivationSendsOneSuspensionNotice(t *testing.T) {
	s := newTestServer(t, nil)
	s.create(t, "u1")

	code, env, _ := s.do(t, http.MethodPost, "/members/deactivation", map[string]string{"id": "u1"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Member deactivated successfully. Notification email sent.", env.Message)

	assert.Equal(t, 1, s.notifier.count("suspension"))
	assert.False(t, s.notifier.notices[len(s.notifier.notices)-1].active)
	assert.Equal(t, false, s.member(t, "u1")["isActive"])

	code, _, _ = s.do(t, http.MethodPost, "/members/activate", map[string]string{"id": "u1"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, s.member(t, "u1")["isActive"])
}

func TestActivateUnknownAndMissingID(t *testing.T) {
	s := newTestServer(t, nil)

	code, env, _ := s.do(t, http.MethodPost, "/members/activate", map[string]string{"id": "ghost"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Member not found", env.Message)

	code, env, _ = s.do(t, http.MethodPost, "/members/deactivation", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Member ID is required", env.Message)
	assert.Equal(t, 0, s.notifier.count("suspension"))
}

func TestBulkDeleteIsAllOrNothing(t *testing.T) {
	s := newTestServer(t, nil)
	s.create(t, "a")
	s.create(t, "b")

	code, env, _ := s.do(t, http.MethodDelete, "/members", map[string][]string{"ids": {"a", "ghost"}})
	assert.Equal(t, http.StatusNotFound, code)
	assert.JSONEq(t, `{"missing":["ghost"]}`, string(env.Data))
	s.member(t, "a")

	code, env, _ = s.do(t, http.MethodDelete, "/members", map[string][]string{"ids": {"a", "b"}})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Successfully deleted 2 members", env.Message)

	code, _, _ = s.do(t, http.MethodGet, "/members/a", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, env, _ = s.do(t, http.MethodDelete, "/members", map[string][]string{"ids": {}})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Member IDs array is required", env.Message)
}

func TestUpdateChangesOnlyGivenFields(t *testing.T) {
	s := newTestServer(t, nil)
	s.create(t, "u1")
	before := s.member(t, "u1")

	code, env, _ := s.do(t, http.MethodPut, "/members", map[string]string{"account": "u1", "name": "Renamed"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Member updated successfully", env.Message)

	after := s.member(t, "u1")
	assert.Equal(t, "Renamed", after["name"])
	for _, field := range []string{"account", "email", "lineID", "address", "role", "isActive", "isVerified", "createdAt"} {
		assert.Equal(t, before[field], after[field], field)
	}

	code, _, _ = s.do(t, http.MethodPut, "/members", map[string]string{"account": "ghost", "name": "x"})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSendEmailRateLimited(t *testing.T) {
	s := newTestServer(t, rate.NewLimiter(rate.Every(time.Hour), 1))
	s.create(t, "u1")

	code, env, _ := s.do(t, http.MethodPost, "/members/u1/send-email", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Email content is required", env.Message)

	code, _, _ = s.do(t, http.MethodPost, "/members/u1/send-email", map[string]string{"content": "hello"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, s.notifier.count("message"))

	code, _, _ = s.do(t, http.MethodPost, "/members/u1/send-email", map[string]string{"content": "again"})
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, 1, s.notifier.count("message"))
}

func TestMemberHistory(t *testing.T) {
	s := newTestServer(t, nil)
	s.create(t, "u1")
	s.do(t, http.MethodPost, "/members/u1/verify", nil)

	code, env, _ := s.do(t, http.MethodGet, "/members/u1/events", nil)
	require.Equal(t, http.StatusOK, code)

	var events []struct {
		EventType string `json:"eventType"`
		Version   int    `json:"version"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &events))
	require.Len(t, events, 2)
	assert.Equal(t, membership.EventMemberCreated, events[0].EventType)
	assert.Equal(t, membership.EventMemberVerified, events[1].EventType)
	assert.Equal(t, 2, events[1].Version)

	code, _, _ = s.do(t, http.MethodGet, "/members/ghost/events", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestEventsFeed(t *testing.T) {
	s := newTestServer(t, nil)
	s.create(t, "a")
	s.create(t, "b")
	s.do(t, http.MethodPost, "/members/a/verify", nil)

	code, env, _ := s.do(t, http.MethodGet, "/events?after=1&limit=5", nil)
	require.Equal(t, http.StatusOK, code)
	var events []struct {
		Sequence    int64  `json:"sequence"`
		AggregateID string `json:"aggregateId"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &events))
	require.Len(t, events, 2)
	assert.Equal(t, int64(2), events[0].Sequence)
	assert.Equal(t, "b", events[0].AggregateID)
	assert.Equal(t, "a", events[1].AggregateID)

	code, _, _ = s.do(t, http.MethodGet, "/events?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _, _ = s.do(t, http.MethodGet, "/events?limit=5000", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"status": "OK",
		"timestamp": "2024-05-01T12:00:00.000Z",
		"message": "Member Management System is running"
	}`, rec.Body.String())
}

func TestUnknownRouteAndMethod(t *testing.T) {
	s := newTestServer(t, nil)

	code, env, _ := s.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, env.Success)
	assert.Equal(t, "Route not found", env.Message)

	code, env, _ = s.do(t, http.MethodPatch, "/members", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Route not found", env.Message)
}

func TestRecovererHidesPanicOutsideDevelopment(t *testing.T) {
	for _, dev := range []bool{false, true} {
		r := NewRouter(Options{Development: dev})
		r.Get("/boom", func(w http.ResponseWriter, r *http.Request) { panic("kaboom") })

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
		require.Equal(t, http.StatusInternalServerError, rec.Code)

		var env envelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		assert.False(t, env.Success)
		if dev {
			assert.Equal(t, "kaboom", env.Error)
		} else {
			assert.Equal(t, "Something went wrong", env.Error)
		}
	}
}

func TestEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	endpoints := Endpoints(s.handler)

	assert.Contains(t, endpoints, "GET /health")
	assert.Contains(t, endpoints, "POST /members")
	assert.Contains(t, endpoints, "POST /members/deactivation")
	assert.Contains(t, endpoints, "POST /members/{id}/send-email")
	assert.Contains(t, endpoints, "GET /events")
	assert.NotContains(t, endpoints, "GET /metrics")
}
