// internal/clients/member_client.go
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"

	"memberhub/internal/journal"
	"memberhub/internal/membership"
)

// APIError is a non-2xx response from the member service.
type APIError struct {
	Status  int
	Message string
	Missing []string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("member service: %d %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the member service.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

type MemberClient struct {
	baseURL    string
	httpClient *http.Client
	maxTries   uint
}

type Option func(*MemberClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(m *MemberClient) {
		m.httpClient = c
	}
}

// WithMaxTries sets how often reads are attempted on transport errors and
// gateway failures. Writes are never retried.
func WithMaxTries(n uint) Option {
	return func(m *MemberClient) {
		if n > 0 {
			m.maxTries = n
		}
	}
}

func NewMemberClient(baseURL string, opts ...Option) *MemberClient {
	c := &MemberClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxTries:   3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *MemberClient) ListMembers(ctx context.Context) ([]membership.Member, error) {
	var members []membership.Member
	if err := c.get(ctx, "/members", &members); err != nil {
		return nil, err
	}
	return members, nil
}

func (c *MemberClient) GetMember(ctx context.Context, account string) (*membership.Member, error) {
	var member membership.Member
	if err := c.get(ctx, "/members/"+url.PathEscape(account), &member); err != nil {
		return nil, err
	}
	return &member, nil
}

func (c *MemberClient) CreateMember(ctx context.Context, req membership.CreateMemberRequest) (*membership.Member, error) {
	var member membership.Member
	if err := c.send(ctx, http.MethodPost, "/members", req, &member); err != nil {
		return nil, err
	}
	return &member, nil
}

func (c *MemberClient) ActivateMember(ctx context.Context, account string) error {
	return c.send(ctx, http.MethodPost, "/members/activate", map[string]string{"id": account}, nil)
}

func (c *MemberClient) DeactivateMember(ctx context.Context, account string) error {
	return c.send(ctx, http.MethodPost, "/members/deactivation", map[string]string{"id": account}, nil)
}

func (c *MemberClient) UpdateMember(ctx context.Context, account string, patch membership.Patch) (*membership.Member, error) {
	body := struct {
		Account string `json:"account"`
		membership.Patch
	}{Account: account, Patch: patch}

	var member membership.Member
	if err := c.send(ctx, http.MethodPut, "/members", body, &member); err != nil {
		return nil, err
	}
	return &member, nil
}

// DeleteMembers removes all accounts or none. On a 404 the returned
// APIError lists the unknown accounts.
func (c *MemberClient) DeleteMembers(ctx context.Context, accounts []string) (int, error) {
	var result struct {
		Deleted int `json:"deleted"`
	}
	if err := c.send(ctx, http.MethodDelete, "/members", map[string][]string{"ids": accounts}, &result); err != nil {
		return 0, err
	}
	return result.Deleted, nil
}

func (c *MemberClient) VerifyEmail(ctx context.Context, account string) error {
	return c.send(ctx, http.MethodPost, "/members/"+url.PathEscape(account)+"/verify", nil, nil)
}

func (c *MemberClient) SendEmail(ctx context.Context, account, content string) error {
	return c.send(ctx, http.MethodPost, "/members/"+url.PathEscape(account)+"/send-email",
		map[string]string{"content": content}, nil)
}

func (c *MemberClient) History(ctx context.Context, account string) ([]journal.Event, error) {
	var events []journal.Event
	if err := c.get(ctx, "/members/"+url.PathEscape(account)+"/events", &events); err != nil {
		return nil, err
	}
	return events, nil
}

// Events returns up to limit journal events with a sequence greater than
// afterSequence.
func (c *MemberClient) Events(ctx context.Context, afterSequence int64, limit int) ([]journal.Event, error) {
	q := url.Values{}
	q.Set("after", strconv.FormatInt(afterSequence, 10))
	q.Set("limit", strconv.Itoa(limit))

	var events []journal.Event
	if err := c.get(ctx, "/events?"+q.Encode(), &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *MemberClient) get(ctx context.Context, path string, out any) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := c.do(ctx, http.MethodGet, path, nil, out)
		if err != nil && !retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.maxTries),
	)
	return err
}

func (c *MemberClient) send(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}
	return c.do(ctx, method, path, body, out)
}

func (c *MemberClient) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode >= 300 || !env.Success {
		apiErr := &APIError{Status: resp.StatusCode, Message: env.Message}
		var missing struct {
			Missing []string `json:"missing"`
		}
		if len(env.Data) > 0 && json.Unmarshal(env.Data, &missing) == nil {
			apiErr.Missing = missing.Missing
		}
		return apiErr
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

func retryable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	switch apiErr.Status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
