// internal/notify/postmark.go
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	defaultPostmarkEndpoint = "https://api.postmarkapp.com/email"
	// breakerFailureThreshold consecutive failures open the circuit.
	breakerFailureThreshold = 5
	breakerOpenTimeout      = 30 * time.Second
)

// PostmarkTransport delivers messages through the Postmark email API. Calls
// go through a circuit breaker so an unavailable API fails fast.
type PostmarkTransport struct {
	serverToken string
	fromEmail   string
	endpoint    string
	httpClient  *http.Client
	breaker     *gobreaker.CircuitBreaker
	logger      *zap.Logger
}

type PostmarkOption func(*PostmarkTransport)

func WithHTTPClient(c *http.Client) PostmarkOption {
	return func(t *PostmarkTransport) {
		t.httpClient = c
	}
}

// WithEndpoint overrides the Postmark API URL.
func WithEndpoint(endpoint string) PostmarkOption {
	return func(t *PostmarkTransport) {
		t.endpoint = endpoint
	}
}

func WithPostmarkLogger(l *zap.Logger) PostmarkOption {
	return func(t *PostmarkTransport) {
		t.logger = l
	}
}

func NewPostmarkTransport(serverToken, fromEmail string, opts ...PostmarkOption) *PostmarkTransport {
	t := &PostmarkTransport{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		endpoint:    defaultPostmarkEndpoint,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}

	t.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "postmark",
		MaxRequests: 1,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			t.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return t
}

// Configured returns true if the server token is set.
func (t *PostmarkTransport) Configured() bool {
	return t.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
	Metadata struct {
		MessageID string `json:"message_id"`
	} `json:"Metadata"`
}

// Deliver sends msg through Postmark.
func (t *PostmarkTransport) Deliver(ctx context.Context, msg Message) error {
	if !t.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	_, err := t.breaker.Execute(func() (interface{}, error) {
		return nil, t.post(ctx, msg)
	})
	return err
}

func (t *PostmarkTransport) post(ctx context.Context, msg Message) error {
	payload := postmarkEmail{
		From:     t.fromEmail,
		To:       msg.To,
		Subject:  msg.Subject,
		TextBody: msg.Body,
		HtmlBody: "<pre>" + html.EscapeString(strings.TrimSpace(msg.Body)) + "</pre>",
	}
	payload.Metadata.MessageID = msg.ID.String()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", t.serverToken)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}
