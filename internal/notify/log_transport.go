// internal/notify/log_transport.go
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultLatency is the simulated delivery time of LogTransport.
const DefaultLatency = 100 * time.Millisecond

// LogTransport writes messages to the log instead of sending them, after a
// simulated delivery latency.
type LogTransport struct {
	logger  *zap.Logger
	latency time.Duration
}

func NewLogTransport(logger *zap.Logger, latency time.Duration) *LogTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogTransport{logger: logger, latency: latency}
}

// Deliver logs msg and waits out the latency, returning early if ctx ends.
func (t *LogTransport) Deliver(ctx context.Context, msg Message) error {
	t.logger.Info("sending email",
		zap.String("message_id", msg.ID.String()),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("content", msg.Body),
	)

	if t.latency <= 0 {
		return nil
	}

	timer := time.NewTimer(t.latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
