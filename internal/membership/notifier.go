// internal/membership/notifier.go
package membership

import "context"

// Notifier delivers messages to a member's registered email address.
type Notifier interface {
	Send(ctx context.Context, member *Member, content string) error
	SendVerification(ctx context.Context, member *Member) error
	SendSuspension(ctx context.Context, member *Member) error
}
