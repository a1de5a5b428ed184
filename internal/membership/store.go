// internal/membership/store.go
package membership

import "context"

// Store owns the canonical collection of members, keyed by account.
// Every returned *Member is a copy; callers persist changes through the Store.
type Store interface {
	List(ctx context.Context) ([]*Member, error)
	Get(ctx context.Context, account string) (*Member, bool)
	Create(ctx context.Context, member *Member) (*Member, error)
	Update(ctx context.Context, member *Member) (*Member, error)
	Delete(ctx context.Context, account string) error
	Activate(ctx context.Context, account string) error
	Deactivate(ctx context.Context, account string) error

	// Verify marks the member's email as verified.
	Verify(ctx context.Context, account string) (*Member, error)
	// Modify runs fn on the stored member and persists the result atomically.
	// An error from fn aborts the change.
	Modify(ctx context.Context, account string, fn func(*Member) error) (*Member, error)
	// DeleteAll removes every listed account, or none of them if any is
	// missing, in which case the error is a *BulkDeleteError.
	DeleteAll(ctx context.Context, accounts []string) (int, error)
}
