// internal/membership/errors.go
package membership

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound         = errors.New("member not found")
	ErrDuplicateAccount = errors.New("member with this account already exists")
	ErrRateLimited      = errors.New("rate limit exceeded")
)

// ValidationError reports required request fields that were missing.
type ValidationError struct {
	Message string
	Fields  []string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// BulkDeleteError lists the accounts that prevented a bulk delete.
type BulkDeleteError struct {
	Missing []string
}

func (e *BulkDeleteError) Error() string {
	return fmt.Sprintf("members not found: %s", strings.Join(e.Missing, ", "))
}

func (e *BulkDeleteError) Unwrap() error {
	return ErrNotFound
}
