// internal/membership/service.go
package membership

import (
	"context"

	"memberhub/internal/journal"
)

// CreateMemberRequest carries the fields accepted when creating a member.
type CreateMemberRequest struct {
	Account  string `json:"account"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	LineID   string `json:"lineID"`
	Address  string `json:"address"`
	Role     string `json:"role"`
}

// Service defines the member management operations.
type Service interface {
	ListMembers(ctx context.Context) ([]*Member, error)
	GetMember(ctx context.Context, account string) (*Member, error)
	CreateMember(ctx context.Context, req CreateMemberRequest) (*Member, error)
	ActivateMember(ctx context.Context, account string) error
	DeactivateMember(ctx context.Context, account string) error
	UpdateMember(ctx context.Context, account string, patch Patch) (*Member, error)
	DeleteMembers(ctx context.Context, accounts []string) (int, error)
	VerifyEmail(ctx context.Context, account string) error
	SendEmail(ctx context.Context, account, content string) error
	History(ctx context.Context, account string) ([]journal.Event, error)
	Events(ctx context.Context, afterSequence int64, limit int) ([]journal.Event, error)
}
