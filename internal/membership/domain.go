// internal/membership/domain.go
package membership

import (
	"time"
)

// DefaultRole is assigned to members created without an explicit role.
const DefaultRole = "member"

// Member represents a managed member account.
type Member struct {
	Account      string    `json:"account"`
	PasswordHash string    `json:"-"`
	PasswordSalt string    `json:"-"`
	Email        string    `json:"email"`
	LineID       string    `json:"lineID"`
	Name         string    `json:"name"`
	Address      string    `json:"address"`
	Role         string    `json:"role"`
	IsVerified   bool      `json:"isVerified"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// NewMember returns an active, unverified member with the default role.
func NewMember(account, email, name string) *Member {
	return &Member{
		Account:  account,
		Email:    email,
		Name:     name,
		Role:     DefaultRole,
		IsActive: true,
	}
}

// Activate marks the member as active.
func (m *Member) Activate() {
	m.IsActive = true
}

// Suspend marks the member as inactive.
func (m *Member) Suspend() {
	m.IsActive = false
}

// VerifyEmail marks the member's email address as verified.
func (m *Member) VerifyEmail() {
	m.IsVerified = true
}

// DeleteAccount is a soft delete: the record stays, the account goes inactive.
func (m *Member) DeleteAccount() {
	m.IsActive = false
}

// Clone returns a copy that shares no state with m.
func (m *Member) Clone() *Member {
	c := *m
	return &c
}

// Patch carries the fields of an update request. Nil fields are left untouched.
type Patch struct {
	Password *string `json:"password,omitempty"`
	Email    *string `json:"email,omitempty"`
	LineID   *string `json:"lineID,omitempty"`
	Name     *string `json:"name,omitempty"`
	Address  *string `json:"address,omitempty"`
	Role     *string `json:"role,omitempty"`
}

// Apply merges the non-nil profile fields of p onto m. The password is
// handled separately since it has to be hashed.
func (p Patch) Apply(m *Member) {
	if p.Email != nil {
		m.Email = *p.Email
	}
	if p.LineID != nil {
		m.LineID = *p.LineID
	}
	if p.Name != nil {
		m.Name = *p.Name
	}
	if p.Address != nil {
		m.Address = *p.Address
	}
	if p.Role != nil {
		m.Role = *p.Role
	}
}

// Fields lists the names of the fields set on p, in wire form.
func (p Patch) Fields() []string {
	var fields []string
	if p.Password != nil {
		fields = append(fields, "password")
	}
	if p.Email != nil {
		fields = append(fields, "email")
	}
	if p.LineID != nil {
		fields = append(fields, "lineID")
	}
	if p.Name != nil {
		fields = append(fields, "name")
	}
	if p.Address != nil {
		fields = append(fields, "address")
	}
	if p.Role != nil {
		fields = append(fields, "role")
	}
	return fields
}

// Journal event types recorded for member mutations.
const (
	EventMemberCreated     = "MemberCreated"
	EventMemberActivated   = "MemberActivated"
	EventMemberDeactivated = "MemberDeactivated"
	EventMemberUpdated     = "MemberUpdated"
	EventMemberVerified    = "MemberVerified"
	EventMemberDeleted     = "MemberDeleted"
	EventMemberEmailed     = "MemberEmailed"
)

// AggregateType is the journal aggregate type for members.
const AggregateType = "member"

// MemberCreatedEvent is recorded when a new member is created.
type MemberCreatedEvent struct {
	Account string `json:"account"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Role    string `json:"role"`
}

// MemberStatusChangedEvent is recorded on activation and deactivation.
type MemberStatusChangedEvent struct {
	Account  string `json:"account"`
	IsActive bool   `json:"isActive"`
}

// MemberUpdatedEvent is recorded when profile fields change.
type MemberUpdatedEvent struct {
	Account string   `json:"account"`
	Fields  []string `json:"fields"`
}

// MemberVerifiedEvent is recorded when the email address is verified.
type MemberVerifiedEvent struct {
	Account string `json:"account"`
}

// MemberDeletedEvent is recorded when the record is removed from the store.
type MemberDeletedEvent struct {
	Account string `json:"account"`
}

// MemberEmailedEvent is recorded for every admin message sent to a member.
type MemberEmailedEvent struct {
	Account string `json:"account"`
	Email   string `json:"email"`
	Length  int    `json:"length"`
}
