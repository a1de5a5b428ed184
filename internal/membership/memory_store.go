// internal/membership/memory_store.go
package membership

import (
	"context"
	"sync"
	"time"
)

// memoryStore implements Store over an in-process map. Insertion order is
// kept so List is stable.
type memoryStore struct {
	mu      sync.RWMutex
	members map[string]*Member
	order   []string
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory member store.
func NewMemoryStore() Store {
	return &memoryStore{
		members: make(map[string]*Member),
		now:     time.Now,
	}
}

// List returns a snapshot of all members in insertion order.
func (s *memoryStore) List(ctx context.Context) ([]*Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := make([]*Member, 0, len(s.order))
	for _, account := range s.order {
		members = append(members, s.members[account].Clone())
	}
	return members, nil
}

// Get looks up a member by account.
func (s *memoryStore) Get(ctx context.Context, account string) (*Member, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	member, ok := s.members[account]
	if !ok {
		return nil, false
	}
	return member.Clone(), true
}

// Create inserts a copy of member. The account must not exist yet.
func (s *memoryStore) Create(ctx context.Context, member *Member) (*Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.members[member.Account]; exists {
		return nil, ErrDuplicateAccount
	}

	stored := member.Clone()
	now := s.now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	s.members[stored.Account] = stored
	s.order = append(s.order, stored.Account)
	return stored.Clone(), nil
}

// Update replaces the stored record for member.Account wholesale.
func (s *memoryStore) Update(ctx context.Context, member *Member) (*Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.members[member.Account]
	if !ok {
		return nil, ErrNotFound
	}

	stored := member.Clone()
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = s.now().UTC()
	s.members[stored.Account] = stored
	return stored.Clone(), nil
}

// Delete physically removes a member.
func (s *memoryStore) Delete(ctx context.Context, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.members[account]; !ok {
		return ErrNotFound
	}
	s.remove(account)
	return nil
}

// Activate sets the member active.
func (s *memoryStore) Activate(ctx context.Context, account string) error {
	_, err := s.Modify(ctx, account, func(m *Member) error {
		m.Activate()
		return nil
	})
	return err
}

// Deactivate suspends the member.
func (s *memoryStore) Deactivate(ctx context.Context, account string) error {
	_, err := s.Modify(ctx, account, func(m *Member) error {
		m.Suspend()
		return nil
	})
	return err
}

// Verify marks the member's email as verified.
func (s *memoryStore) Verify(ctx context.Context, account string) (*Member, error) {
	return s.Modify(ctx, account, func(m *Member) error {
		m.VerifyEmail()
		return nil
	})
}

// Modify applies fn to a working copy and stores it if fn succeeds.
// The account of the working copy cannot be changed by fn.
func (s *memoryStore) Modify(ctx context.Context, account string, fn func(*Member) error) (*Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.members[account]
	if !ok {
		return nil, ErrNotFound
	}

	working := existing.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.Account = account
	working.CreatedAt = existing.CreatedAt
	working.UpdatedAt = s.now().UTC()

	s.members[account] = working
	return working.Clone(), nil
}

// DeleteAll removes all listed accounts in one critical section.
func (s *memoryStore) DeleteAll(ctx context.Context, accounts []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(accounts))
	unique := make([]string, 0, len(accounts))
	var missing []string
	for _, account := range accounts {
		if _, dup := seen[account]; dup {
			continue
		}
		seen[account] = struct{}{}
		if _, ok := s.members[account]; !ok {
			missing = append(missing, account)
			continue
		}
		unique = append(unique, account)
	}

	if len(missing) > 0 {
		return 0, &BulkDeleteError{Missing: missing}
	}

	for _, account := range unique {
		s.remove(account)
	}
	return len(unique), nil
}

// remove deletes account from the map and the ordering. Callers hold mu.
func (s *memoryStore) remove(account string) {
	delete(s.members, account)
	for i, a := range s.order {
		if a == account {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
