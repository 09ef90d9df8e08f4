package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gotus/internal/models"
)

// MemoryAccountRepository keeps accounts in process memory. It backs the
// memory driver and service tests.
type MemoryAccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]models.Account
	now      func() time.Time
}

func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{
		accounts: make(map[string]models.Account),
		now:      time.Now,
	}
}

func (r *MemoryAccountRepository) Create(_ context.Context, account *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[account.ID]; ok {
		return fmt.Errorf("account %s already exists", account.ID)
	}
	if r.emailTakenLocked(account.Email, "") {
		return ErrEmailTaken
	}
	r.accounts[account.ID] = cloneAccount(*account)
	return nil
}

func (r *MemoryAccountRepository) FindByID(_ context.Context, id string) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	out := cloneAccount(a)
	return &out, nil
}

func (r *MemoryAccountRepository) FindByEmail(_ context.Context, email string, activeOnly bool) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.accounts {
		if !strings.EqualFold(a.Email, email) {
			continue
		}
		if activeOnly && !a.IsActive {
			return nil, ErrAccountNotFound
		}
		out := cloneAccount(a)
		return &out, nil
	}
	return nil, ErrAccountNotFound
}

func (r *MemoryAccountRepository) Update(_ context.Context, account *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.accounts[account.ID]
	if !ok {
		return ErrAccountNotFound
	}
	if r.emailTakenLocked(account.Email, account.ID) {
		return ErrEmailTaken
	}

	next := cloneAccount(*account)
	next.CreatedAt = stored.CreatedAt
	next.CreatedBy = stored.CreatedBy
	next.LastLogin = stored.LastLogin
	next.IsActive = stored.IsActive
	next.UpdatedAt = r.now().UTC()
	r.accounts[account.ID] = next
	account.UpdatedAt = next.UpdatedAt
	account.IsActive = next.IsActive
	return nil
}

func (r *MemoryAccountRepository) SetActive(_ context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.IsActive = active
	a.UpdatedAt = r.now().UTC()
	r.accounts[id] = a
	return nil
}

func (r *MemoryAccountRepository) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	at = at.UTC()
	a.LastLogin = &at
	r.accounts[id] = a
	return nil
}

func (r *MemoryAccountRepository) List(_ context.Context, filter AccountFilter, offset, limit int) ([]models.Account, error) {
	r.mu.RLock()
	matched := r.matchLocked(filter)
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return []models.Account{}, nil
	}
	end := len(matched)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return matched[offset:end], nil
}

func (r *MemoryAccountRepository) Count(_ context.Context, filter AccountFilter) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.matchLocked(filter))), nil
}

func (r *MemoryAccountRepository) FindProfiles(_ context.Context, ids []string) (map[string]models.ShortProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]models.ShortProfile, len(ids))
	for _, id := range ids {
		if a, ok := r.accounts[id]; ok {
			out[id] = a.Short()
		}
	}
	return out, nil
}

func (r *MemoryAccountRepository) Ping(context.Context) error {
	return nil
}

func (r *MemoryAccountRepository) emailTakenLocked(email, exceptID string) bool {
	for id, a := range r.accounts {
		if id != exceptID && strings.EqualFold(a.Email, email) {
			return true
		}
	}
	return false
}

func (r *MemoryAccountRepository) matchLocked(filter AccountFilter) []models.Account {
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	out := make([]models.Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		if filter.Role != "" && a.Role != filter.Role {
			continue
		}
		if filter.Active != nil && a.IsActive != *filter.Active {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(a.FirstName), search) &&
			!strings.Contains(strings.ToLower(a.LastName), search) &&
			!strings.Contains(strings.ToLower(a.Email), search) {
			continue
		}
		out = append(out, cloneAccount(a))
	}
	return out
}

func cloneAccount(a models.Account) models.Account {
	if a.Address != nil {
		addr := *a.Address
		a.Address = &addr
	}
	if a.Location != nil {
		loc := *a.Location
		a.Location = &loc
	}
	if a.LastLogin != nil {
		at := *a.LastLogin
		a.LastLogin = &at
	}
	if a.Permissions != nil {
		a.Permissions = append([]string(nil), a.Permissions...)
	}
	return a
}
