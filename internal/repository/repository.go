package repository

import (
	"context"
	"errors"
	"time"

	"gotus/internal/models"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrEmailTaken      = errors.New("email already exists")
)

// AccountFilter narrows List and Count. Zero values match everything.
type AccountFilter struct {
	Role   models.Role
	Search string
	Active *bool
}

type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	FindByID(ctx context.Context, id string) (*models.Account, error)
	// FindByEmail expects an already normalised (lowercase) email.
	FindByEmail(ctx context.Context, email string, activeOnly bool) (*models.Account, error)
	// Update replaces every mutable field except the active flag, which only
	// SetActive changes, and bumps UpdatedAt. account.IsActive is refreshed
	// from the store.
	Update(ctx context.Context, account *models.Account) error
	SetActive(ctx context.Context, id string, active bool) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	// List returns accounts newest first.
	List(ctx context.Context, filter AccountFilter, offset, limit int) ([]models.Account, error)
	Count(ctx context.Context, filter AccountFilter) (int64, error)
	FindProfiles(ctx context.Context, ids []string) (map[string]models.ShortProfile, error)
	Ping(ctx context.Context) error
}

func ActiveOnly() *bool {
	v := true
	return &v
}

// ActiveAdmins is the filter behind the last-admin rule.
func ActiveAdmins() AccountFilter {
	return AccountFilter{Role: models.RoleAdmin, Active: ActiveOnly()}
}
