package service

import (
	"context"

	"github.com/rs/zerolog"

	"gotus/internal/models"
	"gotus/internal/repository"
)

type SeedConfig struct {
	AdminEmail    string
	AdminPassword string
	FirstName     string
	LastName      string
}

// Seeder bootstraps the default admin on an empty directory.
type Seeder struct {
	directory *DirectoryService
	accounts  repository.AccountRepository
	cfg       SeedConfig
	log       zerolog.Logger
}

func NewSeeder(directory *DirectoryService, accounts repository.AccountRepository, cfg SeedConfig, log zerolog.Logger) *Seeder {
	if cfg.FirstName == "" {
		cfg.FirstName = "System"
	}
	if cfg.LastName == "" {
		cfg.LastName = "Administrator"
	}
	return &Seeder{directory: directory, accounts: accounts, cfg: cfg, log: log}
}

// EnsureAdmin creates the default admin when no admin account exists at all,
// active or not. It reports whether an account was created.
func (s *Seeder) EnsureAdmin(ctx context.Context) (bool, error) {
	admins, err := s.accounts.Count(ctx, repository.AccountFilter{Role: models.RoleAdmin})
	if err != nil {
		return false, err
	}
	if admins > 0 {
		return false, nil
	}
	if s.cfg.AdminPassword == "" {
		s.log.Warn().Msg("no admin account exists and seed.adminpassword is not set; skipping seed")
		return false, nil
	}

	account, err := s.directory.Create(ctx, "", CreateAccountInput{
		Email:     s.cfg.AdminEmail,
		Password:  s.cfg.AdminPassword,
		FirstName: s.cfg.FirstName,
		LastName:  s.cfg.LastName,
		Role:      models.RoleAdmin,
	})
	if err != nil {
		return false, err
	}

	s.log.Info().Str("account_id", account.ID).Str("email", account.Email).Msg("default admin created")
	return true, nil
}
