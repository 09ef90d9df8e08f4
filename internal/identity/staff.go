package identity

import (
	"context"
	"net/http"

	"gotus/internal/models"
	"gotus/internal/security"
)

// Authenticator turns a raw session token into the current account.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Account, *security.SessionClaims, error)
}

type StaffTokenResolver struct {
	extract security.TokenExtractor
	auth    Authenticator
}

func NewStaffTokenResolver(extract security.TokenExtractor, auth Authenticator) *StaffTokenResolver {
	if extract == nil {
		extract = security.DefaultExtractor(security.DefaultCookieName)
	}
	return &StaffTokenResolver{extract: extract, auth: auth}
}

func (s *StaffTokenResolver) Resolve(ctx context.Context, r *http.Request) (*Caller, error) {
	token := s.extract(r)
	if token == "" {
		return nil, ErrNoIdentity
	}
	account, _, err := s.auth.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	return &Caller{Kind: KindStaff, Account: account}, nil
}
