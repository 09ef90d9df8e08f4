package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gotus/internal/apperr"
	"gotus/internal/cache"
	"gotus/internal/events"
	"gotus/internal/models"
	"gotus/internal/repository"
	"gotus/internal/security"
)

var (
	ErrInvalidCredentials = apperr.Authentication("invalid credentials")
	ErrMissingCredentials = apperr.Validation("email and password are required")
	ErrNotAuthenticated   = apperr.Authentication("not authenticated")
	ErrInvalidToken       = apperr.Authentication("invalid or expired token")
	ErrAccountInactive    = apperr.Authentication("account not found or inactive")
)

// dummyHash keeps the unknown-email path as slow as a real verification.
var dummyHash = sync.OnceValue(func() string {
	h, _ := security.HashPassword("gotus-timing-equaliser")
	return h
})

type AuthService struct {
	accounts repository.AccountRepository
	tokens   *security.TokenService
	denylist cache.Denylist
	events   events.Publisher
	log      zerolog.Logger
	now      func() time.Time
}

// NewAuthService wires sign-in and session checks. denylist may be nil, in
// which case sign-out cannot revoke tokens before they expire.
func NewAuthService(
	accounts repository.AccountRepository,
	tokens *security.TokenService,
	denylist cache.Denylist,
	publisher events.Publisher,
	log zerolog.Logger,
) *AuthService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &AuthService{
		accounts: accounts,
		tokens:   tokens,
		denylist: denylist,
		events:   publisher,
		log:      log,
		now:      time.Now,
	}
}

type Session struct {
	Account   *models.Account
	Token     string
	ExpiresAt time.Time
}

func (s *AuthService) TokenTTL() time.Duration {
	return s.tokens.TTL()
}

func (s *AuthService) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	account, err := s.accounts.FindByEmail(ctx, email, true)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			security.VerifyPassword(password, dummyHash())
			return nil, ErrInvalidCredentials
		}
		return nil, apperr.Internal("find account", err)
	}

	if !security.VerifyPassword(password, account.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.accounts.TouchLastLogin(ctx, account.ID, now); err != nil {
		return nil, apperr.Internal("record last login", err)
	}
	account.LastLogin = &now
	s.upgradeHash(ctx, account, password)

	session, err := s.issue(account)
	if err != nil {
		return nil, err
	}

	events.Emit(ctx, s.events, s.log, events.Event{
		Type:      events.TypeSignIn,
		AccountID: account.ID,
		ActorID:   account.ID,
		Role:      string(account.Role),
	})
	return session, nil
}

// upgradeHash re-hashes legacy or weaker password hashes after a successful
// sign-in. Failure only costs the upgrade.
func (s *AuthService) upgradeHash(ctx context.Context, account *models.Account, password string) {
	if !security.NeedsRehash(account.PasswordHash) {
		return
	}
	hash, err := security.HashPassword(password)
	if err != nil {
		s.log.Warn().Err(err).Str("account_id", account.ID).Msg("password rehash failed")
		return
	}
	upgraded := *account
	upgraded.PasswordHash = hash
	if err := s.accounts.Update(ctx, &upgraded); err != nil {
		s.log.Warn().Err(err).Str("account_id", account.ID).Msg("password rehash failed")
		return
	}
	*account = upgraded
}

// Authenticate resolves a raw token to the current, active account. The
// account is re-read so the caller sees its present state, not the claims.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.Account, *security.SessionClaims, error) {
	claims, err := s.VerifyToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	account, err := s.accounts.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, nil, ErrAccountInactive
		}
		return nil, nil, apperr.Internal("find account", err)
	}
	if !account.IsActive {
		return nil, nil, ErrAccountInactive
	}
	return account, claims, nil
}

// VerifyToken checks signature, expiry and revocation without touching the
// account store.
func (s *AuthService) VerifyToken(ctx context.Context, token string) (*security.SessionClaims, error) {
	if token == "" {
		return nil, ErrNotAuthenticated
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if err := s.checkRevoked(ctx, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// Me is the who-am-I operation.
func (s *AuthService) Me(ctx context.Context, token string) (*models.Account, error) {
	account, _, err := s.Authenticate(ctx, token)
	return account, err
}

// SignOut revokes token when a denylist is configured. Tokens that do not
// parse are ignored: there is nothing to revoke.
func (s *AuthService) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	claims, err := s.tokens.Claims(token)
	if err != nil {
		return nil
	}
	if err := s.revoke(ctx, claims); err != nil {
		return err
	}

	events.Emit(ctx, s.events, s.log, events.Event{
		Type:      events.TypeSignOut,
		AccountID: claims.UserID,
		ActorID:   claims.UserID,
		Role:      string(claims.Role),
		Data:      map[string]string{"jti": claims.ID},
	})
	return nil
}

// Refresh exchanges a correctly signed token for a fresh one. An expired
// token is accepted within the refresh grace. The account must still be
// active and the old token is revoked before the new one is issued.
func (s *AuthService) Refresh(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrNotAuthenticated
	}
	old, err := s.tokens.RefreshClaims(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if err := s.checkRevoked(ctx, old); err != nil {
		return nil, err
	}

	account, err := s.accounts.FindByID(ctx, old.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountInactive
		}
		return nil, apperr.Internal("find account", err)
	}
	if !account.IsActive {
		return nil, ErrAccountInactive
	}

	if err := s.revoke(ctx, old); err != nil {
		return nil, err
	}
	return s.issue(account)
}

// revoke denylists claims for as long as the token could still be verified
// or refreshed. Without a denylist it does nothing.
func (s *AuthService) revoke(ctx context.Context, claims *security.SessionClaims) error {
	if s.denylist == nil || claims.ID == "" {
		return nil
	}
	if err := s.denylist.Revoke(ctx, claims.ID, s.tokens.RetainUntil(claims)); err != nil {
		return apperr.Internal("revoke token", err)
	}
	return nil
}

func (s *AuthService) checkRevoked(ctx context.Context, claims *security.SessionClaims) error {
	if s.denylist == nil || claims.ID == "" {
		return nil
	}
	revoked, err := s.denylist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return apperr.Internal("check token revocation", err)
	}
	if revoked {
		return ErrInvalidToken
	}
	return nil
}

func (s *AuthService) issue(account *models.Account) (*Session, error) {
	token, claims, err := s.tokens.Issue(security.IdentityOf(account))
	if err != nil {
		return nil, apperr.Internal("issue token", err)
	}
	return &Session{Account: account, Token: token, ExpiresAt: claims.ExpiresAt.Time}, nil
}
