package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"gotus/internal/ids"
	"gotus/internal/models"
)

// DefaultTokenTTL is the session lifetime when none is configured.
const DefaultTokenTTL = 7 * 24 * time.Hour

// DefaultRefreshGrace is how long after expiry a token may still be refreshed.
const DefaultRefreshGrace = 7 * 24 * time.Hour

var ErrInvalidToken = errors.New("invalid token")

type Identity struct {
	UserID    string      `json:"userId"`
	Email     string      `json:"email"`
	Role      models.Role `json:"role"`
	FirstName string      `json:"firstName"`
	LastName  string      `json:"lastName"`
}

func IdentityOf(a *models.Account) Identity {
	return Identity{
		UserID:    a.ID,
		Email:     a.Email,
		Role:      a.Role,
		FirstName: a.FirstName,
		LastName:  a.LastName,
	}
}

type SessionClaims struct {
	Identity
	jwt.RegisteredClaims
}

type TokenConfig struct {
	Secret string
	TTL    time.Duration
	Issuer string
	// RefreshGrace bounds how long past its expiry a token can be refreshed.
	RefreshGrace time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

type TokenService struct {
	secret []byte
	ttl    time.Duration
	grace  time.Duration
	issuer string
	now    func() time.Time
}

func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token secret is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTokenTTL
	}
	if cfg.RefreshGrace <= 0 {
		cfg.RefreshGrace = DefaultRefreshGrace
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &TokenService{
		secret: []byte(cfg.Secret),
		ttl:    cfg.TTL,
		grace:  cfg.RefreshGrace,
		issuer: cfg.Issuer,
		now:    cfg.Now,
	}, nil
}

func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a new session token for identity. The returned claims carry the
// jti and expiry that were embedded.
func (s *TokenService) Issue(identity Identity) (string, *SessionClaims, error) {
	now := s.now()
	claims := &SessionClaims{
		Identity: identity,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   identity.UserID,
			ID:        ids.New(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign jwt: %w", err)
	}
	return signed, claims, nil
}

// Verify checks signature, algorithm and expiry. Every failure collapses to
// ErrInvalidToken so callers cannot tell a forged token from an expired one.
func (s *TokenService) Verify(tokenStr string) (*SessionClaims, error) {
	claims, err := s.parse(tokenStr, jwt.WithExpirationRequired())
	if err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Refresh re-issues tokenStr with the same identity and a fresh expiry.
// Expired tokens are accepted until the refresh grace has passed.
func (s *TokenService) Refresh(tokenStr string) (string, *SessionClaims, error) {
	claims, err := s.RefreshClaims(tokenStr)
	if err != nil {
		return "", nil, err
	}
	return s.Issue(claims.Identity)
}

// RefreshClaims parses a token that may have expired, refusing it once it is
// older than its expiry plus the refresh grace.
func (s *TokenService) RefreshClaims(tokenStr string) (*SessionClaims, error) {
	claims, err := s.parse(tokenStr, jwt.WithoutClaimsValidation())
	if err != nil || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}
	if s.now().After(claims.ExpiresAt.Add(s.grace)) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RetainUntil is the last moment claims can be used for anything, refresh
// included. A revocation has to be remembered at least this long.
func (s *TokenService) RetainUntil(claims *SessionClaims) time.Time {
	if claims.ExpiresAt == nil {
		return s.now().Add(s.ttl + s.grace)
	}
	return claims.ExpiresAt.Add(s.grace)
}

// Claims parses tokenStr without checking expiry. Sign-out uses it to find
// the jti of a token that may already have lapsed.
func (s *TokenService) Claims(tokenStr string) (*SessionClaims, error) {
	claims, err := s.parse(tokenStr, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *TokenService) parse(tokenStr string, opts ...jwt.ParserOption) (*SessionClaims, error) {
	opts = append(opts,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
