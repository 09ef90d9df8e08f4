package security

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gotus/internal/models"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newTestTokens(t *testing.T, clock *fakeClock) *TokenService {
	t.Helper()
	svc, err := NewTokenService(TokenConfig{Secret: "test-secret", Issuer: "gotus", Now: clock.Now})
	require.NoError(t, err)
	return svc
}

var testIdentity = Identity{
	UserID:    "2Ng5xZ4cQhb3ZrYyMBrOiQeXKkA",
	Email:     "admin@gotus.com",
	Role:      models.RoleAdmin,
	FirstName: "System",
	LastName:  "Administrator",
}

func TestNewTokenServiceRequiresSecret(t *testing.T) {
	_, err := NewTokenService(TokenConfig{})
	assert.Error(t, err)

	svc, err := NewTokenService(TokenConfig{Secret: "s"})
	require.NoError(t, err)
	assert.Equal(t, DefaultTokenTTL, svc.TTL())
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	svc := newTestTokens(t, clock)

	token, issued, err := svc.Issue(testIdentity)
	require.NoError(t, err)
	assert.NotEmpty(t, issued.ID)
	assert.Equal(t, clock.t.Add(DefaultTokenTTL).Unix(), issued.ExpiresAt.Unix())

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, testIdentity, claims.Identity)
	assert.Equal(t, issued.ID, claims.ID)
}

func TestVerifyExpired(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	svc := newTestTokens(t, clock)

	token, _, err := svc.Issue(testIdentity)
	require.NoError(t, err)

	clock.t = clock.t.Add(DefaultTokenTTL - time.Minute)
	_, err = svc.Verify(token)
	require.NoError(t, err)

	clock.t = clock.t.Add(2 * time.Minute)
	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyTampered(t *testing.T) {
	svc := newTestTokens(t, &fakeClock{t: time.Now()})
	token, _, err := svc.Issue(testIdentity)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	mid := len(sig) / 2
	if sig[mid] == 'A' {
		sig[mid] = 'B'
	} else {
		sig[mid] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, err = svc.Verify(tampered)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsForeignTokens(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	svc := newTestTokens(t, clock)

	other, err := NewTokenService(TokenConfig{Secret: "other-secret", Issuer: "gotus", Now: clock.Now})
	require.NoError(t, err)
	foreign, _, err := other.Issue(testIdentity)
	require.NoError(t, err)
	_, err = svc.Verify(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken, "different key")

	claims := SessionClaims{
		Identity: testIdentity,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "gotus",
			ExpiresAt: jwt.NewNumericDate(clock.t.Add(time.Hour)),
		},
	}
	hs256, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = svc.Verify(hs256)
	assert.ErrorIs(t, err, ErrInvalidToken, "different algorithm")

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.Verify(none)
	assert.ErrorIs(t, err, ErrInvalidToken, "alg none")

	_, err = svc.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshAcceptsExpired(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	svc := newTestTokens(t, clock)

	token, first, err := svc.Issue(testIdentity)
	require.NoError(t, err)

	clock.t = clock.t.Add(DefaultTokenTTL + 24*time.Hour)
	_, err = svc.Verify(token)
	require.Error(t, err)

	fresh, claims, err := svc.Refresh(token)
	require.NoError(t, err)
	assert.Equal(t, testIdentity, claims.Identity)
	assert.NotEqual(t, first.ID, claims.ID)
	assert.Equal(t, clock.t.Add(DefaultTokenTTL).Unix(), claims.ExpiresAt.Unix())

	_, err = svc.Verify(fresh)
	assert.NoError(t, err)
}

func TestRefreshGraceIsBounded(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	svc, err := NewTokenService(TokenConfig{
		Secret:       "test-secret",
		TTL:          time.Hour,
		RefreshGrace: 2 * time.Hour,
		Now:          clock.Now,
	})
	require.NoError(t, err)

	token, issued, err := svc.Issue(testIdentity)
	require.NoError(t, err)
	assert.Equal(t, clock.t.Add(3*time.Hour).Unix(), svc.RetainUntil(issued).Unix())

	clock.t = clock.t.Add(3*time.Hour - time.Second)
	_, err = svc.RefreshClaims(token)
	require.NoError(t, err)

	clock.t = clock.t.Add(2 * time.Second)
	_, err = svc.RefreshClaims(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, _, err = svc.Refresh(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshRejectsBadSignature(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	svc := newTestTokens(t, clock)
	other, err := NewTokenService(TokenConfig{Secret: "other", Now: clock.Now})
	require.NoError(t, err)

	foreign, _, err := other.Issue(testIdentity)
	require.NoError(t, err)

	_, _, err = svc.Refresh(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
