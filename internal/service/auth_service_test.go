package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"gotus/internal/apperr"
	"gotus/internal/cache"
	"gotus/internal/events"
	"gotus/internal/ids"
	"gotus/internal/models"
	"gotus/internal/security"
)

type authFixture struct {
	*fixture
	auth  *AuthService
	clock *time.Time
}

// newAuthFixture drives tokens and, with revoke set, an in-memory denylist
// from one controllable clock.
func newAuthFixture(t *testing.T, revoke bool) *authFixture {
	t.Helper()
	f := newFixture(t)
	now := time.Now()
	clock := &now
	readClock := func() time.Time { return *clock }
	tokens, err := security.NewTokenService(security.TokenConfig{
		Secret: "test-secret",
		Issuer: "gotus",
		Now:    readClock,
	})
	require.NoError(t, err)
	var denylist cache.Denylist
	if revoke {
		denylist = cache.NewMemoryDenylist(readClock)
	}
	auth := NewAuthService(f.repo, tokens, denylist, f.published, zerolog.Nop())
	return &authFixture{fixture: f, auth: auth, clock: clock}
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t, false)
	admin := f.admin(t, "admin@gotus.com")

	session, err := f.auth.SignIn(ctx, "  Admin@Gotus.com ", "admin123")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, session.Account.ID)
	assert.NotEmpty(t, session.Token)
	require.NotNil(t, session.Account.LastLogin)

	stored, err := f.repo.FindByID(ctx, admin.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLogin)

	me, err := f.auth.Me(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, me.ID)

	assert.Contains(t, f.published.types(), events.TypeSignIn)
}

func TestSignInFailuresAreUndifferentiated(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t, false)
	admin := f.admin(t, "admin@gotus.com")
	f.admin(t, "backup@gotus.com")
	require.NoError(t, f.directory.SoftDelete(ctx, admin.ID, admin.ID))

	for name, creds := range map[string][2]string{
		"unknown email":            {"nobody@gotus.com", "admin123"},
		"wrong password":           {"backup@gotus.com", "wrong-pw"},
		"inactive, right password": {"admin@gotus.com", "admin123"},
	} {
		_, err := f.auth.SignIn(ctx, creds[0], creds[1])
		assert.ErrorIs(t, err, ErrInvalidCredentials, name)
		assert.Equal(t, apperr.KindAuthentication, apperr.KindOf(err), name)
	}

	_, err := f.auth.SignIn(ctx, "", "x")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = f.auth.SignIn(ctx, "admin@gotus.com", "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestMeReflectsCurrentState(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t, false)
	admin := f.admin(t, "admin@gotus.com")
	backup := f.admin(t, "backup@gotus.com")

	session, err := f.auth.SignIn(ctx, "admin@gotus.com", "admin123")
	require.NoError(t, err)

	_, err = f.directory.Update(ctx, backup.ID, admin.ID, UpdateAccountInput{FirstName: ptr("Renamed")})
	require.NoError(t, err)
	me, err := f.auth.Me(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", me.FirstName)

	require.NoError(t, f.directory.SoftDelete(ctx, backup.ID, admin.ID))
	_, err = f.auth.Me(ctx, session.Token)
	assert.ErrorIs(t, err, ErrAccountInactive)

	_, err = f.auth.Me(ctx, "")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = f.auth.Me(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMeRejectsExpiredToken(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t, false)
	f.admin(t, "admin@gotus.com")

	session, err := f.auth.SignIn(ctx, "admin@gotus.com", "admin123")
	require.NoError(t, err)

	*f.clock = f.clock.Add(security.DefaultTokenTTL + time.Minute)
	_, err = f.auth.Me(ctx, session.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSignOutRevokes(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t, true)
	f.admin(t, "admin@gotus.com")

	session, err := f.auth.SignIn(ctx, "admin@gotus.com", "admin123")
	require.NoError(t, err)

	require.NoError(t, f.auth.SignOut(ctx, session.Token))
	_, err = f.auth.Me(ctx, session.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = f.auth.Refresh(ctx, session.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	assert.NoError(t, f.auth.SignOut(ctx, ""))
	assert.NoError(t, f.auth.SignOut(ctx, "not-a-token"))
	assert.Contains(t, f.published.types(), events.TypeSignOut)
}

func TestSignOutWithoutDenylistIsStateless(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t, false)
	f.admin(t, "admin@gotus.com")

	session, err := f.auth.SignIn(ctx, "admin@gotus.com", "admin123")
	require.NoError(t, err)
	require.NoError(t, f.auth.SignOut(ctx, session.Token))

	_, err = f.auth.Me(ctx, session.Token)
	assert.NoError(t, err)
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t, true)
	admin := f.admin(t, "admin@gotus.com")
	backup := f.admin(t, "backup@gotus.com")

	session, err := f.auth.SignIn(ctx, "admin@gotus.com", "admin123")
	require.NoError(t, err)

	*f.clock = f.clock.Add(8 * 24 * time.Hour)
	_, err = f.auth.Me(ctx, session.Token)
	require.ErrorIs(t, err, ErrInvalidToken)

	refreshed, err := f.auth.Refresh(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, refreshed.Account.ID)
	assert.True(t, refreshed.ExpiresAt.After(*f.clock))

	_, err = f.auth.Refresh(ctx, session.Token)
	assert.ErrorIs(t, err, ErrInvalidToken, "old token revoked after refresh")

	require.NoError(t, f.directory.SoftDelete(ctx, backup.ID, admin.ID))
	_, err = f.auth.Refresh(ctx, refreshed.Token)
	assert.ErrorIs(t, err, ErrAccountInactive)

	_, err = f.auth.Refresh(ctx, "")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestSignedOutTokenStaysRevokedPastExpiry(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t, true)
	f.admin(t, "admin@gotus.com")

	session, err := f.auth.SignIn(ctx, "admin@gotus.com", "admin123")
	require.NoError(t, err)
	require.NoError(t, f.auth.SignOut(ctx, session.Token))

	for _, step := range []time.Duration{
		time.Minute,
		security.DefaultTokenTTL + time.Hour,
		security.DefaultRefreshGrace - 2*time.Hour,
	} {
		*f.clock = f.clock.Add(step)
		_, err = f.auth.Refresh(ctx, session.Token)
		assert.ErrorIs(t, err, ErrInvalidToken, step)
	}

	*f.clock = f.clock.Add(4 * time.Hour)
	_, err = f.auth.Refresh(ctx, session.Token)
	assert.ErrorIs(t, err, ErrInvalidToken, "past the refresh grace")
}

func TestRefreshRotatesExpiredToken(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t, true)
	f.admin(t, "admin@gotus.com")

	session, err := f.auth.SignIn(ctx, "admin@gotus.com", "admin123")
	require.NoError(t, err)
	*f.clock = f.clock.Add(security.DefaultTokenTTL + time.Hour)

	first, err := f.auth.Refresh(ctx, session.Token)
	require.NoError(t, err)
	_, err = f.auth.Refresh(ctx, session.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	*f.clock = f.clock.Add(security.DefaultTokenTTL / 2)
	_, err = f.auth.Refresh(ctx, session.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	second, err := f.auth.Refresh(ctx, first.Token)
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, second.Token)
}

func TestRefreshWithoutDenylistStillHonoursGrace(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t, false)
	f.admin(t, "admin@gotus.com")

	session, err := f.auth.SignIn(ctx, "admin@gotus.com", "admin123")
	require.NoError(t, err)

	*f.clock = f.clock.Add(security.DefaultTokenTTL + security.DefaultRefreshGrace + time.Second)
	_, err = f.auth.Refresh(ctx, session.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSignInUpgradesLegacyHash(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t, false)

	legacy, err := bcrypt.GenerateFromPassword([]byte("legacy-pw"), bcrypt.MinCost)
	require.NoError(t, err)
	now := time.Now().UTC()
	account := &models.Account{
		ID:           ids.New(),
		Email:        "legacy@gotus.com",
		PasswordHash: string(legacy),
		Role:         models.RoleAdmin,
		FirstName:    "Old",
		LastName:     "Timer",
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, f.repo.Create(ctx, account))

	_, err = f.auth.SignIn(ctx, "legacy@gotus.com", "legacy-pw")
	require.NoError(t, err)

	stored, err := f.repo.FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.False(t, security.NeedsRehash(stored.PasswordHash))
	assert.True(t, security.VerifyPassword("legacy-pw", stored.PasswordHash))
}
