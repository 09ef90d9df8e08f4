package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gotus/internal/ids"
	"gotus/internal/models"
)

var contractBase = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newContractAccount(email string, role models.Role, n int) *models.Account {
	a := &models.Account{
		ID:          ids.New(),
		Email:       email,
		Role:        role,
		FirstName:   "First" + fmt.Sprint(n),
		LastName:    "Last",
		IsActive:    true,
		Permissions: role.DefaultPermissions(),
		CreatedAt:   contractBase.Add(time.Duration(n) * time.Minute),
		UpdatedAt:   contractBase.Add(time.Duration(n) * time.Minute),
	}
	switch role {
	case models.RoleOfficer:
		a.Department = "Patrol"
		a.Address = &models.Address{Province: "Bagmati", District: "Kathmandu", Municipality: "KMC", Ward: "4"}
	case models.RoleInstitutional:
		a.InstitutionName = "City Library"
		a.Address = &models.Address{Province: "Gandaki", District: "Kaski", Municipality: "Pokhara", Ward: "7"}
		a.Location = &models.Location{Latitude: 28.2, Longitude: 83.98}
	}
	return a
}

// runAccountRepositoryContract checks the behaviour every backend must share.
// newRepo must return an empty repository.
func runAccountRepositoryContract(t *testing.T, newRepo func(t *testing.T) AccountRepository) {
	ctx := context.Background()

	t.Run("create and find", func(t *testing.T) {
		repo := newRepo(t)
		officer := newContractAccount("officer@gotus.com", models.RoleOfficer, 1)
		require.NoError(t, repo.Create(ctx, officer))

		byID, err := repo.FindByID(ctx, officer.ID)
		require.NoError(t, err)
		assert.Equal(t, "officer@gotus.com", byID.Email)
		assert.Equal(t, "Patrol", byID.Department)
		require.NotNil(t, byID.Address)
		assert.Equal(t, "Kathmandu", byID.Address.District)
		assert.Nil(t, byID.Location)

		byEmail, err := repo.FindByEmail(ctx, "officer@gotus.com", true)
		require.NoError(t, err)
		assert.Equal(t, officer.ID, byEmail.ID)

		_, err = repo.FindByID(ctx, "missing")
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	t.Run("email unique", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, newContractAccount("dup@gotus.com", models.RoleAdmin, 1)))
		err := repo.Create(ctx, newContractAccount("dup@gotus.com", models.RoleAdmin, 2))
		assert.ErrorIs(t, err, ErrEmailTaken)
	})

	t.Run("active only lookup", func(t *testing.T) {
		repo := newRepo(t)
		a := newContractAccount("gone@gotus.com", models.RoleAdmin, 1)
		require.NoError(t, repo.Create(ctx, a))
		require.NoError(t, repo.SetActive(ctx, a.ID, false))

		_, err := repo.FindByEmail(ctx, "gone@gotus.com", true)
		assert.ErrorIs(t, err, ErrAccountNotFound)

		found, err := repo.FindByEmail(ctx, "gone@gotus.com", false)
		require.NoError(t, err)
		assert.False(t, found.IsActive)
	})

	t.Run("update", func(t *testing.T) {
		repo := newRepo(t)
		a := newContractAccount("u1@gotus.com", models.RoleOfficer, 1)
		b := newContractAccount("u2@gotus.com", models.RoleOfficer, 2)
		require.NoError(t, repo.Create(ctx, a))
		require.NoError(t, repo.Create(ctx, b))

		a.FirstName = "Renamed"
		a.Department = "Traffic"
		require.NoError(t, repo.Update(ctx, a))

		got, err := repo.FindByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.FirstName)
		assert.Equal(t, "Traffic", got.Department)

		b.Email = "u1@gotus.com"
		assert.ErrorIs(t, repo.Update(ctx, b), ErrEmailTaken)

		ghost := newContractAccount("ghost@gotus.com", models.RoleAdmin, 3)
		assert.ErrorIs(t, repo.Update(ctx, ghost), ErrAccountNotFound)
	})

	t.Run("update leaves the active flag alone", func(t *testing.T) {
		repo := newRepo(t)
		a := newContractAccount("stale@gotus.com", models.RoleOfficer, 1)
		require.NoError(t, repo.Create(ctx, a))

		stale, err := repo.FindByID(ctx, a.ID)
		require.NoError(t, err)
		require.NoError(t, repo.SetActive(ctx, a.ID, false))

		stale.FirstName = "Edited"
		require.NoError(t, repo.Update(ctx, stale))
		assert.False(t, stale.IsActive)

		got, err := repo.FindByID(ctx, a.ID)
		require.NoError(t, err)
		assert.False(t, got.IsActive)
		assert.Equal(t, "Edited", got.FirstName)
	})

	t.Run("touch last login", func(t *testing.T) {
		repo := newRepo(t)
		a := newContractAccount("login@gotus.com", models.RoleAdmin, 1)
		require.NoError(t, repo.Create(ctx, a))

		at := contractBase.Add(time.Hour)
		require.NoError(t, repo.TouchLastLogin(ctx, a.ID, at))
		got, err := repo.FindByID(ctx, a.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LastLogin)
		assert.True(t, at.Equal(*got.LastLogin))

		assert.ErrorIs(t, repo.TouchLastLogin(ctx, "missing", at), ErrAccountNotFound)
		assert.ErrorIs(t, repo.SetActive(ctx, "missing", false), ErrAccountNotFound)
	})

	t.Run("list filter and order", func(t *testing.T) {
		repo := newRepo(t)
		admin := newContractAccount("root@gotus.com", models.RoleAdmin, 1)
		o1 := newContractAccount("ram@gotus.com", models.RoleOfficer, 2)
		o2 := newContractAccount("sita@gotus.com", models.RoleOfficer, 3)
		inst := newContractAccount("library@gotus.com", models.RoleInstitutional, 4)
		o2.FirstName = "Sita"
		o2.LastName = "Ramdali"
		for _, a := range []*models.Account{admin, o1, o2, inst} {
			require.NoError(t, repo.Create(ctx, a))
		}

		all, err := repo.List(ctx, AccountFilter{}, 0, 10)
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, inst.ID, all[0].ID, "newest first")
		assert.Equal(t, admin.ID, all[3].ID)

		officers, err := repo.List(ctx, AccountFilter{Role: models.RoleOfficer}, 0, 10)
		require.NoError(t, err)
		assert.Len(t, officers, 2)

		search, err := repo.List(ctx, AccountFilter{Search: "RAM"}, 0, 10)
		require.NoError(t, err)
		assert.Len(t, search, 2, "matches email ram@ and last name Ramdali")

		page2, err := repo.List(ctx, AccountFilter{}, 2, 2)
		require.NoError(t, err)
		require.Len(t, page2, 2)
		assert.Equal(t, o1.ID, page2[0].ID)

		none, err := repo.List(ctx, AccountFilter{Search: ".*"}, 0, 10)
		require.NoError(t, err)
		assert.Empty(t, none, "search text is literal")

		total, err := repo.Count(ctx, AccountFilter{Role: models.RoleOfficer})
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)

		admins, err := repo.Count(ctx, ActiveAdmins())
		require.NoError(t, err)
		assert.EqualValues(t, 1, admins)
	})

	t.Run("find profiles", func(t *testing.T) {
		repo := newRepo(t)
		a := newContractAccount("p@gotus.com", models.RoleAdmin, 1)
		require.NoError(t, repo.Create(ctx, a))

		profiles, err := repo.FindProfiles(ctx, []string{a.ID, "missing"})
		require.NoError(t, err)
		require.Len(t, profiles, 1)
		assert.Equal(t, "p@gotus.com", profiles[a.ID].Email)
		assert.Equal(t, models.RoleAdmin, profiles[a.ID].Role)
	})
}
