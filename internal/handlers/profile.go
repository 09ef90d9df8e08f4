package handlers

import (
	"time"

	"gotus/internal/models"
)

// profileResponse is the only shape an account leaves the API in. It has no
// password field by construction.
type profileResponse struct {
	ID              string           `json:"id"`
	Email           string           `json:"email"`
	Role            models.Role      `json:"role"`
	FirstName       string           `json:"firstName"`
	LastName        string           `json:"lastName"`
	IsActive        bool             `json:"isActive"`
	Department      string           `json:"department,omitempty"`
	InstitutionName string           `json:"institutionName,omitempty"`
	Address         *models.Address  `json:"address,omitempty"`
	Location        *models.Location `json:"location,omitempty"`
	Permissions     []string         `json:"permissions"`
	CreatedBy       string           `json:"createdBy,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
	LastLogin       *time.Time       `json:"lastLogin,omitempty"`
}

func newProfile(a *models.Account) profileResponse {
	permissions := a.Permissions
	if permissions == nil {
		permissions = []string{}
	}
	return profileResponse{
		ID:              a.ID,
		Email:           a.Email,
		Role:            a.Role,
		FirstName:       a.FirstName,
		LastName:        a.LastName,
		IsActive:        a.IsActive,
		Department:      a.Department,
		InstitutionName: a.InstitutionName,
		Address:         a.Address,
		Location:        a.Location,
		Permissions:     permissions,
		CreatedBy:       a.CreatedBy,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
		LastLogin:       a.LastLogin,
	}
}

// listedProfile replaces the createdBy id with the creator's short profile.
type listedProfile struct {
	profileResponse
	CreatedBy *models.ShortProfile `json:"createdBy"`
}

type paginationResponse struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}
