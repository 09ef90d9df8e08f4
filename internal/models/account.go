package models

import "time"

type Role string

const (
	RoleAdmin         Role = "admin"
	RoleOfficer       Role = "officer"
	RoleInstitutional Role = "institutional"
)

func AllRoles() []Role {
	return []Role{RoleAdmin, RoleOfficer, RoleInstitutional}
}

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleOfficer, RoleInstitutional:
		return true
	default:
		return false
	}
}

// RequiresAddress reports whether accounts with this role must carry a
// complete postal address.
func (r Role) RequiresAddress() bool {
	return r == RoleOfficer || r == RoleInstitutional
}

// DefaultPermissions are informational capability strings stamped on new
// accounts. Access control is enforced by role, not by this list.
func (r Role) DefaultPermissions() []string {
	switch r {
	case RoleAdmin:
		return []string{"users:manage", "cases:manage", "cases:read", "reports:read"}
	case RoleOfficer:
		return []string{"cases:manage", "cases:read"}
	case RoleInstitutional:
		return []string{"cases:create", "cases:read"}
	default:
		return nil
	}
}

type AccountState string

const (
	AccountStateActive   AccountState = "active"
	AccountStateDisabled AccountState = "disabled"
)

type Address struct {
	Province     string `json:"province" bson:"province"`
	District     string `json:"district" bson:"district"`
	Municipality string `json:"municipality" bson:"municipality"`
	Ward         string `json:"ward" bson:"ward"`
}

type Location struct {
	Latitude  float64 `json:"latitude" bson:"latitude"`
	Longitude float64 `json:"longitude" bson:"longitude"`
	Address   string  `json:"address,omitempty" bson:"address,omitempty"`
}

// Account is a staff user of the platform. PasswordHash never leaves the
// service layer; handlers render Profile values instead.
type Account struct {
	ID              string     `bson:"_id"`
	Email           string     `bson:"email"`
	PasswordHash    string     `bson:"passwordHash"`
	Role            Role       `bson:"role"`
	FirstName       string     `bson:"firstName"`
	LastName        string     `bson:"lastName"`
	IsActive        bool       `bson:"isActive"`
	Department      string     `bson:"department,omitempty"`
	InstitutionName string     `bson:"institutionName,omitempty"`
	Address         *Address   `bson:"address,omitempty"`
	Location        *Location  `bson:"location,omitempty"`
	Permissions     []string   `bson:"permissions"`
	CreatedBy       string     `bson:"createdBy,omitempty"`
	CreatedAt       time.Time  `bson:"createdAt"`
	UpdatedAt       time.Time  `bson:"updatedAt"`
	LastLogin       *time.Time `bson:"lastLogin,omitempty"`
}

func (a Account) State() AccountState {
	if a.IsActive {
		return AccountStateActive
	}
	return AccountStateDisabled
}

func (a Account) IsActiveAdmin() bool {
	return a.IsActive && a.Role == RoleAdmin
}

func (a Account) FullName() string {
	return a.FirstName + " " + a.LastName
}

// ShortProfile is the compact form used when one account references another,
// e.g. the createdBy link on listings.
type ShortProfile struct {
	ID        string `json:"id" bson:"_id"`
	Email     string `json:"email" bson:"email"`
	FirstName string `json:"firstName" bson:"firstName"`
	LastName  string `json:"lastName" bson:"lastName"`
	Role      Role   `json:"role" bson:"role"`
}

func (a Account) Short() ShortProfile {
	return ShortProfile{
		ID:        a.ID,
		Email:     a.Email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Role:      a.Role,
	}
}
