package service

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"gotus/internal/apperr"
	"gotus/internal/models"
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var roleRule = validation.By(func(value interface{}) error {
	var role models.Role
	switch v := value.(type) {
	case models.Role:
		role = v
	case *models.Role:
		if v == nil {
			return nil
		}
		role = *v
	}
	if role == "" {
		return nil
	}
	if !role.IsValid() {
		return errors.New("must be one of admin, officer, institutional")
	}
	return nil
})

var completeAddress = validation.By(func(value interface{}) error {
	addr, _ := value.(*models.Address)
	if addr == nil {
		return errors.New("is required")
	}
	return validation.ValidateStruct(addr,
		validation.Field(&addr.Province, validation.Required),
		validation.Field(&addr.District, validation.Required),
		validation.Field(&addr.Municipality, validation.Required),
		validation.Field(&addr.Ward, validation.Required),
	)
})

var validLocation = validation.By(func(value interface{}) error {
	loc, _ := value.(*models.Location)
	if loc == nil {
		return errors.New("is required")
	}
	return validation.ValidateStruct(loc,
		validation.Field(&loc.Latitude, validation.Min(-90.0), validation.Max(90.0)),
		validation.Field(&loc.Longitude, validation.Min(-180.0), validation.Max(180.0)),
	)
})

// roleFields holds what the role-conditional rules look at.
type roleFields struct {
	Role            models.Role      `json:"role"`
	Department      string           `json:"department"`
	InstitutionName string           `json:"institutionName"`
	Address         *models.Address  `json:"address"`
	Location        *models.Location `json:"location"`
}

func roleFieldsOf(a *models.Account) roleFields {
	return roleFields{
		Role:            a.Role,
		Department:      a.Department,
		InstitutionName: a.InstitutionName,
		Address:         a.Address,
		Location:        a.Location,
	}
}

func validateRoleFields(f roleFields) error {
	var rules []*validation.FieldRules
	switch f.Role {
	case models.RoleOfficer:
		rules = append(rules,
			validation.Field(&f.Department, validation.Required),
			validation.Field(&f.Address, completeAddress),
		)
	case models.RoleInstitutional:
		rules = append(rules,
			validation.Field(&f.InstitutionName, validation.Required),
			validation.Field(&f.Address, completeAddress),
			validation.Field(&f.Location, validLocation),
		)
	}
	if len(rules) == 0 {
		return nil
	}
	return asValidation(validation.ValidateStruct(&f, rules...))
}

// clearInapplicable drops role-specific fields the account's role does not
// carry.
func clearInapplicable(a *models.Account) {
	if a.Role != models.RoleOfficer {
		a.Department = ""
	}
	if a.Role != models.RoleInstitutional {
		a.InstitutionName = ""
		a.Location = nil
	}
	if !a.Role.RequiresAddress() {
		a.Address = nil
	}
}

func asValidation(err error) error {
	if err == nil {
		return nil
	}
	var ie validation.InternalError
	if errors.As(err, &ie) {
		return apperr.Internal("validate input", err)
	}
	return apperr.Validation(err.Error())
}

func emailRules() []validation.Rule {
	return []validation.Rule{validation.Required, is.Email}
}
