package service

import (
	"context"
	"errors"
	"math"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/rs/zerolog"

	"gotus/internal/apperr"
	"gotus/internal/cache"
	"gotus/internal/events"
	"gotus/internal/ids"
	"gotus/internal/models"
	"gotus/internal/repository"
	"gotus/internal/security"
)

const adminLockKey = "directory:active-admins"

var (
	ErrAccountNotFound = apperr.NotFound("user not found")
	ErrEmailTaken      = apperr.Conflict("email already exists")
	ErrLastAdmin       = apperr.Invariant("cannot delete the last admin user")
	ErrLastAdminDemote = apperr.Invariant("cannot demote or deactivate the last admin user")
)

type CreateAccountInput struct {
	Email           string           `json:"email"`
	Password        string           `json:"password"`
	FirstName       string           `json:"firstName"`
	LastName        string           `json:"lastName"`
	Role            models.Role      `json:"role"`
	Department      string           `json:"department"`
	InstitutionName string           `json:"institutionName"`
	Address         *models.Address  `json:"address"`
	Location        *models.Location `json:"location"`
	Permissions     []string         `json:"permissions"`
}

// UpdateAccountInput is a partial update: nil fields are left unchanged.
type UpdateAccountInput struct {
	Email           *string          `json:"email"`
	Password        *string          `json:"password"`
	FirstName       *string          `json:"firstName"`
	LastName        *string          `json:"lastName"`
	Role            *models.Role     `json:"role"`
	Department      *string          `json:"department"`
	InstitutionName *string          `json:"institutionName"`
	Address         *models.Address  `json:"address"`
	Location        *models.Location `json:"location"`
	Permissions     *[]string        `json:"permissions"`
	IsActive        *bool            `json:"isActive"`
}

func (in UpdateAccountInput) touchesRoleFields() bool {
	return in.Role != nil || in.Department != nil || in.InstitutionName != nil || in.Address != nil || in.Location != nil
}

type ListQuery struct {
	Page   int
	Limit  int
	Role   models.Role
	Search string
}

type ListResult struct {
	Accounts []models.Account
	Creators map[string]models.ShortProfile
	Total    int64
	Page     int
	Limit    int
}

func (r ListResult) Pages() int {
	if r.Limit <= 0 {
		return 0
	}
	return int((r.Total + int64(r.Limit) - 1) / int64(r.Limit))
}

type Census struct {
	ByRole       map[models.Role]int64
	Active       int64
	Disabled     int64
	ActiveAdmins int64
}

type DirectoryConfig struct {
	PasswordMinLen int
	// Hasher overrides password hashing; nil means security.HashPassword.
	Hasher func(string) (string, error)
}

// DirectoryService owns every rule about accounts: validation, uniqueness,
// hashing and the last-admin invariant.
type DirectoryService struct {
	accounts repository.AccountRepository
	locker   cache.Locker
	events   events.Publisher
	cfg      DirectoryConfig
	log      zerolog.Logger
	now      func() time.Time
}

func NewDirectoryService(
	accounts repository.AccountRepository,
	locker cache.Locker,
	publisher events.Publisher,
	cfg DirectoryConfig,
	log zerolog.Logger,
) *DirectoryService {
	if cfg.PasswordMinLen <= 0 {
		cfg.PasswordMinLen = 6
	}
	if cfg.Hasher == nil {
		cfg.Hasher = security.HashPassword
	}
	if locker == nil {
		locker = cache.NewLocalLocker()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &DirectoryService{
		accounts: accounts,
		locker:   locker,
		events:   publisher,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// Create registers a new account on behalf of actorID. Admin accounts may be
// created without an actor (bootstrap seed).
func (s *DirectoryService) Create(ctx context.Context, actorID string, in CreateAccountInput) (*models.Account, error) {
	in.Email = normalizeEmail(in.Email)

	err := validation.ValidateStruct(&in,
		validation.Field(&in.Email, emailRules()...),
		validation.Field(&in.Password, validation.Required, validation.RuneLength(s.cfg.PasswordMinLen, 0)),
		validation.Field(&in.FirstName, validation.Required),
		validation.Field(&in.LastName, validation.Required),
		validation.Field(&in.Role, validation.Required, roleRule),
	)
	if err := asValidation(err); err != nil {
		return nil, err
	}
	if actorID == "" && in.Role != models.RoleAdmin {
		return nil, apperr.Validation("createdBy: cannot be blank.")
	}

	now := s.now().UTC()
	account := &models.Account{
		ID:              ids.New(),
		Email:           in.Email,
		Role:            in.Role,
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		IsActive:        true,
		Department:      in.Department,
		InstitutionName: in.InstitutionName,
		Address:         in.Address,
		Location:        in.Location,
		Permissions:     in.Permissions,
		CreatedBy:       actorID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := validateRoleFields(roleFieldsOf(account)); err != nil {
		return nil, err
	}
	clearInapplicable(account)
	if len(account.Permissions) == 0 {
		account.Permissions = account.Role.DefaultPermissions()
	}

	hash, err := s.cfg.Hasher(in.Password)
	if err != nil {
		return nil, apperr.Internal("hash password", err)
	}
	account.PasswordHash = hash

	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, s.storeError("create account", err)
	}

	events.Emit(ctx, s.events, s.log, events.Event{
		Type:      events.TypeAccountCreated,
		AccountID: account.ID,
		ActorID:   actorID,
		Role:      string(account.Role),
		Data:      map[string]string{"email": account.Email},
	})
	return account, nil
}

func (s *DirectoryService) Get(ctx context.Context, id string) (*models.Account, error) {
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return nil, s.storeError("find account", err)
	}
	return account, nil
}

// FindByEmail looks an account up by its normalised email.
func (s *DirectoryService) FindByEmail(ctx context.Context, email string, activeOnly bool) (*models.Account, error) {
	account, err := s.accounts.FindByEmail(ctx, normalizeEmail(email), activeOnly)
	if err != nil {
		return nil, s.storeError("find account", err)
	}
	return account, nil
}

func (s *DirectoryService) Update(ctx context.Context, actorID, id string, in UpdateAccountInput) (*models.Account, error) {
	if in.Email != nil {
		normalized := normalizeEmail(*in.Email)
		in.Email = &normalized
	}

	err := validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.NilOrNotEmpty, is.Email),
		validation.Field(&in.Password, validation.NilOrNotEmpty, validation.RuneLength(s.cfg.PasswordMinLen, 0)),
		validation.Field(&in.FirstName, validation.NilOrNotEmpty),
		validation.Field(&in.LastName, validation.NilOrNotEmpty),
		validation.Field(&in.Role, validation.NilOrNotEmpty, roleRule),
	)
	if err := asValidation(err); err != nil {
		return nil, err
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next := *current
	applyUpdate(&next, in)

	if in.touchesRoleFields() {
		if err := validateRoleFields(roleFieldsOf(&next)); err != nil {
			return nil, err
		}
		clearInapplicable(&next)
	}

	if in.Password != nil {
		hash, err := s.cfg.Hasher(*in.Password)
		if err != nil {
			return nil, apperr.Internal("hash password", err)
		}
		next.PasswordHash = hash
	}

	// The active flag is only written when the request sets it, so a
	// concurrent SoftDelete is never undone by this read-modify-write.
	write := func() error {
		if err := s.accounts.Update(ctx, &next); err != nil {
			return err
		}
		if in.IsActive != nil && *in.IsActive != next.IsActive {
			if err := s.accounts.SetActive(ctx, id, *in.IsActive); err != nil {
				return err
			}
			next.IsActive = *in.IsActive
		}
		return nil
	}

	losesAdmin := current.IsActiveAdmin() && !next.IsActiveAdmin()
	if losesAdmin {
		err = s.withAdminLock(ctx, func() error {
			if err := s.ensureOtherActiveAdmin(ctx, ErrLastAdminDemote); err != nil {
				return err
			}
			return write()
		})
	} else {
		err = write()
	}
	if err != nil {
		return nil, s.storeError("update account", err)
	}

	data := map[string]string{}
	if in.Password != nil {
		data["password"] = "changed"
	}
	if next.Role != current.Role {
		data["previousRole"] = string(current.Role)
	}
	eventType := events.TypeAccountUpdated
	if in.IsActive != nil && !*in.IsActive && current.IsActive {
		eventType = events.TypeAccountDeactivated
	}
	events.Emit(ctx, s.events, s.log, events.Event{
		Type:      eventType,
		AccountID: next.ID,
		ActorID:   actorID,
		Role:      string(next.Role),
		Data:      data,
	})
	return &next, nil
}

func applyUpdate(a *models.Account, in UpdateAccountInput) {
	if in.Email != nil {
		a.Email = *in.Email
	}
	if in.FirstName != nil {
		a.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		a.LastName = *in.LastName
	}
	if in.Role != nil {
		a.Role = *in.Role
	}
	if in.Department != nil {
		a.Department = *in.Department
	}
	if in.InstitutionName != nil {
		a.InstitutionName = *in.InstitutionName
	}
	if in.Address != nil {
		addr := *in.Address
		a.Address = &addr
	}
	if in.Location != nil {
		loc := *in.Location
		a.Location = &loc
	}
	if in.Permissions != nil {
		a.Permissions = append([]string(nil), (*in.Permissions)...)
	}
	if in.IsActive != nil {
		a.IsActive = *in.IsActive
	}
}

// SoftDelete disables the account. Disabling the last active admin is
// refused; an already disabled account is left as is.
func (s *DirectoryService) SoftDelete(ctx context.Context, actorID, id string) error {
	target, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !target.IsActive {
		return nil
	}

	if target.Role == models.RoleAdmin {
		err = s.withAdminLock(ctx, func() error {
			// Re-read under the lock: a concurrent request may have
			// changed the target since the first lookup.
			fresh, err := s.accounts.FindByID(ctx, id)
			if err != nil {
				return err
			}
			if !fresh.IsActiveAdmin() {
				if !fresh.IsActive {
					return nil
				}
				return s.accounts.SetActive(ctx, id, false)
			}
			if err := s.ensureOtherActiveAdmin(ctx, ErrLastAdmin); err != nil {
				return err
			}
			return s.accounts.SetActive(ctx, id, false)
		})
	} else {
		err = s.accounts.SetActive(ctx, id, false)
	}
	if err != nil {
		return s.storeError("deactivate account", err)
	}

	events.Emit(ctx, s.events, s.log, events.Event{
		Type:      events.TypeAccountDeactivated,
		AccountID: id,
		ActorID:   actorID,
		Role:      string(target.Role),
	})
	return nil
}

func (s *DirectoryService) ensureOtherActiveAdmin(ctx context.Context, refusal error) error {
	admins, err := s.accounts.Count(ctx, repository.ActiveAdmins())
	if err != nil {
		return err
	}
	if admins <= 1 {
		return refusal
	}
	return nil
}

func (s *DirectoryService) withAdminLock(ctx context.Context, fn func() error) error {
	release, err := s.locker.Acquire(ctx, adminLockKey)
	if err != nil {
		return apperr.Internal("acquire admin lock", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn().Err(err).Msg("release admin lock failed")
		}
	}()
	return fn()
}

func (s *DirectoryService) List(ctx context.Context, q ListQuery) (ListResult, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 10
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	// Keeps (Page-1)*Limit a valid non-negative offset for every backend.
	if maxPage := math.MaxInt32 / q.Limit; q.Page > maxPage {
		q.Page = maxPage
	}
	if q.Role != "" && !q.Role.IsValid() {
		return ListResult{}, apperr.Validation("role: must be one of admin, officer, institutional.")
	}

	filter := repository.AccountFilter{Role: q.Role, Search: q.Search}
	total, err := s.accounts.Count(ctx, filter)
	if err != nil {
		return ListResult{}, s.storeError("count accounts", err)
	}
	accounts, err := s.accounts.List(ctx, filter, (q.Page-1)*q.Limit, q.Limit)
	if err != nil {
		return ListResult{}, s.storeError("list accounts", err)
	}

	var creatorIDs []string
	seen := map[string]bool{}
	for _, a := range accounts {
		if a.CreatedBy != "" && !seen[a.CreatedBy] {
			seen[a.CreatedBy] = true
			creatorIDs = append(creatorIDs, a.CreatedBy)
		}
	}
	creators, err := s.accounts.FindProfiles(ctx, creatorIDs)
	if err != nil {
		return ListResult{}, s.storeError("resolve creators", err)
	}

	return ListResult{
		Accounts: accounts,
		Creators: creators,
		Total:    total,
		Page:     q.Page,
		Limit:    q.Limit,
	}, nil
}

func (s *DirectoryService) CountActiveAdmins(ctx context.Context) (int64, error) {
	n, err := s.accounts.Count(ctx, repository.ActiveAdmins())
	if err != nil {
		return 0, s.storeError("count admins", err)
	}
	return n, nil
}

func (s *DirectoryService) Census(ctx context.Context) (Census, error) {
	c := Census{ByRole: make(map[models.Role]int64, len(models.AllRoles()))}
	for _, role := range models.AllRoles() {
		n, err := s.accounts.Count(ctx, repository.AccountFilter{Role: role})
		if err != nil {
			return Census{}, s.storeError("census", err)
		}
		c.ByRole[role] = n
	}

	active, err := s.accounts.Count(ctx, repository.AccountFilter{Active: repository.ActiveOnly()})
	if err != nil {
		return Census{}, s.storeError("census", err)
	}
	var total int64
	for _, n := range c.ByRole {
		total += n
	}
	c.Active = active
	c.Disabled = total - active

	if c.ActiveAdmins, err = s.CountActiveAdmins(ctx); err != nil {
		return Census{}, err
	}
	return c, nil
}

// storeError translates repository failures into the error taxonomy.
// Errors already in the taxonomy pass through.
func (s *DirectoryService) storeError(op string, err error) error {
	var appErr *apperr.Error
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, repository.ErrAccountNotFound):
		return ErrAccountNotFound
	case errors.Is(err, repository.ErrEmailTaken):
		return ErrEmailTaken
	default:
		return apperr.Internal(op, err)
	}
}
