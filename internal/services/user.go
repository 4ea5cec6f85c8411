package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/yamdb/apiserver/internal/store"
	"github.com/yamdb/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	List(ctx context.Context, page types.PageRequest) ([]types.User, int, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	Delete(ctx context.Context, id int) error
	SetConfirmationCode(ctx context.Context, id int, codeHash string, expiresAt time.Time) error
	RotateConfirmationCode(ctx context.Context, id int, oldHash, newHash string, expiresAt time.Time) error
}

// UserInput is the payload for creating a user through the admin API.
type UserInput struct {
	Username  string     `json:"username" validate:"required,max=150,username,notreserved"`
	Email     string     `json:"email" validate:"required,max=254,email"`
	FirstName string     `json:"first_name" validate:"max=150"`
	LastName  string     `json:"last_name" validate:"max=150"`
	Bio       string     `json:"bio"`
	Role      types.Role `json:"role" validate:"omitempty,oneof=user moderator admin"`
}

// UserPatch is a partial profile update. Nil fields are left unchanged.
type UserPatch struct {
	Username  *string     `json:"username" validate:"omitnil,min=1,max=150,username,notreserved"`
	Email     *string     `json:"email" validate:"omitnil,min=1,max=254,email"`
	FirstName *string     `json:"first_name" validate:"omitnil,max=150"`
	LastName  *string     `json:"last_name" validate:"omitnil,max=150"`
	Bio       *string     `json:"bio"`
	Role      *types.Role `json:"role" validate:"omitnil,oneof=user moderator admin"`
}

func (p *UserPatch) normalize() {
	trimPtr(p.Username)
	trimPtr(p.Email)
	trimPtr(p.FirstName)
	trimPtr(p.LastName)
}

func (p UserPatch) apply(user types.User) types.User {
	if p.Username != nil {
		user.Username = *p.Username
	}
	if p.Email != nil {
		user.Email = *p.Email
	}
	if p.FirstName != nil {
		user.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		user.LastName = *p.LastName
	}
	if p.Bio != nil {
		user.Bio = *p.Bio
	}
	if p.Role != nil {
		user.Role = *p.Role
	}
	return user
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return s.repo.GetByUsername(ctx, username)
}

func (s *UserService) List(ctx context.Context, actor *types.User, page types.PageRequest) ([]types.User, int, error) {
	if err := authorize(actor, CanManageUsers(actor)); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, page)
}

func (s *UserService) Get(ctx context.Context, actor *types.User, username string) (types.User, error) {
	if err := authorize(actor, CanManageUsers(actor)); err != nil {
		return types.User{}, err
	}
	return s.repo.GetByUsername(ctx, username)
}

// Create adds a user without issuing a confirmation code; the user obtains
// one through signup.
func (s *UserService) Create(ctx context.Context, actor *types.User, input UserInput) (types.User, error) {
	if err := authorize(actor, CanManageUsers(actor)); err != nil {
		return types.User{}, err
	}
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.TrimSpace(input.Email)
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	if err := validateInput(input); err != nil {
		return types.User{}, err
	}

	user, err := s.repo.Create(ctx, types.User{
		Username:  input.Username,
		Email:     input.Email,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Bio:       input.Bio,
		Role:      input.Role,
	})
	if err != nil {
		return types.User{}, userConflict(err)
	}
	return user, nil
}

func (s *UserService) Update(ctx context.Context, actor *types.User, username string, patch UserPatch) (types.User, error) {
	if err := authorize(actor, CanManageUsers(actor)); err != nil {
		return types.User{}, err
	}
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return types.User{}, err
	}
	return s.patch(ctx, user, patch)
}

func (s *UserService) Delete(ctx context.Context, actor *types.User, username string) error {
	if err := authorize(actor, CanManageUsers(actor)); err != nil {
		return err
	}
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	return s.repo.Delete(ctx, user.ID)
}

// Me returns the caller's own profile.
func (s *UserService) Me(ctx context.Context, actor *types.User) (types.User, error) {
	if actor == nil {
		return types.User{}, ErrAuthentication
	}
	return s.repo.GetByID(ctx, actor.ID)
}

// UpdateMe edits the caller's own profile. A role in the patch is dropped.
func (s *UserService) UpdateMe(ctx context.Context, actor *types.User, patch UserPatch) (types.User, error) {
	if actor == nil {
		return types.User{}, ErrAuthentication
	}
	patch.Role = nil
	user, err := s.repo.GetByID(ctx, actor.ID)
	if err != nil {
		return types.User{}, err
	}
	return s.patch(ctx, user, patch)
}

func (s *UserService) patch(ctx context.Context, user types.User, patch UserPatch) (types.User, error) {
	patch.normalize()
	if err := validateInput(patch); err != nil {
		return types.User{}, err
	}
	updated, err := s.repo.Update(ctx, patch.apply(user))
	if err != nil {
		return types.User{}, userConflict(err)
	}
	return updated, nil
}

// CreateSuperuser bootstraps an administrator from the command line.
func (s *UserService) CreateSuperuser(ctx context.Context, username, email string) (types.User, error) {
	input := UserInput{
		Username: strings.TrimSpace(username),
		Email:    strings.TrimSpace(email),
	}
	if err := validateInput(input); err != nil {
		return types.User{}, err
	}
	user, err := s.repo.Create(ctx, types.User{
		Username:    input.Username,
		Email:       input.Email,
		IsSuperuser: true,
	})
	if err != nil {
		return types.User{}, userConflict(err)
	}
	return user, nil
}

// userConflict maps unique violations on users to field errors.
func userConflict(err error) error {
	if !errors.Is(err, store.ErrConflict) {
		return err
	}
	constraint := store.ConstraintOf(err)
	switch {
	case strings.Contains(constraint, "email"):
		return fieldError("email", "A user with that email already exists.")
	case strings.Contains(constraint, "username"):
		return fieldError("username", "A user with that username already exists.")
	default:
		return nonFieldError("A user with these details already exists.")
	}
}
