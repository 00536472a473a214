package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/septivank/meter-reading-service/internal/apperr"
	"github.com/septivank/meter-reading-service/internal/auth"
	"github.com/septivank/meter-reading-service/internal/db"
	"github.com/septivank/meter-reading-service/internal/query"
	"github.com/septivank/meter-reading-service/internal/repository"
	"github.com/septivank/meter-reading-service/internal/validator"
	"go.uber.org/zap"
)

const userNotFound = "No user found with that ID"

// UserStore persists users.
type UserStore interface {
	CreateUser(ctx context.Context, user *db.User) error
	FindActiveUser(ctx context.Context, id uuid.UUID) (*db.User, error)
	FindUserByEmail(ctx context.Context, email string) (*db.User, error)
	ListUsers(ctx context.Context, q query.Query) ([]db.User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, p repository.UserPatch) (*db.User, error)
	SetPassword(ctx context.Context, id uuid.UUID, hash string, changedAt time.Time) (*db.User, error)
	DeactivateUser(ctx context.Context, id uuid.UUID) error
}

type RegisterInput struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"omitempty,role"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UpdatePasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8"`
}

type UpdateUserInput struct {
	Name     *string `json:"name" validate:"omitempty,min=1"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Role     *string `json:"role" validate:"omitempty,role"`
	Password *string `json:"password"`
}

// Session is a user together with a freshly issued token.
type Session struct {
	Token string
	User  *db.User
}

// UserService registers, authenticates and administers users.
type UserService struct {
	users     UserStore
	tokens    *auth.TokenManager
	validator *validator.Validator
	logger    *zap.Logger
	now       Clock
}

func NewUserService(users UserStore, tokens *auth.TokenManager, v *validator.Validator, logger *zap.Logger) *UserService {
	return &UserService{users: users, tokens: tokens, validator: v, logger: logger, now: time.Now}
}

// normalizeEmail is the stored form of an address; lookups compare case-insensitively.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a user and signs them in. The caller may pick any role,
// including admin, so deployments exposing registration publicly should front
// it with an allow-list.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.Email = normalizeEmail(in.Email)
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}
	role, err := db.ParseRole(in.Role)
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &db.User{
		ID:           uuid.New(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Wrap(apperr.KindValidation, "Email address is already registered", err)
		}
		return nil, err
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID.String()), zap.String("role", string(role)))
	return s.session(user)
}

// Login checks credentials and issues a token.
func (s *UserService) Login(ctx context.Context, in LoginInput) (*Session, error) {
	if in.Email == "" || in.Password == "" {
		return nil, apperr.Validation("Please provide email and password")
	}

	user, err := s.users.FindUserByEmail(ctx, normalizeEmail(in.Email))
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, in.Password) {
		return nil, apperr.Unauthorized("Incorrect email or password")
	}
	return s.session(user)
}

// UpdatePassword replaces the actor's password. Tokens issued before the change stop working.
func (s *UserService) UpdatePassword(ctx context.Context, actor *db.User, in UpdatePasswordInput) (*Session, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}
	if !auth.CheckPassword(actor.PasswordHash, in.CurrentPassword) {
		return nil, apperr.Unauthorized("Your current password is wrong")
	}

	hash, err := auth.HashPassword(in.NewPassword)
	if err != nil {
		return nil, err
	}

	// Backdated by a second so the token issued below postdates the change.
	changedAt := s.now().Add(-time.Second)
	user, err := s.users.SetPassword(ctx, actor.ID, hash, changedAt)
	if err != nil {
		return nil, translate(err, userNotFound)
	}

	s.logger.Info("password changed", zap.String("user_id", user.ID.String()))
	return s.session(user)
}

func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*db.User, error) {
	user, err := s.users.FindActiveUser(ctx, id)
	return user, translate(err, userNotFound)
}

func (s *UserService) List(ctx context.Context, q query.Query) ([]db.User, error) {
	return s.users.ListUsers(ctx, q)
}

// Update changes profile fields. Passwords are only changed through UpdatePassword.
func (s *UserService) Update(ctx context.Context, id uuid.UUID, in UpdateUserInput) (*db.User, error) {
	if in.Password != nil {
		return nil, apperr.Validation("This route is not for password updates. Please use /updatePassword.")
	}
	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		in.Email = &email
	}
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	p := repository.UserPatch{Name: in.Name, Email: in.Email}
	if in.Role != nil {
		role, err := db.ParseRole(*in.Role)
		if err != nil {
			return nil, apperr.Validation(err.Error())
		}
		p.Role = &role
	}

	user, err := s.users.UpdateUser(ctx, id, p)
	return user, translate(err, userNotFound)
}

// Delete deactivates a user.
func (s *UserService) Delete(ctx context.Context, id uuid.UUID) error {
	return translate(s.users.DeactivateUser(ctx, id), userNotFound)
}

func (s *UserService) session(user *db.User) (*Session, error) {
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, User: user}, nil
}
