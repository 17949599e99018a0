package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ahananupam33/acquisitions/internal/crypto"
	"github.com/ahananupam33/acquisitions/internal/domain"
	"github.com/ahananupam33/acquisitions/internal/repository"
	"github.com/ahananupam33/acquisitions/internal/token"
	"github.com/ahananupam33/acquisitions/internal/validate"
)

var (
	// ErrDuplicateUser indicates the email is already registered, whether
	// caught by the pre-check or by losing an insert race.
	ErrDuplicateUser = errors.New("auth: email already registered")
	// ErrInvalidCredentials covers both unknown email and wrong password.
	// The two cases are deliberately indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)

// Service composes credential validation, hashing, the user directory, and
// token issuance into sign-up and sign-in workflows.
type Service struct {
	users  repository.UserRepository
	hasher crypto.Hasher
	tokens token.Issuer
	logger *slog.Logger
	decoy  []byte
}

// New constructs a Service. The decoy hash is built with the same hasher as
// real credentials so the unknown-email sign-in path costs one verification
// at the configured cost.
func New(users repository.UserRepository, hasher crypto.Hasher, tokens token.Issuer, logger *slog.Logger) Service {
	decoy, _ := hasher.Hash(uuid.NewString())
	return Service{users: users, hasher: hasher, tokens: tokens, logger: logger, decoy: decoy}
}

// SignUp registers a new user and returns it along with a session token.
func (s Service) SignUp(ctx context.Context, input validate.SignUpInput) (*domain.User, string, error) {
	input.Email = validate.NormalizeEmail(input.Email)
	if err := validate.Struct(input); err != nil {
		return nil, "", err
	}
	email := input.Email

	// Fast-fail for the common duplicate case. The authoritative check is
	// the unique constraint hit by CreateUser below.
	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil, "", ErrDuplicateUser
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, "", err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, "", err
	}
	role := domain.Role(input.Role)
	if !role.Valid() {
		role = domain.RoleUser
	}
	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Name:         input.Name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, "", ErrDuplicateUser
		}
		return nil, "", err
	}
	tok, err := s.tokens.Issue(user)
	if err != nil {
		return nil, "", err
	}
	s.logger.Info("user registered", "user_id", user.ID, "role", user.Role)
	return user, tok, nil
}

// SignIn authenticates a user and returns it along with a session token.
func (s Service) SignIn(ctx context.Context, input validate.SignInInput) (*domain.User, string, error) {
	input.Email = validate.NormalizeEmail(input.Email)
	if err := validate.Struct(input); err != nil {
		return nil, "", err
	}
	email := input.Email

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = s.hasher.Compare(s.decoy, input.Password)
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}
	if err := s.hasher.Compare(user.PasswordHash, input.Password); err != nil {
		return nil, "", ErrInvalidCredentials
	}
	tok, err := s.tokens.Issue(user)
	if err != nil {
		return nil, "", err
	}
	s.logger.Info("user signed in", "user_id", user.ID)
	return user, tok, nil
}

// Authorize validates a session token and returns its claims. Invalid or
// expired tokens surface the token package sentinels so callers can treat
// the request as unauthenticated rather than failed.
func (s Service) Authorize(tok string) (*token.Claims, error) {
	return s.tokens.Parse(tok)
}
