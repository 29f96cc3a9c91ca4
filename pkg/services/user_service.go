package services

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/deepsoc/ent"
	"github.com/codeready-toolchain/deepsoc/ent/user"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// UserService manages credentials and roles for the HTTP API, carried here
// only so the core can attribute human Messages to an identity and so
// `init` can seed an admin account.
type UserService struct {
	client *ent.Client
}

// NewUserService creates a new UserService.
func NewUserService(client *ent.Client) *UserService {
	return &UserService{client: client}
}

// Create hashes password and inserts a new User.
func (s *UserService) Create(ctx context.Context, username, password string, role user.Role) (*ent.User, error) {
	if username == "" {
		return nil, NewValidationError("username", "required")
	}
	if password == "" {
		return nil, NewValidationError("password", "required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.client.User.Create().
		SetID(uuid.New().String()).
		SetUsername(username).
		SetPasswordHash(string(hash)).
		SetRole(role).
		Save(ctx)
	if err != nil {
		if ent.IsConstraintError(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Authenticate looks up a User by username and verifies password against
// the stored hash.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*ent.User, error) {
	u, err := s.client.User.Query().Where(user.UsernameEQ(username)).Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrNotFound
	}
	return u, nil
}

// EnsureAdmin creates the initial admin account if none exists, the `init`
// CLI subcommand's bootstrap step.
func (s *UserService) EnsureAdmin(ctx context.Context, username, password string) (*ent.User, error) {
	exists, err := s.client.User.Query().Where(user.RoleEQ(user.RoleAdmin)).Exist(ctx)
	if err != nil {
		return nil, fmt.Errorf("check admin exists: %w", err)
	}
	if exists {
		return nil, nil
	}
	return s.Create(ctx, username, password, user.RoleAdmin)
}
