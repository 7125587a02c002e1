// Package auth manages player accounts and the session tokens that
// identify them to the HTTP and websocket APIs.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/justinabrahms/chessduel/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameTaken      = errors.New("username taken")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidSignup      = errors.New("invalid signup")
)

type Accounts struct {
	users store.UserStore
	now   func() time.Time
	cost  int
}

type AccountsOption func(*Accounts)

// WithBcryptCost lowers the hashing cost, for tests.
func WithBcryptCost(cost int) AccountsOption {
	return func(a *Accounts) { a.cost = cost }
}

func NewAccounts(users store.UserStore, opts ...AccountsOption) *Accounts {
	a := &Accounts{users: users, now: time.Now, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func validateSignup(username, displayName, password string) error {
	if len(username) < 3 || len(username) > 24 {
		return fmt.Errorf("%w: username must be 3-24 characters", ErrInvalidSignup)
	}
	for _, r := range username {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return fmt.Errorf("%w: username may only contain letters, numbers and underscores", ErrInvalidSignup)
		}
	}
	if len(displayName) > 64 {
		return fmt.Errorf("%w: display name is too long", ErrInvalidSignup)
	}
	if len(password) < 8 || len(password) > 72 {
		return fmt.Errorf("%w: password must be 8-72 characters", ErrInvalidSignup)
	}
	return nil
}

// Register creates an account. The display name defaults to the username.
func (a *Accounts) Register(ctx context.Context, username, displayName, password string) (*store.User, error) {
	username = strings.TrimSpace(username)
	displayName = strings.TrimSpace(displayName)
	if err := validateSignup(username, displayName, password); err != nil {
		return nil, err
	}
	if displayName == "" {
		displayName = username
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &store.User{
		ID:           uuid.NewString(),
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		CreatedAt:    a.now().UTC(),
	}
	if err := a.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	log.Info().Str("userID", u.ID).Str("username", u.Username).Msg("User registered")
	return u, nil
}

// Login checks a username and password. Unknown users and wrong passwords
// fail the same way.
func (a *Accounts) Login(ctx context.Context, username, password string) (*store.User, error) {
	u, err := a.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func (a *Accounts) User(ctx context.Context, id string) (*store.User, error) {
	return a.users.GetUser(ctx, id)
}

// DisplayName satisfies game.IdentityLookup.
func (a *Accounts) DisplayName(ctx context.Context, userID string) (string, error) {
	u, err := a.users.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.DisplayName, nil
}
