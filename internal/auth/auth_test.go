package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/justinabrahms/chessduel/internal/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newAccounts() *Accounts {
	return NewAccounts(store.NewMemoryStore(), WithBcryptCost(bcrypt.MinCost))
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	a := newAccounts()

	u, err := a.Register(ctx, "  alice ", "Alice Liddell", "wonderland")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "Alice Liddell", u.DisplayName)
	assert.NotEmpty(t, u.ID)
	assert.NotEqual(t, "wonderland", u.PasswordHash)

	got, err := a.Login(ctx, "ALICE", "wonderland")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = a.Login(ctx, "alice", "looking-glass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = a.Login(ctx, "bob", "wonderland")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	name, err := a.DisplayName(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice Liddell", name)
}

func TestRegisterDefaultsDisplayName(t *testing.T) {
	u, err := newAccounts().Register(context.Background(), "bob", "", "password1")
	require.NoError(t, err)
	assert.Equal(t, "bob", u.DisplayName)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	a := newAccounts()
	_, err := a.Register(ctx, "alice", "", "password1")
	require.NoError(t, err)

	_, err = a.Register(ctx, "Alice", "", "password2")
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name, username, display, password string
	}{
		{"short username", "al", "", "password1"},
		{"long username", strings.Repeat("a", 25), "", "password1"},
		{"bad characters", "al ice", "", "password1"},
		{"short password", "alice", "", "short"},
		{"long password", "alice", "", strings.Repeat("p", 73)},
		{"long display name", "alice", strings.Repeat("d", 65), "password1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newAccounts().Register(context.Background(), tt.username, tt.display, tt.password)
			assert.ErrorIs(t, err, ErrInvalidSignup)
		})
	}
}

func TestTokensRoundTrip(t *testing.T) {
	tokens, err := NewTokens(testSecret, time.Hour)
	require.NoError(t, err)

	signed, exp, err := tokens.Issue("user-1", "alice")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	claims, err := tokens.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID())
	assert.Equal(t, "alice", claims.Username)
}

func TestTokensRejectBadInput(t *testing.T) {
	tokens, err := NewTokens(testSecret, time.Hour)
	require.NoError(t, err)
	signed, _, err := tokens.Issue("user-1", "alice")
	require.NoError(t, err)

	other, err := NewTokens(strings.Repeat("x", 32), time.Hour)
	require.NoError(t, err)
	_, err = other.Parse(signed)
	assert.ErrorIs(t, err, ErrInvalidToken, "wrong secret")

	_, err = tokens.Parse("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	tokens.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = tokens.Parse(signed)
	assert.ErrorIs(t, err, ErrInvalidToken, "expired")
}

func TestTokensRejectOtherAlgorithms(t *testing.T) {
	tokens, err := NewTokens(testSecret, time.Hour)
	require.NoError(t, err)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	s, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = tokens.Parse(s)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewTokensValidation(t *testing.T) {
	_, err := NewTokens("short", time.Hour)
	assert.Error(t, err)
	_, err = NewTokens(testSecret, 0)
	assert.Error(t, err)
}
