package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/dannoetc/raterhub-tracker/internal/domain"
	"github.com/dannoetc/raterhub-tracker/internal/service"
)

const (
	testPassword = "Sup3r-Secret-Pass!"
	testIP       = "198.51.100.7"
)

func newAuthEnv(t *testing.T) (*memStore, *service.AuthService) {
	t.Helper()
	store := newMemStore()
	return store, service.NewAuthService(store, "test-secret", time.Hour, zap.NewNop())
}

func registerUser(t *testing.T, auth *service.AuthService, email string) domain.User {
	t.Helper()
	user, err := auth.Register(context.Background(), email, testPassword, "Dana", "Rater")
	require.NoError(t, err)
	return user
}

func TestRegisterRejectsWeakPasswords(t *testing.T) {
	_, auth := newAuthEnv(t)
	for _, password := range []string{
		"short1!A",
		"alllowercase1!aaa",
		"ALLUPPERCASE1!AAA",
		"NoDigitsHere!!aa",
		"NoSymbolsHere12aa",
	} {
		_, err := auth.Register(context.Background(), "a@example.com", password, "", "")
		require.ErrorIs(t, err, domain.ErrValidation, "password %q", password)
	}
}

func TestRegisterNormalizesAndHashes(t *testing.T) {
	store, auth := newAuthEnv(t)
	user, err := auth.Register(context.Background(), "  Dana@Example.COM ", testPassword, " Dana ", " Rater ")
	require.NoError(t, err)
	require.Equal(t, "dana@example.com", user.Email)
	require.Equal(t, "Dana", user.FirstName)
	require.Equal(t, "UTC", user.Timezone)
	require.Equal(t, domain.RoleUser, user.Role)
	require.True(t, user.IsActive)

	stored, err := store.Users().GetByEmail(context.Background(), "dana@example.com")
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte(testPassword)))
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	_, auth := newAuthEnv(t)
	registerUser(t, auth, "dana@example.com")
	_, err := auth.Register(context.Background(), "dana@example.com", testPassword, "", "")
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestLoginIssuesValidToken(t *testing.T) {
	_, auth := newAuthEnv(t)
	registered := registerUser(t, auth, "dana@example.com")

	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	token, user, err := auth.Login(context.Background(), "dana@example.com", testPassword, testIP, now)
	require.NoError(t, err)
	require.Equal(t, registered.ID, user.ID)
	require.Equal(t, "bearer", token.TokenType)
	require.Equal(t, int64(3600), token.ExpiresIn)
	require.NotEmpty(t, token.AccessToken)

	fromToken, err := auth.ValidateToken(context.Background(), token.AccessToken)
	require.NoError(t, err)
	require.Equal(t, registered.ID, fromToken.ID)
}

func TestLoginWrongPasswordRecordsFailures(t *testing.T) {
	store, auth := newAuthEnv(t)
	registerUser(t, auth, "dana@example.com")

	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	_, _, err := auth.Login(context.Background(), "dana@example.com", "wrong-password-1A!", testIP, now)
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)

	attempt, err := store.LoginAttempts().Get(context.Background(), domain.LoginKeyAccount, "dana@example.com")
	require.NoError(t, err)
	require.Equal(t, 1, attempt.FailureCount)

	attempt, err = store.LoginAttempts().Get(context.Background(), domain.LoginKeyIP, testIP)
	require.NoError(t, err)
	require.Equal(t, 1, attempt.FailureCount)
}

func TestLoginUnknownEmailIndistinguishable(t *testing.T) {
	_, auth := newAuthEnv(t)
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	_, _, err := auth.Login(context.Background(), "nobody@example.com", testPassword, testIP, now)
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestLoginBackoffAfterRepeatedFailures(t *testing.T) {
	_, auth := newAuthEnv(t)
	registerUser(t, auth, "dana@example.com")
	ctx := context.Background()

	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, _, err := auth.Login(ctx, "dana@example.com", "wrong-password-1A!", testIP, now)
		require.ErrorIs(t, err, domain.ErrInvalidCredentials)
		now = now.Add(time.Second)
	}

	// Third failure arms a 5-second backoff; an immediate retry is throttled
	// even with the correct password.
	_, _, err := auth.Login(ctx, "dana@example.com", testPassword, testIP, now)
	require.ErrorIs(t, err, domain.ErrLockedOut)

	// After the backoff expires the correct password goes through.
	_, _, err = auth.Login(ctx, "dana@example.com", testPassword, testIP, now.Add(6*time.Second))
	require.NoError(t, err)
}

func TestLoginLockoutAfterThreshold(t *testing.T) {
	_, auth := newAuthEnv(t)
	registerUser(t, auth, "dana@example.com")
	ctx := context.Background()

	// Space the failures out so backoff never blocks them; the tenth failure
	// triggers the hard lockout.
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		_, _, err := auth.Login(ctx, "dana@example.com", "wrong-password-1A!", testIP, now)
		require.ErrorIs(t, err, domain.ErrInvalidCredentials, "failure %d", i+1)
		now = now.Add(time.Minute)
	}

	_, _, err := auth.Login(ctx, "dana@example.com", testPassword, testIP, now)
	require.ErrorIs(t, err, domain.ErrLockedOut)

	_, _, err = auth.Login(ctx, "dana@example.com", testPassword, testIP, now.Add(16*time.Minute))
	require.NoError(t, err)
}

func TestLoginSuccessClearsFailures(t *testing.T) {
	store, auth := newAuthEnv(t)
	registerUser(t, auth, "dana@example.com")
	ctx := context.Background()

	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	_, _, err := auth.Login(ctx, "dana@example.com", "wrong-password-1A!", testIP, now)
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, _, err = auth.Login(ctx, "dana@example.com", testPassword, testIP, now.Add(time.Minute))
	require.NoError(t, err)

	_, err = store.LoginAttempts().Get(ctx, domain.LoginKeyAccount, "dana@example.com")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.LoginAttempts().Get(ctx, domain.LoginKeyIP, testIP)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	_, auth := newAuthEnv(t)
	_, err := auth.ValidateToken(context.Background(), "not-a-token")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestValidateTokenRejectsDeactivatedUser(t *testing.T) {
	store, auth := newAuthEnv(t)
	user := registerUser(t, auth, "dana@example.com")

	token, _, err := auth.Login(context.Background(), "dana@example.com", testPassword, testIP, time.Now().UTC())
	require.NoError(t, err)

	user.IsActive = false
	require.NoError(t, store.Users().Update(context.Background(), user))

	_, err = auth.ValidateToken(context.Background(), token.AccessToken)
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestUpdateProfileValidatesTimezone(t *testing.T) {
	_, auth := newAuthEnv(t)
	user := registerUser(t, auth, "dana@example.com")

	bad := "Mars/Olympus_Mons"
	_, err := auth.UpdateProfile(context.Background(), user.ID, service.ProfileUpdate{Timezone: &bad})
	require.ErrorIs(t, err, domain.ErrValidation)

	good := "Europe/Riga"
	optOut := false
	updated, err := auth.UpdateProfile(context.Background(), user.ID, service.ProfileUpdate{
		Timezone:          &good,
		WantsReportEmails: &optOut,
	})
	require.NoError(t, err)
	require.Equal(t, "Europe/Riga", updated.Timezone)
	require.False(t, updated.WantsReportEmails)
}
