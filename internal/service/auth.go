package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/dannoetc/raterhub-tracker/internal/domain"
	"github.com/dannoetc/raterhub-tracker/internal/repository"
)

// Login throttle tuning. Linear backoff kicks in first; repeated failures
// escalate to a hard lockout.
const (
	minPasswordLength     = 12
	loginFailureThreshold = 10
	backoffAfterFailures  = 3
	backoffStep           = 5 * time.Second
	lockoutDuration       = 15 * time.Minute
)

// TokenResponse is the payload of a successful login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// AuthService handles registration, login, token validation, and profile
// updates. It is peripheral to the timing core but owns the login throttle.
type AuthService struct {
	store     repository.Store
	jwtSecret []byte
	tokenTTL  time.Duration
	logger    *zap.Logger
}

// NewAuthService creates the auth service.
func NewAuthService(store repository.Store, jwtSecret string, tokenTTL time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{
		store:     store,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		logger:    logger,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func passwordMeetsComplexity(password string) bool {
	if len(password) < minPasswordLength {
		return false
	}
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}

// Register creates a new account with a bcrypt-hashed password.
func (s *AuthService) Register(ctx context.Context, email, password, firstName, lastName string) (domain.User, error) {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return domain.User{}, fmt.Errorf("%w: email is required", domain.ErrValidation)
	}
	if !passwordMeetsComplexity(password) {
		return domain.User{}, fmt.Errorf("%w: password must meet length and complexity requirements", domain.ErrValidation)
	}

	if _, err := s.store.Users().GetByEmail(ctx, normalized); err == nil {
		return domain.User{}, fmt.Errorf("%w: email already registered", domain.ErrValidation)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, fmt.Errorf("check existing user: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{
		Email:        normalized,
		PasswordHash: string(hashed),
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		Timezone:     "UTC",
		IsActive:     true,
		Role:         domain.RoleUser,
		CreatedAt:    time.Now().UTC(),
	}
	created, err := s.store.Users().Create(ctx, user)
	if err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user registered", zap.Int64("user_id", created.ID))
	return created, nil
}

// Login verifies credentials under the throttle and issues an access token.
func (s *AuthService) Login(ctx context.Context, email, password, clientIP string, now time.Time) (TokenResponse, domain.User, error) {
	normalized := normalizeEmail(email)
	keys := [][2]string{
		{domain.LoginKeyAccount, normalized},
		{domain.LoginKeyIP, clientIP},
	}

	for _, key := range keys {
		if key[1] == "" {
			continue
		}
		if err := s.checkThrottle(ctx, key[0], key[1], now); err != nil {
			return TokenResponse{}, domain.User{}, err
		}
	}

	user, err := s.store.Users().GetByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return TokenResponse{}, domain.User{}, s.recordFailures(ctx, keys, now)
		}
		return TokenResponse{}, domain.User{}, fmt.Errorf("load user: %w", err)
	}
	if !user.IsActive {
		return TokenResponse{}, domain.User{}, domain.ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return TokenResponse{}, domain.User{}, s.recordFailures(ctx, keys, now)
	}

	for _, key := range keys {
		if key[1] == "" {
			continue
		}
		if err := s.store.LoginAttempts().Clear(ctx, key[0], key[1]); err != nil {
			return TokenResponse{}, domain.User{}, err
		}
	}
	if err := s.store.Users().UpdateLastLogin(ctx, user.ID, now); err != nil {
		return TokenResponse{}, domain.User{}, err
	}

	token, err := s.issueToken(user, now)
	if err != nil {
		return TokenResponse{}, domain.User{}, err
	}
	return token, user, nil
}

// checkThrottle rejects attempts during a lockout or a backoff window.
func (s *AuthService) checkThrottle(ctx context.Context, keyType, keyValue string, now time.Time) error {
	attempt, err := s.store.LoginAttempts().Get(ctx, keyType, keyValue)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	if attempt.LockedUntil != nil && now.Before(*attempt.LockedUntil) {
		return domain.ErrLockedOut
	}
	if attempt.FailureCount >= backoffAfterFailures && attempt.LastFailureAt != nil {
		wait := backoffStep * time.Duration(attempt.FailureCount-backoffAfterFailures+1)
		if now.Before(attempt.LastFailureAt.Add(wait)) {
			return domain.ErrLockedOut
		}
	}
	return nil
}

func (s *AuthService) recordFailures(ctx context.Context, keys [][2]string, now time.Time) error {
	for _, key := range keys {
		if key[1] == "" {
			continue
		}
		attempt, err := s.store.LoginAttempts().Get(ctx, key[0], key[1])
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		attempt.KeyType = key[0]
		attempt.KeyValue = key[1]
		attempt.FailureCount++
		failedAt := now
		attempt.LastFailureAt = &failedAt
		if attempt.FailureCount >= loginFailureThreshold {
			lockedUntil := now.Add(lockoutDuration)
			attempt.LockedUntil = &lockedUntil
		}
		if err := s.store.LoginAttempts().Upsert(ctx, &attempt); err != nil {
			return err
		}
	}
	return domain.ErrInvalidCredentials
}

func (s *AuthService) issueToken(user domain.User, now time.Time) (TokenResponse, error) {
	expiresAt := now.Add(s.tokenTTL)
	claims := jwt.MapClaims{
		"sub":   strconv.FormatInt(user.ID, 10),
		"email": user.Email,
		"iat":   now.Unix(),
		"exp":   expiresAt.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("sign token: %w", err)
	}
	return TokenResponse{
		AccessToken: signed,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.tokenTTL.Seconds()),
	}, nil
}

// ValidateToken parses and verifies an access token, returning the user it
// belongs to.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (domain.User, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return domain.User{}, domain.ErrInvalidCredentials
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	subject, err := claims.GetSubject()
	if err != nil {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	userID, err := strconv.ParseInt(subject, 10, 64)
	if err != nil {
		return domain.User{}, domain.ErrInvalidCredentials
	}

	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	if !user.IsActive {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	return user, nil
}

// ProfileUpdate carries optional profile changes; nil fields are unchanged.
type ProfileUpdate struct {
	FirstName         *string
	LastName          *string
	Timezone          *string
	WantsReportEmails *bool
}

// UpdateProfile applies a profile update. The timezone is validated here,
// once, at the boundary; reads elsewhere fall back to UTC.
func (s *AuthService) UpdateProfile(ctx context.Context, userID int64, update ProfileUpdate) (domain.User, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}

	if update.FirstName != nil {
		user.FirstName = strings.TrimSpace(*update.FirstName)
	}
	if update.LastName != nil {
		user.LastName = strings.TrimSpace(*update.LastName)
	}
	if update.Timezone != nil {
		tz := strings.TrimSpace(*update.Timezone)
		if !domain.ValidateTimezone(tz) {
			return domain.User{}, fmt.Errorf("%w: unknown timezone %q", domain.ErrValidation, tz)
		}
		user.Timezone = tz
	}
	if update.WantsReportEmails != nil {
		user.WantsReportEmails = *update.WantsReportEmails
	}

	if err := s.store.Users().Update(ctx, user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}
