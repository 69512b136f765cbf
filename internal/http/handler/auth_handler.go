package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dannoetc/raterhub-tracker/internal/domain"
	"github.com/dannoetc/raterhub-tracker/internal/http/middleware"
	"github.com/dannoetc/raterhub-tracker/internal/service"
)

// AuthHandler serves registration, login, and profile endpoints.
type AuthHandler struct {
	Auth *service.AuthService
}

// NewAuthHandler creates the auth handler set.
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{Auth: auth}
}

// UserView is the public representation of an account.
type UserView struct {
	ID                int64  `json:"id"`
	Email             string `json:"email"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	Timezone          string `json:"timezone"`
	WantsReportEmails bool   `json:"wants_report_emails"`
	Role              string `json:"role"`
}

func newUserView(user domain.User) UserView {
	return UserView{
		ID:                user.ID,
		Email:             user.Email,
		FirstName:         user.FirstName,
		LastName:          user.LastName,
		Timezone:          user.Timezone,
		WantsReportEmails: user.WantsReportEmails,
		Role:              user.Role,
	}
}

// Register creates a new account.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email     string `json:"email" binding:"required"`
		Password  string `json:"password" binding:"required"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Email and password are required."})
		return
	}

	user, err := h.Auth.Register(c.Request.Context(), req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newUserView(user))
}

// Login exchanges credentials for an access token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Email and password are required."})
		return
	}

	token, user, err := h.Auth.Login(c.Request.Context(), req.Email, req.Password, c.ClientIP(), time.Now().UTC())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": token.AccessToken,
		"token_type":   token.TokenType,
		"expires_in":   token.ExpiresIn,
		"user":         newUserView(user),
	})
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "message": "Not authenticated."})
		return
	}
	c.JSON(http.StatusOK, newUserView(user))
}

// UpdateProfile applies partial profile changes.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	user, ok := middleware.GetCurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "message": "Not authenticated."})
		return
	}

	var req struct {
		FirstName         *string `json:"first_name"`
		LastName          *string `json:"last_name"`
		Timezone          *string `json:"timezone"`
		WantsReportEmails *bool   `json:"wants_report_emails"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Malformed profile update."})
		return
	}

	updated, err := h.Auth.UpdateProfile(c.Request.Context(), user.ID, service.ProfileUpdate{
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		Timezone:          req.Timezone,
		WantsReportEmails: req.WantsReportEmails,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserView(updated))
}

// respondServiceError maps domain errors to HTTP responses.
func respondServiceError(c *gin.Context, err error) {
	logger := zap.L()
	switch {
	case errors.Is(err, domain.ErrInvalidState):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_state", "message": err.Error()})
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Resource not found."})
	case errors.Is(err, domain.ErrLockedOut):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "locked_out", "message": "Too many login attempts. Please try again later."})
	case errors.Is(err, domain.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials", "message": "Invalid credentials"})
	default:
		logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "message": "Internal server error."})
	}
}
