package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hiremebahamas/hirebahamas-api/internal/middleware"
	"github.com/hiremebahamas/hirebahamas-api/internal/models"
)

// --- User Registration ---

// RegisterUserInput is separate from models.User because we don't want to
// accept an 'id' or 'isActive' from the user.
type RegisterUserInput struct {
	Email     string  `json:"email" binding:"required,email"`
	Password  string  `json:"password" binding:"required,min=8"`
	FirstName string  `json:"firstName" binding:"required"`
	LastName  string  `json:"lastName" binding:"required"`
	UserType  string  `json:"userType"`
	Location  *string `json:"location"`
	Phone     *string `json:"phone"`
}

// LoginInput is the body of POST /auth/login.
type LoginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

const userColumns = `id, email, password_hash, first_name, last_name, user_type,
	location, phone, is_active, is_available_for_hire, created_at`

// Register is the handler for POST /auth/register. Runs on a write session.
func (h *Handlers) Register(c *gin.Context) {
	// 1. --- Bind & Validate JSON ---
	var input RegisterUserInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if input.UserType == "" {
		input.UserType = models.UserTypeJobSeeker
	}
	if !models.ValidUserType(input.UserType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userType must be job_seeker, employer or recruiter"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))

	ctx := c.Request.Context()
	s := middleware.Session(c)

	// 2. --- Check Email Is Free ---
	var taken int
	if err := s.GetContext(ctx, &taken, s.Rebind(`SELECT COUNT(*) FROM users WHERE email = ?`), email); err != nil {
		h.Log.Error().Err(err).Msg("failed to check email")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database query failed"})
		return
	}
	if taken > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "An account with this email already exists"})
		return
	}

	// 3. --- Hash the Password ---
	var password models.Password
	if err := password.Set(input.Password); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}

	user := &models.User{
		Email:        email,
		PasswordHash: password.Hash,
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		UserType:     input.UserType,
		Location:     input.Location,
		Phone:        input.Phone,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}

	// 4. --- Save to Database ---
	id, err := s.InsertID(ctx, `
		INSERT INTO users (email, password_hash, first_name, last_name, user_type, location, phone, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.Email, user.PasswordHash, user.FirstName, user.LastName, user.UserType,
		user.Location, user.Phone, user.IsActive, user.CreatedAt)
	if err != nil {
		h.Log.Error().Err(err).Msg("failed to insert user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
		return
	}
	user.ID = id

	if err := s.Commit(); err != nil {
		h.Log.Error().Err(err).Msg("failed to commit registration")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create account"})
		return
	}

	// 5. --- Issue Token ---
	token, err := h.Tokens.GenerateToken(user.ID, user.UserType)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"user":         user,
	})
}

// Login is the handler for POST /auth/login. Runs on a read session pinned
// to the primary so a fresh registration can log in straight away.
func (h *Handlers) Login(c *gin.Context) {
	var input LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	s := middleware.Session(c)

	var user models.User
	query := s.Rebind(`SELECT ` + userColumns + ` FROM users WHERE email = ?`)
	err := s.GetContext(ctx, &user, query, strings.ToLower(strings.TrimSpace(input.Email)))
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}
	if err != nil {
		h.Log.Error().Err(err).Msg("failed to load user for login")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database query failed"})
		return
	}

	password := models.Password{Hash: user.PasswordHash}
	match, err := password.Matches(input.Password)
	if err != nil || !match {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}
	if !user.IsActive {
		c.JSON(http.StatusForbidden, gin.H{"error": "Account is disabled"})
		return
	}

	token, err := h.Tokens.GenerateToken(user.ID, user.UserType)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"user":         user,
	})
}

// GetProfile is the handler for GET /auth/me.
func (h *Handlers) GetProfile(c *gin.Context) {
	userID := c.GetInt64("userID")
	s := middleware.Session(c)

	var user models.User
	query := s.Rebind(`SELECT ` + userColumns + ` FROM users WHERE id = ?`)
	err := s.GetContext(c.Request.Context(), &user, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		h.Log.Error().Err(err).Int64("user_id", userID).Msg("failed to load profile")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database query failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}
