package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/warrenlibrary/library-backend/internal/database"
	apperrors "github.com/warrenlibrary/library-backend/internal/errors"
	"github.com/warrenlibrary/library-backend/internal/models"
	"github.com/warrenlibrary/library-backend/internal/repository"
	"github.com/warrenlibrary/library-backend/internal/utils"
	"github.com/warrenlibrary/library-backend/pkg/logger"
	"go.uber.org/zap"
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

	errInvalidCredentials = apperrors.Unauthorized("invalid credentials")
	errMissingToken       = apperrors.Unauthorized("missing token")
	errInvalidToken       = apperrors.Unauthorized("invalid or expired token")
)

// EnsureAdminResult reports what EnsureAdmin changed.
type EnsureAdminResult string

const (
	AdminCreated       EnsureAdminResult = "created"
	AdminPasswordReset EnsureAdminResult = "password_reset"
	AdminUnchanged     EnsureAdminResult = "unchanged"
)

type AuthService struct {
	userRepo     *repository.UserRepository
	jwtSecret    string
	tokenTTL     time.Duration
	storeTimeout time.Duration
}

func NewAuthService(userRepo *repository.UserRepository, jwtSecret string, storeTimeout time.Duration) *AuthService {
	return &AuthService{
		userRepo:     userRepo,
		jwtSecret:    jwtSecret,
		tokenTTL:     utils.TokenTTL,
		storeTimeout: storeTimeout,
	}
}

// Register creates a student account. Uniqueness of email and username is
// checked against the values exactly as stored.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	start := time.Now()
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	logger.Log.Debug("Processing user registration",
		zap.String("username", username),
		zap.String("email", email),
	)

	if err := validateRegisterInput(username, email, password); err != nil {
		logger.Log.Warn("Registration validation failed",
			zap.String("username", username),
			zap.String("email", email),
			zap.Error(err),
		)
		return nil, err
	}

	ctx, cancel := storeContext(ctx, s.storeTimeout)
	defer cancel()

	if err := s.checkAvailable(ctx, username, email); err != nil {
		return nil, err
	}

	hashStart := time.Now()
	hashedPassword, err := utils.HashPassword(password)
	if err != nil {
		logger.Log.Error("Failed to hash password", zap.Error(err))
		return nil, apperrors.Unavailable("failed to register user", err)
	}
	hashDuration := time.Since(hashStart)

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hashedPassword,
		Role:         models.RoleStudent,
	}
	if err := s.createUser(ctx, user); err != nil {
		return nil, err
	}

	logger.Log.Info("User registered successfully",
		zap.Uint("user_id", user.ID),
		zap.String("username", username),
		zap.Duration("hash_duration", hashDuration),
		zap.Duration("total_duration", time.Since(start)),
	)
	return user, nil
}

// Login verifies credentials and issues a session token. Unknown email and
// wrong password fail identically.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	start := time.Now()
	email = strings.TrimSpace(email)

	if email == "" || password == "" {
		return nil, "", apperrors.Validation("email and password are required")
	}

	logger.Log.Debug("Processing user login", zap.String("email", email))

	ctx, cancel := storeContext(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.findByEmail(ctx, email)
	if err != nil {
		logger.Log.Error("Failed to get user by email",
			zap.String("email", email),
			zap.Error(err),
		)
		return nil, "", apperrors.Unavailable("failed to log in", err)
	}
	if user == nil {
		logger.Log.Warn("Login failed: user not found", zap.String("email", email))
		return nil, "", errInvalidCredentials
	}

	verifyStart := time.Now()
	valid, err := utils.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		logger.Log.Error("Stored password hash is unusable",
			zap.Uint("user_id", user.ID),
			zap.Error(err),
		)
		return nil, "", errInvalidCredentials
	}
	verifyDuration := time.Since(verifyStart)

	if !valid {
		logger.Log.Warn("Login failed: invalid password",
			zap.String("email", email),
			zap.Uint("user_id", user.ID),
		)
		return nil, "", errInvalidCredentials
	}

	token, err := utils.GenerateToken(user, s.jwtSecret, s.tokenTTL)
	if err != nil {
		logger.Log.Error("Failed to generate JWT token",
			zap.Uint("user_id", user.ID),
			zap.Error(err),
		)
		return nil, "", apperrors.Unavailable("failed to log in", err)
	}

	logger.Log.Info("User logged in successfully",
		zap.Uint("user_id", user.ID),
		zap.String("username", user.Username),
		zap.Duration("password_verify_duration", verifyDuration),
		zap.Duration("total_duration", time.Since(start)),
	)
	return user, token, nil
}

// findByEmail tries the exact stored value first, then a case-insensitive
// match for rows stored with mixed casing.
func (s *AuthService) findByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.userRepo.GetUserByEmail(ctx, email)
	if err != nil || user != nil {
		return user, err
	}
	return s.userRepo.GetUserByEmailFold(ctx, email)
}

// VerifyToken checks signature and expiry and returns the decoded claims.
func (s *AuthService) VerifyToken(token string) (*utils.Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errMissingToken
	}

	claims, err := utils.ValidateToken(token, s.jwtSecret)
	if err != nil {
		logger.Log.Debug("Token rejected", zap.Error(err))
		return nil, errInvalidToken
	}
	return claims, nil
}

// Authorize turns a bearer token into the actor it was issued to.
func (s *AuthService) Authorize(token string) (models.Actor, error) {
	claims, err := s.VerifyToken(token)
	if err != nil {
		return models.Actor{}, err
	}
	return claims.Actor(), nil
}

// RequireRole fails with a forbidden error unless actor holds role.
func (s *AuthService) RequireRole(actor models.Actor, role models.Role) error {
	return requireRole(actor, role)
}

// EnsureAdmin makes sure an admin account exists and accepts password. With
// no admin present one is created from the given details; otherwise the
// oldest admin's password is reset if it does not already match.
func (s *AuthService) EnsureAdmin(ctx context.Context, username, email, password string) (*models.User, EnsureAdminResult, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	ctx, cancel := storeContext(ctx, s.storeTimeout)
	defer cancel()

	admin, err := s.userRepo.GetFirstAdmin(ctx)
	if err != nil {
		return nil, "", apperrors.Unavailable("failed to look up admin", err)
	}

	if admin == nil {
		if err := validateRegisterInput(username, email, password); err != nil {
			return nil, "", err
		}
		if err := s.checkAvailable(ctx, username, email); err != nil {
			return nil, "", err
		}

		hash, err := utils.HashPassword(password)
		if err != nil {
			return nil, "", apperrors.Unavailable("failed to hash password", err)
		}
		admin = &models.User{
			Username:     username,
			Email:        email,
			PasswordHash: hash,
			Role:         models.RoleAdmin,
		}
		if err := s.createUser(ctx, admin); err != nil {
			return nil, "", err
		}

		logger.Log.Info("Admin account created",
			zap.Uint("user_id", admin.ID),
			zap.String("username", admin.Username),
		)
		return admin, AdminCreated, nil
	}

	if len(password) == 0 {
		return nil, "", apperrors.Validation("password is required")
	}
	valid, err := utils.VerifyPassword(password, admin.PasswordHash)
	if err == nil && valid {
		return admin, AdminUnchanged, nil
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		if apperrors.Is(err, utils.ErrPasswordTooLong) {
			return nil, "", apperrors.Validation(err.Error())
		}
		return nil, "", apperrors.Unavailable("failed to hash password", err)
	}
	if err := s.userRepo.UpdatePasswordHash(ctx, admin.ID, hash); err != nil {
		return nil, "", apperrors.Unavailable("failed to reset admin password", err)
	}
	admin.PasswordHash = hash

	logger.Log.Info("Admin password reset",
		zap.Uint("user_id", admin.ID),
		zap.String("username", admin.Username),
	)
	return admin, AdminPasswordReset, nil
}

func (s *AuthService) checkAvailable(ctx context.Context, username, email string) error {
	existingUser, err := s.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		logger.Log.Error("Failed to check email existence",
			zap.String("email", email),
			zap.Error(err),
		)
		return apperrors.Unavailable("failed to register user", err)
	}
	if existingUser != nil {
		logger.Log.Warn("Email already exists", zap.String("email", email))
		return apperrors.Conflict("email already exists")
	}

	existingUser, err = s.userRepo.GetUserByUsername(ctx, username)
	if err != nil {
		logger.Log.Error("Failed to check username existence",
			zap.String("username", username),
			zap.Error(err),
		)
		return apperrors.Unavailable("failed to register user", err)
	}
	if existingUser != nil {
		logger.Log.Warn("Username already exists", zap.String("username", username))
		return apperrors.Conflict("username already exists")
	}
	return nil
}

// createUser inserts user; a unique violation from a concurrent registration
// surfaces as a conflict.
func (s *AuthService) createUser(ctx context.Context, user *models.User) error {
	if err := s.userRepo.CreateUser(ctx, user); err != nil {
		if database.IsUniqueViolation(err) {
			logger.Log.Warn("User insert hit a unique constraint",
				zap.String("username", user.Username),
				zap.String("email", user.Email),
			)
			return apperrors.Conflict("username or email already exists")
		}
		logger.Log.Error("Failed to create user in database",
			zap.String("username", user.Username),
			zap.Error(err),
		)
		return apperrors.Unavailable("failed to register user", err)
	}
	return nil
}

func validateRegisterInput(username, email, password string) error {
	if username == "" || email == "" || password == "" {
		return apperrors.Validation("username, email and password are required")
	}

	if len(username) < 3 {
		return apperrors.Validation("username must be at least 3 characters")
	}
	if len(username) > 50 {
		return apperrors.Validation("username must be at most 50 characters")
	}

	if !emailRegex.MatchString(email) {
		return apperrors.Validation("invalid email format")
	}
	if len(email) > 100 {
		return apperrors.Validation("email too long")
	}

	if len(password) > utils.MaxPasswordBytes {
		return apperrors.Validation("password must be at most 72 bytes")
	}
	return nil
}
