/**
 * @description
 * Authentication logic: registration and login with bcrypt password hashing
 * and HS256 JWT issuing. Token validation lives in the API middleware.
 */
package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/reelforge/backend/internal/domain"
	"github.com/reelforge/backend/internal/store"
)

// Auth errors surfaced to clients.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidEmail       = errors.New("invalid email address")
)

// AuthRepository defines the database operations auth needs.
type AuthRepository interface {
	CreateUser(ctx context.Context, email, passwordHash, name string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, userID string) (*domain.User, error)
	CreateFreeSubscription(ctx context.Context, userID string, creditsTotal int, now time.Time) (*domain.Subscription, error)
	GetPlan(ctx context.Context, name string) (*domain.Plan, error)
}

// AuthService provides registration, login, and token issuing.
type AuthService struct {
	repo        AuthRepository
	logger      *slog.Logger
	jwtSecret   []byte
	tokenExpiry time.Duration
}

// NewAuthService creates a new auth service.
func NewAuthService(repo AuthRepository, logger *slog.Logger, jwtSecret string, tokenExpiry time.Duration) AuthService {
	return AuthService{
		repo:        repo,
		logger:      logger,
		jwtSecret:   []byte(jwtSecret),
		tokenExpiry: tokenExpiry,
	}
}

// AuthResult is a user plus a signed access token.
type AuthResult struct {
	User  *domain.User `json:"user"`
	Token string       `json:"token"`
}

// Register creates a new account with the free-tier subscription attached.
func (a AuthService) Register(ctx context.Context, email, password, name string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	if len(password) < 8 {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user, err := a.repo.CreateUser(ctx, email, string(hash), name)
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	// Attach the free-tier allotment. Best effort: the subscription row is
	// also created lazily on first status read.
	if freePlan, planErr := a.repo.GetPlan(ctx, domain.PlanFree); planErr == nil {
		if _, subErr := a.repo.CreateFreeSubscription(ctx, user.ID, freePlan.CreditsTotal, time.Now().UTC()); subErr != nil {
			a.logger.Warn("failed to create free subscription on register", "user_id", user.ID, "error", subErr)
		}
	}

	token, err := a.issueToken(user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Token: token}, nil
}

// Login verifies credentials and issues a token.
func (a AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := a.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := a.issueToken(user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Token: token}, nil
}

// GetUser returns the account for an authenticated user ID.
func (a AuthService) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	return a.repo.GetUserByID(ctx, userID)
}

func (a AuthService) issueToken(user *domain.User) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"role":  user.Role,
		"iat":   now.Unix(),
		"exp":   now.Add(a.tokenExpiry).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtSecret)
}
