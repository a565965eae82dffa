// Package auth provides authentication and authorization services for
// Meshgate. It implements JWT-based authentication with role-based access
// control over config-declared accounts.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/vaporform/meshgate/internal/config"
	"github.com/vaporform/meshgate/models"
)

var (
	// ErrInvalidToken is returned when a JWT token is invalid
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when a JWT token has expired
	ErrExpiredToken = errors.New("token has expired")
	// ErrInvalidCredentials is returned when credentials are incorrect
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Claims represents JWT custom claims
type Claims struct {
	Username string        `json:"username"`
	Roles    []models.Role `json:"roles"`
	jwt.RegisteredClaims
}

// TokenPair represents an access token and refresh token
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	TokenType    string    `json:"token_type"` // "Bearer"
}

// JWTService provides JWT authentication services over the accounts declared
// in configuration.
type JWTService struct {
	secret                 []byte
	expiration             time.Duration
	refreshTokenExpiration time.Duration
	users                  map[string]config.UserConfig
}

// NewJWTService creates a new JWT service
func NewJWTService(cfg *config.Config) *JWTService {
	return &JWTService{
		secret:                 []byte(cfg.Security.JWTSecret),
		expiration:             cfg.Security.JWTExpiration,
		refreshTokenExpiration: cfg.Security.RefreshTokenExpiration,
		users:                  cfg.Security.Users,
	}
}

// Authenticate verifies a username/password pair against the configured
// accounts and returns the account's roles.
func (s *JWTService) Authenticate(username, password string) ([]models.Role, error) {
	user, ok := s.users[username]
	if !ok {
		// Burn a comparison anyway so missing and wrong-password cases
		// take comparable time.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$invalidinvalidinvalidinvalid"), []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := ComparePassword(password, user.PasswordHash); err != nil {
		return nil, ErrInvalidCredentials
	}
	return RolesFor(models.Role(user.Role)), nil
}

// RolesFor expands an account's declared level into the roles it implies.
func RolesFor(role models.Role) []models.Role {
	switch role {
	case models.RoleAdmin:
		return []models.Role{models.RoleRead, models.RoleWrite, models.RoleAdmin}
	case models.RoleWrite:
		return []models.Role{models.RoleRead, models.RoleWrite}
	default:
		return []models.Role{models.RoleRead}
	}
}

// GenerateToken generates a new JWT access token for a user
func (s *JWTService) GenerateToken(username string, roles []models.Role) (string, error) {
	now := time.Now()
	expiresAt := now.Add(s.expiration)

	claims := Claims{
		Username: username,
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "meshgate",
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// GenerateRefreshToken generates a random refresh token
func (s *JWTService) GenerateRefreshToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// HashRefreshToken hashes a refresh token for storage
func (s *JWTService) HashRefreshToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash refresh token: %w", err)
	}
	return string(hash), nil
}

// CompareRefreshToken compares a refresh token with its hash
func (s *JWTService) CompareRefreshToken(token, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token))
}

// GenerateTokenPair generates both access and refresh tokens
func (s *JWTService) GenerateTokenPair(username string, roles []models.Role) (*TokenPair, error) {
	accessToken, err := s.GenerateToken(username, roles)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := s.GenerateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().Add(s.expiration),
		TokenType:    "Bearer",
	}, nil
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// ComparePassword compares a password with its hash
func ComparePassword(password, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidCredentials
		}
		return err
	}
	return nil
}
