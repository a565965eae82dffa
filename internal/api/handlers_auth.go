package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vaporform/meshgate/internal/auth"
	"github.com/vaporform/meshgate/models"
)

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest represents a token refresh request
type RefreshRequest struct {
	Username     string `json:"username" validate:"required"`
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// LoginResponse represents a successful login response
type LoginResponse struct {
	Username     string        `json:"username"`
	Roles        []models.Role `json:"roles"`
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresAt    time.Time     `json:"expires_at"`
	TokenType    string        `json:"token_type"`
}

// login handles POST /api/v1/auth/login
func (s *Server) login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}
	if req.Username == "" || req.Password == "" {
		return BadRequestError("Invalid request body", "username and password are required")
	}

	jwtService := s.authMiddle.Service()

	roles, err := jwtService.Authenticate(req.Username, req.Password)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid username or password")
	}

	tokenPair, err := jwtService.GenerateTokenPair(req.Username, roles)
	if err != nil {
		return InternalError("Failed to generate tokens", err.Error())
	}

	// Keep a hash of the refresh token for the refresh flow
	hashed, err := jwtService.HashRefreshToken(tokenPair.RefreshToken)
	if err != nil {
		return InternalError("Failed to hash refresh token", err.Error())
	}
	s.refreshMu.Lock()
	s.refreshTokens[req.Username] = hashed
	s.refreshMu.Unlock()

	return c.JSON(http.StatusOK, LoginResponse{
		Username:     req.Username,
		Roles:        roles,
		AccessToken:  tokenPair.AccessToken,
		RefreshToken: tokenPair.RefreshToken,
		ExpiresAt:    tokenPair.ExpiresAt,
		TokenType:    tokenPair.TokenType,
	})
}

// refresh handles POST /api/v1/auth/refresh
//
// Exchanges a refresh token for a new token pair. Refresh tokens are
// single-use: a successful refresh rotates the stored hash.
func (s *Server) refresh(c echo.Context) error {
	var req RefreshRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}
	if req.Username == "" || req.RefreshToken == "" {
		return BadRequestError("Invalid request body", "username and refresh_token are required")
	}

	jwtService := s.authMiddle.Service()

	s.refreshMu.Lock()
	hashed, ok := s.refreshTokens[req.Username]
	s.refreshMu.Unlock()
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid refresh token")
	}
	if err := jwtService.CompareRefreshToken(req.RefreshToken, hashed); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid refresh token")
	}

	// Credentials were verified at login; rebuild the roles from config
	roles, err := s.rolesForUser(req.Username)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid refresh token")
	}

	tokenPair, err := jwtService.GenerateTokenPair(req.Username, roles)
	if err != nil {
		return InternalError("Failed to generate tokens", err.Error())
	}

	rotated, err := jwtService.HashRefreshToken(tokenPair.RefreshToken)
	if err != nil {
		return InternalError("Failed to hash refresh token", err.Error())
	}
	s.refreshMu.Lock()
	s.refreshTokens[req.Username] = rotated
	s.refreshMu.Unlock()

	return c.JSON(http.StatusOK, LoginResponse{
		Username:     req.Username,
		Roles:        roles,
		AccessToken:  tokenPair.AccessToken,
		RefreshToken: tokenPair.RefreshToken,
		ExpiresAt:    tokenPair.ExpiresAt,
		TokenType:    tokenPair.TokenType,
	})
}

// rolesForUser resolves the roles of a configured account without checking
// its password.
func (s *Server) rolesForUser(username string) ([]models.Role, error) {
	user, ok := s.config.Security.Users[username]
	if !ok {
		return nil, auth.ErrInvalidCredentials
	}
	return auth.RolesFor(models.Role(user.Role)), nil
}

// me handles GET /api/v1/auth/me
func (s *Server) me(c echo.Context) error {
	claims, ok := auth.GetClaims(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"username": claims.Username,
		"roles":    claims.Roles,
	})
}
