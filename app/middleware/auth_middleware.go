// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/amirphl/affiliate-engine/app/dto"
	"github.com/amirphl/affiliate-engine/app/services"
	"github.com/gofiber/fiber/v3"
)

// Context keys set by the authentication middleware
const (
	LocalUserID  = "user_id"
	LocalAdminID = "admin_id"
	LocalClaims  = "token_claims"
)

// TrackingKeyHeader carries the collaborator API key on tracking endpoints
const TrackingKeyHeader = "X-Tracking-Key"

// AuthMiddleware handles JWT token validation for protected endpoints
type AuthMiddleware struct {
	verifier     services.TokenVerifier
	trackingKeys []string
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(verifier services.TokenVerifier, trackingKeys []string) *AuthMiddleware {
	return &AuthMiddleware{
		verifier:     verifier,
		trackingKeys: trackingKeys,
	}
}

// Authenticate validates an affiliate bearer token and stores user_id and admin_id
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c fiber.Ctx) error {
		token, ok, err := bearerToken(c)
		if !ok {
			return err
		}

		claims, err := m.verifier.VerifyAffiliateToken(token)
		if err != nil {
			return tokenError(c, err)
		}

		c.Locals(LocalUserID, claims.UserID)
		c.Locals(LocalAdminID, claims.AdminID)
		c.Locals(LocalClaims, claims)
		storeRequestID(c)

		return c.Next()
	}
}

// AdminAuthenticate validates an admin bearer token and stores admin_id
func (m *AuthMiddleware) AdminAuthenticate() fiber.Handler {
	return func(c fiber.Ctx) error {
		token, ok, err := bearerToken(c)
		if !ok {
			return err
		}

		claims, err := m.verifier.VerifyAdminToken(token)
		if err != nil {
			return tokenError(c, err)
		}

		c.Locals(LocalAdminID, claims.AdminID)
		c.Locals(LocalClaims, claims)
		storeRequestID(c)

		return c.Next()
	}
}

// TrackingKey admits requests carrying one of the configured collaborator keys
func (m *AuthMiddleware) TrackingKey() fiber.Handler {
	return func(c fiber.Ctx) error {
		key := c.Get(TrackingKeyHeader)
		if key == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "Tracking key is required",
				Error:   dto.ErrorDetail{Code: "MISSING_TRACKING_KEY"},
			})
		}

		for _, allowed := range m.trackingKeys {
			if subtle.ConstantTimeCompare([]byte(key), []byte(allowed)) == 1 {
				storeRequestID(c)
				return c.Next()
			}
		}

		return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
			Success: false,
			Message: "Invalid tracking key",
			Error:   dto.ErrorDetail{Code: "INVALID_TRACKING_KEY"},
		})
	}
}

// bearerToken extracts the token. When ok is false the 401 response has been written.
func bearerToken(c fiber.Ctx) (token string, ok bool, err error) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return "", false, c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
			Success: false,
			Message: "Authorization header is required",
			Error:   dto.ErrorDetail{Code: "MISSING_AUTHORIZATION_HEADER"},
		})
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false, c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
			Success: false,
			Message: "Invalid authorization header format. Expected 'Bearer <token>'",
			Error:   dto.ErrorDetail{Code: "INVALID_AUTHORIZATION_FORMAT"},
		})
	}

	token = strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", false, c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
			Success: false,
			Message: "Access token is required",
			Error:   dto.ErrorDetail{Code: "MISSING_ACCESS_TOKEN"},
		})
	}
	return token, true, nil
}

func tokenError(c fiber.Ctx, err error) error {
	var code, message string
	status := fiber.StatusUnauthorized

	switch {
	case errors.Is(err, services.ErrTokenExpired):
		code = "TOKEN_EXPIRED"
		message = "Access token has expired"
	case errors.Is(err, services.ErrTokenWrongRole):
		code = "TOKEN_WRONG_ROLE"
		message = "Access token does not grant this role"
		status = fiber.StatusForbidden
	case errors.Is(err, services.ErrTokenInvalid):
		code = "TOKEN_INVALID"
		message = "Invalid access token"
	default:
		code = "TOKEN_VALIDATION_FAILED"
		message = "Token validation failed"
	}

	return c.Status(status).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error:   dto.ErrorDetail{Code: code},
	})
}

func storeRequestID(c fiber.Ctx) {
	if requestID := c.Get("X-Request-ID"); requestID != "" {
		c.Locals("request_id", requestID)
	}
}
