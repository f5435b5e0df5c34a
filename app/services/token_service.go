package services

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token service error constants
var (
	ErrTokenExpired   = errors.New("token has expired")
	ErrTokenInvalid   = errors.New("invalid token")
	ErrTokenWrongRole = errors.New("token role not allowed")
)

// Token roles
const (
	RoleAffiliate = "affiliate"
	RoleAdmin     = "admin"
)

// TokenClaims represents the claims of a verified access token
type TokenClaims struct {
	UserID    uint      `json:"user_id"`
	AdminID   uint      `json:"admin_id"`
	Role      string    `json:"role"`
	TokenID   string    `json:"jti"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AccessClaims is the JWT body issued by the identity service
type AccessClaims struct {
	UserID  uint   `json:"user_id,omitempty"`
	AdminID uint   `json:"admin_id"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// TokenVerifier validates bearer tokens. Tokens are issued elsewhere.
type TokenVerifier interface {
	VerifyAffiliateToken(token string) (*TokenClaims, error)
	VerifyAdminToken(token string) (*TokenClaims, error)
}

// TokenVerifierImpl implements TokenVerifier
type TokenVerifierImpl struct {
	publicKey  *rsa.PublicKey
	secretKey  []byte
	useRSAKeys bool
	parser     *jwt.Parser
}

// NewTokenVerifier creates a new token verifier
func NewTokenVerifier(issuer, audience string, useRSAKeys bool, publicKeyPEM, secretKey string) (TokenVerifier, error) {
	v := &TokenVerifierImpl{useRSAKeys: useRSAKeys}

	methods := []string{jwt.SigningMethodHS256.Alg()}
	if useRSAKeys {
		publicKey, err := parseRSAPublicKey(publicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to parse RSA public key: %w", err)
		}
		v.publicKey = publicKey
		methods = []string{jwt.SigningMethodRS256.Alg()}
	} else {
		if secretKey == "" {
			return nil, fmt.Errorf("secret key is required when not using RSA keys")
		}
		v.secretKey = []byte(secretKey)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	v.parser = jwt.NewParser(opts...)

	return v, nil
}

// parseRSAPublicKey parses an RSA public key from PEM format
func parseRSAPublicKey(publicKeyPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("failed to decode public key")
	}

	publicKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	rsaPublicKey, ok := publicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not RSA")
	}
	return rsaPublicKey, nil
}

func (v *TokenVerifierImpl) VerifyAffiliateToken(token string) (*TokenClaims, error) {
	claims, err := v.verify(token)
	if err != nil {
		return nil, err
	}
	if claims.Role != RoleAffiliate {
		return nil, ErrTokenWrongRole
	}
	if claims.UserID == 0 || claims.AdminID == 0 {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (v *TokenVerifierImpl) VerifyAdminToken(token string) (*TokenClaims, error) {
	claims, err := v.verify(token)
	if err != nil {
		return nil, err
	}
	if claims.Role != RoleAdmin {
		return nil, ErrTokenWrongRole
	}
	if claims.AdminID == 0 {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (v *TokenVerifierImpl) verify(token string) (*TokenClaims, error) {
	var body AccessClaims
	parsed, err := v.parser.ParseWithClaims(token, &body, func(t *jwt.Token) (any, error) {
		if v.useRSAKeys {
			return v.publicKey, nil
		}
		return v.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}

	claims := &TokenClaims{
		UserID:  body.UserID,
		AdminID: body.AdminID,
		Role:    body.Role,
		TokenID: body.ID,
	}
	if body.IssuedAt != nil {
		claims.IssuedAt = body.IssuedAt.Time
	}
	if body.ExpiresAt != nil {
		claims.ExpiresAt = body.ExpiresAt.Time
	}
	return claims, nil
}
