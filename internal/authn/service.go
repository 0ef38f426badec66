// Package authn issues and validates the JWTs that carry attachment
// identity across the HTTP command surface, and checks the
// PROFILE_ANY_ATTACHMENT-equivalent privilege bit spec section 6
// requires for calls that target another attachment. Grounded on
// internal/api/auth/security.go's Service (JWT issue/validate over
// golang-jwt/jwt/v5), with the AES credential-vault half of that file
// dropped — this domain has no encrypted device-credential payloads to
// guard (see DESIGN.md).
package authn

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Claims identifies the attachment and user a validated token was
// issued for, plus whether that user may act on attachments other
// than its own (spec section 6's insufficient-privilege check).
type Claims struct {
	AttachmentID         int64  `json:"attachment_id"`
	Username             string `json:"username"`
	ProfileAnyAttachment bool   `json:"profile_any_attachment"`
	jwt.RegisteredClaims
}

// LoginRequest is the HTTP login payload.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the issued token back to the caller.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service issues and validates attachment-identity tokens.
type Service struct {
	jwtSecret    []byte
	tokenExpiry  time.Duration
	adminUser    string
	adminHash    string
	anyAttachSet map[string]bool
}

// NewService constructs a Service. jwtSecret must be at least 32
// bytes, matching the teacher's minimum.
func NewService(jwtSecret, adminUsername, adminPasswordHash string, tokenExpiry time.Duration, profileAnyAttachmentUsers []string) (*Service, error) {
	if len(jwtSecret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 characters")
	}

	anySet := make(map[string]bool, len(profileAnyAttachmentUsers))
	for _, u := range profileAnyAttachmentUsers {
		anySet[u] = true
	}

	return &Service{
		jwtSecret:    []byte(jwtSecret),
		tokenExpiry:  tokenExpiry,
		adminUser:    adminUsername,
		adminHash:    adminPasswordHash,
		anyAttachSet: anySet,
	}, nil
}

// Login authenticates username/password against the configured admin
// account and mints a token scoped to attachmentID — the attachment
// the caller's connection is bound to (spec section 2's attachment
// identity).
func (s *Service) Login(username, password string, attachmentID int64) (*LoginResponse, error) {
	if username != s.adminUser {
		return nil, errors.New("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.adminHash), []byte(password)); err != nil {
		return nil, errors.New("invalid credentials")
	}

	expiresAt := time.Now().Add(s.tokenExpiry)
	claims := &Claims{
		AttachmentID:         attachmentID,
		Username:             username,
		ProfileAnyAttachment: s.anyAttachSet[username],
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "profilerd",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &LoginResponse{Token: tokenString, ExpiresAt: expiresAt}, nil
}

// ValidateToken parses and verifies tokenString, returning its claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// AuthorizeAttachment implements spec section 6's privilege check: a
// caller may always target their own attachment; targeting another
// one requires ProfileAnyAttachment.
func (c *Claims) AuthorizeAttachment(targetAttachmentID int64) bool {
	return c.ProfileAnyAttachment || c.AttachmentID == targetAttachmentID
}
