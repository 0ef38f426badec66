package authn

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestNewService_RejectsShortSecret(t *testing.T) {
	if _, err := NewService("too-short", "admin", "hash", time.Hour, nil); err == nil {
		t.Fatalf("expected an error for a jwt secret under 32 bytes")
	}
}

func TestLogin_RejectsWrongUsername(t *testing.T) {
	svc, err := NewService("01234567890123456789012345678901", "admin", "$2a$10$invalidbcrypthashxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx", time.Hour, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if _, err := svc.Login("mallory", "whatever", 1); err == nil {
		t.Fatalf("expected login to fail for a username other than the configured admin")
	}
}

func TestLogin_RejectsWrongPassword(t *testing.T) {
	svc, err := NewService("01234567890123456789012345678901", "admin", "$2a$10$invalidbcrypthashxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx", time.Hour, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if _, err := svc.Login("admin", "wrong-password", 1); err == nil {
		t.Fatalf("expected login to fail when the password doesn't match the stored hash")
	}
}

// signTestToken mints a token the same way Login does, without going
// through the bcrypt password check, so ValidateToken/AuthorizeAttachment
// can be exercised independently of credential verification.
func signTestToken(t *testing.T, svc *Service, attachmentID int64, username string, anyAttachment bool) string {
	t.Helper()
	claims := &Claims{
		AttachmentID:         attachmentID,
		Username:             username,
		ProfileAnyAttachment: anyAttachment,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "profilerd",
		},
	}
	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(svc.jwtSecret)
	if err != nil {
		t.Fatalf("sign test token: %v", err)
	}
	return tokenString
}

func TestValidateToken_RoundTrips(t *testing.T) {
	svc, err := NewService("01234567890123456789012345678901", "admin", "$2a$10$xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx", time.Hour, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	tokenString := signTestToken(t, svc, 99, "alice", false)

	claims, err := svc.ValidateToken(tokenString)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.AttachmentID != 99 || claims.Username != "alice" {
		t.Errorf("expected claims for attachment 99/alice, got %+v", claims)
	}
}

func TestValidateToken_RejectsWrongSecret(t *testing.T) {
	svc, _ := NewService("01234567890123456789012345678901", "admin", "$2a$10$xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx", time.Hour, nil)
	other, _ := NewService("99999999999999999999999999999999", "admin", "$2a$10$xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx", time.Hour, nil)

	tokenString := signTestToken(t, svc, 1, "alice", false)
	if _, err := other.ValidateToken(tokenString); err == nil {
		t.Fatalf("expected ValidateToken to reject a token signed with a different secret")
	}
}

func TestClaims_AuthorizeAttachment(t *testing.T) {
	own := &Claims{AttachmentID: 5, ProfileAnyAttachment: false}
	if !own.AuthorizeAttachment(5) {
		t.Errorf("a caller must always be authorized for its own attachment")
	}
	if own.AuthorizeAttachment(6) {
		t.Errorf("a caller without the privilege must not be authorized for another attachment")
	}

	privileged := &Claims{AttachmentID: 5, ProfileAnyAttachment: true}
	if !privileged.AuthorizeAttachment(6) {
		t.Errorf("a caller with ProfileAnyAttachment must be authorized for any attachment")
	}
}
