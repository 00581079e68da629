package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/erazemk/inventar/internal/model"
)

func TestGenerateAndValidateToken(t *testing.T) {
	secret := "test-secret-key"
	sector := int64(3)
	actor := model.Actor{UserID: 7, Name: "Ana", Email: "ana@example.com", SectorID: &sector, CanManage: true}

	token, err := GenerateToken(secret, actor, 0)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	claims, err := ValidateToken(secret, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}

	got := claims.Actor()
	if got.UserID != 7 || got.Name != "Ana" || got.Email != "ana@example.com" {
		t.Errorf("unexpected identity: %+v", got)
	}
	if got.SectorID == nil || *got.SectorID != 3 {
		t.Errorf("expected sector 3, got %v", got.SectorID)
	}
	if !got.CanManage || got.CrossSector {
		t.Errorf("unexpected permissions: %+v", got)
	}
	if claims.ExpiresAt == nil || claims.ExpiresAt.Sub(time.Now()) > TokenExpiry {
		t.Errorf("unexpected expiry %v", claims.ExpiresAt)
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, _ := GenerateToken("secret1", model.Actor{UserID: 1}, time.Hour)

	if _, err := ValidateToken("secret2", token); err == nil {
		t.Error("expected error for wrong secret")
	}
}

func TestValidateTokenInvalid(t *testing.T) {
	if _, err := ValidateToken("secret", "not-a-token"); err == nil {
		t.Error("expected error for invalid token")
	}
}

func TestValidateTokenExpired(t *testing.T) {
	claims := Claims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))

	if _, err := ValidateToken("secret", token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestValidateTokenRejectsNone(t *testing.T) {
	token, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 1}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	if _, err := ValidateToken("secret", token); err == nil {
		t.Error("expected error for unsigned token")
	}
}
