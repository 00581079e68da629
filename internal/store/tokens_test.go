package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/erazemk/inventar/internal/db"
	"github.com/erazemk/inventar/internal/model"
)

const ttl = 14 * 24 * time.Hour

func pendingMovement(t *testing.T, database *sql.DB) model.Movement {
	t.Helper()
	item := mustItem(t, database, "Drill", nil, 5)
	moved, err := RecordMovements(context.Background(), database, manager, "g", []model.MovementInput{
		{ItemID: item.ID, Direction: model.DirectionOut, Amount: 1, RequireSignature: true},
	})
	if err != nil {
		t.Fatalf("RecordMovements: %v", err)
	}
	return moved[0]
}

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	b, _ := GenerateToken()
	if a == b {
		t.Error("expected distinct tokens")
	}
	// 32 bytes, base64 without padding.
	if len(a) != 43 {
		t.Errorf("expected 43 characters, got %d", len(a))
	}
	for _, c := range a {
		if c == '+' || c == '/' || c == '=' {
			t.Errorf("token %q is not URL safe", a)
			break
		}
	}
}

func TestEnsureTokenIsIdempotent(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	m := pendingMovement(t, database)
	now := time.Now()

	first, created, err := EnsureToken(ctx, database, m.ID, ttl, now)
	if err != nil {
		t.Fatalf("EnsureToken: %v", err)
	}
	if !created {
		t.Error("expected first call to create a token")
	}
	if d := first.ExpiresAt.Sub(now); d < ttl-time.Second || d > ttl+time.Second {
		t.Errorf("expected expiry about 14 days out, got %v", d)
	}

	second, created, err := EnsureToken(ctx, database, m.ID, ttl, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("EnsureToken: %v", err)
	}
	if created {
		t.Error("expected second call to reuse the token")
	}
	if second.Token != first.Token {
		t.Errorf("expected same token, got %q and %q", first.Token, second.Token)
	}
}

func TestEnsureTokenAfterExpiry(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	m := pendingMovement(t, database)
	now := time.Now()

	first, _, _ := EnsureToken(ctx, database, m.ID, ttl, now)

	later := now.Add(ttl + time.Hour)
	second, created, err := EnsureToken(ctx, database, m.ID, ttl, later)
	if err != nil {
		t.Fatalf("EnsureToken: %v", err)
	}
	if !created || second.Token == first.Token {
		t.Error("expected a new token after expiry")
	}

	tokens, _ := ListTokens(ctx, database, m.ID)
	if len(tokens) != 2 {
		t.Errorf("expected expired token to be kept, got %d tokens", len(tokens))
	}
}

func TestEnsureTokenUnknownMovement(t *testing.T) {
	database := db.NewTestDB(t)

	_, _, err := EnsureToken(context.Background(), database, 999, ttl, time.Now())
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLookupToken(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	m := pendingMovement(t, database)
	now := time.Now()

	tok, _, _ := EnsureToken(ctx, database, m.ID, ttl, now)

	got, err := LookupToken(ctx, database, tok.Token, now)
	if err != nil {
		t.Fatalf("LookupToken: %v", err)
	}
	if got.MovementID != m.ID {
		t.Errorf("expected movement %d, got %d", m.ID, got.MovementID)
	}

	if _, err := LookupToken(ctx, database, "nope", now); !errors.Is(err, model.ErrTokenNotFound) {
		t.Errorf("expected ErrTokenNotFound, got %v", err)
	}
	if _, err := LookupToken(ctx, database, "", now); !errors.Is(err, model.ErrTokenNotFound) {
		t.Errorf("expected ErrTokenNotFound for empty token, got %v", err)
	}
	if _, err := LookupToken(ctx, database, tok.Token, now.Add(ttl+time.Second)); !errors.Is(err, model.ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestLoadOrCreateSecret(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	first, err := LoadOrCreateSecret(ctx, database, SettingJWTSecret, 32)
	if err != nil {
		t.Fatalf("LoadOrCreateSecret: %v", err)
	}
	if len(first) != 64 {
		t.Errorf("expected 64 hex characters, got %d", len(first))
	}

	second, _ := LoadOrCreateSecret(ctx, database, SettingJWTSecret, 32)
	if first != second {
		t.Error("expected the stored secret to be reused")
	}
}
