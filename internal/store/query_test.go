package store

import (
	"context"
	"testing"
	"time"

	"github.com/erazemk/inventar/internal/db"
	"github.com/erazemk/inventar/internal/model"
)

func TestQueryLayerEmptyInput(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	movements, err := MovementsByItem(ctx, database, nil)
	if err != nil || movements == nil || len(movements) != 0 {
		t.Errorf("MovementsByItem(nil) = %v, %v", movements, err)
	}
	files, err := FilesByMovement(ctx, database, []int64{})
	if err != nil || files == nil || len(files) != 0 {
		t.Errorf("FilesByMovement(empty) = %v, %v", files, err)
	}
	tokens, err := TokensByMovement(ctx, database, nil)
	if err != nil || tokens == nil || len(tokens) != 0 {
		t.Errorf("TokensByMovement(nil) = %v, %v", tokens, err)
	}

	overview, err := LoadMovementOverview(ctx, database, nil)
	if err != nil {
		t.Fatalf("LoadMovementOverview: %v", err)
	}
	if len(overview.Movements) != 0 || len(overview.Files) != 0 || len(overview.Tokens) != 0 {
		t.Errorf("expected empty overview, got %+v", overview)
	}
}

func TestLoadMovementOverview(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	hammer := mustItem(t, database, "Hammer", nil, 5)
	saw := mustItem(t, database, "Saw", nil, 5)
	other := mustItem(t, database, "Other", nil, 5)

	moved, err := RecordMovements(ctx, database, manager, "g", []model.MovementInput{
		{ItemID: hammer.ID, Direction: model.DirectionOut, Amount: 1},
		{ItemID: hammer.ID, Direction: model.DirectionIn, Amount: 2},
		{ItemID: saw.ID, Direction: model.DirectionOut, Amount: 1, RequireSignature: true},
		{ItemID: other.ID, Direction: model.DirectionOut, Amount: 1},
	})
	if err != nil {
		t.Fatalf("RecordMovements: %v", err)
	}

	label := model.SignatureLabel{Role: model.RoleSource, SectorName: "A", Signer: "Ana", SignedAt: time.Now()}.Encode()
	if _, err := AddMovementFile(ctx, database, model.MovementFile{
		MovementID: moved[2].ID, Kind: model.FileSignature, Label: label, BlobKey: "signatures/a.png",
	}); err != nil {
		t.Fatalf("AddMovementFile: %v", err)
	}
	tok, _, _ := EnsureToken(ctx, database, moved[2].ID, ttl, time.Now())

	overview, err := LoadMovementOverview(ctx, database, []int64{hammer.ID, saw.ID})
	if err != nil {
		t.Fatalf("LoadMovementOverview: %v", err)
	}

	if len(overview.Movements[hammer.ID]) != 2 {
		t.Errorf("expected 2 hammer movements, got %d", len(overview.Movements[hammer.ID]))
	}
	// Most recent first.
	if hm := overview.Movements[hammer.ID]; len(hm) == 2 && hm[0].ID != moved[1].ID {
		t.Errorf("expected newest hammer movement first, got %d", hm[0].ID)
	}
	if _, ok := overview.Movements[other.ID]; ok {
		t.Error("unrequested item included")
	}
	if len(overview.Files[moved[2].ID]) != 1 {
		t.Errorf("expected 1 file for saw movement, got %d", len(overview.Files[moved[2].ID]))
	}
	if active := overview.ActiveToken(moved[2].ID, time.Now()); active == nil || active.Token != tok.Token {
		t.Errorf("expected active token %q, got %v", tok.Token, active)
	}

	state := overview.SignatureState(moved[2].ID)
	if state.Source == nil || state.Target != nil {
		t.Errorf("expected source-only state, got %+v", state)
	}
}
