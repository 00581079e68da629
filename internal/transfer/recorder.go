package transfer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/erazemk/inventar/internal/model"
	"github.com/erazemk/inventar/internal/store"
)

// RecordResult is the outcome of a recorded batch. DocumentError is set when
// the movements were committed but the transfer document could not be
// produced.
type RecordResult struct {
	GroupKey      string           `json:"group_key"`
	Movements     []model.Movement `json:"movements"`
	Document      *Document        `json:"document,omitempty"`
	DocumentError string           `json:"document_error,omitempty"`
}

// RecordMovements records a batch as one unit, then generates one transfer
// document for the rows that need signatures.
func (s *Service) RecordMovements(ctx context.Context, actor model.Actor, inputs []model.MovementInput) (*RecordResult, error) {
	if !actor.CanManage {
		return nil, fmt.Errorf("recording movements: %w", model.ErrForbidden)
	}

	groupKey := uuid.NewString()
	movements, err := store.RecordMovements(ctx, s.DB, actor, groupKey, inputs)
	if err != nil {
		return nil, err
	}

	log := s.Log.WithFields(logrus.Fields{
		"group_key": groupKey,
		"actor_id":  actor.UserID,
		"rows":      len(movements),
	})
	log.Info("recorded movements")

	result := &RecordResult{GroupKey: groupKey, Movements: movements}

	group := model.MovementGroup{Key: groupKey}
	for _, m := range movements {
		if m.RequiresSignature {
			group.Movements = append(group.Movements, m)
		}
	}
	if len(group.Movements) == 0 {
		return result, nil
	}

	doc, err := s.GenerateTransferDocument(ctx, group, actor.Name)
	if err != nil {
		log.WithError(err).WithField("movement_ids", group.IDs()).Error("transfer document generation failed")
		result.DocumentError = "movements recorded but the transfer document could not be generated: " + err.Error()
		return result, nil
	}
	result.Document = doc

	if reloaded, err := store.ListMovementsByIDs(ctx, s.DB, model.MovementGroup{Movements: movements}.IDs()); err == nil {
		result.Movements = reloaded
	}
	return result, nil
}

// MarkSigned sets a movement's status to signed by hand.
func (s *Service) MarkSigned(ctx context.Context, actor model.Actor, movementID int64) error {
	if _, err := s.authorize(ctx, actor, movementID, "marking movement signed"); err != nil {
		return err
	}
	if err := store.MarkMovementSigned(ctx, s.DB, movementID); err != nil {
		return err
	}
	s.Log.WithFields(logrus.Fields{"movement_id": movementID, "actor_id": actor.UserID}).Info("movement marked signed")
	return nil
}
