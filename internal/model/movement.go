package model

import (
	"sort"
	"time"
)

// Direction is the stock direction of a movement.
type Direction string

// Movement directions.
const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionIn || d == DirectionOut
}

// TransferStatus is the signing status of a movement.
type TransferStatus string

// Transfer statuses.
const (
	TransferPending TransferStatus = "pending"
	TransferSigned  TransferStatus = "signed"
)

// Movement is one stock transfer event for one item. Only the status and
// document reference fields change after creation.
type Movement struct {
	ID                int64          `json:"id" db:"id"`
	ItemID            int64          `json:"item_id" db:"item_id"`
	Direction         Direction      `json:"direction" db:"direction"`
	Amount            int            `json:"amount" db:"amount"`
	Reason            string         `json:"reason,omitempty" db:"reason"`
	Notes             string         `json:"notes,omitempty" db:"notes"`
	ActorID           int64          `json:"actor_id" db:"actor_id"`
	ActorName         string         `json:"actor_name,omitempty" db:"actor_name"`
	SourceSectorID    *int64         `json:"source_sector_id,omitempty" db:"source_sector_id"`
	TargetSectorID    *int64         `json:"target_sector_id,omitempty" db:"target_sector_id"`
	SourceLocation    string         `json:"source_location,omitempty" db:"source_location"`
	TargetLocation    string         `json:"target_location,omitempty" db:"target_location"`
	RequiresSignature bool           `json:"requires_signature" db:"requires_signature"`
	TransferStatus    TransferStatus `json:"transfer_status" db:"transfer_status"`
	GroupKey          string         `json:"group_key,omitempty" db:"group_key"`
	DocumentKey       string         `json:"document_key,omitempty" db:"document_key"`
	DocumentURL       string         `json:"document_url,omitempty" db:"document_url"`
	FinalizedAt       *time.Time     `json:"finalized_at,omitempty" db:"finalized_at"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`

	// Joined fields (not always populated).
	ItemName string `json:"item_name,omitempty" db:"item_name"`
	ItemSKU  string `json:"item_sku,omitempty" db:"item_sku"`
}

// MovementInput is one validated row of a movement request.
type MovementInput struct {
	ItemID           int64
	Direction        Direction
	Amount           int
	Reason           string
	Notes            string
	TargetSectorID   *int64
	TargetLocation   string
	RequireSignature bool
}

// RequiresSignature decides whether a movement needs both parties to sign.
// The decision is frozen into the movement at creation.
func RequiresSignature(explicit bool, source, target *int64) bool {
	if explicit {
		return true
	}
	if target == nil {
		return false
	}
	return source == nil || *source != *target
}

// MovementGroup is the set of movements recorded together that share one
// transfer document. Key is the batch's group key.
type MovementGroup struct {
	Key       string
	Movements []Movement
}

// Representative returns the movement that carries the group's signing token
// and signatures: the one with the lowest ID. Nil for an empty group.
func (g MovementGroup) Representative() *Movement {
	if len(g.Movements) == 0 {
		return nil
	}
	rep := &g.Movements[0]
	for i := range g.Movements {
		if g.Movements[i].ID < rep.ID {
			rep = &g.Movements[i]
		}
	}
	return rep
}

// IDs returns the movement IDs in ascending order.
func (g MovementGroup) IDs() []int64 {
	ids := make([]int64, 0, len(g.Movements))
	for _, m := range g.Movements {
		ids = append(ids, m.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
