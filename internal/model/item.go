package model

import "time"

// Item represents an item type (quantity-based, not individual tracking).
// SectorID is nil while the item sits in the unassigned pool.
type Item struct {
	ID        int64      `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	SKU       string     `json:"sku,omitempty" db:"sku"`
	SectorID  *int64     `json:"sector_id,omitempty" db:"sector_id"`
	Quantity  int        `json:"quantity" db:"quantity"`
	Location  string     `json:"location,omitempty" db:"location"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// ItemInput carries the editable fields of an item. Quantity and SectorID are
// only honoured on creation; afterwards they change through movements.
type ItemInput struct {
	Name     string
	SKU      string
	SectorID *int64
	Quantity int
	Location string
}

// StockBalance represents the quantity of an item held by one sector.
type StockBalance struct {
	ItemID    int64     `json:"item_id" db:"item_id"`
	SectorID  int64     `json:"sector_id" db:"sector_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// Joined fields (not always populated).
	ItemName   string `json:"item_name,omitempty" db:"item_name"`
	SectorName string `json:"sector_name,omitempty" db:"sector_name"`
}
