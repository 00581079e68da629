package model

import "time"

// Sector is an organizational unit that can own stock and take part in transfers.
type Sector struct {
	ID        int64      `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// SectorNames maps sector IDs to display names.
type SectorNames map[int64]string

// Name returns the display name for id, or fallback when id is nil or unknown.
func (n SectorNames) Name(id *int64, fallback string) string {
	if id == nil {
		return fallback
	}
	if name, ok := n[*id]; ok {
		return name
	}
	return fallback
}
