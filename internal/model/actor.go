package model

// Actor is the authenticated caller, threaded explicitly into every core call.
type Actor struct {
	UserID      int64  `json:"user_id"`
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	SectorID    *int64 `json:"sector_id,omitempty"`
	CanManage   bool   `json:"can_manage"`
	CrossSector bool   `json:"cross_sector"`
}

// MayActOn reports whether the actor may move stock owned by sectorID.
// Unassigned stock (nil sector) is open to every inventory manager.
func (a Actor) MayActOn(sectorID *int64) bool {
	if a.CrossSector || sectorID == nil {
		return true
	}
	return a.SectorID != nil && *a.SectorID == *sectorID
}
