package api

import (
	"database/sql"
	"mime"
	"net/http"
	"strings"

	"github.com/erazemk/inventar/internal/model"
	"github.com/erazemk/inventar/internal/store"
	"github.com/erazemk/inventar/internal/transfer"
)

// PublicHandler serves the token-authenticated signing endpoints.
type PublicHandler struct {
	DB        *sql.DB
	Transfers *transfer.Service
}

type signingMovement struct {
	ID             int64                `json:"id"`
	ItemName       string               `json:"item_name"`
	Amount         int                  `json:"amount"`
	Direction      model.Direction      `json:"direction"`
	From           string               `json:"from"`
	To             string               `json:"to"`
	Status         model.TransferStatus `json:"status"`
	DocumentURL    string               `json:"document_url,omitempty"`
	SourceSigned   bool                 `json:"source_signed"`
	TargetSigned   bool                 `json:"target_signed"`
	Source         *signatureView       `json:"source_signature,omitempty"`
	Target         *signatureView       `json:"target_signature,omitempty"`
	AvailableRoles []model.Role         `json:"available_roles"`
}

// State handles GET /public/sign?token=.
func (h *PublicHandler) State(w http.ResponseWriter, r *http.Request) {
	m, state, err := h.Transfers.SigningState(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		writeError(w, r, err, "failed to load signing state")
		return
	}

	names, err := store.SectorNames(r.Context(), h.DB)
	if err != nil {
		writeError(w, r, err, "failed to list sectors")
		return
	}
	sectors, err := store.ListSectors(r.Context(), h.DB)
	if err != nil {
		writeError(w, r, err, "failed to list sectors")
		return
	}
	if sectors == nil {
		sectors = []model.Sector{}
	}

	view := signingMovement{
		ID:             m.ID,
		ItemName:       m.ItemName,
		Amount:         m.Amount,
		Direction:      m.Direction,
		From:           names.Name(m.SourceSectorID, "Unassigned"),
		To:             names.Name(m.TargetSectorID, "-"),
		Status:         m.TransferStatus,
		DocumentURL:    m.DocumentURL,
		SourceSigned:   state.Source != nil,
		TargetSigned:   state.Target != nil,
		Source:         newSignatureView(state.Source),
		Target:         newSignatureView(state.Target),
		AvailableRoles: []model.Role{},
	}
	if m.FinalizedAt == nil {
		for _, role := range []model.Role{model.RoleSource, model.RoleTarget} {
			if state.For(role) == nil {
				view.AvailableRoles = append(view.AvailableRoles, role)
			}
		}
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"movement": view,
		"sectors":  sectors,
	})
}

// Submit handles POST /public/sign?token=. The body is either JSON
// ({"source": {...}, "target": {...}}) or a multipart form with
// <role>_sector, <role>_custom_sector, <role>_signer and <role>_signature
// fields plus an optional "document" file.
func (h *PublicHandler) Submit(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	r.Body = http.MaxBytesReader(w, r.Body, transfer.MaxUploadBytes+4<<20)

	var sub transfer.Submission
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		upload, err := formUpload(r, "document")
		if err != nil {
			jsonError(w, http.StatusBadRequest, err.Error())
			return
		}
		sub = transfer.Submission{
			Source:   formSignature(r, model.RoleSource),
			Target:   formSignature(r, model.RoleTarget),
			Document: upload,
		}
	default:
		if err := decodeJSON(r, &sub); err != nil {
			jsonError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	result, err := h.Transfers.SubmitSignature(r.Context(), token, sub)
	if err != nil {
		writeError(w, r, err, "failed to save signatures")
		return
	}

	status := http.StatusOK
	if len(result.Saved) > 0 || result.FileSaved {
		status = http.StatusCreated
	}
	jsonResponse(w, status, result)
}

func formSignature(r *http.Request, role model.Role) *transfer.RoleSignature {
	prefix := string(role) + "_"
	image := strings.TrimSpace(r.FormValue(prefix + "signature"))
	if image == "" {
		return nil
	}
	return &transfer.RoleSignature{
		Sector:       r.FormValue(prefix + "sector"),
		CustomSector: r.FormValue(prefix + "custom_sector"),
		Signer:       r.FormValue(prefix + "signer"),
		Image:        image,
	}
}
