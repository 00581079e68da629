package api

import (
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/erazemk/inventar/internal/export"
	"github.com/erazemk/inventar/internal/model"
	"github.com/erazemk/inventar/internal/store"
	"github.com/erazemk/inventar/internal/transfer"
)

// MaxBulkRows caps the rows of one bulk request.
const MaxBulkRows = 500

// MovementsHandler handles movement recording, listing and document endpoints.
type MovementsHandler struct {
	DB        *sql.DB
	Transfers *transfer.Service
	Validate  *validator.Validate
}

type movementRowRequest struct {
	ItemID           int64  `json:"item_id" validate:"required,gt=0"`
	Direction        string `json:"direction" validate:"required,oneof=in out"`
	Amount           int    `json:"amount"`
	Reason           string `json:"reason" validate:"max=500"`
	Notes            string `json:"notes" validate:"max=2000"`
	TargetSectorID   *int64 `json:"target_sector_id" validate:"omitempty,gt=0"`
	TargetLocation   string `json:"target_location" validate:"max=200"`
	RequireSignature bool   `json:"require_signature"`
}

func (req movementRowRequest) input() model.MovementInput {
	return model.MovementInput{
		ItemID:           req.ItemID,
		Direction:        model.Direction(req.Direction),
		Amount:           req.Amount,
		Reason:           req.Reason,
		Notes:            req.Notes,
		TargetSectorID:   req.TargetSectorID,
		TargetLocation:   req.TargetLocation,
		RequireSignature: req.RequireSignature,
	}
}

type bulkRequest struct {
	Rows []movementRowRequest `json:"rows"`
}

// signatureView is the decoded form of one role's signature.
type signatureView struct {
	Signer   string    `json:"signer"`
	Sector   string    `json:"sector"`
	SignedAt time.Time `json:"signed_at,omitempty"`
	URL      string    `json:"url"`
}

type movementView struct {
	model.Movement
	Files        []model.MovementFile `json:"files"`
	Source       *signatureView       `json:"source_signature,omitempty"`
	Target       *signatureView       `json:"target_signature,omitempty"`
	SigningToken *model.PublicToken   `json:"signing_token,omitempty"`
}

func newSignatureView(f *model.MovementFile) *signatureView {
	if f == nil {
		return nil
	}
	v := &signatureView{URL: f.BlobURL}
	if label, err := model.DecodeSignatureLabel(f.Label); err == nil {
		v.Signer = label.Signer
		v.Sector = label.SectorName
		v.SignedAt = label.SignedAt
	}
	return v
}

// movementViews decorates movements with their files and signatures. The live
// signing token is only shown to managers who may act on the movement.
func movementViews(o *store.MovementOverview, movements []model.Movement, viewer model.Actor) []movementView {
	now := time.Now()
	views := make([]movementView, 0, len(movements))
	for _, m := range movements {
		state := o.SignatureState(m.ID)
		files := o.Files[m.ID]
		if files == nil {
			files = []model.MovementFile{}
		}
		view := movementView{
			Movement: m,
			Files:    files,
			Source:   newSignatureView(state.Source),
			Target:   newSignatureView(state.Target),
		}
		if viewer.CanManage && viewer.MayActOn(m.SourceSectorID) {
			view.SigningToken = o.ActiveToken(m.ID, now)
		}
		views = append(views, view)
	}
	return views
}

// Create handles POST /api/movements.
func (h *MovementsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req movementRowRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		jsonErrors(w, http.StatusUnprocessableEntity, "validation failed", validationMessages(err))
		return
	}
	h.record(w, r, []model.MovementInput{req.input()})
}

// Bulk handles POST /api/movements/bulk. Any malformed row rejects the whole
// request.
func (h *MovementsHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Rows) == 0 {
		jsonError(w, http.StatusBadRequest, "rows required")
		return
	}
	if len(req.Rows) > MaxBulkRows {
		jsonError(w, http.StatusBadRequest, fmt.Sprintf("at most %d rows per request", MaxBulkRows))
		return
	}

	var msgs []string
	inputs := make([]model.MovementInput, 0, len(req.Rows))
	for i, row := range req.Rows {
		if err := h.Validate.Struct(row); err != nil {
			for _, msg := range validationMessages(err) {
				msgs = append(msgs, fmt.Sprintf("row %d: %s", i+1, msg))
			}
			continue
		}
		inputs = append(inputs, row.input())
	}
	if len(msgs) > 0 {
		jsonErrors(w, http.StatusUnprocessableEntity, "validation failed", msgs)
		return
	}
	h.record(w, r, inputs)
}

func (h *MovementsHandler) record(w http.ResponseWriter, r *http.Request, inputs []model.MovementInput) {
	result, err := h.Transfers.RecordMovements(r.Context(), actor(r), inputs)
	if err != nil {
		writeError(w, r, err, "failed to record movements")
		return
	}
	jsonResponse(w, http.StatusCreated, result)
}

// List handles GET /api/movements.
func (h *MovementsHandler) List(w http.ResponseWriter, r *http.Request) {
	movements, err := store.ListMovements(r.Context(), h.DB, queryID(r, "item_id"), queryID(r, "sector_id"))
	if err != nil {
		writeError(w, r, err, "failed to list movements")
		return
	}
	jsonResponse(w, http.StatusOK, movements)
}

// Export handles GET /api/movements/export.xlsx.
func (h *MovementsHandler) Export(w http.ResponseWriter, r *http.Request) {
	movements, err := store.ListMovements(r.Context(), h.DB, queryID(r, "item_id"), queryID(r, "sector_id"))
	if err != nil {
		writeError(w, r, err, "failed to list movements")
		return
	}
	names, err := store.SectorNames(r.Context(), h.DB)
	if err != nil {
		writeError(w, r, err, "failed to list sectors")
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="movements.xlsx"`)
	if err := export.MovementsXLSX(w, movements, names); err != nil {
		requestLogger(r).WithError(err).Error("exporting movements")
	}
}

// Get handles GET /api/movements/{id}.
func (h *MovementsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid movement id")
		return
	}

	m, err := store.GetMovement(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err, "failed to get movement")
		return
	}
	if m == nil {
		jsonError(w, http.StatusNotFound, "movement not found")
		return
	}

	files, err := store.FilesByMovement(r.Context(), h.DB, []int64{id})
	if err != nil {
		writeError(w, r, err, "failed to list files")
		return
	}
	tokens, err := store.TokensByMovement(r.Context(), h.DB, []int64{id})
	if err != nil {
		writeError(w, r, err, "failed to list tokens")
		return
	}

	overview := &store.MovementOverview{Files: files, Tokens: tokens}
	jsonResponse(w, http.StatusOK, movementViews(overview, []model.Movement{*m}, actor(r))[0])
}

// UploadFile handles POST /api/movements/{id}/files (multipart field "file").
func (h *MovementsHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid movement id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, transfer.MaxUploadBytes+1<<20)
	upload, err := formUpload(r, "file")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if upload == nil {
		jsonError(w, http.StatusBadRequest, "file required")
		return
	}

	file, err := h.Transfers.AttachFile(r.Context(), actor(r), id, upload)
	if err != nil {
		writeError(w, r, err, "failed to store file")
		return
	}
	jsonResponse(w, http.StatusCreated, file)
}

// Token handles POST /api/movements/{id}/token.
func (h *MovementsHandler) Token(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid movement id")
		return
	}

	link, err := h.Transfers.EnsureToken(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, r, err, "failed to issue signing link")
		return
	}
	jsonResponse(w, http.StatusOK, link)
}

// MarkSigned handles POST /api/movements/{id}/sign.
func (h *MovementsHandler) MarkSigned(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid movement id")
		return
	}

	if err := h.Transfers.MarkSigned(r.Context(), actor(r), id); err != nil {
		writeError(w, r, err, "failed to mark movement signed")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"status": string(model.TransferSigned)})
}

// Regenerate handles POST /api/movements/{id}/document.
func (h *MovementsHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid movement id")
		return
	}

	doc, err := h.Transfers.RegenerateDocument(r.Context(), actor(r), id)
	if err != nil {
		requestLogger(r).WithError(err).WithField("movement_id", id).Error("document regeneration failed")
		if isDomainError(err) {
			writeError(w, r, err, "failed to generate document")
			return
		}
		jsonError(w, http.StatusBadGateway, "document could not be generated")
		return
	}
	jsonResponse(w, http.StatusOK, doc)
}

// Document handles GET /api/movements/{id}/document.
func (h *MovementsHandler) Document(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid movement id")
		return
	}

	m, err := store.GetMovement(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err, "failed to get movement")
		return
	}
	if m == nil || m.DocumentKey == "" {
		jsonError(w, http.StatusNotFound, "document not found")
		return
	}

	data, err := h.Transfers.Blobs.Get(r.Context(), m.DocumentKey)
	if err != nil {
		writeError(w, r, err, "failed to read document")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="transfer-%d.pdf"`, id))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// formUpload reads an optional multipart file field.
func formUpload(r *http.Request, field string) (*transfer.Upload, error) {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		return nil, fmt.Errorf("invalid multipart form")
	}
	f, header, err := r.FormFile(field)
	if err == http.ErrMissingFile {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", field, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, transfer.MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", field, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return &transfer.Upload{Name: header.Filename, MIME: header.Header.Get("Content-Type"), Data: data}, nil
}
