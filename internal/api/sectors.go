package api

import (
	"database/sql"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/erazemk/inventar/internal/model"
	"github.com/erazemk/inventar/internal/store"
)

// SectorsHandler handles sector CRUD endpoints.
type SectorsHandler struct {
	DB *sql.DB
}

type sectorRequest struct {
	Name string `json:"name"`
}

// List handles GET /api/sectors.
func (h *SectorsHandler) List(w http.ResponseWriter, r *http.Request) {
	sectors, err := store.ListSectors(r.Context(), h.DB)
	if err != nil {
		writeError(w, r, err, "failed to list sectors")
		return
	}
	if sectors == nil {
		sectors = []model.Sector{}
	}
	jsonResponse(w, http.StatusOK, sectors)
}

// Create handles POST /api/sectors.
func (h *SectorsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req sectorRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		jsonError(w, http.StatusBadRequest, "name required")
		return
	}

	sector, err := store.CreateSector(r.Context(), h.DB, req.Name)
	if err != nil {
		writeError(w, r, err, "failed to create sector")
		return
	}

	requestLogger(r).WithField("sector", sector.Name).Info("sector created")
	jsonResponse(w, http.StatusCreated, sector)
}

// Update handles PUT /api/sectors/{id}.
func (h *SectorsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid sector id")
		return
	}

	var req sectorRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		jsonError(w, http.StatusBadRequest, "name required")
		return
	}

	if err := store.UpdateSector(r.Context(), h.DB, id, req.Name); err != nil {
		writeError(w, r, err, "failed to update sector")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"status": "updated"})
}

// Delete handles DELETE /api/sectors/{id}.
func (h *SectorsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid sector id")
		return
	}

	if err := store.DeleteSector(r.Context(), h.DB, id); err != nil {
		jsonError(w, http.StatusConflict, err.Error())
		return
	}

	requestLogger(r).WithField("sector_id", id).Info("sector deleted")
	jsonResponse(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Stock handles GET /api/sectors/{id}/stock.
func (h *SectorsHandler) Stock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid sector id")
		return
	}

	balances, err := store.ListStock(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err, "failed to list stock")
		return
	}
	if balances == nil {
		balances = []model.StockBalance{}
	}
	jsonResponse(w, http.StatusOK, balances)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func queryID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return id
}
