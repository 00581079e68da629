package api

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/erazemk/inventar/internal/model"
	"github.com/erazemk/inventar/internal/store"
)

// ItemsHandler handles item CRUD endpoints.
type ItemsHandler struct {
	DB       *sql.DB
	Validate *validator.Validate
}

type createItemRequest struct {
	Name     string `json:"name" validate:"required,max=200"`
	SKU      string `json:"sku" validate:"max=100"`
	SectorID *int64 `json:"sector_id" validate:"omitempty,gt=0"`
	Quantity int    `json:"quantity" validate:"gte=0"`
	Location string `json:"location" validate:"max=200"`
}

type updateItemRequest struct {
	Name     string `json:"name" validate:"required,max=200"`
	SKU      string `json:"sku" validate:"max=100"`
	Location string `json:"location" validate:"max=200"`
}

// List handles GET /api/items.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := store.ListItems(r.Context(), h.DB, queryID(r, "sector_id"))
	if err != nil {
		writeError(w, r, err, "failed to list items")
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	jsonResponse(w, http.StatusOK, items)
}

// Create handles POST /api/items.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := h.Validate.Struct(req); err != nil {
		jsonErrors(w, http.StatusUnprocessableEntity, "validation failed", validationMessages(err))
		return
	}

	item, err := store.CreateItem(r.Context(), h.DB, model.ItemInput{
		Name:     req.Name,
		SKU:      req.SKU,
		SectorID: req.SectorID,
		Quantity: req.Quantity,
		Location: req.Location,
	})
	if err != nil {
		writeError(w, r, err, "failed to create item")
		return
	}

	requestLogger(r).WithField("item", item.Name).Info("item created")
	jsonResponse(w, http.StatusCreated, item)
}

// Get handles GET /api/items/{id}. The response carries the item's stock
// distribution and its movements with their files and signing links.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err, "failed to get item")
		return
	}
	if item == nil {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}

	dist, err := store.GetItemDistribution(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err, "failed to get item distribution")
		return
	}
	if dist == nil {
		dist = []model.StockBalance{}
	}

	overview, err := store.LoadMovementOverview(r.Context(), h.DB, []int64{id})
	if err != nil {
		writeError(w, r, err, "failed to load movements")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"item":         item,
		"distribution": dist,
		"movements":    movementViews(overview, overview.Movements[id], actor(r)),
	})
}

// Update handles PUT /api/items/{id}.
func (h *ItemsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	var req updateItemRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := h.Validate.Struct(req); err != nil {
		jsonErrors(w, http.StatusUnprocessableEntity, "validation failed", validationMessages(err))
		return
	}

	if err := store.UpdateItem(r.Context(), h.DB, id, req.Name, req.SKU, req.Location); err != nil {
		writeError(w, r, err, "failed to update item")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"status": "updated"})
}

// Delete handles DELETE /api/items/{id}.
func (h *ItemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	if err := store.DeleteItem(r.Context(), h.DB, id); err != nil {
		writeError(w, r, err, "failed to delete item")
		return
	}

	requestLogger(r).WithField("item_id", id).Info("item deleted")
	jsonResponse(w, http.StatusOK, map[string]string{"status": "deleted"})
}
