package api

import (
	"errors"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"

	"github.com/erazemk/inventar/internal/blob"
)

// FilesHandler serves blobs kept in the application database.
type FilesHandler struct {
	Files *blob.SQLStore
}

// Get handles GET /files/{key...}.
func (h *FilesHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if key == "" || path.Clean("/"+key) != "/"+key {
		jsonError(w, http.StatusBadRequest, "invalid file key")
		return
	}

	data, mimeType, err := h.Files.Open(r.Context(), key)
	if errors.Is(err, blob.ErrNotFound) {
		jsonError(w, http.StatusNotFound, "file not found")
		return
	}
	if err != nil {
		writeError(w, r, err, "failed to read file")
		return
	}

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
