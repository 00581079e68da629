package api

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/erazemk/inventar/internal/blob"
	"github.com/erazemk/inventar/internal/transfer"
)

// Options wires the router's dependencies.
type Options struct {
	DB        *sql.DB
	Transfers *transfer.Service
	JWTSecret string
	Log       logrus.FieldLogger

	// Files serves GET /files/* when blobs live in SQLite.
	Files *blob.SQLStore
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(opts Options) http.Handler {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	validate := newValidator()

	sectorsHandler := &SectorsHandler{DB: opts.DB}
	itemsHandler := &ItemsHandler{DB: opts.DB, Validate: validate}
	movementsHandler := &MovementsHandler{DB: opts.DB, Transfers: opts.Transfers, Validate: validate}
	publicHandler := &PublicHandler{DB: opts.DB, Transfers: opts.Transfers}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(LoggingMiddleware(opts.Log))
	r.Use(middleware.Recoverer)

	// Public: signing page backend and archived files.
	r.Get("/public/sign", publicHandler.State)
	r.Post("/public/sign", publicHandler.Submit)
	if opts.Files != nil {
		r.Get("/files/*", (&FilesHandler{Files: opts.Files}).Get)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(AuthMiddleware(opts.JWTSecret))

		// Sectors: read (all), write (manage).
		r.Get("/sectors", sectorsHandler.List)
		r.With(RequireManage).Post("/sectors", sectorsHandler.Create)
		r.With(RequireManage).Put("/sectors/{id}", sectorsHandler.Update)
		r.With(RequireManage).Delete("/sectors/{id}", sectorsHandler.Delete)
		r.Get("/sectors/{id}/stock", sectorsHandler.Stock)

		// Items: read (all), write (manage).
		r.Get("/items", itemsHandler.List)
		r.With(RequireManage).Post("/items", itemsHandler.Create)
		r.Get("/items/{id}", itemsHandler.Get)
		r.With(RequireManage).Put("/items/{id}", itemsHandler.Update)
		r.With(RequireManage).Delete("/items/{id}", itemsHandler.Delete)

		// Movements.
		r.Get("/movements", movementsHandler.List)
		r.Get("/movements/export.xlsx", movementsHandler.Export)
		r.Get("/movements/{id}", movementsHandler.Get)
		r.Get("/movements/{id}/document", movementsHandler.Document)
		r.Group(func(r chi.Router) {
			r.Use(RequireManage)
			r.Post("/movements", movementsHandler.Create)
			r.Post("/movements/bulk", movementsHandler.Bulk)
			r.Post("/movements/{id}/files", movementsHandler.UploadFile)
			r.Post("/movements/{id}/token", movementsHandler.Token)
			r.Post("/movements/{id}/sign", movementsHandler.MarkSigned)
			r.Post("/movements/{id}/document", movementsHandler.Regenerate)
		})
	})

	return r
}
