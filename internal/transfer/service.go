// Package transfer coordinates movements with their signing workflow:
// recording batches, issuing public signing links, reconciling signatures
// and producing the transfer documents.
package transfer

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/erazemk/inventar/internal/blob"
	"github.com/erazemk/inventar/internal/lock"
	"github.com/erazemk/inventar/internal/model"
	"github.com/erazemk/inventar/internal/qr"
	"github.com/erazemk/inventar/internal/render"
	"github.com/erazemk/inventar/internal/store"
)

// DefaultTokenTTL is the lifetime of a public signing link.
const DefaultTokenTTL = 14 * 24 * time.Hour

// Service runs the transfer workflow. Ledger and signature writes are
// committed before any document is rendered, so renderer or storage failures
// never roll them back.
type Service struct {
	DB       *sql.DB
	Blobs    blob.Store
	Renderer render.Renderer
	QR       qr.Encoder // optional
	Locker   lock.Locker
	Log      logrus.FieldLogger

	PublicBaseURL string
	TokenTTL      time.Duration
	RenderTimeout time.Duration
	StaleClaimAge time.Duration
	Now           func() time.Time
}

// New returns a Service with an in-process locker, the local QR encoder and
// default timings. Callers may override any field before use.
func New(db *sql.DB, blobs blob.Store, renderer render.Renderer, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		DB:            db,
		Blobs:         blobs,
		Renderer:      renderer,
		QR:            qr.PNG{},
		Locker:        lock.NewLocal(),
		Log:           log,
		PublicBaseURL: "http://localhost:8080",
		TokenTTL:      DefaultTokenTTL,
		RenderTimeout: 30 * time.Second,
		Now:           time.Now,
	}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// staleClaimAge is how old a finalization claim must be before a retry may
// take it over. Rendering is bounded by RenderTimeout; the rest covers storage.
func (s *Service) staleClaimAge() time.Duration {
	if s.StaleClaimAge > 0 {
		return s.StaleClaimAge
	}
	if s.RenderTimeout > 0 {
		return 2*s.RenderTimeout + time.Minute
	}
	return 5 * time.Minute
}

func (s *Service) tokenTTL() time.Duration {
	if s.TokenTTL <= 0 {
		return DefaultTokenTTL
	}
	return s.TokenTTL
}

// Document is an archived transfer form.
type Document struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

func (s *Service) render(ctx context.Context, html string) ([]byte, error) {
	if s.RenderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.RenderTimeout)
		defer cancel()
	}
	return s.Renderer.Render(ctx, html)
}

// authorize loads a movement on behalf of actor. Managers may only touch
// movements whose stock left a sector they may act on.
func (s *Service) authorize(ctx context.Context, actor model.Actor, movementID int64, op string) (*model.Movement, error) {
	if !actor.CanManage {
		return nil, fmt.Errorf("%s: %w", op, model.ErrForbidden)
	}
	m, err := store.GetMovement(ctx, s.DB, movementID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("movement %d: %w", movementID, model.ErrNotFound)
	}
	if !actor.MayActOn(m.SourceSectorID) {
		return nil, fmt.Errorf("%s for movement %d: %w", op, movementID, model.ErrForbidden)
	}
	return m, nil
}
