package transfer

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/erazemk/inventar/internal/blob"
	"github.com/erazemk/inventar/internal/db"
	"github.com/erazemk/inventar/internal/imaging"
	"github.com/erazemk/inventar/internal/model"
	"github.com/erazemk/inventar/internal/store"
)

type fakeRenderer struct {
	calls  atomic.Int32
	signed atomic.Int32
	fail   atomic.Bool
	last   atomic.Value
}

func (r *fakeRenderer) Render(ctx context.Context, html string) ([]byte, error) {
	r.calls.Add(1)
	r.last.Store(html)
	if r.fail.Load() {
		return nil, errors.New("renderer unavailable")
	}
	if strings.Contains(html, "Signed by both parties") {
		r.signed.Add(1)
	}
	return []byte("%PDF-1.7 fake"), nil
}

func (r *fakeRenderer) lastHTML() string {
	s, _ := r.last.Load().(string)
	return s
}

type memBlobs struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memBlobs) Put(ctx context.Context, data []byte, mimeType, name, prefix string) (blob.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string][]byte{}
	}
	key := blob.NewKey(prefix, name, mimeType)
	m.data[key] = append([]byte(nil), data...)
	return blob.Object{Key: key, URL: "https://files.test/" + key}, nil
}

func (m *memBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[key]
	if !ok {
		return nil, blob.ErrNotFound
	}
	return data, nil
}

type env struct {
	svc      *Service
	db       *sql.DB
	renderer *fakeRenderer
	blobs    *memBlobs
	a, b     *model.Sector
	drill    *model.Item
}

var manager = model.Actor{UserID: 1, Name: "Maja Manager", CanManage: true, CrossSector: true}

func newEnv(t *testing.T) *env {
	t.Helper()
	database := db.NewTestDB(t)
	ctx := context.Background()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	e := &env{db: database, renderer: &fakeRenderer{}, blobs: &memBlobs{}}
	e.svc = New(database, e.blobs, e.renderer, logger)
	e.svc.PublicBaseURL = "https://inventar.test/"

	var err error
	if e.a, err = store.CreateSector(ctx, database, "Workshop"); err != nil {
		t.Fatal(err)
	}
	if e.b, err = store.CreateSector(ctx, database, "Garage"); err != nil {
		t.Fatal(err)
	}
	e.drill, err = store.CreateItem(ctx, database, model.ItemInput{Name: "Drill", SKU: "DR-1", SectorID: &e.a.ID, Quantity: 10})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func (e *env) recordTransfer(t *testing.T, amount int) *RecordResult {
	t.Helper()
	res, err := e.svc.RecordMovements(context.Background(), manager, []model.MovementInput{
		{ItemID: e.drill.ID, Direction: model.DirectionOut, Amount: amount, TargetSectorID: &e.b.ID, Reason: "loan"},
	})
	if err != nil {
		t.Fatalf("RecordMovements: %v", err)
	}
	return res
}

func (e *env) token(t *testing.T, movementID int64) string {
	t.Helper()
	link, err := e.svc.EnsureToken(context.Background(), manager, movementID)
	if err != nil {
		t.Fatalf("EnsureToken: %v", err)
	}
	return link.Token
}

func signatureURI() string {
	img := image.NewNRGBA(image.Rect(0, 0, 60, 20))
	for x := 0; x < 60; x++ {
		img.Set(x, 10, color.NRGBA{0, 0, 0, 255})
	}
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return imaging.DataURI("image/png", buf.Bytes())
}

func roleSig(sector, signer string) *RoleSignature {
	return &RoleSignature{Sector: sector, Signer: signer, Image: signatureURI()}
}

func movement(t *testing.T, database *sql.DB, id int64) *model.Movement {
	t.Helper()
	m, err := store.GetMovement(context.Background(), database, id)
	if err != nil || m == nil {
		t.Fatalf("GetMovement(%d): %v", id, err)
	}
	return m
}
