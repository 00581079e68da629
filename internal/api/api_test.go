package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/erazemk/inventar/internal/auth"
	"github.com/erazemk/inventar/internal/blob"
	"github.com/erazemk/inventar/internal/db"
	"github.com/erazemk/inventar/internal/imaging"
	"github.com/erazemk/inventar/internal/model"
	"github.com/erazemk/inventar/internal/store"
	"github.com/erazemk/inventar/internal/transfer"
)

const testJWTSecret = "test-secret"

type pdfRenderer struct{}

func (pdfRenderer) Render(ctx context.Context, html string) ([]byte, error) {
	return []byte("%PDF-1.7 test"), nil
}

type testEnv struct {
	server *httptest.Server
	token  string
	a, b   *model.Sector
	item   *model.Item
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	database := db.NewTestDB(t)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	files := &blob.SQLStore{DB: database}
	svc := transfer.New(database, files, pdfRenderer{}, logger)

	router := NewRouter(Options{
		DB:        database,
		Transfers: svc,
		JWTSecret: testJWTSecret,
		Log:       logger,
		Files:     files,
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	files.BaseURL = server.URL + "/files"
	svc.PublicBaseURL = server.URL

	ctx := context.Background()
	a, err := store.CreateSector(ctx, database, "Workshop")
	if err != nil {
		t.Fatal(err)
	}
	b, err := store.CreateSector(ctx, database, "Garage")
	if err != nil {
		t.Fatal(err)
	}
	item, err := store.CreateItem(ctx, database, model.ItemInput{Name: "Drill", SKU: "DR-1", SectorID: &a.ID, Quantity: 10})
	if err != nil {
		t.Fatal(err)
	}

	token, err := auth.GenerateToken(testJWTSecret, model.Actor{UserID: 1, Name: "Maja", CanManage: true, CrossSector: true}, 0)
	if err != nil {
		t.Fatal(err)
	}

	return &testEnv{server: server, token: token, a: a, b: b, item: item}
}

func authRequest(method, url, token string, body any) (*http.Request, error) {
	var bodyReader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func do(t *testing.T, method, url, token string, body any, wantStatus int, out any) {
	t.Helper()
	req, err := authRequest(method, url, token, body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: expected %d, got %d: %s", method, url, wantStatus, resp.StatusCode, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("decoding %s: %v", data, err)
		}
	}
}

func signatureDataURI() string {
	var buf bytes.Buffer
	png.Encode(&buf, image.NewGray(image.Rect(0, 0, 40, 20)))
	return imaging.DataURI("image/png", buf.Bytes())
}

func (e *testEnv) recordTransfer(t *testing.T) transfer.RecordResult {
	t.Helper()
	var res transfer.RecordResult
	do(t, "POST", e.server.URL+"/api/movements", e.token, map[string]any{
		"item_id":          e.item.ID,
		"direction":        "out",
		"amount":           3,
		"target_sector_id": e.b.ID,
		"reason":           "loan",
	}, http.StatusCreated, &res)
	return res
}

func (e *testEnv) signingToken(t *testing.T, movementID int64) string {
	t.Helper()
	var link transfer.SigningLink
	do(t, "POST", e.server.URL+"/api/movements/"+strconv.FormatInt(movementID, 10)+"/token", e.token, nil, http.StatusOK, &link)
	if !strings.HasPrefix(link.URL, e.server.URL+"/public/sign?token=") {
		t.Errorf("unexpected signing URL %q", link.URL)
	}
	return link.Token
}

func TestUnauthenticatedAccess(t *testing.T) {
	e := setupTestServer(t)

	resp, err := http.Get(e.server.URL + "/api/items")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for unauthenticated request, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	do(t, "GET", e.server.URL+"/api/items", "garbage", nil, http.StatusUnauthorized, nil)
}

func TestManagePermission(t *testing.T) {
	e := setupTestServer(t)

	viewer, err := auth.GenerateToken(testJWTSecret, model.Actor{UserID: 2, Name: "Vid"}, 0)
	if err != nil {
		t.Fatal(err)
	}

	do(t, "GET", e.server.URL+"/api/items", viewer, nil, http.StatusOK, nil)
	do(t, "POST", e.server.URL+"/api/items", viewer, map[string]any{"name": "Saw"}, http.StatusForbidden, nil)
	do(t, "POST", e.server.URL+"/api/movements", viewer, map[string]any{
		"item_id": e.item.ID, "direction": "in", "amount": 1,
	}, http.StatusForbidden, nil)
}

func TestItemsAPIFlow(t *testing.T) {
	e := setupTestServer(t)

	var item model.Item
	do(t, "POST", e.server.URL+"/api/items", e.token, map[string]any{
		"name":      "Ladder",
		"sector_id": e.a.ID,
		"quantity":  4,
	}, http.StatusCreated, &item)

	do(t, "POST", e.server.URL+"/api/items", e.token, map[string]any{"quantity": -1}, http.StatusUnprocessableEntity, nil)

	var detail struct {
		Item         model.Item           `json:"item"`
		Distribution []model.StockBalance `json:"distribution"`
		Movements    []json.RawMessage    `json:"movements"`
	}
	do(t, "GET", e.server.URL+"/api/items/"+strconv.FormatInt(item.ID, 10), e.token, nil, http.StatusOK, &detail)
	if detail.Item.Name != "Ladder" {
		t.Errorf("unexpected item %+v", detail.Item)
	}
	if len(detail.Distribution) != 1 || detail.Distribution[0].Quantity != 4 {
		t.Errorf("unexpected distribution %+v", detail.Distribution)
	}

	do(t, "GET", e.server.URL+"/api/items/9999", e.token, nil, http.StatusNotFound, nil)
}

func TestMovementSigningFlow(t *testing.T) {
	e := setupTestServer(t)

	res := e.recordTransfer(t)
	if res.Document == nil || res.DocumentError != "" {
		t.Fatalf("expected transfer document, got %+v", res)
	}
	id := res.Movements[0].ID
	idStr := strconv.FormatInt(id, 10)

	req, _ := authRequest("GET", e.server.URL+"/api/movements/"+idStr+"/document", e.token, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "application/pdf" {
		t.Errorf("expected pdf document, got %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	resp.Body.Close()

	tok := e.signingToken(t, id)

	var state struct {
		Movement struct {
			ItemName       string       `json:"item_name"`
			From           string       `json:"from"`
			To             string       `json:"to"`
			AvailableRoles []model.Role `json:"available_roles"`
		} `json:"movement"`
		Sectors []model.Sector `json:"sectors"`
	}
	do(t, "GET", e.server.URL+"/public/sign?token="+tok, "", nil, http.StatusOK, &state)
	if state.Movement.From != "Workshop" || state.Movement.To != "Garage" || len(state.Movement.AvailableRoles) != 2 {
		t.Errorf("unexpected signing state %+v", state.Movement)
	}
	if len(state.Sectors) != 2 {
		t.Errorf("expected 2 sectors, got %d", len(state.Sectors))
	}

	var result transfer.SubmitResult
	do(t, "POST", e.server.URL+"/public/sign?token="+tok, "", map[string]any{
		"source": map[string]string{"sector": strconv.FormatInt(e.a.ID, 10), "signer": "Ana", "image": signatureDataURI()},
		"target": map[string]string{"sector": "custom", "custom_sector": "Contractor", "signer": "Bojan", "image": signatureDataURI()},
	}, http.StatusCreated, &result)
	if !result.Finalized || result.Status != model.TransferSigned || result.Document == nil {
		t.Fatalf("expected finalized transfer, got %+v", result)
	}

	resp, err = http.Get(result.Document.URL)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !bytes.HasPrefix(body, []byte("%PDF")) {
		t.Errorf("signed document not served: %d %q", resp.StatusCode, body)
	}

	var detail struct {
		TransferStatus model.TransferStatus `json:"transfer_status"`
		Source         *signatureView       `json:"source_signature"`
		Target         *signatureView       `json:"target_signature"`
	}
	do(t, "GET", e.server.URL+"/api/movements/"+idStr, e.token, nil, http.StatusOK, &detail)
	if detail.TransferStatus != model.TransferSigned || detail.Source == nil || detail.Target == nil {
		t.Fatalf("unexpected movement detail %+v", detail)
	}
	if detail.Target.Sector != "Contractor" || detail.Source.Signer != "Ana" {
		t.Errorf("unexpected signatures %+v %+v", detail.Source, detail.Target)
	}

	do(t, "POST", e.server.URL+"/public/sign?token="+tok, "", map[string]any{
		"source": map[string]string{"sector": "null", "signer": "Late", "image": signatureDataURI()},
	}, http.StatusConflict, nil)
}

func TestPublicSignMultipart(t *testing.T) {
	e := setupTestServer(t)
	res := e.recordTransfer(t)
	tok := e.signingToken(t, res.Movements[0].ID)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("source_sector", strconv.FormatInt(e.a.ID, 10))
	mw.WriteField("source_signer", "Ana")
	mw.WriteField("source_signature", signatureDataURI())
	fw, _ := mw.CreateFormFile("document", "note.pdf")
	fw.Write([]byte("%PDF-1.4\n%note\n"))
	mw.Close()

	resp, err := http.Post(e.server.URL+"/public/sign?token="+tok, mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, data)
	}

	var result transfer.SubmitResult
	json.NewDecoder(resp.Body).Decode(&result)
	if result.Message != transfer.MessageAwaiting || !result.FileSaved {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestPublicSignErrors(t *testing.T) {
	e := setupTestServer(t)
	res := e.recordTransfer(t)
	tok := e.signingToken(t, res.Movements[0].ID)

	var body map[string]string
	do(t, "GET", e.server.URL+"/public/sign?token=unknown", "", nil, http.StatusNotFound, &body)
	if body["error"] != "signing link not found" {
		t.Errorf("unexpected error body %v", body)
	}

	do(t, "POST", e.server.URL+"/public/sign?token="+tok, "", map[string]any{}, http.StatusBadRequest, nil)
	do(t, "POST", e.server.URL+"/public/sign?token="+tok, "", map[string]any{
		"source": map[string]string{"sector": "custom", "signer": "", "image": "data:image/png;base64,AAAA"},
	}, http.StatusUnprocessableEntity, nil)
}

func TestBulkMovements(t *testing.T) {
	e := setupTestServer(t)

	var verr struct {
		Error   string   `json:"error"`
		Details []string `json:"details"`
	}
	do(t, "POST", e.server.URL+"/api/movements/bulk", e.token, map[string]any{
		"rows": []map[string]any{
			{"item_id": e.item.ID, "direction": "out", "amount": 1},
			{"item_id": e.item.ID, "direction": "sideways", "amount": 1},
		},
	}, http.StatusUnprocessableEntity, &verr)
	if len(verr.Details) != 1 || !strings.HasPrefix(verr.Details[0], "row 2: direction") {
		t.Errorf("unexpected details %v", verr.Details)
	}

	var res transfer.RecordResult
	do(t, "POST", e.server.URL+"/api/movements/bulk", e.token, map[string]any{
		"rows": []map[string]any{
			{"item_id": e.item.ID, "direction": "out", "amount": 2, "target_sector_id": e.b.ID},
			{"item_id": e.item.ID, "direction": "in", "amount": 1},
		},
	}, http.StatusCreated, &res)
	if len(res.Movements) != 2 || res.GroupKey == "" {
		t.Fatalf("unexpected result %+v", res)
	}

	var movements []model.Movement
	do(t, "GET", e.server.URL+"/api/movements?item_id="+strconv.FormatInt(e.item.ID, 10), e.token, nil, http.StatusOK, &movements)
	if len(movements) != 2 {
		t.Errorf("expected 2 movements, got %d", len(movements))
	}
}

func TestStockConflict(t *testing.T) {
	e := setupTestServer(t)

	var body map[string]string
	do(t, "POST", e.server.URL+"/api/movements", e.token, map[string]any{
		"item_id": e.item.ID, "direction": "out", "amount": 50, "target_sector_id": e.b.ID,
	}, http.StatusConflict, &body)
	if !strings.Contains(body["error"], "not enough stock") {
		t.Errorf("unexpected error %v", body)
	}

	do(t, "POST", e.server.URL+"/api/movements", e.token, map[string]any{
		"item_id": 9999, "direction": "in", "amount": 1,
	}, http.StatusNotFound, nil)
}

func TestExportMovements(t *testing.T) {
	e := setupTestServer(t)
	e.recordTransfer(t)

	req, _ := authRequest("GET", e.server.URL+"/api/movements/export.xlsx", e.token, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !bytes.HasPrefix(data, []byte("PK")) {
		t.Error("expected a zip-based workbook")
	}
}

func TestSectorsAPI(t *testing.T) {
	e := setupTestServer(t)

	var sector model.Sector
	do(t, "POST", e.server.URL+"/api/sectors", e.token, map[string]string{"name": "Office"}, http.StatusCreated, &sector)
	do(t, "POST", e.server.URL+"/api/sectors", e.token, map[string]string{"name": " "}, http.StatusBadRequest, nil)

	var sectors []model.Sector
	do(t, "GET", e.server.URL+"/api/sectors", e.token, nil, http.StatusOK, &sectors)
	if len(sectors) != 3 {
		t.Errorf("expected 3 sectors, got %d", len(sectors))
	}

	var stock []model.StockBalance
	do(t, "GET", e.server.URL+"/api/sectors/"+strconv.FormatInt(e.a.ID, 10)+"/stock", e.token, nil, http.StatusOK, &stock)
	if len(stock) != 1 || stock[0].Quantity != 10 {
		t.Errorf("unexpected stock %+v", stock)
	}

	do(t, "DELETE", e.server.URL+"/api/sectors/"+strconv.FormatInt(e.a.ID, 10), e.token, nil, http.StatusConflict, nil)
}

func TestSectorScopedManagers(t *testing.T) {
	e := setupTestServer(t)

	res := e.recordTransfer(t)
	id := strconv.FormatInt(res.Movements[0].ID, 10)
	e.signingToken(t, res.Movements[0].ID)

	garage, err := auth.GenerateToken(testJWTSecret, model.Actor{UserID: 3, Name: "Gal", SectorID: &e.b.ID, CanManage: true}, 0)
	if err != nil {
		t.Fatal(err)
	}
	viewer, err := auth.GenerateToken(testJWTSecret, model.Actor{UserID: 2, Name: "Vid"}, 0)
	if err != nil {
		t.Fatal(err)
	}

	do(t, "POST", e.server.URL+"/api/movements/"+id+"/sign", garage, nil, http.StatusForbidden, nil)
	do(t, "POST", e.server.URL+"/api/movements/"+id+"/token", garage, nil, http.StatusForbidden, nil)
	do(t, "POST", e.server.URL+"/api/movements/"+id+"/document", garage, nil, http.StatusForbidden, nil)

	var detail struct {
		TransferStatus model.TransferStatus `json:"transfer_status"`
		SigningToken   *model.PublicToken   `json:"signing_token"`
	}
	for name, token := range map[string]string{"garage manager": garage, "viewer": viewer} {
		do(t, "GET", e.server.URL+"/api/movements/"+id, token, nil, http.StatusOK, &detail)
		if detail.SigningToken != nil {
			t.Errorf("signing token exposed to %s", name)
		}
	}
	if detail.TransferStatus != model.TransferPending {
		t.Errorf("expected pending transfer, got %s", detail.TransferStatus)
	}

	detail.SigningToken = nil
	do(t, "GET", e.server.URL+"/api/movements/"+id, e.token, nil, http.StatusOK, &detail)
	if detail.SigningToken == nil {
		t.Error("expected signing token for the managing actor")
	}
}
