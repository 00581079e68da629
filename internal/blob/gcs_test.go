package blob

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// fakeGCS serves the parts of the Cloud Storage JSON and XML APIs the store
// uses: bucket metadata, multipart uploads and media downloads.
type fakeGCS struct {
	bucket string

	mu      sync.Mutex
	objects map[string]fakeObject
}

type fakeObject struct {
	ContentType string
	Data        []byte
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case r.Method == http.MethodGet && path == "/storage/v1/b/"+f.bucket:
		writeJSON(w, map[string]string{"kind": "storage#bucket", "name": f.bucket})
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/storage/v1/b/"):
		http.NotFound(w, r)
	case r.Method == http.MethodPost && path == "/upload/storage/v1/b/"+f.bucket+"/o":
		f.upload(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/storage/v1/b/"+f.bucket+"/o/"):
		f.download(w, strings.TrimPrefix(path, "/storage/v1/b/"+f.bucket+"/o/"))
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/"+f.bucket+"/"):
		f.download(w, strings.TrimPrefix(path, "/"+f.bucket+"/"))
	default:
		http.Error(w, "unsupported "+r.Method+" "+path, http.StatusNotImplemented)
	}
}

func (f *fakeGCS) upload(w http.ResponseWriter, r *http.Request) {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		http.Error(w, "expected multipart upload", http.StatusBadRequest)
		return
	}
	mr := multipart.NewReader(r.Body, params["boundary"])

	var meta struct {
		Name        string `json:"name"`
		ContentType string `json:"contentType"`
	}
	part, err := mr.NextPart()
	if err != nil || json.NewDecoder(part).Decode(&meta) != nil {
		http.Error(w, "bad metadata", http.StatusBadRequest)
		return
	}
	part, err = mr.NextPart()
	if err != nil {
		http.Error(w, "missing media", http.StatusBadRequest)
		return
	}
	data, err := io.ReadAll(part)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if meta.Name == "" {
		meta.Name = r.URL.Query().Get("name")
	}

	f.mu.Lock()
	f.objects[meta.Name] = fakeObject{ContentType: meta.ContentType, Data: data}
	f.mu.Unlock()

	writeJSON(w, map[string]any{
		"kind":        "storage#object",
		"bucket":      f.bucket,
		"name":        meta.Name,
		"contentType": meta.ContentType,
		"size":        strconv.Itoa(len(data)),
		"generation":  "1",
	})
}

func (f *fakeGCS) download(w http.ResponseWriter, name string) {
	f.mu.Lock()
	obj, ok := f.objects[name]
	f.mu.Unlock()
	if !ok {
		http.NotFound(w, nil)
		return
	}
	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("X-Goog-Generation", "1")
	w.WriteHeader(http.StatusOK)
	w.Write(obj.Data)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func newFakeGCS(t *testing.T, bucket string) *fakeGCS {
	t.Helper()
	f := &fakeGCS{bucket: bucket, objects: map[string]fakeObject{}}
	server := httptest.NewServer(f)
	t.Cleanup(server.Close)
	t.Setenv("STORAGE_EMULATOR_HOST", server.URL)
	return f
}

func TestGCSStorePutGet(t *testing.T) {
	fake := newFakeGCS(t, "inventar-test")
	ctx := context.Background()

	s, err := NewGCSStore(ctx, "inventar-test", "", "https://cdn.example.com/files")
	if err != nil {
		t.Fatalf("NewGCSStore: %v", err)
	}
	defer s.Close()

	pdf := []byte("%PDF-1.7 transfer")
	obj, err := s.Put(ctx, pdf, "application/pdf", "transfer-1.pdf", "transfers")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !strings.HasPrefix(obj.Key, "transfers/") || !strings.HasSuffix(obj.Key, ".pdf") {
		t.Errorf("unexpected key %q", obj.Key)
	}
	if obj.URL != "https://cdn.example.com/files/"+obj.Key {
		t.Errorf("unexpected url %q", obj.URL)
	}

	fake.mu.Lock()
	stored, ok := fake.objects[obj.Key]
	fake.mu.Unlock()
	if !ok || stored.ContentType != "application/pdf" {
		t.Fatalf("object not uploaded with its content type: %+v", stored)
	}

	got, err := s.Get(ctx, obj.Key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(pdf) {
		t.Errorf("Get = %q, want %q", got, pdf)
	}

	if _, err := s.Get(ctx, "transfers/missing.pdf"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGCSStoreRequiresBucket(t *testing.T) {
	newFakeGCS(t, "inventar-test")
	ctx := context.Background()

	if _, err := NewGCSStore(ctx, "", "", ""); err == nil {
		t.Error("expected error without a bucket")
	}
	if _, err := NewGCSStore(ctx, "other-bucket", "", ""); err == nil {
		t.Error("expected error for an inaccessible bucket")
	}
}
