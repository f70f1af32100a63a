package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"pdf-vectorize-go/internal/extractor"
	"pdf-vectorize-go/internal/pipeline"
	"pdf-vectorize-go/internal/repository"
	"pdf-vectorize-go/internal/service"
	"pdf-vectorize-go/pkg/embedding"
	"pdf-vectorize-go/pkg/lock"
	"pdf-vectorize-go/pkg/storage"
	"pdf-vectorize-go/pkg/vectorstore"
)

type stubParser struct{ err error }

func (p stubParser) Parse(_ context.Context, data []byte) ([]extractor.PageContent, error) {
	if p.err != nil || !bytes.HasPrefix(data, []byte("%PDF")) {
		return nil, extractor.ErrNotPDF
	}
	return []extractor.PageContent{
		{Number: 1, Lines: []extractor.Line{
			{Text: "Quarterly revenue grew in every region.", Cells: []string{"Quarterly revenue grew in every region."}, Y: 700, FontSize: 11},
		}},
		{Number: 2, Lines: []extractor.Line{
			{Text: "Region Revenue", Cells: []string{"Region", "Revenue"}, Y: 700, FontSize: 11},
			{Text: "North 1200", Cells: []string{"North", "1200"}, Y: 685, FontSize: 11},
		}},
	}, nil
}

type testEnv struct {
	router *gin.Engine
	locker *lock.LocalLocker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	blobs := storage.NewMemoryStore("uploads")
	store := vectorstore.NewMemoryStore()
	repo := repository.NewMemoryDocumentRepository()
	locker := lock.NewLocalLocker()
	embedder := pipeline.NewEmbeddingCoordinator(embedding.NewHashClient(128), 8, 1, 1, time.Millisecond)
	proc := pipeline.NewProcessor(pipeline.Dependencies{
		Blobs:      blobs,
		Store:      store,
		Extractor:  extractor.New(stubParser{}, nil, nil, 1),
		Classifier: pipeline.NewHeuristicClassifier(nil),
		Chunker:    pipeline.NewChunkBuilder(1500, 8000),
		Embedder:   embedder,
		Locker:     locker,
		Registry:   repo,
	})

	files := NewFileHandler(service.NewFileService(blobs, repo), 1<<20)
	vectorize := NewVectorizeHandler(service.NewVectorizeService(proc, repo, nil))
	search := NewSearchHandler(service.NewSearchService(embedder, store))

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", Health)
	api := r.Group("/api/v1")
	api.POST("/files", files.Upload)
	api.GET("/files/*key", files.Get)
	api.DELETE("/files/*key", files.Delete)
	api.POST("/vectorize", vectorize.Vectorize)
	api.POST("/vectorize/async", vectorize.VectorizeAsync)
	api.DELETE("/documents/:fileHash", vectorize.DeleteDocument)
	api.POST("/search", search.Search)
	return &testEnv{router: r, locker: locker}
}

type envelope struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"error_code"`
	Data      json.RawMessage `json:"data"`
}

func (e *testEnv) do(t *testing.T, req *http.Request) (int, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	var body envelope
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return w.Code, body
}

func (e *testEnv) postJSON(t *testing.T, path string, v interface{}) (int, envelope) {
	t.Helper()
	b, _ := json.Marshal(v)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return e.do(t, req)
}

func (e *testEnv) upload(t *testing.T, content string) string {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "report.pdf")
	_, _ = fw.Write([]byte(content))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	status, body := e.do(t, req)
	if status != http.StatusCreated {
		t.Fatalf("upload status %d: %+v", status, body)
	}
	var data struct {
		Key string `json:"key"`
	}
	_ = json.Unmarshal(body.Data, &data)
	if data.Key == "" {
		t.Fatal("upload returned no key")
	}
	return data.Key
}

type vectorizeData struct {
	DocumentIDs []string `json:"document_ids"`
	FileHash    string   `json:"file_hash"`
	Skipped     bool     `json:"skipped"`
}

func TestAPI_UploadVectorizeSearch(t *testing.T) {
	env := newTestEnv(t)
	key := env.upload(t, "%PDF-1.4 quarterly")

	status, body := env.postJSON(t, "/api/v1/vectorize", map[string]interface{}{"key": key})
	if status != http.StatusOK {
		t.Fatalf("vectorize status %d: %+v", status, body)
	}
	var first vectorizeData
	_ = json.Unmarshal(body.Data, &first)
	if len(first.DocumentIDs) != 2 || first.FileHash == "" || first.Skipped {
		t.Fatalf("first = %+v", first)
	}

	_, body = env.postJSON(t, "/api/v1/vectorize", map[string]interface{}{"key": key})
	var second vectorizeData
	_ = json.Unmarshal(body.Data, &second)
	if !second.Skipped || strings.Join(second.DocumentIDs, ",") != strings.Join(first.DocumentIDs, ",") {
		t.Fatalf("second = %+v", second)
	}

	status, body = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/files/"+key, nil))
	if status != http.StatusOK || !strings.Contains(string(body.Data), `"status":"completed"`) {
		t.Fatalf("file status %d: %s", status, body.Data)
	}

	status, body = env.postJSON(t, "/api/v1/search", map[string]interface{}{
		"query": "North 1200", "limit": 1, "file_hash": first.FileHash,
	})
	if status != http.StatusOK {
		t.Fatalf("search status %d: %+v", status, body)
	}
	var hits []struct {
		ContentType string `json:"content_type"`
		Page        int    `json:"page"`
		FileHash    string `json:"file_hash"`
	}
	_ = json.Unmarshal(body.Data, &hits)
	if len(hits) != 1 || hits[0].ContentType != "table" || hits[0].Page != 2 || hits[0].FileHash != first.FileHash {
		t.Fatalf("hits = %+v", hits)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/documents/"+first.FileHash, nil)
	if status, body = env.do(t, req); status != http.StatusOK || !strings.Contains(string(body.Data), `"deleted":2`) {
		t.Fatalf("delete status %d: %s", status, body.Data)
	}
}

func TestAPI_ErrorMapping(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name   string
		body   interface{}
		status int
		code   string
	}{
		{"missing key field", map[string]interface{}{}, http.StatusBadRequest, "invalid_request"},
		{"unknown key", map[string]interface{}{"key": "uploads/nope.pdf"}, http.StatusNotFound, "not_found"},
		{"not a pdf", map[string]interface{}{"key": env.upload(t, "plain text")}, http.StatusUnprocessableEntity, "extraction_failed"},
	}
	for _, tc := range cases {
		status, body := env.postJSON(t, "/api/v1/vectorize", tc.body)
		if status != tc.status || body.ErrorCode != tc.code || body.Code != tc.status {
			t.Fatalf("%s: status %d body %+v", tc.name, status, body)
		}
	}

	status, body := env.postJSON(t, "/api/v1/vectorize/async", map[string]interface{}{"key": "uploads/a.pdf"})
	if status != http.StatusServiceUnavailable {
		t.Fatalf("async without kafka: %d %+v", status, body)
	}

	status, _ = env.postJSON(t, "/api/v1/search", map[string]interface{}{"query": " "})
	if status != http.StatusBadRequest {
		t.Fatalf("empty query: %d", status)
	}

	status, _ = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/files/uploads/missing.pdf", nil))
	if status != http.StatusNotFound {
		t.Fatalf("missing file record: %d", status)
	}
}

func TestAPI_ConcurrentRequestConflict(t *testing.T) {
	env := newTestEnv(t)
	content := "%PDF-1.4 locked"
	key := env.upload(t, content)

	release, err := env.locker.TryLock(context.Background(), pipeline.Fingerprint([]byte(content)), time.Minute)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer func() { _ = release(context.Background()) }()

	status, body := env.postJSON(t, "/api/v1/vectorize", map[string]interface{}{"key": key})
	if status != http.StatusConflict || body.ErrorCode != "processing_in_progress" {
		t.Fatalf("status %d body %+v", status, body)
	}
}

func TestAPI_UploadTooLarge(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "huge.pdf")
	_, _ = fw.Write(append([]byte("%PDF-1.4 "), bytes.Repeat([]byte("x"), 3<<20)...))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	status, body := env.do(t, req)
	if status != http.StatusRequestEntityTooLarge || body.ErrorCode != "file_too_large" {
		t.Fatalf("status %d body %+v", status, body)
	}

	// 超限请求之后正常大小的上传不受影响
	env.upload(t, "%PDF-1.4 small")
}

func TestAPI_DeleteReleasesLock(t *testing.T) {
	env := newTestEnv(t)
	fingerprint := pipeline.Fingerprint([]byte("%PDF-1.4 gone"))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/documents/"+fingerprint, nil)
		if status, body := env.do(t, req); status != http.StatusOK {
			t.Fatalf("delete %d: status %d body %+v", i, status, body)
		}
	}
	release, err := env.locker.TryLock(context.Background(), fingerprint, time.Minute)
	if err != nil {
		t.Fatalf("lock after delete: %v", err)
	}
	_ = release(context.Background())
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{&pipeline.EmbeddingError{Err: errors.New("x")}, http.StatusBadGateway},
		{&pipeline.StoreError{Op: "upsert", Err: errors.New("x")}, http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got, _ := statusOf(tc.err); got != tc.status {
			t.Fatalf("statusOf(%v) = %d, want %d", tc.err, got, tc.status)
		}
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "ok") {
		t.Fatalf("health = %d %s", w.Code, w.Body.String())
	}
}
