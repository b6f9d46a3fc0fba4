package jobs

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newStatusRouter(t *testing.T, records *memRecords) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := newTestService(t, records, newMemBlobs(), &stubQueue{})
	bridge := newTestBridge(t, records, svc, time.Minute)

	router := gin.New()
	router.GET("/v1/jobs/:id", StatusHandler(svc, bridge))
	router.GET("/v1/results/:id", ResultHandler(svc))
	return router, svc
}

func TestStatusHandlerJSON(t *testing.T) {
	records := newMemRecords()
	router, _ := newStatusRouter(t, records)
	putJobFixture(t, records, "job-1", StatusProcessing, "Designing your presentation...")

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/job-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if body["id"] != "job-1" || body["status"] != "processing" {
		t.Fatalf("unexpected body: %v", body)
	}
	if body["message"] != "Designing your presentation..." {
		t.Fatalf("message = %v", body["message"])
	}
}

func TestStatusHandlerNotFound(t *testing.T) {
	router, _ := newStatusRouter(t, newMemRecords())

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "JOB_NOT_FOUND") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestStatusHandlerStreamsTerminalJob(t *testing.T) {
	records := newMemRecords()
	router, _ := newStatusRouter(t, records)
	putJobFixture(t, records, "job-done", StatusCompleted, "Slides generated successfully")

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/job-done", nil)
	req.Header.Set("Accept", "text/event-stream")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Fatalf("content type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event:update") && !strings.Contains(body, "event: update") {
		t.Fatalf("missing update event: %s", body)
	}
	if !strings.Contains(body, "event:close") && !strings.Contains(body, "event: close") {
		t.Fatalf("missing close event: %s", body)
	}
}

func TestStatusHandlerStreamNotFound(t *testing.T) {
	router, _ := newStatusRouter(t, newMemRecords())

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/missing", nil)
	req.Header.Set("Accept", "text/event-stream")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	// エラー応答にストリーム用のContent-Typeが付いてはならない
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content type = %q, want application/json", ct)
	}
	if !strings.Contains(rec.Body.String(), "JOB_NOT_FOUND") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestResultHandlerHTML(t *testing.T) {
	records := newMemRecords()
	router, _ := newStatusRouter(t, records)

	now := time.Now().UTC()
	records.putDoc(t, CollectionResults, "job-2", &Result{
		ID:        "job-2",
		ResultURL: "/v1/results/job-2",
		PDFData:   []byte("%PDF-1.7"),
		HTMLData:  []byte("<html><body>deck</body></html>"),
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/results/job-2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "deck") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestResultHandlerDownload(t *testing.T) {
	records := newMemRecords()
	router, _ := newStatusRouter(t, records)

	now := time.Now().UTC()
	records.putDoc(t, CollectionResults, "job-3", &Result{
		ID:        "job-3",
		ResultURL: "/v1/results/job-3",
		PDFData:   []byte("%PDF-1.7 bytes"),
		HTMLData:  []byte("<html></html>"),
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/results/job-3?download=true", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("content type = %q", ct)
	}
	disposition := rec.Header().Get("Content-Disposition")
	if !strings.Contains(disposition, "presentation-job-3.pdf") {
		t.Fatalf("content disposition = %q", disposition)
	}
	if rec.Body.String() != "%PDF-1.7 bytes" {
		t.Fatalf("unexpected PDF body: %s", rec.Body.String())
	}
}

func TestResultHandlerNotFound(t *testing.T) {
	router, _ := newStatusRouter(t, newMemRecords())

	req := httptest.NewRequest(http.MethodGet, "/v1/results/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "RESULT_NOT_FOUND") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}
