package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newTestRouter(t *testing.T, svc DocumentService, store Pinger) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewRouter(NewHTTPHandler(svc, store, discardLogger()))
}

func doRequest(t *testing.T, router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode json %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHTTPQueueDocument(t *testing.T) {
	router := newTestRouter(t, &fakeService{}, &fakePinger{})

	tests := []struct {
		name string
		id   string
		want int
	}{
		{"queued", queuedID.String(), http.StatusAccepted},
		{"queue full", fullID.String(), http.StatusTooManyRequests},
		{"terminal", terminalID.String(), http.StatusConflict},
		{"unknown", "11111111-2222-3333-4444-555555555555", http.StatusNotFound},
		{"bad id", "not-a-uuid", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, router, http.MethodPost, "/documents/"+tt.id+"/queue")
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d, body: %s", rec.Code, tt.want, rec.Body.String())
			}
			if rec.Header().Get("X-Request-ID") == "" {
				t.Fatalf("missing X-Request-ID header")
			}
		})
	}
}

func TestHTTPGetDocument(t *testing.T) {
	router := newTestRouter(t, &fakeService{}, &fakePinger{})
	rec := doRequest(t, router, http.MethodGet, "/documents/"+queuedID.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["status"] != "PROCESSED" || body["id"] != queuedID.String() {
		t.Fatalf("body = %v", body)
	}
}

func TestHTTPDeleteDocument(t *testing.T) {
	svc := &fakeService{}
	router := newTestRouter(t, svc, &fakePinger{})

	rec := doRequest(t, router, http.MethodDelete, "/documents/"+queuedID.String())
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}
	if len(svc.deleted) != 1 || svc.deleted[0] != queuedID {
		t.Fatalf("deleted = %v", svc.deleted)
	}

	rec = doRequest(t, router, http.MethodDelete, "/documents/"+fullID.String())
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown document status = %d, want 404", rec.Code)
	}
}

func TestHTTPCleanupStuckDocuments(t *testing.T) {
	svc := &fakeService{}
	router := newTestRouter(t, svc, &fakePinger{})

	rec := doRequest(t, router, http.MethodGet, "/admin/cleanup-stuck-documents")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}
	if svc.cleanupTimeout != 30*time.Minute {
		t.Fatalf("default timeout = %s, want 30m", svc.cleanupTimeout)
	}
	if body := decodeBody(t, rec); body["reclaimed"] != float64(2) {
		t.Fatalf("body = %v", body)
	}

	rec = doRequest(t, router, http.MethodPost, "/admin/cleanup-stuck-documents?timeoutMinutes=5")
	if rec.Code != http.StatusOK || svc.cleanupTimeout != 5*time.Minute {
		t.Fatalf("status = %d, timeout = %s", rec.Code, svc.cleanupTimeout)
	}

	for _, bad := range []string{"0", "-3", "soon"} {
		rec = doRequest(t, router, http.MethodGet, "/admin/cleanup-stuck-documents?timeoutMinutes="+bad)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("timeoutMinutes=%s status = %d, want 400", bad, rec.Code)
		}
	}
}

func TestHTTPHealth(t *testing.T) {
	pinger := &fakePinger{}
	router := newTestRouter(t, &fakeService{}, pinger)

	for _, path := range []string{"/health", "/health/ready", "/health/live"} {
		if rec := doRequest(t, router, http.MethodGet, path); rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rec.Code)
		}
	}

	pinger.set(errDown)
	if rec := doRequest(t, router, http.MethodGet, "/health/ready"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready with store down = %d, want 503", rec.Code)
	}
	if rec := doRequest(t, router, http.MethodGet, "/health/live"); rec.Code != http.StatusOK {
		t.Fatalf("live with store down = %d, want 200", rec.Code)
	}
}

func TestHTTPRecoverStranded(t *testing.T) {
	router := newTestRouter(t, &fakeService{}, &fakePinger{})
	rec := doRequest(t, router, http.MethodPost, "/admin/recover-stranded")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["recovered"] != float64(4) {
		t.Fatalf("body = %v", body)
	}
}
