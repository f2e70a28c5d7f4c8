package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/skillproof/capture-engine/internal/config"
	"github.com/skillproof/capture-engine/internal/storage"
)

func TestServerRoutes(t *testing.T) {
	cfg := &config.Config{
		HTTPAddr:    ":0",
		AnalyzerURL: "http://analyzer.internal",
	}
	store := storage.NewLocalStore(t.TempDir())
	srv := NewServer(cfg, store, nil, "test", time.Now(), zerolog.Nop())

	t.Run("health", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/health", nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var resp HealthResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Status != "healthy" {
			t.Errorf("status = %q", resp.Status)
		}
		if resp.Checks["storage"] != "local" {
			t.Errorf("storage check = %q", resp.Checks["storage"])
		}
		if resp.Checks["recognizer"] != "not_configured" {
			t.Errorf("recognizer check = %q", resp.Checks["recognizer"])
		}
		if resp.Checks["analyzer"] != "configured" {
			t.Errorf("analyzer check = %q", resp.Checks["analyzer"])
		}
	})

	t.Run("metrics_exposed", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/metrics", nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("unknown_route_404", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/nope", nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}

func TestServerAuthGuardsAssessmentRoutes(t *testing.T) {
	cfg := &config.Config{HTTPAddr: ":0", AuthToken: "secret"}
	store := storage.NewLocalStore(t.TempDir())
	srv := NewServer(cfg, store, nil, "test", time.Now(), zerolog.Nop())

	req := httptest.NewRequest("POST", "/api/assessments/cand-7/submit", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	// Health stays open.
	req = httptest.NewRequest("GET", "/api/v1/health", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("health should not require auth, got %d", rec.Code)
	}
}
