package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/skillproof/capture-engine/internal/storage"
)

func mediaRouter(t *testing.T) (*chi.Mux, *storage.LocalStore) {
	t.Helper()
	store := storage.NewLocalStore(t.TempDir())
	h := NewMediaHandler(store, zerolog.Nop())
	r := chi.NewRouter()
	r.Get("/api/assessments/{ownerId}/media/{date}/{filename}", h.Serve)
	return r, store
}

func TestMediaServe(t *testing.T) {
	r, store := mediaRouter(t)
	data := make([]byte, 10000)
	for i := range data {
		data[i] = byte(i % 251)
	}
	if err := store.Save(context.Background(), "cand-7/2026-08-29/webcamVideo-x.webm", data, "video/webm"); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	t.Run("full_body", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/assessments/cand-7/media/2026-08-29/webcamVideo-x.webm", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if rec.Body.Len() != len(data) {
			t.Fatalf("body size %d, want %d", rec.Body.Len(), len(data))
		}
		if rec.Header().Get("Accept-Ranges") != "bytes" {
			t.Error("expected Accept-Ranges: bytes for video seeking")
		}
	})

	t.Run("range_request", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/assessments/cand-7/media/2026-08-29/webcamVideo-x.webm", nil)
		req.Header.Set("Range", "bytes=100-199")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusPartialContent {
			t.Fatalf("expected 206, got %d", rec.Code)
		}
		if rec.Body.Len() != 100 {
			t.Fatalf("range body size %d, want 100", rec.Body.Len())
		}
		if rec.Body.Bytes()[0] != data[100] {
			t.Error("range content mismatch")
		}
	})

	t.Run("missing_file_404", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/assessments/cand-7/media/2026-08-29/nope.webm", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("traversal_rejected", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/assessments/cand-7/media/2026-08-29/..%2F..%2Fsecret", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}
