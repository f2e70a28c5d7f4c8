package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/skillproof/capture-engine/internal/storage"
)

func uploadRouter(t *testing.T) (*chi.Mux, string) {
	t.Helper()
	dir := t.TempDir()
	store := storage.NewLocalStore(dir)
	h := NewUploadHandler(store, nil, zerolog.Nop())
	r := chi.NewRouter()
	r.Post("/api/assessments/{ownerId}/upload-videos", h.Upload)
	return r, dir
}

func videoForm(t *testing.T, parts map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, data := range parts {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+field+`.webm"`)
		hdr.Set("Content-Type", "video/webm;codecs=vp9")
		pw, err := mw.CreatePart(hdr)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		pw.Write(data)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestUploadVideos(t *testing.T) {
	t.Run("stores_both_sources", func(t *testing.T) {
		r, dir := uploadRouter(t)
		body, ct := videoForm(t, map[string][]byte{
			FieldWebcam: bytes.Repeat([]byte{0xaa}, 2048),
			FieldScreen: bytes.Repeat([]byte{0xbb}, 4096),
		})

		req := httptest.NewRequest("POST", "/api/assessments/cand-7/upload-videos", body)
		req.Header.Set("Content-Type", ct)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var resp map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		for _, field := range []string{FieldWebcam, FieldScreen} {
			ref := resp[field+"Url"]
			if !strings.HasPrefix(ref, "/api/assessments/cand-7/media/") {
				t.Fatalf("%sUrl = %q, want media reference", field, ref)
			}
			// The reference must point at a file on disk.
			rel := strings.TrimPrefix(ref, "/api/assessments/cand-7/media/")
			path := filepath.Join(dir, "cand-7", filepath.FromSlash(rel))
			if _, err := os.Stat(path); err != nil {
				t.Fatalf("referenced file missing: %v", err)
			}
			if !strings.HasSuffix(path, ".webm") {
				t.Fatalf("expected webm extension, got %q", path)
			}
		}
	})

	t.Run("single_source_is_fine", func(t *testing.T) {
		r, _ := uploadRouter(t)
		body, ct := videoForm(t, map[string][]byte{FieldWebcam: []byte("data")})

		req := httptest.NewRequest("POST", "/api/assessments/cand-7/upload-videos", body)
		req.Header.Set("Content-Type", ct)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var resp map[string]string
		json.Unmarshal(rec.Body.Bytes(), &resp)
		if _, ok := resp[FieldScreen+"Url"]; ok {
			t.Fatal("screenVideoUrl should be absent when no screen video was sent")
		}
	})

	t.Run("empty_part_rejected", func(t *testing.T) {
		r, _ := uploadRouter(t)
		body, ct := videoForm(t, map[string][]byte{FieldWebcam: {}})

		req := httptest.NewRequest("POST", "/api/assessments/cand-7/upload-videos", body)
		req.Header.Set("Content-Type", ct)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for empty part, got %d", rec.Code)
		}
	})

	t.Run("no_files_rejected", func(t *testing.T) {
		r, _ := uploadRouter(t)
		body, ct := videoForm(t, nil)

		req := httptest.NewRequest("POST", "/api/assessments/cand-7/upload-videos", body)
		req.Header.Set("Content-Type", ct)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 with no files, got %d", rec.Code)
		}
	})

	t.Run("owner_id_traversal_rejected", func(t *testing.T) {
		r, _ := uploadRouter(t)
		body, ct := videoForm(t, map[string][]byte{FieldWebcam: []byte("data")})

		req := httptest.NewRequest("POST", "/api/assessments/..%2F..%2Fetc/upload-videos", body)
		req.Header.Set("Content-Type", ct)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for traversal owner id, got %d", rec.Code)
		}
	})
}

func TestUploadExt(t *testing.T) {
	cases := []struct {
		ct, filename, want string
	}{
		{"video/webm;codecs=vp9", "clip.bin", ".webm"},
		{"video/mp4", "clip.bin", ".mp4"},
		{"video/x-matroska", "clip.bin", ".mkv"},
		{"", "clip.mp4", ".mp4"},
		{"", "clip", ".webm"},
	}
	for _, c := range cases {
		if got := uploadExt(c.ct, c.filename); got != c.want {
			t.Errorf("uploadExt(%q, %q) = %q, want %q", c.ct, c.filename, got, c.want)
		}
	}
}

func TestValidOwnerID(t *testing.T) {
	good := []string{"cand-7", "a", strings.Repeat("x", 128)}
	bad := []string{"", "a/b", `a\b`, "..", "x..y", strings.Repeat("x", 129)}
	for _, s := range good {
		if !validOwnerID(s) {
			t.Errorf("%q should be valid", s)
		}
	}
	for _, s := range bad {
		if validOwnerID(s) {
			t.Errorf("%q should be invalid", s)
		}
	}
}
