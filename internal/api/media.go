package api

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/skillproof/capture-engine/internal/storage"
)

// MediaHandler serves stored recordings back to review UIs. Local files go
// through http.ServeFile so browsers get Range support for video seeking;
// S3-only files are either redirected to a presigned URL or proxied.
type MediaHandler struct {
	store storage.MediaStore
	log   zerolog.Logger
}

func NewMediaHandler(store storage.MediaStore, log zerolog.Logger) *MediaHandler {
	return &MediaHandler{
		store: store,
		log:   log.With().Str("handler", "media").Logger(),
	}
}

// Serve handles GET /api/assessments/{ownerId}/media/{date}/{filename}.
func (h *MediaHandler) Serve(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "ownerId")
	date := chi.URLParam(r, "date")
	filename := chi.URLParam(r, "filename")

	if !validOwnerID(owner) || !validPathSegment(date) || !validPathSegment(filename) {
		WriteError(w, http.StatusBadRequest, "invalid media path")
		return
	}
	key := owner + "/" + date + "/" + filename

	// Local disk hit: ServeFile handles Range, Content-Type and caching.
	if path := h.store.LocalPath(key); path != "" {
		http.ServeFile(w, r, path)
		return
	}

	if !h.store.Exists(r.Context(), key) {
		WriteError(w, http.StatusNotFound, "media not found")
		return
	}

	// Prefer a presigned redirect so video bytes never flow through us.
	if url, err := h.store.URL(r.Context(), key); err == nil && url != "" {
		http.Redirect(w, r, url, http.StatusTemporaryRedirect)
		return
	}

	rc, err := h.store.Open(r.Context(), key)
	if err != nil {
		h.log.Error().Err(err).Str("key", key).Msg("media open failed")
		WriteError(w, http.StatusInternalServerError, "failed to open media")
		return
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		h.log.Error().Err(err).Str("key", key).Msg("media read failed")
		WriteError(w, http.StatusInternalServerError, "failed to read media")
		return
	}
	http.ServeContent(w, r, filename, time.Time{}, bytes.NewReader(data))
}

func validPathSegment(s string) bool {
	if s == "" || len(s) > 256 {
		return false
	}
	if strings.ContainsAny(s, "/\\") || strings.Contains(s, "..") {
		return false
	}
	return true
}
