package api

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skillproof/capture-engine/internal/storage"
)

// Multipart form field names for the two capture sources.
const (
	FieldWebcam = "webcamVideo"
	FieldScreen = "screenVideo"
)

const maxUploadBytes = 512 << 20

// UploadHandler accepts recorded assessment videos from browser clients.
type UploadHandler struct {
	store storage.MediaStore
	async *storage.AsyncUploader
	log   zerolog.Logger
}

// NewUploadHandler creates an upload handler. async may be nil; when set and
// the store is tiered, S3 pushes happen in the background so the response
// does not wait on the object store.
func NewUploadHandler(store storage.MediaStore, async *storage.AsyncUploader, log zerolog.Logger) *UploadHandler {
	return &UploadHandler{
		store: store,
		async: async,
		log:   log.With().Str("handler", "upload").Logger(),
	}
}

// Upload handles POST /api/assessments/{ownerId}/upload-videos.
// Accepts a multipart form with webcamVideo and/or screenVideo file parts
// and responds with a {field}Url entry per stored video.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "ownerId")
	if !validOwnerID(owner) {
		WriteError(w, http.StatusBadRequest, "invalid owner id")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid multipart form", err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	date := time.Now().UTC().Format("2006-01-02")
	resp := make(map[string]string)

	for _, field := range []string{FieldWebcam, FieldScreen} {
		file, header, err := r.FormFile(field)
		if err != nil {
			continue // field absent
		}
		data, readErr := io.ReadAll(file)
		file.Close()
		if readErr != nil {
			WriteErrorDetail(w, http.StatusBadRequest, "failed to read "+field, readErr.Error())
			return
		}
		if len(data) == 0 {
			WriteError(w, http.StatusBadRequest, field+" is empty")
			return
		}

		filename := field + "-" + uuid.NewString() + uploadExt(header.Header.Get("Content-Type"), header.Filename)
		key := owner + "/" + date + "/" + filename
		ct := header.Header.Get("Content-Type")
		if ct == "" {
			ct = "application/octet-stream"
		}

		if err := h.save(r, key, data, ct); err != nil {
			h.log.Error().Err(err).Str("key", key).Msg("store write failed")
			WriteError(w, http.StatusInternalServerError, "failed to store "+field)
			return
		}

		resp[field+"Url"] = "/api/assessments/" + owner + "/media/" + date + "/" + filename
		h.log.Info().Str("key", key).Int("bytes", len(data)).Msg("video stored")
	}

	if len(resp) == 0 {
		WriteError(w, http.StatusBadRequest, "no video file provided: expected webcamVideo or screenVideo")
		return
	}

	WriteJSON(w, http.StatusOK, resp)
}

func (h *UploadHandler) save(r *http.Request, key string, data []byte, ct string) error {
	if tiered, ok := h.store.(*storage.TieredStore); ok && h.async != nil {
		if err := tiered.SaveLocal(r.Context(), key, data, ct); err != nil {
			return err
		}
		h.async.Enqueue(key, data, ct)
		return nil
	}
	return h.store.Save(r.Context(), key, data, ct)
}

// uploadExt derives a file extension from the part's content type, falling
// back to the client filename.
func uploadExt(contentType, filename string) string {
	if idx := strings.Index(contentType, ";"); idx > 0 {
		contentType = contentType[:idx]
	}
	switch strings.TrimSpace(contentType) {
	case "video/webm":
		return ".webm"
	case "video/mp4":
		return ".mp4"
	case "video/x-matroska":
		return ".mkv"
	}
	if ext := filepath.Ext(filename); ext != "" && mime.TypeByExtension(ext) != "" {
		return ext
	}
	return ".webm"
}

// validOwnerID rejects values that could escape the owner's key prefix.
func validOwnerID(owner string) bool {
	if owner == "" || len(owner) > 128 {
		return false
	}
	if strings.ContainsAny(owner, "/\\") || strings.Contains(owner, "..") {
		return false
	}
	return true
}
