package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skillproof/capture-engine/internal/storage"
)

// SubmissionRequest is one answered assessment question: the transcript the
// candidate confirmed plus references to the uploaded videos.
type SubmissionRequest struct {
	QuestionID      string `json:"questionId"`
	Transcript      string `json:"transcript"`
	WebcamVideoURL  string `json:"webcamVideoUrl,omitempty"`
	ScreenVideoURL  string `json:"screenVideoUrl,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
}

// SubmissionResponse acknowledges a persisted submission.
type SubmissionResponse struct {
	ID         string    `json:"id"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// SubmissionHandler persists answered questions and proxies analysis
// requests to the external video-analysis service.
type SubmissionHandler struct {
	store       storage.MediaStore
	analyzerURL string
	client      *http.Client
	log         zerolog.Logger
}

func NewSubmissionHandler(store storage.MediaStore, analyzerURL string, timeout time.Duration, log zerolog.Logger) *SubmissionHandler {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &SubmissionHandler{
		store:       store,
		analyzerURL: analyzerURL,
		client:      &http.Client{Timeout: timeout},
		log:         log.With().Str("handler", "submissions").Logger(),
	}
}

// Submit handles POST /api/assessments/{ownerId}/submit.
func (h *SubmissionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "ownerId")
	if !validOwnerID(owner) {
		WriteError(w, http.StatusBadRequest, "invalid owner id")
		return
	}

	var req SubmissionRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.QuestionID == "" {
		WriteError(w, http.StatusBadRequest, "questionId is required")
		return
	}

	resp := SubmissionResponse{
		ID:         uuid.NewString(),
		ReceivedAt: time.Now().UTC(),
	}

	record := struct {
		SubmissionRequest
		ID         string    `json:"id"`
		OwnerID    string    `json:"ownerId"`
		ReceivedAt time.Time `json:"receivedAt"`
	}{req, resp.ID, owner, resp.ReceivedAt}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to encode submission")
		return
	}

	key := owner + "/" + resp.ReceivedAt.Format("2006-01-02") + "/submission-" + resp.ID + ".json"
	if err := h.store.Save(r.Context(), key, data, "application/json"); err != nil {
		h.log.Error().Err(err).Str("key", key).Msg("submission write failed")
		WriteError(w, http.StatusInternalServerError, "failed to persist submission")
		return
	}

	h.log.Info().Str("owner", owner).Str("question", req.QuestionID).Str("id", resp.ID).Msg("submission stored")
	WriteJSON(w, http.StatusCreated, resp)
}

// Analyze handles POST /api/assessments/{ownerId}/analyze. The request body
// is forwarded verbatim to the configured analysis service.
func (h *SubmissionHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "ownerId")
	if !validOwnerID(owner) {
		WriteError(w, http.StatusBadRequest, "invalid owner id")
		return
	}
	if h.analyzerURL == "" {
		WriteError(w, http.StatusServiceUnavailable, "analysis service not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, h.analyzerURL, bytes.NewReader(body))
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to build analyzer request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Owner-ID", owner)

	resp, err := h.client.Do(req)
	if err != nil {
		h.log.Error().Err(err).Str("owner", owner).Msg("analyzer request failed")
		WriteError(w, http.StatusBadGateway, "analysis service unreachable")
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", resp.Header.Get("Content-Type"))
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}
