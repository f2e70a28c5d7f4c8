package api

import (
	"net/http"
	"time"

	"github.com/skillproof/capture-engine/internal/storage"
)

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

type HealthHandler struct {
	store         storage.MediaStore
	recognizerURL string
	analyzerURL   string
	version       string
	startTime     time.Time
}

func NewHealthHandler(store storage.MediaStore, recognizerURL, analyzerURL, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		store:         store,
		recognizerURL: recognizerURL,
		analyzerURL:   analyzerURL,
		version:       version,
		startTime:     startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	if h.store != nil {
		checks["storage"] = h.store.Type()
	} else {
		checks["storage"] = "error"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	if h.recognizerURL != "" {
		checks["recognizer"] = "configured"
	} else {
		checks["recognizer"] = "not_configured"
	}

	if h.analyzerURL != "" {
		checks["analyzer"] = "configured"
	} else {
		checks["analyzer"] = "not_configured"
	}

	WriteJSON(w, httpStatus, HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	})
}
