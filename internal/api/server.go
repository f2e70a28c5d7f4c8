package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/skillproof/capture-engine/internal/config"
	"github.com/skillproof/capture-engine/internal/metrics"
	"github.com/skillproof/capture-engine/internal/storage"
)

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(cfg *config.Config, store storage.MediaStore, async *storage.AsyncUploader, version string, startTime time.Time, log zerolog.Logger) *Server {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(metrics.InstrumentHandler)

	// Health and metrics, no auth
	health := NewHealthHandler(store, cfg.RecognizerURL, cfg.AnalyzerURL, version, startTime)
	r.Get("/api/v1/health", health.ServeHTTP)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	upload := NewUploadHandler(store, async, log)
	media := NewMediaHandler(store, log)
	submissions := NewSubmissionHandler(store, cfg.AnalyzerURL, cfg.AnalyzerTimeout, log)

	// Browser-facing assessment routes
	r.Route("/api/assessments/{ownerId}", func(r chi.Router) {
		r.Use(CORSWithOrigins(nil))
		r.Use(BearerAuth(cfg.AuthToken))
		r.With(RateLimiter(2, 5)).Post("/upload-videos", upload.Upload)
		r.Get("/media/{date}/{filename}", media.Serve)
		r.Post("/submit", submissions.Submit)
		r.Post("/analyze", submissions.Analyze)
	})

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }
