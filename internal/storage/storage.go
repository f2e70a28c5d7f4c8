package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/skillproof/capture-engine/internal/config"
)

// MediaStore abstracts recording artifact storage backends.
type MediaStore interface {
	// Save stores artifact data. key format: {owner_id}/{YYYY-MM-DD}/{filename}
	Save(ctx context.Context, key string, data []byte, contentType string) error

	// LocalPath returns the local filesystem path if the file exists on disk.
	// Returns "" if not available locally.
	LocalPath(key string) string

	// URL returns a presigned URL for the artifact.
	// Returns "" for local-only backends.
	URL(ctx context.Context, key string) (string, error)

	// Open returns a reader for the artifact.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks if an artifact exists in any backend.
	Exists(ctx context.Context, key string) bool

	// Type returns "local", "s3", or "tiered".
	Type() string
}

// New creates a MediaStore based on config. Returns the store and optional
// background services (pruner, reconciler, watcher) that the caller must
// Start/Stop. Returns an error if S3 is configured but unreachable.
func New(cfg config.S3Config, mediaDir string, log zerolog.Logger) (MediaStore, []BackgroundService, error) {
	if !cfg.Enabled() {
		return NewLocalStore(mediaDir), nil, nil
	}

	s3store, err := NewS3Store(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("S3 init failed: %w", err)
	}

	// Startup validation: verify credentials and bucket access
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3store.HeadBucket(ctx); err != nil {
		return nil, nil, fmt.Errorf("S3 startup check failed (bucket=%q endpoint=%q): %w",
			cfg.Bucket, cfg.Endpoint, err)
	}
	log.Info().Str("bucket", cfg.Bucket).Str("endpoint", cfg.Endpoint).Msg("S3 connection verified")

	if !cfg.LocalCache {
		return s3store, nil, nil
	}

	// Tiered mode: local primary + S3 backup
	local := NewLocalStore(mediaDir)
	tiered := NewTieredStore(s3store, local, log)

	var services []BackgroundService

	if cfg.CacheRetention > 0 || cfg.CacheMaxGB > 0 {
		pruner := NewCachePruner(mediaDir, cfg.CacheRetention, cfg.CacheMaxGB, s3store, log)
		services = append(services, pruner)
	}

	reconciler := NewUploadReconciler(mediaDir, s3store, cfg.ReconcileEvery, log)
	services = append(services, reconciler)

	// Nudge the reconciler when recordings land on disk out of band, e.g.
	// files copied in by an operator or left over from a crash.
	if watcher, werr := NewDirWatcher(mediaDir, reconciler.Kick, log); werr != nil {
		log.Warn().Err(werr).Msg("media dir watcher unavailable, relying on periodic reconcile")
	} else {
		services = append(services, watcher)
	}

	return tiered, services, nil
}

// BackgroundService is a stoppable background goroutine.
type BackgroundService interface {
	Start()
	Stop()
}

// mediaContentTypeFromExt returns the MIME type for an artifact file extension.
func mediaContentTypeFromExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".webm":
		return "video/webm"
	case ".mp4":
		return "video/mp4"
	case ".mkv":
		return "video/x-matroska"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
