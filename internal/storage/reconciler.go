package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// UploadReconciler scans local disk for recordings missing from S3 and
// re-uploads them. Handles failed/dropped async uploads and crash recovery.
type UploadReconciler struct {
	mediaDir string
	s3       *S3Store
	interval time.Duration
	window   time.Duration
	log      zerolog.Logger
	kick     chan struct{}
	stop     chan struct{}
}

// NewUploadReconciler creates a reconciler that checks for missing S3 uploads.
func NewUploadReconciler(mediaDir string, s3 *S3Store, interval time.Duration, log zerolog.Logger) *UploadReconciler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &UploadReconciler{
		mediaDir: mediaDir,
		s3:       s3,
		interval: interval,
		window:   24 * time.Hour,
		log:      log.With().Str("component", "upload-reconciler").Logger(),
		kick:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
}

func (r *UploadReconciler) Start() { go r.loop() }
func (r *UploadReconciler) Stop()  { close(r.stop) }

// Kick requests an out-of-band reconcile pass, e.g. from the media dir
// watcher. Coalesces when a pass is already pending.
func (r *UploadReconciler) Kick() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

func (r *UploadReconciler) loop() {
	// Delay first run to let startup uploads settle
	select {
	case <-time.After(2 * time.Minute):
	case <-r.kick:
	case <-r.stop:
		return
	}

	r.reconcile()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.reconcile()
		case <-r.kick:
			r.reconcile()
		case <-r.stop:
			return
		}
	}
}

func (r *UploadReconciler) reconcile() {
	var uploaded, failed, checked int

	cutoff := time.Now().Add(-r.window)

	ownerDirs, _ := os.ReadDir(r.mediaDir)
	for _, ownerDir := range ownerDirs {
		if !ownerDir.IsDir() {
			continue
		}
		ownerPath := filepath.Join(r.mediaDir, ownerDir.Name())
		dateDirs, _ := os.ReadDir(ownerPath)
		for _, dateDir := range dateDirs {
			if !dateDir.IsDir() {
				continue
			}
			dirDate, err := time.Parse("2006-01-02", dateDir.Name())
			if err == nil && dirDate.Before(cutoff) {
				continue
			}

			datePath := filepath.Join(ownerPath, dateDir.Name())
			files, _ := os.ReadDir(datePath)
			for _, f := range files {
				if f.IsDir() {
					continue
				}
				if strings.HasPrefix(f.Name(), ".media-") && strings.HasSuffix(f.Name(), ".tmp") {
					continue
				}
				checked++
				key := filepath.ToSlash(
					ownerDir.Name() + "/" + dateDir.Name() + "/" + f.Name(),
				)

				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				exists := r.s3.Exists(ctx, key)
				cancel()
				if exists {
					continue
				}

				data, readErr := os.ReadFile(filepath.Join(datePath, f.Name()))
				if readErr != nil {
					continue
				}

				ct := mediaContentTypeFromExt(filepath.Ext(f.Name()))
				ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
				if saveErr := r.s3.Save(ctx, key, data, ct); saveErr != nil {
					r.log.Warn().Err(saveErr).Str("key", key).Msg("reconcile upload failed")
					failed++
				} else {
					uploaded++
				}
				cancel()
			}
		}
	}

	if uploaded > 0 || failed > 0 {
		r.log.Info().
			Int("uploaded", uploaded).
			Int("failed", failed).
			Int("checked", checked).
			Msg("reconcile complete")
	}
}
