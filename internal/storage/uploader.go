package storage

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// backupTarget is the durable tier behind the async queue. S3Store satisfies
// it; tests substitute a fake.
type backupTarget interface {
	Save(ctx context.Context, key string, data []byte, contentType string) error
}

// AsyncUploader pushes freshly stored artifacts to the backup tier without
// blocking the upload request path. Every artifact is already on local disk
// before it is enqueued, so a dropped or failed job is never data loss; the
// reconciler sweeps it up from disk on its next pass.
type AsyncUploader struct {
	dst      backupTarget
	jobs     chan backupJob
	timeout  time.Duration
	log      zerolog.Logger
	wg       sync.WaitGroup
	stopped  atomic.Bool
	stopOnce sync.Once
}

type backupJob struct {
	key         string
	data        []byte
	contentType string
}

// NewAsyncUploader creates an async backup uploader with the given queue size.
func NewAsyncUploader(dst backupTarget, bufferSize int, log zerolog.Logger) *AsyncUploader {
	return &AsyncUploader{
		dst:     dst,
		jobs:    make(chan backupJob, bufferSize),
		timeout: 30 * time.Second,
		log:     log.With().Str("component", "async-uploader").Logger(),
	}
}

// Enqueue queues one artifact for backup. Non-blocking: when the queue is
// full or the uploader is stopped the job is dropped and the reconciler
// takes over from the local copy. An empty content type is derived from the
// key's extension.
func (u *AsyncUploader) Enqueue(key string, data []byte, contentType string) {
	if u.stopped.Load() {
		return
	}
	if contentType == "" {
		contentType = mediaContentTypeFromExt(filepath.Ext(key))
	}
	select {
	case u.jobs <- backupJob{key: key, data: data, contentType: contentType}:
	default:
		u.log.Warn().Str("key", key).Msg("backup queue full, leaving artifact to the reconciler")
	}
}

// Start launches the worker pool.
func (u *AsyncUploader) Start(workers int) {
	for i := 0; i < workers; i++ {
		u.wg.Add(1)
		go u.worker()
	}
	u.log.Info().Int("workers", workers).Int("buffer", cap(u.jobs)).Msg("async uploader started")
}

// Stop rejects new jobs and blocks until the queued ones have drained. Call
// after the HTTP server has shut down so no handler enqueues concurrently.
func (u *AsyncUploader) Stop() {
	u.stopped.Store(true)
	u.stopOnce.Do(func() { close(u.jobs) })
	u.wg.Wait()
}

func (u *AsyncUploader) worker() {
	defer u.wg.Done()
	for job := range u.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), u.timeout)
		if err := u.dst.Save(ctx, job.key, job.data, job.contentType); err != nil {
			u.log.Error().Err(err).Str("key", job.key).Msg("backup upload failed, reconciler will retry")
		}
		cancel()
	}
}
