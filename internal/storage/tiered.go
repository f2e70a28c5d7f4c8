package storage

import (
	"bytes"
	"context"
	"io"
	"path/filepath"

	"github.com/rs/zerolog"
)

// TieredStore layers the local recordings directory (the tier playback is
// served from) over S3 (durability). Writes land on disk before the object
// store is touched; reads that miss the disk are restored from S3 and
// re-cached so the next range request stays on the fast path.
type TieredStore struct {
	local *LocalStore
	s3    *S3Store
	log   zerolog.Logger
}

// NewTieredStore creates a tiered local-primary + S3-backup store.
func NewTieredStore(s3 *S3Store, local *LocalStore, log zerolog.Logger) *TieredStore {
	return &TieredStore{
		local: local,
		s3:    s3,
		log:   log.With().Str("component", "tiered-store").Logger(),
	}
}

// Save persists the artifact locally, then mirrors it to S3. Only the local
// write can fail the request; a failed mirror is logged and left to the
// reconciler.
func (s *TieredStore) Save(ctx context.Context, key string, data []byte, ct string) error {
	if err := s.SaveLocal(ctx, key, data, ct); err != nil {
		return err
	}
	if err := s.SaveToS3(ctx, key, data, ct); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("backup write failed, reconciler will retry")
	}
	return nil
}

// SaveLocal writes only to local disk. Used with AsyncUploader so request
// handlers never block on the object store.
func (s *TieredStore) SaveLocal(ctx context.Context, key string, data []byte, ct string) error {
	return s.local.Save(ctx, key, data, ct)
}

// SaveToS3 writes only to S3.
func (s *TieredStore) SaveToS3(ctx context.Context, key string, data []byte, ct string) error {
	return s.s3.Save(ctx, key, data, ct)
}

func (s *TieredStore) LocalPath(key string) string {
	return s.local.LocalPath(key)
}

func (s *TieredStore) URL(ctx context.Context, key string) (string, error) {
	return s.s3.URL(ctx, key)
}

// Open reads from disk when possible and restores from S3 on a miss.
func (s *TieredStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if r, err := s.local.Open(ctx, key); err == nil {
		return r, nil
	}
	return s.restore(ctx, key)
}

// restore pulls an artifact back from S3 and re-caches it on disk, tagging
// the cached copy with the content type implied by the key's extension.
func (s *TieredStore) restore(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.s3.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		return nil, err
	}
	ct := mediaContentTypeFromExt(filepath.Ext(key))
	if err := s.local.Save(ctx, key, data, ct); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("local re-cache failed")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *TieredStore) Exists(ctx context.Context, key string) bool {
	return s.local.Exists(ctx, key) || s.s3.Exists(ctx, key)
}

func (s *TieredStore) Type() string { return "tiered" }

// S3Store exposes the backup tier for the reconciler, pruner and async uploader.
func (s *TieredStore) S3Store() *S3Store { return s.s3 }
