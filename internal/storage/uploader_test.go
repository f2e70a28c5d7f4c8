package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

type fakeBackup struct {
	mu    sync.Mutex
	saved map[string]string
}

func (f *fakeBackup) Save(_ context.Context, key string, _ []byte, ct string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = make(map[string]string)
	}
	f.saved[key] = ct
	return nil
}

func TestAsyncUploaderDrainsOnStop(t *testing.T) {
	dst := &fakeBackup{}
	u := NewAsyncUploader(dst, 8, zerolog.Nop())
	u.Start(2)

	u.Enqueue("cand-1/2026-08-29/webcam-a.webm", []byte{1, 2, 3}, "video/webm")
	u.Enqueue("cand-1/2026-08-29/screen-a.webm", []byte{4}, "video/webm")
	u.Stop()

	if len(dst.saved) != 2 {
		t.Fatalf("saved %d objects, want 2 drained before Stop returned", len(dst.saved))
	}
}

func TestAsyncUploaderDerivesContentType(t *testing.T) {
	dst := &fakeBackup{}
	u := NewAsyncUploader(dst, 1, zerolog.Nop())
	u.Start(1)

	u.Enqueue("cand-1/2026-08-29/webcam-b.webm", []byte{7}, "")
	u.Stop()

	if got := dst.saved["cand-1/2026-08-29/webcam-b.webm"]; got != "video/webm" {
		t.Fatalf("content type = %q, want video/webm from the key extension", got)
	}
}

func TestAsyncUploaderEnqueueAfterStop(t *testing.T) {
	dst := &fakeBackup{}
	u := NewAsyncUploader(dst, 1, zerolog.Nop())
	u.Start(1)
	u.Stop()

	u.Enqueue("cand-1/2026-08-29/webcam-c.webm", []byte{9}, "video/webm")

	if len(dst.saved) != 0 {
		t.Fatalf("saved %d objects after Stop, want 0", len(dst.saved))
	}
}
