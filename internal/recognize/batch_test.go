package recognize

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/skillproof/capture-engine/internal/capture"
)

func TestBatchTranscribe(t *testing.T) {
	t.Run("returns_text", func(t *testing.T) {
		var gotAuth, gotFilename string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("parse form: %v", err)
			}
			if _, hdr, err := r.FormFile("audio"); err == nil {
				gotFilename = hdr.Filename
			}
			w.Write([]byte(`{"text":"  the answer  ","language":"en"}`))
		}))
		defer srv.Close()

		b := NewBatch(srv.URL, "key-123", 5*time.Second)
		a := &capture.Artifact{Data: []byte("fake media"), MIMEType: "video/webm;codecs=vp9"}
		text, err := b.Transcribe(context.Background(), a)
		if err != nil {
			t.Fatalf("transcribe: %v", err)
		}
		if text != "the answer" {
			t.Errorf("text = %q", text)
		}
		if gotAuth != "Bearer key-123" {
			t.Errorf("auth = %q", gotAuth)
		}
		if gotFilename != "recording.webm" {
			t.Errorf("filename = %q", gotFilename)
		}
	})

	t.Run("api_error_surfaces", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model overloaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		b := NewBatch(srv.URL, "", time.Second)
		a := &capture.Artifact{Data: []byte("x"), MIMEType: "video/webm"}
		_, err := b.Transcribe(context.Background(), a)
		if err == nil || !strings.Contains(err.Error(), "503") {
			t.Fatalf("expected status error, got %v", err)
		}
	})

	t.Run("unconfigured", func(t *testing.T) {
		b := NewBatch("", "", time.Second)
		if b.Configured() {
			t.Fatal("empty URL must not be configured")
		}
		if _, err := b.Transcribe(context.Background(), &capture.Artifact{Data: []byte("x")}); err == nil {
			t.Fatal("expected error when unconfigured")
		}
	})

	t.Run("empty_artifact", func(t *testing.T) {
		b := NewBatch("http://example.invalid", "", time.Second)
		if _, err := b.Transcribe(context.Background(), nil); err == nil {
			t.Fatal("expected error for nil artifact")
		}
	})
}
