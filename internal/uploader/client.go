// Package uploader hands finalized recording artifacts to the assessment
// upload endpoint. Retry policy deliberately lives with the caller: the
// recovery supervisor protects capture, not upload.
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/skillproof/capture-engine/internal/capture"
	"github.com/skillproof/capture-engine/internal/metrics"
)

// Field names the upload endpoint recognizes.
const (
	FieldWebcam = "webcamVideo"
	FieldScreen = "screenVideo"
)

// ErrEmptyArtifact is returned before any network call when validation fails.
var ErrEmptyArtifact = errors.New("artifact is empty")

// UploadError reports a failed upload: a non-2xx response or a response
// missing the expected reference field. Body carries the diagnostic text.
type UploadError struct {
	Status int
	Body   string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed (status %d): %s", e.Status, e.Body)
}

// Client uploads artifacts to the assessment byte store.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// New creates an upload client against the given base URL.
func New(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "uploader").Logger(),
	}
}

// Validate fails closed: only a non-empty artifact may be uploaded,
// independent of its MIME tag.
func (c *Client) Validate(a *capture.Artifact) bool {
	return a != nil && a.Size() > 0
}

// Upload POSTs the artifact as a multipart form to
// /api/assessments/{ownerID}/upload-videos and returns the public reference
// from the {field}Url response key. No automatic retry.
func (c *Client) Upload(ctx context.Context, a *capture.Artifact, field, ownerID string) (string, error) {
	if !c.Validate(a) {
		return "", ErrEmptyArtifact
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename=%q`, field, field+extForMIME(a.MIMEType)))
	hdr.Set("Content-Type", a.MIMEType)
	part, err := w.CreatePart(hdr)
	if err != nil {
		return "", fmt.Errorf("create form part: %w", err)
	}
	if _, err := part.Write(a.Data); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := w.WriteField("ownerId", ownerID); err != nil {
		return "", fmt.Errorf("write owner field: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/assessments/%s/upload-videos", c.baseURL, url.PathEscape(ownerID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		return "", &UploadError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var payload map[string]string
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		return "", &UploadError{Status: resp.StatusCode, Body: "invalid response body: " + err.Error()}
	}
	ref := payload[field+"Url"]
	if ref == "" {
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		return "", &UploadError{Status: resp.StatusCode, Body: "response missing " + field + "Url"}
	}

	metrics.UploadsTotal.WithLabelValues("ok").Inc()
	c.log.Info().Str("field", field).Str("owner", ownerID).Int("bytes", a.Size()).Str("ref", ref).Msg("artifact uploaded")
	return ref, nil
}

// extForMIME maps the negotiated MIME tag to a filename extension.
func extForMIME(mime string) string {
	base := mime
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = base[:i]
	}
	switch strings.TrimSpace(base) {
	case "video/mp4":
		return ".mp4"
	case "video/x-matroska":
		return ".mkv"
	default:
		return ".webm"
	}
}
