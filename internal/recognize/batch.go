package recognize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/skillproof/capture-engine/internal/capture"
)

// BatchClient transcribes a finished recording through a Whisper-style HTTP
// inference API. It is the fallback when live recognition was unavailable or
// degraded mid-session: the assembled artifact still gets a transcript before
// the candidate is asked to type one by hand.
type BatchClient struct {
	url     string
	apiKey  string
	client  *http.Client
}

// batchResponse is the JSON result from the inference API.
type batchResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// NewBatch creates a batch transcription client. url may be empty
// (unconfigured).
func NewBatch(url, apiKey string, timeout time.Duration) *BatchClient {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &BatchClient{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

// Configured reports whether a batch inference endpoint is set.
func (b *BatchClient) Configured() bool { return b.url != "" }

// Transcribe posts the artifact as a multipart "audio" part and returns the
// recognized text.
func (b *BatchClient) Transcribe(ctx context.Context, a *capture.Artifact) (string, error) {
	if !b.Configured() {
		return "", fmt.Errorf("no batch transcription endpoint configured")
	}
	if a == nil || a.Size() == 0 {
		return "", fmt.Errorf("nothing to transcribe")
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("audio", "recording"+extFor(a.MIMEType))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(a.Data); err != nil {
		return "", fmt.Errorf("write audio data: %w", err)
	}
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result batchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return strings.TrimSpace(result.Text), nil
}

func extFor(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	switch strings.TrimSpace(mimeType) {
	case "video/mp4":
		return ".mp4"
	case "video/x-matroska":
		return ".mkv"
	default:
		return ".webm"
	}
}
