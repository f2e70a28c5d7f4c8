// Package recognize implements capture.Recognizer over a websocket
// connection to a live speech-to-text service.
package recognize

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/skillproof/capture-engine/internal/capture"
)

// liveMessage is one recognition message from the live-STT service.
type liveMessage struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Final bool   `json:"final"`
	Error string `json:"error,omitempty"`
}

// LiveClient streams recognition events from a websocket STT endpoint. An
// empty URL means the runtime has no recognition capability and callers fall
// back to manual transcript entry.
type LiveClient struct {
	url     string
	timeout time.Duration
	log     zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	stopped bool
}

// New creates a live recognition client. url may be empty (unsupported).
func New(url string, timeout time.Duration, log zerolog.Logger) *LiveClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LiveClient{
		url:     url,
		timeout: timeout,
		log:     log.With().Str("component", "recognizer").Logger(),
	}
}

// Supported reports whether a recognition endpoint is configured.
func (c *LiveClient) Supported() bool { return c.url != "" }

// Start dials the recognition service and returns the event channel. The
// channel closes when the service disconnects or Stop is called; a mid-stream
// read failure is delivered as an event with Err set before closing.
func (c *LiveClient) Start(ctx context.Context) (<-chan capture.RecognitionEvent, error) {
	if !c.Supported() {
		return nil, fmt.Errorf("no recognition endpoint configured")
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.timeout}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.stopped = false
	c.mu.Unlock()

	ch := make(chan capture.RecognitionEvent, 16)

	// Context cancellation tears the connection down so the read loop exits.
	go func() {
		<-ctx.Done()
		c.Stop()
	}()

	go c.readLoop(ctx, conn, ch)
	return ch, nil
}

func (c *LiveClient) readLoop(ctx context.Context, conn *websocket.Conn, ch chan capture.RecognitionEvent) {
	defer close(ch)
	for {
		var msg liveMessage
		if err := conn.ReadJSON(&msg); err != nil {
			c.mu.Lock()
			stopped := c.stopped
			c.mu.Unlock()
			if !stopped && ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("recognition stream broke")
				ch <- capture.RecognitionEvent{Err: err}
			}
			return
		}
		if msg.Error != "" {
			ch <- capture.RecognitionEvent{Err: fmt.Errorf("recognition service: %s", msg.Error)}
			continue
		}
		if msg.Type != "" && msg.Type != "transcript" {
			continue // keepalives, metadata
		}
		ch <- capture.RecognitionEvent{Segments: []capture.Segment{{Text: msg.Text, Final: msg.Final}}}
	}
}

// Stop closes the connection. Idempotent.
func (c *LiveClient) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || c.conn == nil {
		return
	}
	c.stopped = true
	deadline := time.Now().Add(time.Second)
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	c.conn.Close()
}
