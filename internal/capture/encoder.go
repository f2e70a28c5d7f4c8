package capture

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultMIMEType is the fallback container when no preferred encoding
// format is supported by the device.
const DefaultMIMEType = "video/webm"

// DefaultTimeslice is the chunk emission interval used when Start is given
// zero. Smaller values detect failures faster and shrink the loss window on a
// crash at the cost of more per-chunk overhead.
const DefaultTimeslice = 250 * time.Millisecond

// NegotiateMIMEType picks the first preferred type the device supports,
// falling back to DefaultMIMEType. Resolved once per session.
func NegotiateMIMEType(preferred, supported []string) string {
	set := make(map[string]bool, len(supported))
	for _, s := range supported {
		set[s] = true
	}
	for _, p := range preferred {
		if set[p] {
			return p
		}
	}
	return DefaultMIMEType
}

// Encoder drains an acquired stream's encoded feed and flushes the
// accumulated bytes into the session's chunk log on every timeslice tick.
// One encoder serves one epoch: after a recovery the session binds a fresh
// encoder to the same chunk log.
type Encoder struct {
	stream    *Stream
	sink      *chunkLog
	mimeType  string
	timeslice time.Duration
	onChunk   func(n int)
	onError   func(err error)
	log       zerolog.Logger

	mu        sync.Mutex
	pending   []byte
	stopped   bool
	finalized *Artifact

	quit     chan struct{}
	quitOnce sync.Once
}

// EncoderOptions configures a new encoder.
type EncoderOptions struct {
	Stream   *Stream
	Sink     *chunkLog
	MIMEType string
	OnChunk  func(n int)   // called after each chunk is appended
	OnError  func(e error) // called once on an irrecoverable feed error
	Log      zerolog.Logger
}

// NewEncoder binds an encoder to a stream and chunk log.
func NewEncoder(opts EncoderOptions) *Encoder {
	mime := opts.MIMEType
	if mime == "" {
		mime = DefaultMIMEType
	}
	return &Encoder{
		stream:   opts.Stream,
		sink:     opts.Sink,
		mimeType: mime,
		onChunk:  opts.OnChunk,
		onError:  opts.OnError,
		log:      opts.Log.With().Str("component", "encoder").Logger(),
		quit:     make(chan struct{}),
	}
}

// MIMEType returns the negotiated encoding format.
func (e *Encoder) MIMEType() string { return e.mimeType }

// Start begins chunked emission: the feed is drained continuously and the
// pending buffer is flushed as one chunk per timeslice. Zero timeslice means
// DefaultTimeslice.
func (e *Encoder) Start(timeslice time.Duration) {
	if timeslice <= 0 {
		timeslice = DefaultTimeslice
	}
	e.timeslice = timeslice
	go e.readLoop()
	go e.flushLoop()
}

// Timeslice returns the configured emission interval.
func (e *Encoder) Timeslice() time.Duration { return e.timeslice }

func (e *Encoder) readLoop() {
	buf := make([]byte, 32<<10)
	for {
		n, err := e.stream.Read(buf)
		if n > 0 {
			e.mu.Lock()
			if !e.stopped {
				e.pending = append(e.pending, buf[:n]...)
			}
			e.mu.Unlock()
		}
		if err != nil {
			e.mu.Lock()
			stopped := e.stopped
			e.mu.Unlock()
			if !stopped && e.onError != nil {
				// Feed died under us (includes unexpected EOF). The pending
				// buffer stays in-flight until Discard.
				e.onError(&EncoderError{Err: err})
			}
			return
		}
	}
}

func (e *Encoder) flushLoop() {
	t := time.NewTicker(e.timeslice)
	defer t.Stop()
	for {
		select {
		case <-e.quit:
			return
		case <-t.C:
			e.flush()
		}
	}
}

func (e *Encoder) flush() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	data := e.pending
	e.pending = nil
	e.mu.Unlock()

	if len(data) == 0 {
		return
	}
	e.sink.append(data)
	if e.onChunk != nil {
		e.onChunk(len(data))
	}
}

// Stop flushes the pending buffer as a final chunk and finalizes the
// accumulated sequence into an artifact. Idempotent: a second Stop returns
// the same artifact. With zero accumulated chunks it returns
// ErrNoActiveRecording.
func (e *Encoder) Stop() (*Artifact, error) {
	e.mu.Lock()
	if e.finalized != nil {
		a := e.finalized
		e.mu.Unlock()
		return a, nil
	}
	e.stopped = true
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()

	e.quitOnce.Do(func() { close(e.quit) })

	e.sink.append(pending)
	if e.sink.count() == 0 {
		return nil, ErrNoActiveRecording
	}
	a := e.sink.assemble(e.mimeType)

	e.mu.Lock()
	e.finalized = a
	e.mu.Unlock()

	e.log.Debug().Int("chunks", e.sink.count()).Int("bytes", a.Size()).Str("mime", e.mimeType).Msg("recording finalized")
	return a, nil
}

// Discard halts emission and drops the in-flight pending buffer without
// finalizing. Chunks already flushed to the log are untouched; the recovery
// path uses this before binding a replacement encoder.
func (e *Encoder) Discard() {
	e.mu.Lock()
	e.stopped = true
	e.pending = nil
	e.mu.Unlock()
	e.quitOnce.Do(func() { close(e.quit) })
}
