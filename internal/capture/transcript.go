package capture

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Segment is one recognized span of speech. Final segments are confirmed and
// accumulate; non-final segments are the recognizer's best-guess tail.
type Segment struct {
	Text  string
	Final bool
}

// RecognitionEvent is one batch of segments from the recognition engine.
// Err marks a recognizer fault; it degrades the transcript but never fails
// the enclosing recording.
type RecognitionEvent struct {
	Segments []Segment
	Err      error
}

// Recognizer is a continuous speech-recognition engine. Start returns the
// event channel, which the engine closes when it stops. Supported reports
// whether the runtime can transcribe at all; unsupported engines make the
// session's Start a no-op so callers offer manual transcript entry.
type Recognizer interface {
	Start(ctx context.Context) (<-chan RecognitionEvent, error)
	Stop()
	Supported() bool
}

// TranscriptionSession accumulates a live transcript from a recognizer. It
// runs independently of the encoder and stream lifecycle: recovery never
// tears it down, and its buffers survive until Reset.
type TranscriptionSession struct {
	rec Recognizer
	log zerolog.Logger

	mu       sync.Mutex
	final    string
	interim  string
	degraded bool
	running  bool
	done     chan struct{}
}

// NewTranscriptionSession wraps a recognizer. A nil recognizer behaves as
// unsupported.
func NewTranscriptionSession(rec Recognizer, log zerolog.Logger) *TranscriptionSession {
	return &TranscriptionSession{
		rec: rec,
		log: log.With().Str("component", "transcription").Logger(),
	}
}

// Supported reports whether live transcription is available.
func (ts *TranscriptionSession) Supported() bool {
	return ts.rec != nil && ts.rec.Supported()
}

// Degraded reports whether recognition failed mid-session. Callers should
// offer manual transcript entry when set.
func (ts *TranscriptionSession) Degraded() bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.degraded
}

// Start begins consuming recognition events. No-op when unsupported or
// already running. A recognizer that fails to start degrades the transcript
// instead of failing the recording.
func (ts *TranscriptionSession) Start(ctx context.Context) {
	if !ts.Supported() {
		return
	}
	ts.mu.Lock()
	if ts.running {
		ts.mu.Unlock()
		return
	}
	ts.running = true
	ts.done = make(chan struct{})
	ts.mu.Unlock()

	ch, err := ts.rec.Start(ctx)
	if err != nil {
		ts.log.Warn().Err(err).Msg("recognizer start failed, transcript degraded")
		ts.mu.Lock()
		ts.degraded = true
		ts.running = false
		close(ts.done)
		ts.mu.Unlock()
		return
	}
	go ts.consume(ch)
}

func (ts *TranscriptionSession) consume(ch <-chan RecognitionEvent) {
	for ev := range ch {
		if ev.Err != nil {
			ts.log.Warn().Err(ev.Err).Msg("recognition error, transcript degraded")
			ts.mu.Lock()
			ts.degraded = true
			ts.final = ""
			ts.interim = ""
			ts.mu.Unlock()
			continue
		}
		ts.mu.Lock()
		for _, seg := range ev.Segments {
			text := strings.TrimSpace(seg.Text)
			if seg.Final {
				if text != "" {
					ts.final = strings.TrimSpace(ts.final + " " + text)
				}
				ts.interim = ""
			} else {
				ts.interim = text
			}
		}
		ts.mu.Unlock()
	}
	ts.mu.Lock()
	ts.running = false
	close(ts.done)
	ts.mu.Unlock()
}

// Stop halts recognition. Idempotent; the accumulated transcript stays
// readable afterwards.
func (ts *TranscriptionSession) Stop() {
	ts.mu.Lock()
	running := ts.running
	done := ts.done
	ts.mu.Unlock()
	if !running {
		return
	}
	ts.rec.Stop()
	if done != nil {
		<-done
	}
}

// Reset clears both transcript buffers and the degraded flag.
func (ts *TranscriptionSession) Reset() {
	ts.mu.Lock()
	ts.final = ""
	ts.interim = ""
	ts.degraded = false
	ts.mu.Unlock()
}

// Current returns the trimmed concatenation of the confirmed transcript and
// the in-flight tail. Never blocks; callable at any time.
func (ts *TranscriptionSession) Current() string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return strings.TrimSpace(ts.final + " " + ts.interim)
}

// FinalTranscript returns only the confirmed segments.
func (ts *TranscriptionSession) FinalTranscript() string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.final
}

// SetManual replaces the transcript wholesale with user-entered text. This is
// the documented fallback when recognition is unsupported or degraded.
func (ts *TranscriptionSession) SetManual(text string) {
	ts.mu.Lock()
	ts.final = strings.TrimSpace(text)
	ts.interim = ""
	ts.mu.Unlock()
}
