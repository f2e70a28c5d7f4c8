package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/skillproof/capture-engine/internal/metrics"
)

// DefaultMaxRetries is the recovery budget ceiling per recording session.
const DefaultMaxRetries = 3

// DefaultStallFloor is the minimum chunk-stall watchdog threshold. The
// effective threshold is max(5×timeslice, floor).
const DefaultStallFloor = 5 * time.Second

// DefaultRecoveryBackoff is the base delay before a reacquisition attempt;
// attempt n waits n× this.
const DefaultRecoveryBackoff = 250 * time.Millisecond

// Result is what a stopped recording session hands back.
type Result struct {
	Artifact   *Artifact
	Transcript string
}

// SessionOptions configures a recording session.
type SessionOptions struct {
	Device          Device
	Recognizer      Recognizer // nil means transcription unsupported
	PreferredTypes  []string
	Timeslice       time.Duration
	MaxRetries      int
	StallFloor      time.Duration
	RecoveryBackoff time.Duration
	Log             zerolog.Logger
}

type sessionEventType int

const (
	evChunk sessionEventType = iota
	evFailure
	evStop
)

type sessionEvent struct {
	typ   sessionEventType
	kind  FailureKind
	cause error
	epoch int
	reply chan stopReply
}

type stopReply struct {
	res Result
	err error
}

// Session orchestrates one recording lifecycle: stream acquisition, chunked
// encoding, independent live transcription, and supervised recovery. All
// state transitions run on a single goroutine fed by an event queue; epoch
// transitions are serialized so two epochs' chunks never interleave.
type Session struct {
	acquirer   *Acquirer
	device     Device
	transcript *TranscriptionSession
	opts       SessionOptions
	log        zerolog.Logger

	mu        sync.Mutex
	active    bool
	kind      SourceKind
	mimeType  string
	sink      *chunkLog
	stream    *Stream
	encoder   *Encoder
	sv        *supervisor
	epoch     int
	events    chan sessionEvent
	loopDone  chan struct{}
	cancelRun context.CancelFunc
	result    *Result
	stopErr   error
	fatal     error
}

// NewSession creates a recording session over a device and optional
// recognizer.
func NewSession(opts SessionOptions) *Session {
	if opts.Timeslice <= 0 {
		opts.Timeslice = DefaultTimeslice
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.StallFloor <= 0 {
		opts.StallFloor = DefaultStallFloor
	}
	if opts.RecoveryBackoff <= 0 {
		opts.RecoveryBackoff = DefaultRecoveryBackoff
	}
	log := opts.Log.With().Str("component", "session").Logger()
	return &Session{
		acquirer:   NewAcquirer(opts.Device, opts.Log),
		device:     opts.Device,
		transcript: NewTranscriptionSession(opts.Recognizer, opts.Log),
		opts:       opts,
		log:        log,
		sv:         newSupervisor(opts.MaxRetries),
	}
}

// Transcription exposes the transcript buffers (read accessors plus the
// manual-entry fallback).
func (s *Session) Transcription() *TranscriptionSession { return s.transcript }

// State returns the recovery supervisor's current state.
func (s *Session) State() SupervisorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sv.state
}

// RetriesUsed reports how many recovery attempts this session has consumed.
func (s *Session) RetriesUsed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sv.retriesUsed()
}

// Start acquires a stream of the given kind and begins recording. Fails with
// ErrAlreadyRecording while a session is active and *AcquisitionError when
// the source cannot be opened. maxDuration > 0 arms a timer that auto-stops
// the recording; the retry budget refills here and nowhere else.
func (s *Session) Start(ctx context.Context, kind SourceKind, maxDuration time.Duration) error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return ErrAlreadyRecording
	}
	s.active = true
	s.mu.Unlock()

	stream, err := s.acquirer.Acquire(ctx, kind)
	if err != nil {
		s.mu.Lock()
		s.active = false
		s.mu.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.kind = kind
	s.sink = &chunkLog{}
	s.result = nil
	s.stopErr = nil
	s.fatal = nil
	s.epoch = 1
	s.mimeType = NegotiateMIMEType(s.opts.PreferredTypes, s.device.SupportedTypes())
	s.sv = newSupervisor(s.opts.MaxRetries)
	s.sv.begin()
	s.events = make(chan sessionEvent, 32)
	s.loopDone = make(chan struct{})
	s.cancelRun = cancel
	s.mu.Unlock()

	s.transcript.Reset()
	s.transcript.Start(runCtx)
	s.bind(stream)
	go s.run(runCtx, maxDuration)

	metrics.SessionsStartedTotal.Inc()
	metrics.SessionsActive.Inc()
	s.log.Info().
		Str("kind", string(kind)).
		Str("mime", s.mimeType).
		Dur("timeslice", s.opts.Timeslice).
		Dur("max_duration", maxDuration).
		Msg("recording started")
	return nil
}

// bind attaches a fresh encoder to the stream for the current epoch and
// starts emission plus track-event forwarding.
func (s *Session) bind(stream *Stream) {
	s.mu.Lock()
	epoch := s.epoch
	events := s.events
	s.stream = stream
	enc := NewEncoder(EncoderOptions{
		Stream:   stream,
		Sink:     s.sink,
		MIMEType: s.mimeType,
		OnChunk: func(n int) {
			metrics.ChunksEmittedTotal.Inc()
			metrics.ChunkBytesTotal.Add(float64(n))
			post(events, sessionEvent{typ: evChunk, epoch: epoch})
		},
		OnError: func(err error) {
			post(events, sessionEvent{typ: evFailure, kind: FailureEncoder, cause: err, epoch: epoch})
		},
		Log: s.opts.Log,
	})
	s.encoder = enc
	s.mu.Unlock()

	enc.Start(s.opts.Timeslice)
	go forwardTrackEvents(stream, events, epoch)
}

// post delivers an event without blocking; the queue is sized so drops only
// happen when the run loop is already gone.
func post(events chan sessionEvent, ev sessionEvent) {
	select {
	case events <- ev:
	default:
	}
}

func forwardTrackEvents(stream *Stream, events chan sessionEvent, epoch int) {
	for ev := range stream.Events() {
		switch ev.Type {
		case TrackEventEnded, TrackEventMuted:
			post(events, sessionEvent{
				typ:   evFailure,
				kind:  FailureTrack,
				cause: fmt.Errorf("track %s %s", ev.Track.Kind, ev.Type),
				epoch: epoch,
			})
		case TrackEventUnmuted:
			// informational; recovery was already triggered by the mute
		}
	}
}

func (s *Session) stallThreshold() time.Duration {
	t := 5 * s.opts.Timeslice
	if t < s.opts.StallFloor {
		t = s.opts.StallFloor
	}
	return t
}

// run is the session's single-threaded state machine: every chunk, failure,
// timer, and stop request passes through here in order.
func (s *Session) run(ctx context.Context, maxDuration time.Duration) {
	defer close(s.loopDone)
	defer s.teardown()

	stall := s.stallThreshold()
	watchdog := time.NewTimer(stall)
	defer watchdog.Stop()
	wdC := watchdog.C

	var maxC <-chan time.Time
	if maxDuration > 0 {
		maxT := time.NewTimer(maxDuration)
		defer maxT.Stop()
		maxC = maxT.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-maxC:
			s.log.Info().Dur("max_duration", maxDuration).Msg("max duration reached, stopping")
			res, err := s.finish()
			s.storeResult(res, err)
			return

		case <-wdC:
			if s.State() == StateMonitoring {
				s.handleFailure(ctx, FailureStall, fmt.Errorf("no chunk delivered within %s", stall))
			}
			if s.State() == StateFailed {
				wdC = nil
			} else {
				watchdog.Reset(stall)
			}

		case ev := <-s.events:
			switch ev.typ {
			case evChunk:
				if !watchdog.Stop() {
					select {
					case <-watchdog.C:
					default:
					}
				}
				watchdog.Reset(stall)

			case evFailure:
				if ev.epoch != s.currentEpoch() || s.State() != StateMonitoring {
					continue // stale epoch or already failed
				}
				s.handleFailure(ctx, ev.kind, ev.cause)
				if s.State() == StateFailed {
					wdC = nil
				} else {
					if !watchdog.Stop() {
						select {
						case <-watchdog.C:
						default:
						}
					}
					watchdog.Reset(stall)
				}

			case evStop:
				res, err := s.finish()
				s.storeResult(res, err)
				ev.reply <- stopReply{res: res, err: err}
				return
			}
		}
	}
}

func (s *Session) currentEpoch() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// handleFailure tears down the current epoch and drives bounded-retry
// reacquisition. Chunks already in the log are preserved; only the failed
// encoder's in-flight buffer is discarded. Runs on the session goroutine, so
// epoch transitions never overlap.
func (s *Session) handleFailure(ctx context.Context, kind FailureKind, cause error) {
	s.log.Warn().Str("failure", string(kind)).Err(cause).Msg("capture fault, recovering")

	s.mu.Lock()
	s.epoch++
	enc := s.encoder
	stream := s.stream
	s.mu.Unlock()

	if enc != nil {
		enc.Discard()
	}
	if stream != nil {
		stream.Release()
	}

	attempt := 0
	for {
		s.mu.Lock()
		ok := s.sv.consumeRetry()
		used := s.sv.retriesUsed()
		s.mu.Unlock()
		if !ok {
			fatal := &RecoveryFailedError{Attempts: used, Cause: cause}
			s.mu.Lock()
			s.fatal = fatal
			s.mu.Unlock()
			metrics.RecoveryFailuresTotal.Inc()
			s.log.Error().Int("attempts", used).Err(cause).Msg("retry budget exhausted, session failed")
			return
		}
		attempt++

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(attempt) * s.opts.RecoveryBackoff):
		}

		stream, err := s.acquirer.Acquire(ctx, s.kind)
		if err != nil {
			s.log.Warn().Err(err).Int("attempt", attempt).Msg("reacquire failed")
			cause = err
			continue
		}

		s.bind(stream)
		s.mu.Lock()
		s.sv.recovered()
		left := s.sv.retriesLeft
		s.mu.Unlock()
		metrics.RecoveriesTotal.WithLabelValues(string(kind)).Inc()
		s.log.Info().Int("attempt", attempt).Int("retries_left", left).Msg("capture recovered")
		return
	}
}

// finish finalizes the encoder, releases the stream, and stops transcription.
func (s *Session) finish() (Result, error) {
	s.mu.Lock()
	fatal := s.fatal
	enc := s.encoder
	stream := s.stream
	s.mu.Unlock()

	s.transcript.Stop()

	if fatal != nil {
		return Result{}, fatal
	}

	var artifact *Artifact
	var err error
	if enc != nil {
		artifact, err = enc.Stop()
	} else {
		err = ErrNoActiveRecording
	}
	if stream != nil {
		stream.Release()
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Artifact: artifact, Transcript: s.transcript.Current()}, nil
}

func (s *Session) storeResult(res Result, err error) {
	s.mu.Lock()
	if err == nil {
		s.result = &res
	}
	s.stopErr = err
	s.active = false
	s.mu.Unlock()
}

// Stop finalizes the recording and returns the artifact plus transcript.
// Idempotent: a second Stop returns the same result. After the session
// failed, Stop surfaces the fatal error; the partial artifact remains
// available through CurrentArtifact.
func (s *Session) Stop() (Result, error) {
	s.mu.Lock()
	if s.result != nil {
		r := *s.result
		s.mu.Unlock()
		return r, nil
	}
	if s.stopErr != nil {
		err := s.stopErr
		s.mu.Unlock()
		return Result{}, err
	}
	if !s.active {
		s.mu.Unlock()
		return Result{}, ErrNoActiveRecording
	}
	events := s.events
	loopDone := s.loopDone
	s.mu.Unlock()

	reply := make(chan stopReply, 1)
	select {
	case events <- sessionEvent{typ: evStop, reply: reply}:
		select {
		case r := <-reply:
			return r.res, r.err
		case <-loopDone:
		}
	case <-loopDone:
	}

	// The loop ended concurrently (auto-stop or cleanup); report its outcome.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result != nil {
		return *s.result, nil
	}
	if s.stopErr != nil {
		return Result{}, s.stopErr
	}
	if s.fatal != nil {
		return Result{}, s.fatal
	}
	return Result{}, ErrNoActiveRecording
}

// CurrentArtifact force-finalizes the accumulated chunk sequence into a
// snapshot artifact without stopping the session. Returns nil when nothing
// has been recorded. Available after a fatal failure: whatever was captured
// before the final fault stays retrievable.
func (s *Session) CurrentArtifact() *Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result != nil {
		return s.result.Artifact
	}
	if s.sink == nil || s.sink.count() == 0 {
		return nil
	}
	return s.sink.assemble(s.mimeType)
}

// CurrentTranscript returns the live transcript; callable at any time.
func (s *Session) CurrentTranscript() string {
	return s.transcript.Current()
}

// Cleanup is the single cancellation primitive: it releases every acquired
// track, stops the encoder and transcription, and cancels pending recovery
// and max-duration timers. Safe in any state, including before the first
// Start, and idempotent.
func (s *Session) Cleanup() {
	s.mu.Lock()
	cancel := s.cancelRun
	loopDone := s.loopDone
	enc := s.encoder
	stream := s.stream
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if loopDone != nil {
		select {
		case <-loopDone:
		case <-time.After(2 * time.Second):
			s.log.Warn().Msg("session loop did not exit promptly during cleanup")
		}
	}

	// Direct teardown covers the never-started case; all of it is idempotent.
	if enc != nil {
		enc.Discard()
	}
	if stream != nil {
		stream.Release()
	}
	s.transcript.Stop()

	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

// teardown runs exactly once, when the session loop exits on any path.
func (s *Session) teardown() {
	metrics.SessionsActive.Dec()
	s.mu.Lock()
	enc := s.encoder
	stream := s.stream
	s.active = false
	s.mu.Unlock()

	if enc != nil {
		enc.Discard()
	}
	if stream != nil {
		stream.Release()
	}
	s.transcript.Stop()
}
