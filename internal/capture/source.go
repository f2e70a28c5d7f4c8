package capture

import (
	"context"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// SourceKind selects what a device acquisition captures.
type SourceKind string

const (
	SourceWebcam SourceKind = "webcam"
	SourceScreen SourceKind = "screen"
)

// TrackKind is the media type carried by a track.
type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// TrackState is a track's ready state.
type TrackState string

const (
	TrackLive  TrackState = "live"
	TrackMuted TrackState = "muted"
	TrackEnded TrackState = "ended"
)

// TrackEventType names an asynchronous track lifecycle transition.
type TrackEventType string

const (
	TrackEventEnded   TrackEventType = "ended"
	TrackEventMuted   TrackEventType = "muted"
	TrackEventUnmuted TrackEventType = "unmuted"
)

// Track is one live media track within a stream.
type Track struct {
	Kind TrackKind

	mu    sync.Mutex
	state TrackState
}

// NewTrack creates a live track of the given kind.
func NewTrack(kind TrackKind) *Track {
	return &Track{Kind: kind, state: TrackLive}
}

// State returns the track's current ready state.
func (t *Track) State() TrackState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SetState updates the ready state. Devices call this before pushing the
// matching event; an ended track never transitions back.
func (t *Track) SetState(s TrackState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == TrackEnded {
		return
	}
	t.state = s
}

// TrackEvent is an asynchronous lifecycle notification raised by a device
// after acquisition succeeded.
type TrackEvent struct {
	Track *Track
	Type  TrackEventType
}

// Stream is the handle to an acquired set of live tracks plus their encoded
// media feed. Exclusively owned by one recording session; Release invalidates
// it and is safe to call more than once.
type Stream struct {
	kind   SourceKind
	tracks []*Track
	feed   io.ReadCloser

	events chan TrackEvent

	releaseOnce sync.Once
}

// NewStream builds a stream handle around live tracks and their encoded feed.
// Device implementations push track events through PushEvent.
func NewStream(kind SourceKind, tracks []*Track, feed io.ReadCloser) *Stream {
	return &Stream{
		kind:   kind,
		tracks: tracks,
		feed:   feed,
		events: make(chan TrackEvent, 16),
	}
}

// Kind returns what this stream captures.
func (s *Stream) Kind() SourceKind { return s.kind }

// Tracks returns the stream's tracks.
func (s *Stream) Tracks() []*Track { return s.tracks }

// Events is the track lifecycle notification channel. Closed on Release.
func (s *Stream) Events() <-chan TrackEvent { return s.events }

// Read reads encoded media bytes from the feed.
func (s *Stream) Read(p []byte) (int, error) { return s.feed.Read(p) }

// Active reports whether every track is still live.
func (s *Stream) Active() bool {
	for _, t := range s.tracks {
		if t.State() != TrackLive {
			return false
		}
	}
	return len(s.tracks) > 0
}

// PushEvent delivers a track notification without blocking. Devices call this
// from their own goroutines; a full queue drops the event (the supervisor
// only needs one failure signal per fault).
func (s *Stream) PushEvent(ev TrackEvent) {
	select {
	case s.events <- ev:
	default:
	}
}

// Release stops every track and closes the feed and event channel.
// Idempotent: safe on an already-released handle.
func (s *Stream) Release() {
	s.releaseOnce.Do(func() {
		for _, t := range s.tracks {
			t.SetState(TrackEnded)
		}
		s.feed.Close()
		close(s.events)
	})
}

// Device opens live media streams and reports the encoding formats the
// runtime supports.
type Device interface {
	Open(ctx context.Context, kind SourceKind) (*Stream, error)
	SupportedTypes() []string
}

// Acquirer opens streams through a device and validates them before handing
// them to the rest of the session.
type Acquirer struct {
	device Device
	log    zerolog.Logger
}

// NewAcquirer creates a stream acquirer over the given device.
func NewAcquirer(device Device, log zerolog.Logger) *Acquirer {
	return &Acquirer{
		device: device,
		log:    log.With().Str("component", "acquirer").Logger(),
	}
}

// Acquire opens a stream of the given kind and validates it: a handle is
// valid only when it has at least one track and every track is live.
// Failures are *AcquisitionError; there is no automatic retry here.
func (a *Acquirer) Acquire(ctx context.Context, kind SourceKind) (*Stream, error) {
	stream, err := a.device.Open(ctx, kind)
	if err != nil {
		return nil, &AcquisitionError{Kind: kind, Reason: "device open failed", Err: err}
	}
	if len(stream.Tracks()) == 0 {
		stream.Release()
		return nil, &AcquisitionError{Kind: kind, Reason: "stream has no tracks"}
	}
	for _, t := range stream.Tracks() {
		if st := t.State(); st != TrackLive {
			stream.Release()
			return nil, &AcquisitionError{Kind: kind, Reason: "track " + string(t.Kind) + " is " + string(st)}
		}
	}
	a.log.Debug().Str("kind", string(kind)).Int("tracks", len(stream.Tracks())).Msg("stream acquired")
	return stream, nil
}
