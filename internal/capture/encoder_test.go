package capture

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNegotiateMIMEType(t *testing.T) {
	tests := []struct {
		name      string
		preferred []string
		supported []string
		want      string
	}{
		{"first_preferred_wins", []string{"video/webm;codecs=vp9", "video/webm"}, []string{"video/webm", "video/webm;codecs=vp9"}, "video/webm;codecs=vp9"},
		{"falls_through_to_second", []string{"video/mp4", "video/webm"}, []string{"video/webm"}, "video/webm"},
		{"nothing_supported_falls_back", []string{"video/mp4"}, []string{"video/x-matroska"}, DefaultMIMEType},
		{"empty_preferences_fall_back", nil, []string{"video/mp4"}, DefaultMIMEType},
		{"empty_supported_falls_back", []string{"video/mp4"}, nil, DefaultMIMEType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NegotiateMIMEType(tt.preferred, tt.supported); got != tt.want {
				t.Errorf("NegotiateMIMEType = %q, want %q", got, tt.want)
			}
		})
	}
}

func newTestEncoder(t *testing.T, timeslice time.Duration) (*Encoder, *io.PipeWriter, *chunkLog, chan error) {
	t.Helper()
	pr, pw := io.Pipe()
	stream := NewStream(SourceWebcam, []*Track{NewTrack(TrackVideo)}, pr)
	sink := &chunkLog{}
	errCh := make(chan error, 1)
	enc := NewEncoder(EncoderOptions{
		Stream:   stream,
		Sink:     sink,
		MIMEType: "video/webm",
		OnError: func(err error) {
			select {
			case errCh <- err:
			default:
			}
		},
		Log: zerolog.Nop(),
	})
	enc.Start(timeslice)
	t.Cleanup(func() {
		enc.Discard()
		stream.Release()
	})
	return enc, pw, sink, errCh
}

func TestEncoderStop(t *testing.T) {
	t.Run("flushes_pending_and_finalizes", func(t *testing.T) {
		// Huge timeslice: everything stays pending until Stop.
		enc, pw, _, _ := newTestEncoder(t, time.Hour)
		pw.Write(fill('x', 1234))
		time.Sleep(20 * time.Millisecond) // let the read loop drain the pipe

		a, err := enc.Stop()
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
		if a.Size() != 1234 {
			t.Errorf("artifact size = %d, want 1234", a.Size())
		}
		if a.MIMEType != "video/webm" {
			t.Errorf("MIMEType = %q", a.MIMEType)
		}

		a2, err := enc.Stop()
		if err != nil {
			t.Fatalf("second Stop: %v", err)
		}
		if a2 != a {
			t.Error("second Stop returned a different artifact reference")
		}
	})

	t.Run("no_chunks_is_an_error", func(t *testing.T) {
		enc, _, _, _ := newTestEncoder(t, time.Hour)
		if _, err := enc.Stop(); !errors.Is(err, ErrNoActiveRecording) {
			t.Errorf("Stop = %v, want ErrNoActiveRecording", err)
		}
	})

	t.Run("zero_length_chunks_discarded", func(t *testing.T) {
		enc, pw, sink, _ := newTestEncoder(t, 10*time.Millisecond)
		pw.Write(fill('x', 100))
		waitFor(t, time.Second, "chunk", func() bool { return sink.count() == 1 })
		// Several empty timeslices pass; no empty chunks may appear.
		time.Sleep(50 * time.Millisecond)
		if got := sink.count(); got != 1 {
			t.Errorf("chunk count = %d, want 1", got)
		}
		a, err := enc.Stop()
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
		if a.Size() != 100 {
			t.Errorf("size = %d, want 100", a.Size())
		}
	})
}

func TestEncoderDiscard(t *testing.T) {
	t.Run("drops_inflight_bytes", func(t *testing.T) {
		enc, pw, sink, _ := newTestEncoder(t, time.Hour)
		pw.Write(fill('x', 300))
		time.Sleep(20 * time.Millisecond)
		enc.Discard()
		if got := sink.count(); got != 0 {
			t.Errorf("chunks after Discard = %d, want 0", got)
		}
	})

	t.Run("preserves_flushed_chunks", func(t *testing.T) {
		enc, pw, sink, _ := newTestEncoder(t, time.Hour)
		sink.append(fill('a', 300)) // prior epoch's chunk
		pw.Write(fill('x', 200))
		time.Sleep(20 * time.Millisecond)
		enc.Discard()
		if got, want := sink.count(), 1; got != want {
			t.Errorf("chunks after Discard = %d, want %d", got, want)
		}
		if got := sink.bytes(); got != 300 {
			t.Errorf("bytes after Discard = %d, want 300", got)
		}
	})
}

func TestEncoderFeedErrorRaised(t *testing.T) {
	_, pw, _, errCh := newTestEncoder(t, 10*time.Millisecond)
	pw.CloseWithError(errors.New("camera unplugged"))

	select {
	case err := <-errCh:
		var ee *EncoderError
		if !errors.As(err, &ee) {
			t.Fatalf("error = %v, want *EncoderError", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for encoder error")
	}
}

func TestEncoderNoErrorAfterStop(t *testing.T) {
	enc, pw, _, errCh := newTestEncoder(t, 10*time.Millisecond)
	pw.Write(fill('x', 50))
	time.Sleep(20 * time.Millisecond) // let the read loop drain the pipe
	if _, err := enc.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	pw.CloseWithError(errors.New("late failure"))

	select {
	case err := <-errCh:
		t.Fatalf("unexpected encoder error after Stop: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}
