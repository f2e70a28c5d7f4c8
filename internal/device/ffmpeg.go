// Package device provides the capture.Device implementation used by the CLI:
// an ffmpeg child process per acquisition, its stdout serving as the encoded
// media feed and its exit as the track-ended signal.
package device

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
	"github.com/skillproof/capture-engine/internal/capture"
)

// ffmpegAvailable caches whether ffmpeg is in PATH (checked once at startup).
var (
	ffmpegOnce  sync.Once
	ffmpegFound bool
)

// CheckFFmpeg reports whether ffmpeg is available in PATH.
func CheckFFmpeg() bool {
	ffmpegOnce.Do(func() {
		_, err := exec.LookPath("ffmpeg")
		ffmpegFound = err == nil
	})
	return ffmpegFound
}

// Options configures an FFmpeg capture device.
type Options struct {
	// VideoInput overrides the platform default capture input
	// (e.g. /dev/video0 for v4l2, :0.0 for x11grab).
	VideoInput string
	// AudioInput overrides the platform default audio input device.
	AudioInput string
	Log        zerolog.Logger
}

// FFmpeg captures webcam or screen media by spawning an ffmpeg process that
// encodes to webm on stdout.
type FFmpeg struct {
	opts Options
	log  zerolog.Logger
}

// New creates an ffmpeg-backed capture device.
func New(opts Options) *FFmpeg {
	return &FFmpeg{
		opts: opts,
		log:  opts.Log.With().Str("component", "ffmpeg-device").Logger(),
	}
}

// SupportedTypes lists the encodings the ffmpeg pipeline can produce, best
// first.
func (f *FFmpeg) SupportedTypes() []string {
	return []string{"video/webm;codecs=vp9", "video/webm;codecs=vp8", "video/webm"}
}

// Open spawns an ffmpeg process capturing the requested source and wraps its
// stdout pipe as the stream's encoded feed. Process exit marks every track
// ended and raises the matching track events.
func (f *FFmpeg) Open(ctx context.Context, kind capture.SourceKind) (*capture.Stream, error) {
	if !CheckFFmpeg() {
		return nil, fmt.Errorf("ffmpeg not found in PATH")
	}

	args, err := f.captureArgs(kind)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	video := capture.NewTrack(capture.TrackVideo)
	audio := capture.NewTrack(capture.TrackAudio)
	stream := capture.NewStream(kind, []*capture.Track{video, audio}, stdout)

	// Process exit before Release means the capture died under us.
	go func() {
		err := cmd.Wait()
		if video.State() == capture.TrackEnded {
			return // released; expected exit
		}
		f.log.Warn().Err(err).Str("kind", string(kind)).Msg("ffmpeg exited unexpectedly")
		video.SetState(capture.TrackEnded)
		audio.SetState(capture.TrackEnded)
		stream.PushEvent(capture.TrackEvent{Track: video, Type: capture.TrackEventEnded})
	}()

	f.log.Info().Str("kind", string(kind)).Int("pid", cmd.Process.Pid).Msg("capture process started")
	return stream, nil
}

// captureArgs builds the platform-specific ffmpeg invocation: raw device in,
// vp9 webm out on stdout.
func (f *FFmpeg) captureArgs(kind capture.SourceKind) ([]string, error) {
	var in []string
	switch runtime.GOOS {
	case "linux":
		switch kind {
		case capture.SourceWebcam:
			video := f.opts.VideoInput
			if video == "" {
				video = "/dev/video0"
			}
			in = []string{"-f", "v4l2", "-i", video}
		case capture.SourceScreen:
			display := f.opts.VideoInput
			if display == "" {
				display = ":0.0"
			}
			in = []string{"-f", "x11grab", "-i", display}
		default:
			return nil, fmt.Errorf("unknown source kind %q", kind)
		}
		audio := f.opts.AudioInput
		if audio == "" {
			audio = "default"
		}
		in = append(in, "-f", "pulse", "-i", audio)
	case "darwin":
		input := f.opts.VideoInput
		if input == "" {
			if kind == capture.SourceScreen {
				input = "1:0" // first screen + first audio device
			} else {
				input = "0:0"
			}
		}
		in = []string{"-f", "avfoundation", "-i", input}
	default:
		return nil, fmt.Errorf("capture not supported on %s", runtime.GOOS)
	}

	out := []string{
		"-c:v", "libvpx-vp9", "-deadline", "realtime", "-cpu-used", "8",
		"-c:a", "libopus",
		"-f", "webm",
		"-loglevel", "error",
		"pipe:1",
	}
	return append(append([]string{"-hide_banner"}, in...), out...), nil
}
