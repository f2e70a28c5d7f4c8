// capture-rec records a single assessment answer from a webcam or screen
// capture device, transcribes it while recording, and either uploads the
// result to a capture-engine server or saves it locally.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/skillproof/capture-engine/internal/capture"
	"github.com/skillproof/capture-engine/internal/config"
	"github.com/skillproof/capture-engine/internal/device"
	"github.com/skillproof/capture-engine/internal/recognize"
	"github.com/skillproof/capture-engine/internal/storage"
	"github.com/skillproof/capture-engine/internal/uploader"
)

var version = "dev"

func main() {
	envFile := flag.String("env", "", "path to .env file")
	logLevel := flag.String("log-level", "", "log level (overrides LOG_LEVEL)")
	owner := flag.String("owner", "", "owner id for upload and storage keys (required)")
	source := flag.String("source", "webcam", "capture source: webcam or screen")
	duration := flag.Duration("duration", 0, "stop automatically after this long (0 = question default)")
	serverURL := flag.String("server", "", "capture-engine base URL; empty saves locally instead")
	recognizerURL := flag.String("recognizer", "", "speech recognition websocket URL (overrides RECOGNIZER_URL)")
	videoInput := flag.String("video-input", "", "ffmpeg video input device override")
	audioInput := flag.String("audio-input", "", "ffmpeg audio input device override")
	flag.Parse()

	cfg, err := config.Load(config.Overrides{EnvFile: *envFile, LogLevel: *logLevel, RecognizerURL: *recognizerURL})
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("capture-rec starting")

	if *owner == "" {
		log.Fatal().Msg("-owner is required")
	}
	var kind capture.SourceKind
	switch *source {
	case "webcam":
		kind = capture.SourceWebcam
	case "screen":
		kind = capture.SourceScreen
	default:
		log.Fatal().Str("source", *source).Msg("unknown capture source")
	}
	if !device.CheckFFmpeg() {
		log.Fatal().Msg("ffmpeg not found in PATH")
	}

	maxDuration := *duration
	if maxDuration <= 0 {
		maxDuration = time.Duration(cfg.MaxQuestionSeconds) * time.Second
	}

	dev := device.New(device.Options{
		VideoInput: *videoInput,
		AudioInput: *audioInput,
		Log:        log,
	})
	rec := recognize.New(cfg.RecognizerURL, cfg.RecognizerTimeout, log)

	session := capture.NewSession(capture.SessionOptions{
		Device:         dev,
		Recognizer:     rec,
		PreferredTypes: cfg.PreferredTypes,
		Timeslice:      cfg.ChunkTimeslice,
		MaxRetries:     cfg.MaxRetries,
		StallFloor:     cfg.StallFloor,
		Log:            log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := session.Start(ctx, kind, maxDuration); err != nil {
		log.Fatal().Err(err).Msg("failed to start recording")
	}
	log.Info().Str("source", *source).Dur("max_duration", maxDuration).Msg("recording, press Ctrl-C to stop")

	select {
	case <-ctx.Done():
	case <-time.After(maxDuration + time.Second):
		log.Info().Msg("max duration reached")
	}
	stop()

	result, err := session.Stop()
	if err != nil {
		// A failed session may still carry a usable partial artifact.
		if partial := session.CurrentArtifact(); partial != nil {
			log.Warn().Err(err).Int("bytes", partial.Size()).Msg("recording failed, keeping partial artifact")
			result = capture.Result{Artifact: partial, Transcript: session.CurrentTranscript()}
		} else {
			session.Cleanup()
			log.Fatal().Err(err).Msg("recording failed with nothing recoverable")
		}
	}
	defer session.Cleanup()

	transcript := result.Transcript
	if session.Transcription().Degraded() || !rec.Supported() {
		// Try batch transcription of the finished artifact first, then fall
		// back to manual entry.
		batch := recognize.NewBatch(cfg.BatchSTTURL, cfg.BatchSTTAPIKey, cfg.BatchSTTTimeout)
		if batch.Configured() {
			if text, err := batch.Transcribe(context.Background(), result.Artifact); err != nil {
				log.Warn().Err(err).Msg("batch transcription failed")
			} else if text != "" {
				transcript = text
			}
		}
		if transcript == "" || session.Transcription().Degraded() {
			transcript = promptManualTranscript(transcript)
		}
		session.Transcription().SetManual(transcript)
	}

	field := uploader.FieldWebcam
	if kind == capture.SourceScreen {
		field = uploader.FieldScreen
	}

	if *serverURL != "" {
		client := uploader.New(*serverURL, 2*time.Minute, log)
		ref, err := client.Upload(context.Background(), result.Artifact, field, *owner)
		if err != nil {
			log.Fatal().Err(err).Msg("upload failed")
		}
		log.Info().Str("url", ref).Msg("uploaded")
		fmt.Println(ref)
	} else {
		store := storage.NewLocalStore(cfg.RecordingsDir)
		key := *owner + "/" + time.Now().UTC().Format("2006-01-02") + "/" +
			field + "-" + fmt.Sprintf("%d", time.Now().Unix()) + ".webm"
		if err := store.Save(context.Background(), key, result.Artifact.Data, result.Artifact.MIMEType); err != nil {
			log.Fatal().Err(err).Msg("failed to save recording")
		}
		log.Info().Str("path", store.LocalPath(key)).Msg("saved recording")
		fmt.Println(store.LocalPath(key))
	}

	if transcript != "" {
		fmt.Println("transcript:", transcript)
	}
}

// promptManualTranscript asks the user to confirm or replace the transcript
// when live recognition was unavailable or degraded.
func promptManualTranscript(current string) string {
	fmt.Fprintln(os.Stderr, "live transcription unavailable; enter transcript (empty keeps current):")
	if current != "" {
		fmt.Fprintln(os.Stderr, "current:", current)
	}
	sc := bufio.NewScanner(os.Stdin)
	if sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			return line
		}
	}
	return current
}
