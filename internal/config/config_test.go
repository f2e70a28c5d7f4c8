package config

import (
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTPAddr != ":8080" {
			t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "info" {
			t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
		}
		if cfg.RecordingsDir != "./recordings" {
			t.Errorf("RecordingsDir = %q, want ./recordings", cfg.RecordingsDir)
		}
		if cfg.ChunkTimeslice != 250*time.Millisecond {
			t.Errorf("ChunkTimeslice = %v, want 250ms", cfg.ChunkTimeslice)
		}
		if cfg.MaxRetries != 3 {
			t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
		}
		if cfg.StallFloor != 5*time.Second {
			t.Errorf("StallFloor = %v, want 5s", cfg.StallFloor)
		}
		if len(cfg.PreferredTypes) != 3 || cfg.PreferredTypes[0] != "video/webm;codecs=vp9" {
			t.Errorf("PreferredTypes = %v, want vp9-first webm list", cfg.PreferredTypes)
		}
		if cfg.MaxQuestionSeconds != 300 {
			t.Errorf("MaxQuestionSeconds = %d, want 300", cfg.MaxQuestionSeconds)
		}
		if cfg.MaxAssessmentSeconds != 3600 {
			t.Errorf("MaxAssessmentSeconds = %d, want 3600", cfg.MaxAssessmentSeconds)
		}
		if cfg.S3.Enabled() {
			t.Error("S3.Enabled() = true without a bucket")
		}
	})

	t.Run("cli_overrides_take_priority", func(t *testing.T) {
		cfg, err := Load(Overrides{
			EnvFile:       "nonexistent.env",
			HTTPAddr:      ":9090",
			LogLevel:      "debug",
			RecordingsDir: "/tmp/recordings",
			RecognizerURL: "ws://override:9000/listen",
		})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTPAddr != ":9090" {
			t.Errorf("HTTPAddr = %q, want :9090", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "debug" {
			t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
		}
		if cfg.RecordingsDir != "/tmp/recordings" {
			t.Errorf("RecordingsDir = %q, want /tmp/recordings", cfg.RecordingsDir)
		}
		if cfg.RecognizerURL != "ws://override:9000/listen" {
			t.Errorf("RecognizerURL = %q, want override", cfg.RecognizerURL)
		}
	})

	t.Run("env_vars_read", func(t *testing.T) {
		t.Setenv("S3_BUCKET", "assessments")
		t.Setenv("S3_ENDPOINT", "http://minio:9000")
		t.Setenv("MAX_RECOVERY_RETRIES", "5")

		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if !cfg.S3.Enabled() {
			t.Error("S3.Enabled() = false, want true")
		}
		if cfg.S3.Bucket != "assessments" {
			t.Errorf("S3.Bucket = %q, want assessments", cfg.S3.Bucket)
		}
		if cfg.S3.Endpoint != "http://minio:9000" {
			t.Errorf("S3.Endpoint = %q, want http://minio:9000", cfg.S3.Endpoint)
		}
		if cfg.MaxRetries != 5 {
			t.Errorf("MaxRetries = %d, want 5", cfg.MaxRetries)
		}
	})
}
