package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir()) // keep a developer .env out of the test
	for _, key := range []string{"PORT", "LOAD_TIMEOUT_SECONDS", "DRIFT_THRESHOLD_SECONDS", "FINALIZE_GRACE_MS",
		"FINALIZE_TIMEOUT_SECONDS", "RECORDING_MIME_TYPE", "TTS_API_KEYS", "ALLOWED_ORIGINS", "DATABASE_URL"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.LoadTimeout != 20*time.Second {
		t.Errorf("LoadTimeout = %s, want 20s", cfg.LoadTimeout)
	}
	if cfg.DriftThreshold != 200*time.Millisecond {
		t.Errorf("DriftThreshold = %s, want 200ms", cfg.DriftThreshold)
	}
	if cfg.FinalizeGrace != 400*time.Millisecond {
		t.Errorf("FinalizeGrace = %s, want 400ms", cfg.FinalizeGrace)
	}
	if cfg.RecordingMime != "video/webm" {
		t.Errorf("RecordingMime = %q, want video/webm", cfg.RecordingMime)
	}
	if len(cfg.TTSAPIKeys) != 0 {
		t.Errorf("TTSAPIKeys = %v, want none", cfg.TTSAPIKeys)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Errorf("AllowedOrigins = %v, want 2 entries", cfg.AllowedOrigins)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TTS_API_KEYS", " a, b ,,c ")
	t.Setenv("DRIFT_THRESHOLD_SECONDS", "0.35")
	t.Setenv("FINALIZE_GRACE_MS", "300")
	t.Setenv("TRACING_ENABLED", "true")
	t.Setenv("MAX_UPLOAD_MB", "not-a-number")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if got := strings.Join(cfg.TTSAPIKeys, "|"); got != "a|b|c" {
		t.Errorf("TTSAPIKeys = %q, want a|b|c", got)
	}
	if cfg.DriftThreshold != 350*time.Millisecond {
		t.Errorf("DriftThreshold = %s, want 350ms", cfg.DriftThreshold)
	}
	if cfg.FinalizeGrace != 300*time.Millisecond {
		t.Errorf("FinalizeGrace = %s, want 300ms", cfg.FinalizeGrace)
	}
	if !cfg.TracingEnabled {
		t.Error("TracingEnabled = false, want true")
	}
	if cfg.MaxUploadMB != 512 {
		t.Errorf("MaxUploadMB = %d, want fallback 512", cfg.MaxUploadMB)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			LoadTimeout:              time.Second,
			DriftThreshold:           200 * time.Millisecond,
			FinalizeGrace:            400 * time.Millisecond,
			FinalizeTimeout:          time.Second,
			RecordingMime:            "video/webm",
			AudioChunkSize:           4500,
			AudioSampleRate:          24000,
			MaxConcurrentTTSRequests: 1,
			MaxUploadMB:              1,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"zero grace is allowed", func(c *Config) { c.FinalizeGrace = 0 }, ""},
		{"zero load timeout", func(c *Config) { c.LoadTimeout = 0 }, "LOAD_TIMEOUT_SECONDS"},
		{"negative threshold", func(c *Config) { c.DriftThreshold = -time.Millisecond }, "DRIFT_THRESHOLD_SECONDS"},
		{"negative grace", func(c *Config) { c.FinalizeGrace = -time.Millisecond }, "FINALIZE_GRACE_MS"},
		{"zero finalize timeout", func(c *Config) { c.FinalizeTimeout = 0 }, "FINALIZE_TIMEOUT_SECONDS"},
		{"empty mime", func(c *Config) { c.RecordingMime = "" }, "RECORDING_MIME_TYPE"},
		{"zero chunk size", func(c *Config) { c.AudioChunkSize = 0 }, "AUDIO_CHUNK_SIZE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestParseList(t *testing.T) {
	if got := parseList(""); len(got) != 0 {
		t.Errorf("parseList(\"\") = %v, want empty", got)
	}
	if got := parseList("x"); len(got) != 1 || got[0] != "x" {
		t.Errorf("parseList(\"x\") = %v", got)
	}
}
