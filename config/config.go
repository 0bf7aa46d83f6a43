package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server
	Port           string
	TempDir        string
	LogLevel       string
	AllowedOrigins []string
	JWTSecret      string

	// Export pipeline
	LoadTimeout     time.Duration
	DriftThreshold  time.Duration
	FinalizeGrace   time.Duration
	FinalizeTimeout time.Duration
	RecordingMime   string
	OutputRetention time.Duration

	// API Keys Pool
	GeminiAPIKeys []string
	GeminiModel   string
	TTSAPIKeys    []string

	// Processing Settings
	MaxTextLength   int
	MaxUploadMB     int
	AudioChunkSize  int
	AudioSampleRate int

	// Rate Limiting
	MaxConcurrentTTSRequests int
	TTSRequestsPerSecond     float64
	RetryDelaySeconds        int
	HTTPRequestsPerSecond    float64
	HTTPBurst                int

	// Persistence
	DatabaseURL string

	// Tracing
	TracingEnabled bool
	JaegerURL      string
	Environment    string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		TempDir:        getEnv("TEMP_DIR", "./temp"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: parseList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")),
		JWTSecret:      getEnv("JWT_SECRET", ""),

		LoadTimeout:     getEnvAsSeconds("LOAD_TIMEOUT_SECONDS", 20),
		DriftThreshold:  getEnvAsSeconds("DRIFT_THRESHOLD_SECONDS", 0.2),
		FinalizeGrace:   time.Duration(getEnvAsInt("FINALIZE_GRACE_MS", 400)) * time.Millisecond,
		FinalizeTimeout: getEnvAsSeconds("FINALIZE_TIMEOUT_SECONDS", 5),
		RecordingMime:   getEnv("RECORDING_MIME_TYPE", "video/webm"),
		OutputRetention: time.Duration(getEnvAsInt("OUTPUT_RETENTION_MINUTES", 60)) * time.Minute,

		GeminiAPIKeys: parseList(getEnv("GEMINI_API_KEYS", "")),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		TTSAPIKeys:    parseList(getEnv("TTS_API_KEYS", "")),

		MaxTextLength:   getEnvAsInt("MAX_TEXT_LENGTH", 50000),
		MaxUploadMB:     getEnvAsInt("MAX_UPLOAD_MB", 512),
		AudioChunkSize:  getEnvAsInt("AUDIO_CHUNK_SIZE", 4500),
		AudioSampleRate: getEnvAsInt("AUDIO_SAMPLE_RATE", 24000),

		MaxConcurrentTTSRequests: getEnvAsInt("MAX_CONCURRENT_TTS_REQUESTS", 3),
		TTSRequestsPerSecond:     getEnvAsFloat("TTS_REQUESTS_PER_SECOND", 5),
		RetryDelaySeconds:        getEnvAsInt("RETRY_DELAY_SECONDS", 1),
		HTTPRequestsPerSecond:    getEnvAsFloat("HTTP_REQUESTS_PER_SECOND", 20),
		HTTPBurst:                getEnvAsInt("HTTP_BURST", 40),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		TracingEnabled: getEnvAsBool("TRACING_ENABLED", false),
		JaegerURL:      getEnv("JAEGER_URL", "http://localhost:14268/api/traces"),
		Environment:    getEnv("ENVIRONMENT", "development"),
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.LoadTimeout <= 0 {
		return errors.New("LOAD_TIMEOUT_SECONDS must be positive")
	}
	if c.DriftThreshold <= 0 {
		return errors.New("DRIFT_THRESHOLD_SECONDS must be positive")
	}
	if c.FinalizeGrace < 0 {
		return errors.New("FINALIZE_GRACE_MS must not be negative")
	}
	if c.FinalizeTimeout <= 0 {
		return errors.New("FINALIZE_TIMEOUT_SECONDS must be positive")
	}
	if c.RecordingMime == "" {
		return errors.New("RECORDING_MIME_TYPE is required")
	}
	if c.AudioChunkSize <= 0 {
		return errors.New("AUDIO_CHUNK_SIZE must be positive")
	}
	if c.AudioSampleRate <= 0 {
		return errors.New("AUDIO_SAMPLE_RATE must be positive")
	}
	if c.MaxConcurrentTTSRequests <= 0 {
		return errors.New("MAX_CONCURRENT_TTS_REQUESTS must be positive")
	}
	if c.MaxUploadMB <= 0 {
		return errors.New("MAX_UPLOAD_MB must be positive")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSeconds(key string, defaultValue float64) time.Duration {
	return time.Duration(getEnvAsFloat(key, defaultValue) * float64(time.Second))
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func parseList(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func (c *Config) String() string {
	return fmt.Sprintf("Config{Port: %s, Gemini Keys: %d, TTS Keys: %d, Drift: %s, Grace: %s, Mime: %s, Database: %t}",
		c.Port, len(c.GeminiAPIKeys), len(c.TTSAPIKeys), c.DriftThreshold, c.FinalizeGrace, c.RecordingMime, c.DatabaseURL != "")
}
