// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	AppName     string
	ImageDir    string
	Gemini      GeminiConfig
	Persist     PersistConfig
}

// GeminiConfig holds Gemini API settings.
type GeminiConfig struct {
	APIKey        string
	LiveModelID   string
	LessonModelID string
	ImageModelID  string
	VoiceName     string
}

// PersistConfig controls the asynchronous persistence gateway.
type PersistConfig struct {
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("PERSIST_QUEUE_SIZE", 256)
	if queueSize <= 0 {
		queueSize = 256
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/kido.db"),
		AppName:     getEnv("APP_NAME", "kido-app-462308"),
		ImageDir:    getEnv("IMAGE_DIR", "./data/images"),
		Gemini: GeminiConfig{
			APIKey:        getEnv("GOOGLE_API_KEY", ""),
			LiveModelID:   getEnv("LIVE_MODEL_ID", "gemini-2.0-flash-live-001"),
			LessonModelID: getEnv("LESSON_MODEL_ID", "gemini-2.5-flash"),
			ImageModelID:  getEnv("IMAGE_MODEL_ID", "imagen-3.0-generate-002"),
			VoiceName:     getEnv("VOICE_NAME", "Aoede"),
		},
		Persist: PersistConfig{
			QueueSize: queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.AppName == "" {
		return fmt.Errorf("APP_NAME cannot be empty")
	}
	if c.ImageDir == "" {
		return fmt.Errorf("IMAGE_DIR cannot be empty")
	}
	if c.Gemini.APIKey == "" {
		return fmt.Errorf("GOOGLE_API_KEY cannot be empty")
	}
	if c.Gemini.LiveModelID == "" {
		return fmt.Errorf("LIVE_MODEL_ID cannot be empty")
	}
	if c.Gemini.LessonModelID == "" {
		return fmt.Errorf("LESSON_MODEL_ID cannot be empty")
	}
	if c.Persist.QueueSize <= 0 {
		return fmt.Errorf("PERSIST_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}
