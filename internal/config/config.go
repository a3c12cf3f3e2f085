// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend selects the answer persistence backend.
const (
	BackendLocal  = "local"
	BackendRemote = "remote"
)

// Config holds all application configuration.
type Config struct {
	Backend    string // "local" or "remote"
	APIBaseURL string // remote backend
	APIToken   string
	DBPath     string // device-local progress database

	QuestionSetPath string
	SceneConfigPath string

	CategoryID      int
	CategoryName    string
	QuestionCount   int
	PrimaryCategory string // the category that opens every sitting

	IntroThreshold time.Duration

	Server ServerConfig
}

// ServerConfig configures the development answer server.
type ServerConfig struct {
	Port           string
	DBPath         string
	Token          string   // empty disables auth
	AllowedOrigins []string // CORS origins for a browser front-end
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	hours := getEnvInt("INTRO_THRESHOLD_HOURS", 4)
	if hours <= 0 {
		hours = 4
	}

	cfg := &Config{
		Backend:    getEnv("BACKEND", BackendLocal),
		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:8090"),
		APIToken:   getEnv("API_TOKEN", ""),
		DBPath:     getEnv("DB_PATH", "./data/progress.db"),

		QuestionSetPath: getEnv("QUESTION_SET_PATH", "./configs/questions.json"),
		SceneConfigPath: getEnv("SCENE_CONFIG_PATH", "./configs/scenes.json"),

		CategoryID:      getEnvInt("CATEGORY_ID", 1),
		CategoryName:    getEnv("CATEGORY_NAME", "marketplace"),
		QuestionCount:   getEnvInt("QUESTION_COUNT", 20),
		PrimaryCategory: getEnv("PRIMARY_CATEGORY", "marketplace"),

		IntroThreshold: time.Duration(hours) * time.Hour,

		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8090"),
			DBPath:         getEnv("SERVER_DB_PATH", "./data/server.db"),
			Token:          getEnv("SERVER_TOKEN", ""),
			AllowedOrigins: splitList(getEnv("SERVER_ALLOWED_ORIGINS", "*")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Backend != BackendLocal && c.Backend != BackendRemote {
		return fmt.Errorf("BACKEND must be %q or %q", BackendLocal, BackendRemote)
	}
	if c.Backend == BackendRemote && c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL cannot be empty with the remote backend")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.QuestionSetPath == "" {
		return fmt.Errorf("QUESTION_SET_PATH cannot be empty")
	}
	if c.CategoryID <= 0 {
		return fmt.Errorf("CATEGORY_ID must be > 0")
	}
	if c.CategoryName == "" {
		return fmt.Errorf("CATEGORY_NAME cannot be empty")
	}
	if c.QuestionCount <= 0 {
		return fmt.Errorf("QUESTION_COUNT must be > 0")
	}
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}
	return nil
}

// Primary reports whether the configured category is the distinguished
// entry category.
func (c *Config) Primary() bool {
	return strings.EqualFold(c.CategoryName, c.PrimaryCategory)
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
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
