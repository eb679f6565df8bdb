// Package config provides configuration management for Kue.
package config

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mundigis/kue/pkg/llm/local"
)

// Config holds all configuration for the Kue server.
type Config struct {
	// ServerAddr is the address the HTTP server listens on (e.g., ":8000").
	ServerAddr string

	// DataDir is the directory for persistent data (SQLite DB, etc.).
	DataDir string

	// DatabasePath is the full path to the SQLite database file.
	DatabasePath string

	// Local inference service (optional). The client degrades gracefully
	// when nothing is listening at LocalLLMURL.
	LocalLLMURL   string
	LocalLLMModel string

	// Hosted chat providers. An empty key leaves the provider unconfigured.
	OpenAIAPIKey string
	OpenAIModel  string
	GoogleAPIKey string
	GeminiModel  string

	// RequestTimeout bounds each HTTP request handled by the server.
	RequestTimeout time.Duration
}

// Load creates a Config from the config file and environment variables.
// Values are resolved in order: environment variable > config file > default.
func Load() (*Config, error) {
	// Load config file (~/.kue/config.env) into the environment.
	// Existing env vars take precedence (loadConfigFile only sets unset vars).
	loadConfigFile()

	dataDir := envOr("KUE_DATA_DIR", DefaultDataDir())
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	cfg := &Config{
		ServerAddr:     envOr("KUE_ADDR", ":8000"),
		DataDir:        dataDir,
		DatabasePath:   filepath.Join(dataDir, "kue.db"),
		LocalLLMURL:    envOr("KUE_LOCAL_LLM_URL", local.DefaultBaseURL),
		LocalLLMModel:  envOr("OLLAMA_MODEL", local.DefaultModel),
		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:    os.Getenv("OPENAI_MODEL"),
		GoogleAPIKey:   os.Getenv("GOOGLE_API_KEY"),
		GeminiModel:    os.Getenv("GEMINI_MODEL"),
		RequestTimeout: envOrDuration("KUE_REQUEST_TIMEOUT", 2*time.Minute),
	}

	return cfg, nil
}

// FilePath returns the path of the config.env file.
func FilePath() string {
	return filepath.Join(DefaultDataDir(), "config.env")
}

// loadConfigFile copies values from ~/.kue/config.env into the environment
// for keys that are not already set, so env vars always win.
func loadConfigFile() {
	values, err := ReadFile()
	if err != nil {
		return // unreadable file is treated as absent
	}
	for key, value := range values {
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// ReadFile returns the key=value pairs stored in the config file. A missing
// file yields an empty map.
func ReadFile() (map[string]string, error) {
	values := make(map[string]string)

	f, err := os.Open(FilePath())
	if err != nil {
		if os.IsNotExist(err) {
			return values, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if key, value, ok := strings.Cut(line, "="); ok {
			values[key] = value
		}
	}
	return values, scanner.Err()
}

// WriteFile replaces the config file with values. Keys listed in order come
// first, remaining keys follow alphabetically; empty values are dropped.
func WriteFile(values map[string]string, order []string) error {
	path := FilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	var b strings.Builder
	b.WriteString("# Kue configuration\n")
	b.WriteString("# Managed by: kue config\n")
	b.WriteString("# Environment variables override these values.\n\n")

	written := make(map[string]bool, len(values))
	emit := func(key string) {
		if v := values[key]; v != "" && !written[key] {
			fmt.Fprintf(&b, "%s=%s\n", key, v)
			written[key] = true
		}
	}
	for _, key := range order {
		emit(key)
	}
	rest := make([]string, 0, len(values))
	for key := range values {
		rest = append(rest, key)
	}
	sort.Strings(rest)
	for _, key := range rest {
		emit(key)
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is usable. Provider keys are all
// optional; only the listen address and the local service URL are checked.
func (c *Config) Validate() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("KUE_ADDR must not be empty")
	}
	u, err := url.Parse(c.LocalLLMURL)
	if err != nil {
		return fmt.Errorf("KUE_LOCAL_LLM_URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("KUE_LOCAL_LLM_URL must be an http(s) URL, got %q", c.LocalLLMURL)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("KUE_REQUEST_TIMEOUT must be positive")
	}
	return nil
}

// OpenAIEnabled returns true if an OpenAI API key is configured.
func (c *Config) OpenAIEnabled() bool {
	return c.OpenAIAPIKey != ""
}

// GoogleEnabled returns true if a Google API key is configured.
func (c *Config) GoogleEnabled() bool {
	return c.GoogleAPIKey != ""
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// DefaultDataDir returns ~/.kue, or .kue when the home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kue"
	}
	return filepath.Join(home, ".kue")
}
