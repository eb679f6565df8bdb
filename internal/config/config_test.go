package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mundigis/kue/internal/config"
	"github.com/mundigis/kue/pkg/llm/local"
)

// clearConfigEnv unsets all environment variables that Load reads so each
// sub-test starts from a clean slate. HOME is pointed at a temp dir so a
// developer's ~/.kue/config.env never leaks into the tests.
func clearConfigEnv(t *testing.T) string {
	t.Helper()
	for _, key := range []string{
		"KUE_ADDR",
		"KUE_DATA_DIR",
		"KUE_LOCAL_LLM_URL",
		"KUE_REQUEST_TIMEOUT",
		"OLLAMA_MODEL",
		"OPENAI_API_KEY",
		"OPENAI_MODEL",
		"GOOGLE_API_KEY",
		"GEMINI_MODEL",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

func TestLoad_Defaults(t *testing.T) {
	clearConfigEnv(t)

	tmpDir := t.TempDir()
	t.Setenv("KUE_DATA_DIR", tmpDir)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	checks := []struct {
		field string
		got   string
		want  string
	}{
		{"ServerAddr", cfg.ServerAddr, ":8000"},
		{"DataDir", cfg.DataDir, tmpDir},
		{"DatabasePath", cfg.DatabasePath, filepath.Join(tmpDir, "kue.db")},
		{"LocalLLMURL", cfg.LocalLLMURL, local.DefaultBaseURL},
		{"LocalLLMModel", cfg.LocalLLMModel, local.DefaultModel},
		{"OpenAIAPIKey", cfg.OpenAIAPIKey, ""},
		{"GoogleAPIKey", cfg.GoogleAPIKey, ""},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.field, c.got, c.want)
		}
	}
	if cfg.RequestTimeout != 2*time.Minute {
		t.Errorf("RequestTimeout = %v, want 2m", cfg.RequestTimeout)
	}
}

func TestLoad_CustomEnvVars(t *testing.T) {
	clearConfigEnv(t)

	tmpDir := t.TempDir()

	t.Setenv("KUE_ADDR", ":9090")
	t.Setenv("KUE_DATA_DIR", tmpDir)
	t.Setenv("KUE_LOCAL_LLM_URL", "http://gpu-box:11434/v1")
	t.Setenv("KUE_REQUEST_TIMEOUT", "45s")
	t.Setenv("OLLAMA_MODEL", "llama3.2:3b")
	t.Setenv("OPENAI_API_KEY", "sk-openai-test")
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")
	t.Setenv("GOOGLE_API_KEY", "goog-test")
	t.Setenv("GEMINI_MODEL", "gemini-1.5-pro")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	checks := []struct {
		field string
		got   string
		want  string
	}{
		{"ServerAddr", cfg.ServerAddr, ":9090"},
		{"DataDir", cfg.DataDir, tmpDir},
		{"DatabasePath", cfg.DatabasePath, filepath.Join(tmpDir, "kue.db")},
		{"LocalLLMURL", cfg.LocalLLMURL, "http://gpu-box:11434/v1"},
		{"LocalLLMModel", cfg.LocalLLMModel, "llama3.2:3b"},
		{"OpenAIAPIKey", cfg.OpenAIAPIKey, "sk-openai-test"},
		{"OpenAIModel", cfg.OpenAIModel, "gpt-4o-mini"},
		{"GoogleAPIKey", cfg.GoogleAPIKey, "goog-test"},
		{"GeminiModel", cfg.GeminiModel, "gemini-1.5-pro"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.field, c.got, c.want)
		}
	}
	if cfg.RequestTimeout != 45*time.Second {
		t.Errorf("RequestTimeout = %v, want 45s", cfg.RequestTimeout)
	}
}

func TestLoad_BadTimeoutFallsBack(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("KUE_DATA_DIR", t.TempDir())
	t.Setenv("KUE_REQUEST_TIMEOUT", "soon")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.RequestTimeout != 2*time.Minute {
		t.Errorf("RequestTimeout = %v, want 2m", cfg.RequestTimeout)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	home := clearConfigEnv(t)
	t.Setenv("KUE_DATA_DIR", t.TempDir())

	dir := filepath.Join(home, ".kue")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	content := strings.Join([]string{
		"# written by kue config set",
		"OLLAMA_MODEL=phi3:mini",
		"KUE_ADDR=:7000",
		"not a pair",
		"",
	}, "\n")
	if err := os.WriteFile(filepath.Join(dir, "config.env"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	// Env wins over the file.
	t.Setenv("KUE_ADDR", ":7777")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.LocalLLMModel != "phi3:mini" {
		t.Errorf("LocalLLMModel = %q, want %q", cfg.LocalLLMModel, "phi3:mini")
	}
	if cfg.ServerAddr != ":7777" {
		t.Errorf("ServerAddr = %q, want %q", cfg.ServerAddr, ":7777")
	}
}

func TestLoad_CreatesDataDir(t *testing.T) {
	clearConfigEnv(t)

	base := t.TempDir()
	nested := filepath.Join(base, "a", "b", "c")
	t.Setenv("KUE_DATA_DIR", nested)

	_, err := config.Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	info, statErr := os.Stat(nested)
	if statErr != nil {
		t.Fatalf("data dir was not created: %v", statErr)
	}
	if !info.IsDir() {
		t.Fatal("data dir path exists but is not a directory")
	}
}

// ---------------------------------------------------------------------------
// config.env
// ---------------------------------------------------------------------------

func TestReadFile_Missing(t *testing.T) {
	clearConfigEnv(t)

	values, err := config.ReadFile()
	if err != nil {
		t.Fatalf("ReadFile() returned unexpected error: %v", err)
	}
	if values == nil || len(values) != 0 {
		t.Errorf("ReadFile() = %v, want an empty map", values)
	}
}

func TestWriteFile_RoundTrip(t *testing.T) {
	home := clearConfigEnv(t)

	values := map[string]string{
		"ZZ_EXTRA":          "1",
		"OLLAMA_MODEL":      "llama3.2:3b",
		"KUE_LOCAL_LLM_URL": "http://gpu-box:11434/v1",
		"OPENAI_API_KEY":    "",
	}
	if err := config.WriteFile(values, []string{"KUE_LOCAL_LLM_URL", "OLLAMA_MODEL"}); err != nil {
		t.Fatalf("WriteFile() returned unexpected error: %v", err)
	}

	path := filepath.Join(home, ".kue", "config.env")
	if config.FilePath() != path {
		t.Fatalf("FilePath() = %q, want %q", config.FilePath(), path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	var pairs []string
	for _, line := range strings.Split(string(data), "\n") {
		if line != "" && !strings.HasPrefix(line, "#") {
			pairs = append(pairs, line)
		}
	}
	want := []string{
		"KUE_LOCAL_LLM_URL=http://gpu-box:11434/v1",
		"OLLAMA_MODEL=llama3.2:3b",
		"ZZ_EXTRA=1",
	}
	if strings.Join(pairs, "|") != strings.Join(want, "|") {
		t.Errorf("pairs = %v, want %v", pairs, want)
	}

	got, err := config.ReadFile()
	if err != nil {
		t.Fatal(err)
	}
	if got["OLLAMA_MODEL"] != "llama3.2:3b" || got["ZZ_EXTRA"] != "1" {
		t.Errorf("ReadFile() = %v", got)
	}
	if _, ok := got["OPENAI_API_KEY"]; ok {
		t.Error("empty values should not be written")
	}
}

// ---------------------------------------------------------------------------
// Validate
// ---------------------------------------------------------------------------

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		return &config.Config{
			ServerAddr:     ":8000",
			LocalLLMURL:    local.DefaultBaseURL,
			RequestTimeout: time.Minute,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(c *config.Config) {}},
		{name: "https url", mutate: func(c *config.Config) { c.LocalLLMURL = "https://llm.internal/v1" }},
		{name: "empty addr", mutate: func(c *config.Config) { c.ServerAddr = "" }, wantErr: "KUE_ADDR"},
		{name: "ftp url", mutate: func(c *config.Config) { c.LocalLLMURL = "ftp://host/v1" }, wantErr: "KUE_LOCAL_LLM_URL"},
		{name: "no host", mutate: func(c *config.Config) { c.LocalLLMURL = "http:///v1" }, wantErr: "KUE_LOCAL_LLM_URL"},
		{name: "bare word", mutate: func(c *config.Config) { c.LocalLLMURL = "localhost" }, wantErr: "KUE_LOCAL_LLM_URL"},
		{name: "zero timeout", mutate: func(c *config.Config) { c.RequestTimeout = 0 }, wantErr: "KUE_REQUEST_TIMEOUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() returned unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() should fail for %s", tt.name)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error message %q should mention %s", err.Error(), tt.wantErr)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Provider toggles
// ---------------------------------------------------------------------------

func TestProviderEnabled(t *testing.T) {
	cfg := &config.Config{}
	if cfg.OpenAIEnabled() || cfg.GoogleEnabled() {
		t.Error("providers should be disabled without keys")
	}
	cfg.OpenAIAPIKey = "sk-test"
	cfg.GoogleAPIKey = "goog-test"
	if !cfg.OpenAIEnabled() {
		t.Error("OpenAIEnabled() = false, want true")
	}
	if !cfg.GoogleEnabled() {
		t.Error("GoogleEnabled() = false, want true")
	}
}
