package main

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mundigis/kue/internal/config"
)

// configKey describes a single configuration value.
type configKey struct {
	Key    string
	Desc   string
	Secret bool
	Prefix string // expected prefix for validation (e.g. "sk-"), empty = no check
}

// allConfigKeys lists every configurable value in display order.
var allConfigKeys = []configKey{
	{"KUE_ADDR", "HTTP listen address (default :8000)", false, ""},
	{"KUE_DATA_DIR", "Data directory for the chat database (default ~/.kue)", false, ""},
	{"KUE_REQUEST_TIMEOUT", "Per-request timeout, e.g. 2m", false, ""},
	{"KUE_LOCAL_LLM_URL", "Local LLM base URL (default http://localhost:11434/v1)", false, "http"},
	{"OLLAMA_MODEL", "Local model name (default orieg/gemma3-tools:1b)", false, ""},
	{"OPENAI_API_KEY", "OpenAI API key", true, "sk-"},
	{"OPENAI_MODEL", "OpenAI chat model (default gpt-3.5-turbo)", false, ""},
	{"GOOGLE_API_KEY", "Google AI Studio API key", true, ""},
	{"GEMINI_MODEL", "Gemini model (default gemini-1.5-flash)", false, ""},
}

// ---------------------------------------------------------------------------
// Cobra commands
// ---------------------------------------------------------------------------

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage Kue configuration",
	Long: `Manage Kue configuration (model service, API keys, etc.).

Configuration is stored in ~/.kue/config.env and can be overridden
by environment variables.

  kue config set KEY VALUE      Set a single config value
  kue config show               Show current configuration
  kue config path               Print config file path`,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a config value",
	Long: `Set a single configuration value. Example:
  kue config set OLLAMA_MODEL llama3.2:3b`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display all configured values. Secrets are masked.",
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print config file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), config.FilePath())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func keyOrder() []string {
	order := make([]string, len(allConfigKeys))
	for i, ck := range allConfigKeys {
		order[i] = ck.Key
	}
	return order
}

// lookupKey reports whether name is one of allConfigKeys.
func lookupKey(name string) (configKey, bool) {
	i := slices.IndexFunc(allConfigKeys, func(ck configKey) bool { return ck.Key == name })
	if i < 0 {
		return configKey{Key: name}, false
	}
	return allConfigKeys[i], true
}

// resolveValue mirrors config.Load precedence and names where the value
// came from ("env", "config file", or "" when unset).
func resolveValue(key string, fileValues map[string]string) (value, source string) {
	if v := os.Getenv(key); v != "" {
		return v, "env"
	}
	if v := fileValues[key]; v != "" {
		return v, "config file"
	}
	return "", ""
}

// redact hides a secret but keeps its last four characters, plus the
// key's expected prefix when it has one, so keys stay tellable apart.
func redact(ck configKey, s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	head := ""
	if ck.Prefix != "" && strings.HasPrefix(s, ck.Prefix) {
		head = ck.Prefix
	}
	return head + "..." + s[len(s)-4:]
}

// ---------------------------------------------------------------------------
// config set / config show
// ---------------------------------------------------------------------------

// runConfigSet sets a single key=value in the config file.
func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	ck, known := lookupKey(key)
	if known && ck.Prefix != "" && !strings.HasPrefix(value, ck.Prefix) {
		return fmt.Errorf("%s should start with %q", key, ck.Prefix)
	}

	fileValues, err := config.ReadFile()
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	fileValues[key] = value

	if err := config.WriteFile(fileValues, keyOrder()); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if ck.Secret {
		fmt.Fprintf(out, "Set %s = %s\n", key, redact(ck, value))
	} else {
		fmt.Fprintf(out, "Set %s = %s\n", key, value)
	}
	if !known {
		fmt.Fprintf(out, "Note: %s is not a key Kue reads.\n", key)
	}
	return nil
}

// runConfigShow displays the current effective configuration.
func runConfigShow(cmd *cobra.Command, args []string) error {
	fileValues, err := config.ReadFile()
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	printConfig(cmd.OutOrStdout(), fileValues)
	return nil
}

func printConfig(w io.Writer, fileValues map[string]string) {
	fmt.Fprintf(w, "Config file: %s\n\n", config.FilePath())

	for _, ck := range allConfigKeys {
		value, source := resolveValue(ck.Key, fileValues)
		switch {
		case value == "":
			fmt.Fprintf(w, "  %-22s (not set)\n", ck.Key)
		case ck.Secret:
			fmt.Fprintf(w, "  %-22s %s (from %s)\n", ck.Key, redact(ck, value), source)
		default:
			fmt.Fprintf(w, "  %-22s %s (from %s)\n", ck.Key, value, source)
		}
	}
}
