// Kue
//
// A GIS assistant server backed by a local Ollama model, with an optional
// chat proxy to hosted providers.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mundigis/kue/pkg/llm/local"
)

var (
	version      = "dev"
	llmURL       string
	llmModel     string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "kue",
	Short: "Kue - GIS assistant on a local LLM",
	Long: `Kue answers questions about map projects and layers using a local
Ollama model, and proxies free-form chat to OpenAI, Gemini or Ollama.

  kue serve                                  Start the HTTP server
  kue llm status                             Diagnose the local model service
  kue llm analyze layer.yaml -q "..."        Ask about a layer
  kue llm style layer.yaml -o json           Suggest layer styling
  kue config set OLLAMA_MODEL llama3.2:3b    Persist a setting`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&llmURL, "llm-url", local.DefaultBaseURL, "Local LLM base URL (overrides KUE_LOCAL_LLM_URL and config.env)")
	rootCmd.PersistentFlags().StringVar(&llmModel, "model", local.DefaultModel, "Local model name (overrides OLLAMA_MODEL and config.env)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json, yaml")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
