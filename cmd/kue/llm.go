package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mundigis/kue/internal/config"
	"github.com/mundigis/kue/pkg/llm/local"
)

var llmCmd = &cobra.Command{
	Use:   "llm",
	Short: "Talk to the local LLM directly",
	Long: `Drive the local Ollama client without starting the server.

Layer and project descriptors are read from YAML or JSON files ("-" reads
stdin), for example:

  name: Boreholes
  layer_type: vector
  geometry_type: Point
  feature_count: 42`,
}

var (
	analyzeQuestion string
	analyzeProject  bool
	askSystem       string
)

var llmStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Diagnose the local model service",
	RunE:  runLLMStatus,
}

var llmModelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List installed models",
	RunE:  runLLMModels,
}

var llmAnalyzeCmd = &cobra.Command{
	Use:   "analyze FILE",
	Short: "Ask a question about a layer (or a project with --project)",
	Args:  cobra.ExactArgs(1),
	RunE:  runLLMAnalyze,
}

var llmDescribeCmd = &cobra.Command{
	Use:   "describe FILE",
	Short: "Generate a description for a map project",
	Args:  cobra.ExactArgs(1),
	RunE:  runLLMDescribe,
}

var llmStyleCmd = &cobra.Command{
	Use:   "style FILE",
	Short: "Suggest styling for a layer",
	Args:  cobra.ExactArgs(1),
	RunE:  runLLMStyle,
}

var llmAskCmd = &cobra.Command{
	Use:   "ask PROMPT",
	Short: "Send a single chat completion",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runLLMAsk,
}

func init() {
	llmAnalyzeCmd.Flags().StringVarP(&analyzeQuestion, "question", "q", "", "Question to ask (required with --project)")
	llmAnalyzeCmd.Flags().BoolVar(&analyzeProject, "project", false, "Treat FILE as a project descriptor")
	llmAskCmd.Flags().StringVar(&askSystem, "system", "You are a helpful assistant.", "System prompt")

	llmCmd.AddCommand(llmStatusCmd)
	llmCmd.AddCommand(llmModelsCmd)
	llmCmd.AddCommand(llmAnalyzeCmd)
	llmCmd.AddCommand(llmDescribeCmd)
	llmCmd.AddCommand(llmStyleCmd)
	llmCmd.AddCommand(llmAskCmd)
	rootCmd.AddCommand(llmCmd)
}

// newLocalClient builds the client from the resolved configuration (env,
// then ~/.kue/config.env, then defaults). Explicit --llm-url and --model
// flags win over all of them.
func newLocalClient(cmd *cobra.Command) (*local.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	baseURL, model := cfg.LocalLLMURL, cfg.LocalLLMModel
	if cmd.Flags().Changed("llm-url") {
		baseURL = llmURL
	}
	if cmd.Flags().Changed("model") {
		model = llmModel
	}
	return local.New(baseURL, model), nil
}

// requireAvailable fails fast when nothing answers at the configured URL.
func requireAvailable(ctx context.Context, c *local.Client) error {
	if !c.IsAvailable(ctx) {
		return fmt.Errorf("local LLM is not available at %s; make sure Ollama is running", c.BaseURL())
	}
	return nil
}

// replyOutput is the structured form of a narrative reply.
type replyOutput struct {
	Text     string `json:"text" yaml:"text"`
	Model    string `json:"model" yaml:"model"`
	Degraded bool   `json:"degraded" yaml:"degraded"`
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

func runLLMStatus(cmd *cobra.Command, args []string) error {
	c, err := newLocalClient(cmd)
	if err != nil {
		return err
	}
	status := c.TestConnection(cmd.Context())

	err = writeOutput(cmd.OutOrStdout(), status, func(w io.Writer) {
		fmt.Fprintf(w, "[%s] %s\n", status.Status, status.Message)
		fmt.Fprintf(w, "  url:   %s\n", c.BaseURL())
		fmt.Fprintf(w, "  model: %s\n", c.Model())
		if len(status.AvailableModels) > 0 {
			fmt.Fprintf(w, "  installed: %s\n", strings.Join(status.AvailableModels, ", "))
		}
	})
	if err != nil {
		return err
	}
	if status.Status == local.LevelError {
		return fmt.Errorf("local LLM check failed")
	}
	return nil
}

func runLLMModels(cmd *cobra.Command, args []string) error {
	c, err := newLocalClient(cmd)
	if err != nil {
		return err
	}
	models := c.ListModels(cmd.Context())
	return writeOutput(cmd.OutOrStdout(), models, func(w io.Writer) {
		if len(models) == 0 {
			fmt.Fprintln(w, "No models found.")
			return
		}
		for _, m := range models {
			fmt.Fprintf(w, "%-30s %s\n", m.Name, humanize.IBytes(uint64(m.Size)))
		}
	})
}

func runLLMAnalyze(cmd *cobra.Command, args []string) error {
	desc, err := loadDescriptor(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	c, err := newLocalClient(cmd)
	if err != nil {
		return err
	}
	if err := requireAvailable(cmd.Context(), c); err != nil {
		return err
	}

	var reply local.Reply
	if analyzeProject {
		if strings.TrimSpace(analyzeQuestion) == "" {
			return fmt.Errorf("--question is required with --project")
		}
		reply = c.AnalyzeProject(cmd.Context(), desc, analyzeQuestion)
	} else {
		q := analyzeQuestion
		if strings.TrimSpace(q) == "" {
			q = "Tell me about this layer"
		}
		reply = c.AnalyzeLayer(cmd.Context(), desc, q)
	}
	return writeReply(cmd.OutOrStdout(), c, reply)
}

func runLLMDescribe(cmd *cobra.Command, args []string) error {
	desc, err := loadDescriptor(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	c, err := newLocalClient(cmd)
	if err != nil {
		return err
	}
	if err := requireAvailable(cmd.Context(), c); err != nil {
		return err
	}
	return writeReply(cmd.OutOrStdout(), c, c.GenerateProjectDescription(cmd.Context(), desc))
}

func runLLMStyle(cmd *cobra.Command, args []string) error {
	desc, err := loadDescriptor(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	c, err := newLocalClient(cmd)
	if err != nil {
		return err
	}
	if err := requireAvailable(cmd.Context(), c); err != nil {
		return err
	}

	styling := plainNumbers(map[string]any(c.SuggestLayerStyling(cmd.Context(), desc)))
	return writeOutput(cmd.OutOrStdout(), styling, func(w io.Writer) {
		m := styling.(map[string]any)
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "%-16s %v\n", k, m[k])
		}
	})
}

func runLLMAsk(cmd *cobra.Command, args []string) error {
	c, err := newLocalClient(cmd)
	if err != nil {
		return err
	}
	if err := requireAvailable(cmd.Context(), c); err != nil {
		return err
	}
	reply := c.Chat(cmd.Context(), askSystem, strings.Join(args, " "))
	return writeReply(cmd.OutOrStdout(), c, reply)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// loadDescriptor reads a YAML or JSON mapping from path, or from stdin when
// path is "-".
func loadDescriptor(stdin io.Reader, path string) (local.Descriptor, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading descriptor: %w", err)
	}

	var desc map[string]any
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("parsing descriptor %s: %w", path, err)
	}
	if desc == nil {
		return nil, fmt.Errorf("descriptor %s is empty", path)
	}
	return local.Descriptor(desc), nil
}

// writeReply prints a narrative reply. A degraded reply is still printed
// but makes the command fail.
func writeReply(w io.Writer, c *local.Client, reply local.Reply) error {
	out := replyOutput{Text: reply.String(), Model: c.Model(), Degraded: reply.Degraded()}
	if err := writeOutput(w, out, func(w io.Writer) {
		fmt.Fprintln(w, out.Text)
	}); err != nil {
		return err
	}
	if reply.Degraded() {
		return fmt.Errorf("local LLM request failed: %w", reply.Err)
	}
	return nil
}

// writeOutput renders v in the format selected by --output. text is used
// for the human-readable form.
func writeOutput(w io.Writer, v any, text func(io.Writer)) error {
	switch outputFormat {
	case "", "text":
		text(w)
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", outputFormat)
	}
}

// plainNumbers replaces json.Number values with int64 or float64 so YAML
// output shows them as numbers rather than quoted strings.
func plainNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = plainNumbers(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = plainNumbers(val)
		}
		return out
	default:
		return v
	}
}
