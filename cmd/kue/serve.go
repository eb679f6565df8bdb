package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mundigis/kue/internal/config"
	"github.com/mundigis/kue/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Kue HTTP server",
	Long: `Start the HTTP API. Settings come from the environment, then
~/.kue/config.env, then built-in defaults. The server starts even when
Ollama is down; local-llm endpoints answer 503 until it comes up.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cmd.Flags().Changed("llm-url") {
		cfg.LocalLLMURL = llmURL
	}
	if cmd.Flags().Changed("model") {
		cfg.LocalLLMModel = llmModel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	srv, err := server.New(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return srv.Start(ctx)
}
