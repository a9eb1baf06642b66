package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teemow/maildex/internal/agent"
	"github.com/teemow/maildex/internal/embed"
	"github.com/teemow/maildex/internal/llm"
	"github.com/teemow/maildex/internal/search"
	"github.com/teemow/maildex/internal/vector"
)

func newAskCmd() *cobra.Command {
	var (
		model     string
		maxTokens int
		debug     bool
		backend   backendFlags
	)

	cmd := &cobra.Command{
		Use:   "ask \"question\"",
		Short: "Ask a question about the archived mail",
		Long: `Ask a free-form question about the archived mail.

The question goes to the hosted reasoning model together with the two archive
lookup tools. The model searches by sender or by topic as it sees fit and
answers from the results. It never reads the archive directly.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(debug)

			apiKey := os.Getenv("ANTHROPIC_API_KEY")
			if apiKey == "" {
				return fmt.Errorf("reasoning API key missing: set ANTHROPIC_API_KEY")
			}
			embedCfg := backend.embedConfig()
			if embedCfg.APIKey == "" {
				return fmt.Errorf("embeddings API key missing: set --embed-api-key or OPENAI_API_KEY")
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			embedder, err := embed.NewClient(embedCfg, logger)
			if err != nil {
				return fmt.Errorf("failed to create embedding client: %w", err)
			}

			vectorStore, err := vector.New(backend.vectorConfig(), logger)
			if err != nil {
				return fmt.Errorf("failed to create vector store: %w", err)
			}
			defer vectorStore.Close()

			llmClient, err := llm.NewClient(llm.Config{
				Model:     model,
				APIKey:    apiKey,
				BaseURL:   os.Getenv("ANTHROPIC_BASE_URL"),
				MaxTokens: maxTokens,
			}, logger)
			if err != nil {
				return fmt.Errorf("failed to create reasoning client: %w", err)
			}

			svc := agent.New(llmClient, search.New(embedder, vectorStore, logger), logger)
			answer, err := svc.Ask(ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Println(answer.Text)
			logger.Debug("question answered",
				"rounds", answer.Rounds,
				"tool_calls", answer.ToolCalls)
			return nil
		},
	}

	cmd.Flags().StringVar(&model, "model", "", fmt.Sprintf("Reasoning model (default %s)", llm.DefaultModel))
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Response token budget per round (default 1024)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	backend.register(cmd)
	return cmd
}
