package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teemow/maildex/internal/archive"
	"github.com/teemow/maildex/internal/embed"
	"github.com/teemow/maildex/internal/index"
	"github.com/teemow/maildex/internal/vector"
)

func newIndexCmd() *cobra.Command {
	var (
		dbPath    string
		batchSize int
		debug     bool
		backend   backendFlags
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Embed archived messages and index them for search",
		Long: `Index archived messages that have not been indexed yet.

Each record is embedded twice: its sender identity goes into the sender
collection and its subject plus snippet into the content collection. Indexed
records are marked in the archive, so re-running only picks up new records.
Records that keep failing are skipped and retried on the next run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(debug)

			embedCfg := backend.embedConfig()
			if embedCfg.APIKey == "" {
				return fmt.Errorf("embeddings API key missing: set --embed-api-key or OPENAI_API_KEY")
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if dbPath == "" {
				var err error
				dbPath, err = archive.DefaultPath()
				if err != nil {
					return fmt.Errorf("failed to resolve archive path: %w", err)
				}
			}

			store, err := archive.Open(dbPath, logger)
			if err != nil {
				return fmt.Errorf("failed to open archive: %w", err)
			}
			defer store.Close()

			embedder, err := embed.NewClient(embedCfg, logger)
			if err != nil {
				return fmt.Errorf("failed to create embedding client: %w", err)
			}

			vectorStore, err := vector.New(backend.vectorConfig(), logger)
			if err != nil {
				return fmt.Errorf("failed to create vector store: %w", err)
			}
			defer vectorStore.Close()

			indexer := index.New(store, embedder, vectorStore, logger)
			result, runErr := indexer.Run(ctx, batchSize)

			if result != nil {
				fmt.Printf("Indexed %d messages in %d batches, %d failed\n",
					result.Indexed, result.Batches, result.Failed)
				if result.Failed > 0 {
					fmt.Println("Failed messages stay unindexed; run again to retry them.")
				}
			}
			if runErr != nil {
				return fmt.Errorf("indexing failed: %w", runErr)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", envOrDefault("MAILDEX_DB", ""), "Archive file path. Can also use MAILDEX_DB env var. Defaults to the user cache directory.")
	cmd.Flags().IntVar(&batchSize, "batch", index.DefaultBatchSize, "Records embedded per batch")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	backend.register(cmd)
	return cmd
}
