package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teemow/maildex/internal/archive"
	"github.com/teemow/maildex/internal/export"
	"github.com/teemow/maildex/internal/gmail"
	"github.com/teemow/maildex/internal/google"
)

func newExportCmd() *cobra.Command {
	var (
		account  string
		query    string
		maxCount int64
		dbPath   string
		pageSize int64
		debug    bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export mailbox messages into the local archive",
		Long: `Export messages matching a Gmail search query into the local archive.

The export is resumable: progress is checkpointed after every fully processed
page, so an interrupted run picks up where it left off when invoked again with
the same query. Records are written by message ID, making re-runs idempotent.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(debug)

			if !gmail.HasTokenForAccount(account) {
				return fmt.Errorf("account %q is not authorized\n\n%s", account,
					google.GetAuthenticationErrorMessage(account))
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

			client, err := gmail.NewClientForAccount(ctx, account)
			if err != nil {
				return fmt.Errorf("failed to create mailbox client for account %s: %w", account, err)
			}

			engine := export.NewEngine(client, store, store, store, logger)
			result, runErr := engine.Run(ctx, export.Config{
				Query:    query,
				MaxCount: maxCount,
				PageSize: pageSize,
			})

			if result != nil {
				if result.Resumed {
					fmt.Printf("Resumed run %s\n", result.RunID)
				}
				fmt.Printf("Processed %d messages: %d written, %d already archived, %d failed (%d pages)\n",
					result.Processed, result.Written, result.Skipped, result.Failed, result.Pages)
				if !result.Complete {
					fmt.Println("Export did not finish; the checkpoint was kept. Run the same export again to resume.")
				}
			}
			if runErr != nil {
				return fmt.Errorf("export failed: %w", runErr)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "default", "Account name to export from")
	cmd.Flags().StringVar(&query, "query", "", "Gmail search query; empty exports the whole mailbox")
	cmd.Flags().Int64Var(&maxCount, "max", 0, "Stop after this many processed messages; 0 means unlimited")
	cmd.Flags().StringVar(&dbPath, "db", envOrDefault("MAILDEX_DB", ""), "Archive file path. Can also use MAILDEX_DB env var. Defaults to the user cache directory.")
	cmd.Flags().Int64Var(&pageSize, "page-size", export.DefaultPageSize, "Messages listed per page")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	return cmd
}
