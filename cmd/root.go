package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the maildex application
var rootCmd = &cobra.Command{
	Use:   "maildex",
	Short: "Exports Gmail into a searchable local archive",
	Long: `maildex drains a Gmail mailbox into a local archive, indexes senders and
content for similarity search, and answers questions about the mail.

Typical flow:
  maildex auth               authorize access to the mailbox
  maildex export             export messages into the archive (resumable)
  maildex index              embed and index the archive
  maildex ask "question"     ask the reasoning service about your mail
  maildex serve              expose the search tools to AI assistants over MCP`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "maildex version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newIndexCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAskCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
	rootCmd.AddCommand(newVersionCmd())
}
