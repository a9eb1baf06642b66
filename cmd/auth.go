package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teemow/maildex/internal/google"
)

func newAuthCmd() *cobra.Command {
	var (
		account string
		code    string
	)

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize access to the mailbox",
		Long: `Authorize maildex to read a Gmail mailbox.

Run without flags to get an authorization URL. Open it in a browser, sign in,
grant read access and copy the authorization code. Then run again with --code
to exchange it for a token. The token is stored in the user cache directory
and refreshed automatically.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if code == "" {
				if google.HasTokenForAccount(account) {
					fmt.Printf("Account %q is already authorized. Re-running with --code replaces the token.\n\n", account)
				}
				authURL, err := google.GetAuthURLForAccount(account)
				if err != nil {
					return fmt.Errorf("failed to build authorization URL: %w", err)
				}
				fmt.Printf("Visit this URL in your browser:\n\n  %s\n\n", authURL)
				fmt.Printf("Then run: maildex auth --account %s --code <authorization code>\n", account)
				return nil
			}

			if err := google.SaveTokenForAccount(cmd.Context(), account, code); err != nil {
				return fmt.Errorf("failed to exchange authorization code: %w", err)
			}
			fmt.Printf("Token saved for account %q\n", account)
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "default", "Account name, for keeping multiple mailboxes apart")
	cmd.Flags().StringVar(&code, "code", "", "Authorization code obtained from the authorization URL")
	return cmd
}
