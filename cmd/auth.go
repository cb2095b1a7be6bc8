package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAuthCmd(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize inboxreply to use a Gmail account",
		Long: `Authorize inboxreply to read, send and label mail and to look up contacts
for the configured account (or --account).

Open the printed URL, grant access and paste the code, or the whole URL the
browser was redirected to, back into the terminal. The token is stored per
account and refreshed automatically.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, opts)
			if err != nil {
				return err
			}
			if a.cfg.Google.ClientID == "" || a.cfg.Google.ClientSecret == "" {
				return errors.New("google.client_id and google.client_secret must be configured")
			}

			auth := a.googleAuth(nil)
			account := a.cfg.Account
			if auth.HasTokenForAccount(account) && !force {
				printSuccess(a.out, fmt.Sprintf("Account %q is already authorized (use --force to re-authorize)", account))
				return nil
			}

			printHeading(a.out, "Authorize account "+account)
			fmt.Fprintln(a.out, "Open this URL in your browser:")
			fmt.Fprintln(a.out)
			fmt.Fprintln(a.out, "  "+auth.AuthURLForAccount(account))
			fmt.Fprintln(a.out)
			fmt.Fprint(a.out, "Paste the authorization code: ")

			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && strings.TrimSpace(line) == "" {
				return fmt.Errorf("failed to read authorization code: %w", err)
			}
			if err := auth.SaveTokenForAccount(cmd.Context(), account, line); err != nil {
				return err
			}

			printSuccess(a.out, fmt.Sprintf("Token saved to %s", auth.TokenFilePath(account)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Re-authorize even if a token exists")
	return cmd
}
