package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/wesm/leadvault/internal/store"
)

var (
	addAccountToken    string
	addAccountName     string
	addAccountNoVerify bool
)

var addAccountCmd = &cobra.Command{
	Use:   "add-account <account-id>",
	Short: "Add an ad account with its access token",
	Long: `Add an ad account to the local account store, or replace the token of
an existing one.

The token is a Facebook user access token with the pages_show_list,
pages_read_engagement, and leads_retrieval permissions. Unless
--no-verify is given, the token is checked against the Graph API, the
account name defaults to the token owner's name, and the number of
pages it manages is recorded.

The first account added becomes the current account.

Examples:
  leadvault add-account act_123 --token EAAB...
  leadvault add-account act_123 --token EAAB... --name "Acme Ads"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := strings.TrimSpace(args[0])
		token := strings.TrimSpace(addAccountToken)
		if token == "" {
			token = strings.TrimSpace(os.Getenv("LEADVAULT_TOKEN"))
		}
		if token == "" {
			return fmt.Errorf("--token is required (or set LEADVAULT_TOKEN)")
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		acct := store.Account{ID: id, Name: strings.TrimSpace(addAccountName), AccessToken: token}
		pages := -1
		if !addAccountNoVerify {
			pages, err = verifyToken(cmd.Context(), &acct)
			if err != nil {
				return err
			}
		}

		if err := s.UpsertAccount(cmd.Context(), acct); err != nil {
			return err
		}
		if pages >= 0 {
			if err := s.UpdatePagesCount(cmd.Context(), id, pages); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Account %s added.\n", id)
		if acct.Name != "" {
			fmt.Fprintf(out, "  Name:  %s\n", acct.Name)
		}
		if pages >= 0 {
			fmt.Fprintf(out, "  Pages: %d\n", pages)
		}
		return nil
	},
}

// verifyToken checks acct's token against the Graph API, fills in a
// missing name, and returns how many pages the token manages.
func verifyToken(ctx context.Context, acct *store.Account) (int, error) {
	gc := newGraphClient()
	me, err := gc.Me(ctx, acct.AccessToken)
	if err != nil {
		return 0, fmt.Errorf("verify token: %w", err)
	}
	if acct.Name == "" {
		acct.Name = me.Name
	}
	pages, err := gc.Pages(ctx, acct.AccessToken)
	if err != nil {
		return 0, fmt.Errorf("list pages: %w", err)
	}
	return len(pages), nil
}

var removeAccountYes bool

var removeAccountCmd = &cobra.Command{
	Use:   "remove-account <account-id>",
	Short: "Remove an ad account and its token",
	Long: `Remove an ad account and its stored access token from the local
account store. If it was the current account, the oldest remaining
account becomes current. Files already downloaded are not touched.

Examples:
  leadvault remove-account act_123
  leadvault remove-account act_123 --yes`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]

		s, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		acct, err := s.GetAccount(cmd.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("account %q not found", id)
		}
		if err != nil {
			return fmt.Errorf("look up account: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Account: %s\n", acct.ID)
		fmt.Fprintf(out, "Name:    %s\n", orDash(acct.Name))
		fmt.Fprintf(out, "Pages:   %d\n", acct.PagesCount)

		if !removeAccountYes {
			if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
				return fmt.Errorf("refusing to remove %s without confirmation; use --yes", id)
			}
			confirmed := false
			err := huh.NewConfirm().
				Title(fmt.Sprintf("Remove account %s and its token?", id)).
				Affirmative("Remove").
				Negative("Cancel").
				Value(&confirmed).
				Run()
			if err != nil && !errors.Is(err, huh.ErrUserAborted) {
				return err
			}
			if !confirmed {
				fmt.Fprintln(out, "Aborted.")
				return nil
			}
		}

		if err := s.RemoveAccount(cmd.Context(), id); err != nil {
			return fmt.Errorf("remove account: %w", err)
		}
		fmt.Fprintf(out, "\nAccount %s removed.\n", id)
		return nil
	},
}

func init() {
	addAccountCmd.Flags().StringVar(&addAccountToken, "token", "", "user access token (or LEADVAULT_TOKEN)")
	addAccountCmd.Flags().StringVar(&addAccountName, "name", "", "display name (default: the token owner's name)")
	addAccountCmd.Flags().BoolVar(&addAccountNoVerify, "no-verify", false, "store the token without checking it against the Graph API")

	removeAccountCmd.Flags().BoolVarP(&removeAccountYes, "yes", "y", false, "Skip confirmation prompt")

	rootCmd.AddCommand(addAccountCmd, removeAccountCmd)
}
