package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/wesm/leadvault/internal/leads"
	"github.com/wesm/leadvault/internal/session"
)

// selection holds the account/page/form/filter flags shared by the
// browsing and download commands.
type selection struct {
	account string
	page    string
	form    string
	filter  string
	start   string
	end     string
}

// bind registers the selection flags on cmd. withForm adds --form and the
// time filter flags.
func (s *selection) bind(cmd *cobra.Command, withForm bool) {
	cmd.Flags().StringVar(&s.account, "account", "", "ad account ID (default: the current account)")
	cmd.Flags().StringVar(&s.page, "page", "", "page ID")
	if !withForm {
		return
	}
	cmd.Flags().StringVar(&s.form, "form", "", "lead form ID")
	cmd.Flags().StringVar(&s.filter, "filter", "", "time filter: today, yesterday, all, custom (default from config)")
	cmd.Flags().StringVar(&s.start, "start", "", "custom range start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&s.end, "end", "", "custom range end date (YYYY-MM-DD)")
}

// timeFilter resolves the filter flags against def. Passing --start or
// --end implies the custom filter.
func (s *selection) timeFilter(def leads.TimeFilter) (leads.TimeFilter, leads.DateRange, error) {
	rng := leads.DateRange{Start: strings.TrimSpace(s.start), End: strings.TrimSpace(s.end)}
	f := def
	if s.filter != "" {
		parsed, err := leads.ParseTimeFilter(s.filter)
		if err != nil {
			return "", leads.DateRange{}, err
		}
		f = parsed
	} else if rng.Start != "" || rng.End != "" {
		f = leads.FilterCustom
	}

	if f != leads.FilterCustom {
		if rng.Start != "" || rng.End != "" {
			return "", leads.DateRange{}, fmt.Errorf("--start and --end only apply to the custom filter")
		}
		return f, leads.DateRange{}, nil
	}
	if err := rng.Validate(); err != nil {
		return "", leads.DateRange{}, err
	}
	return f, rng, nil
}

// selectPage loads accounts and walks the session down to the page.
func (s *selection) selectPage(ctx context.Context, sess *session.Session) error {
	if err := sess.LoadAccounts(ctx); err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}
	if s.account != "" {
		if err := sess.SelectAccount(ctx, s.account); err != nil {
			return fmt.Errorf("select account: %w", err)
		}
	}
	if _, ok := sess.Snapshot().Account(); !ok {
		return session.ErrNoAccount
	}
	if s.page == "" {
		return fmt.Errorf("--page is required")
	}
	if err := sess.SelectPageByID(ctx, s.page); err != nil {
		return fmt.Errorf("select page: %w", err)
	}
	return nil
}

// selectForm walks the session down to the form, fetching its leads for
// the requested filter.
func (s *selection) selectForm(ctx context.Context, sess *session.Session, def leads.TimeFilter) error {
	if s.form == "" {
		return fmt.Errorf("--form is required")
	}
	f, rng, err := s.timeFilter(def)
	if err != nil {
		return err
	}
	if err := s.selectPage(ctx, sess); err != nil {
		return err
	}
	// Set before the form so selecting it fetches with the right filter.
	if err := sess.SetTimeFilter(ctx, f, rng); err != nil {
		return err
	}
	if err := sess.SelectFormByID(ctx, s.form); err != nil {
		return fmt.Errorf("fetch leads: %w", err)
	}
	return nil
}

var (
	accountsJSON       bool
	accountsSetCurrent string
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List ad accounts",
	Long: `List the ad accounts available to leadvault. The current account is
marked with '*'.

Examples:
  leadvault accounts
  leadvault accounts --json
  leadvault accounts --set-current act_123`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, release, err := openBackend()
		if err != nil {
			return err
		}
		defer release()

		accounts, err := backend.ListAccounts(cmd.Context(), accountsSetCurrent)
		if err != nil {
			return fmt.Errorf("list accounts: %w", err)
		}

		out := cmd.OutOrStdout()
		if accountsJSON {
			return writeJSON(out, accounts)
		}
		if len(accounts) == 0 {
			fmt.Fprintln(out, "No accounts found. Use 'leadvault add-account <id> --token <token>' to add one.")
			return nil
		}
		writeAccountsTable(out, accounts)
		return nil
	},
}

var (
	pagesSel  selection
	pagesJSON bool
)

var pagesCmd = &cobra.Command{
	Use:   "pages",
	Short: "List pages of an ad account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, release, err := openSession()
		if err != nil {
			return err
		}
		defer release()

		ctx := cmd.Context()
		if err := sess.LoadAccounts(ctx); err != nil {
			return fmt.Errorf("load accounts: %w", err)
		}
		if pagesSel.account != "" {
			if err := sess.SelectAccount(ctx, pagesSel.account); err != nil {
				return fmt.Errorf("select account: %w", err)
			}
		}
		st := sess.Snapshot()
		if _, ok := st.Account(); !ok {
			return session.ErrNoAccount
		}

		out := cmd.OutOrStdout()
		if pagesJSON {
			return writeJSON(out, pagesOutput(st.Pages))
		}
		if len(st.Pages) == 0 {
			fmt.Fprintln(out, "No pages found for this account.")
			return nil
		}
		writePagesTable(out, st.Pages)
		return nil
	},
}

var (
	formsSel  selection
	formsJSON bool
)

var formsCmd = &cobra.Command{
	Use:   "forms",
	Short: "List lead forms of a page",
	Long: `List the lead forms of a page. Forms are fetched with the page's own
access token.

Examples:
  leadvault forms --page 1234567890
  leadvault forms --account act_123 --page 1234567890 --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, release, err := openSession()
		if err != nil {
			return err
		}
		defer release()

		if err := formsSel.selectPage(cmd.Context(), sess); err != nil {
			return err
		}
		st := sess.Snapshot()

		out := cmd.OutOrStdout()
		if formsJSON {
			return writeJSON(out, st.Forms)
		}
		if len(st.Forms) == 0 {
			fmt.Fprintln(out, "No lead forms found for this page.")
			return nil
		}
		writeFormsTable(out, st.Forms)
		return nil
	},
}

var (
	leadsSel     selection
	leadsPageNum int
	leadsAll     bool
	leadsJSON    bool
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Show the leads of a form",
	Long: `Fetch the leads of a form for a time filter and print one page of them,
newest first.

Examples:
  leadvault leads --page 1234567890 --form 987654321
  leadvault leads --page 1234567890 --form 987654321 --filter all --page-num 2
  leadvault leads --page 1234567890 --form 987654321 --start 2024-03-01 --end 2024-03-07 --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		def, err := cfg.DefaultFilter()
		if err != nil {
			return err
		}

		sess, release, err := openSession()
		if err != nil {
			return err
		}
		defer release()

		if err := leadsSel.selectForm(cmd.Context(), sess, def); err != nil {
			return err
		}
		if leadsPageNum > 1 {
			sess.SetPage(leadsPageNum)
		}
		st := sess.Snapshot()
		shown := st.Window()
		if leadsAll {
			shown = st.Leads
		}

		out := cmd.OutOrStdout()
		if leadsJSON {
			return writeJSON(out, leadsPage{
				Form:       st.Form.Name,
				Filter:     st.Filter,
				Total:      len(st.Leads),
				Page:       st.CurrentPage,
				TotalPages: st.TotalPages(),
				Leads:      shown,
			})
		}
		if len(st.Leads) == 0 {
			fmt.Fprintln(out, session.StatusNoLeads)
			return nil
		}
		writeLeadsTable(out, shown, sess.Location())
		if !leadsAll {
			from, to := st.Showing()
			fmt.Fprintf(out, "\nShowing %d to %d of %d leads (page %d of %d)\n",
				from, to, len(st.Leads), st.CurrentPage, st.TotalPages())
		}
		return nil
	},
}

// openSession opens the configured backend and wraps it in a session.
func openSession() (*session.Session, func(), error) {
	backend, release, err := openBackend()
	if err != nil {
		return nil, nil, err
	}
	sess, err := newSession(backend, logger)
	if err != nil {
		release()
		return nil, nil, err
	}
	return sess, release, nil
}

// pageInfo is a page without its access token.
type pageInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func pagesOutput(pages []leads.Page) []pageInfo {
	out := make([]pageInfo, len(pages))
	for i, p := range pages {
		out[i] = pageInfo{ID: p.ID, Name: p.Name}
	}
	return out
}

type leadsPage struct {
	Form       string           `json:"form"`
	Filter     leads.TimeFilter `json:"filter"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	TotalPages int              `json:"totalPages"`
	Leads      []leads.Lead     `json:"leads"`
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeAccountsTable(out io.Writer, accounts []leads.Account) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, " \tID\tNAME\tPAGES")
	fmt.Fprintln(w, " \t──\t────\t─────")
	for _, a := range accounts {
		mark := " "
		if a.IsCurrent {
			mark = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", mark, a.ID, orDash(a.Name), a.PagesCount)
	}
	w.Flush()
	fmt.Fprintf(out, "\n%d account(s)\n", len(accounts))
}

func writePagesTable(out io.Writer, pages []leads.Page) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME")
	fmt.Fprintln(w, "──\t────")
	for _, p := range pages {
		fmt.Fprintf(w, "%s\t%s\n", p.ID, orDash(p.Name))
	}
	w.Flush()
	fmt.Fprintf(out, "\n%d page(s)\n", len(pages))
}

func writeFormsTable(out io.Writer, forms []leads.Form) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS")
	fmt.Fprintln(w, "──\t────\t──────")
	for _, f := range forms {
		fmt.Fprintf(w, "%s\t%s\t%s\n", f.ID, orDash(f.Name), orDash(f.Status))
	}
	w.Flush()
	fmt.Fprintf(out, "\n%d form(s)\n", len(forms))
}

// writeLeadsTable prints one row per lead with a column per field name.
func writeLeadsTable(out io.Writer, ls []leads.Lead, loc *time.Location) {
	cols := leads.Columns(ls)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	header := append([]string{"ID", "CREATED"}, cols...)
	fmt.Fprintln(w, strings.Join(header, "\t"))
	rules := make([]string, len(header))
	for i, h := range header {
		rules[i] = strings.Repeat("─", len([]rune(h)))
	}
	fmt.Fprintln(w, strings.Join(rules, "\t"))

	for _, l := range ls {
		row := []string{l.ID, leads.FormatCreated(l, loc)}
		for _, c := range cols {
			row = append(row, orDash(l.Value(c)))
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func init() {
	accountsCmd.Flags().BoolVar(&accountsJSON, "json", false, "Output as JSON")
	accountsCmd.Flags().StringVar(&accountsSetCurrent, "set-current", "", "mark this account as current")

	pagesSel.bind(pagesCmd, false)
	pagesCmd.Flags().BoolVar(&pagesJSON, "json", false, "Output as JSON")

	formsSel.bind(formsCmd, false)
	formsCmd.Flags().BoolVar(&formsJSON, "json", false, "Output as JSON")

	leadsSel.bind(leadsCmd, true)
	leadsCmd.Flags().IntVar(&leadsPageNum, "page-num", 1, "page of results to show")
	leadsCmd.Flags().BoolVar(&leadsAll, "all", false, "print every fetched lead instead of one page")
	leadsCmd.Flags().BoolVar(&leadsJSON, "json", false, "Output as JSON")

	rootCmd.AddCommand(accountsCmd, pagesCmd, formsCmd, leadsCmd)
}
