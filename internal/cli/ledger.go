package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/agrimarket/internal/domain"
	"github.com/aristath/agrimarket/internal/ledger"
)

// NewLedgerCommand creates the ledger command group.
func NewLedgerCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the personal ledger",
	}
	cmd.AddCommand(newLedgerSummaryCommand(rootOpts))
	return cmd
}

type summaryOptions struct {
	period    string
	byAccount bool
}

// summaryResult is the structured output of ledger summary
type summaryResult struct {
	Summary  ledger.Summary        `json:"summary" yaml:"summary"`
	Accounts []ledger.AccountGroup `json:"accounts,omitempty" yaml:"accounts,omitempty"`
}

func newLedgerSummaryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &summaryOptions{}

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Total the ledger per category for a period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedgerSummary(rootOpts, opts, cmd, time.Now())
		},
	}

	cmd.Flags().StringVar(&opts.period, "period", string(ledger.PeriodOverall), "overall|daily|monthly|yearly")
	cmd.Flags().BoolVar(&opts.byAccount, "by-account", false, "also list the entries of the period per account")
	return cmd
}

func runLedgerSummary(rootOpts *RootOptions, opts *summaryOptions, cmd *cobra.Command, now time.Time) error {
	f := rootOpts.formatter(cmd)

	period, err := ledger.ParsePeriod(opts.period)
	if err != nil {
		return f.Fail("invalid period", err)
	}

	c, err := rootOpts.client(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	rows, err := c.Remote.Query(cmd.Context(), domain.TableLedgerEntries, domain.OwnedBy(c.Session.UserID))
	if err != nil {
		return f.Fail("failed to load ledger", err)
	}
	entries, err := domain.DecodeRows(rows, domain.LedgerEntryFromRow)
	if err != nil {
		return f.Fail("failed to decode ledger", err)
	}
	f.VerboseLog("Loaded %d ledger entries", len(entries))

	result := summaryResult{Summary: ledger.Aggregate(entries, period, now)}
	if opts.byAccount {
		result.Accounts = ledger.GroupByAccount(ledger.FilterByPeriod(entries, period, now))
	}

	return f.Success(result, func(w io.Writer) {
		s := result.Summary
		fmt.Fprintf(w, "Period: %s (%d entries)\n", s.Period, s.Count)
		for _, t := range domain.EntryTypes {
			fmt.Fprintf(w, "  %-10s %12s  %6s%%\n", t, s.Totals[t].StringFixed(2), s.Shares[t].StringFixed(1))
		}
		fmt.Fprintf(w, "  %-10s %12s\n", "Net", s.NetBalance.StringFixed(2))
		for _, g := range result.Accounts {
			fmt.Fprintf(w, "%s: %s\n", g.Account, g.Subtotal.StringFixed(2))
			for _, e := range g.Entries {
				fmt.Fprintf(w, "  %s  %-10s %10s  %s\n", e.RecordDate.Format(domain.DateLayout), e.Type, e.Amount.StringFixed(2), e.Description)
			}
		}
	})
}
