package ledger

import (
	"sort"
	"time"

	"github.com/aristath/agrimarket/internal/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Summary is the result of aggregating a period
type Summary struct {
	Period     Period                               `json:"period" yaml:"period"`
	Count      int                                  `json:"count" yaml:"count"`
	Totals     map[domain.EntryType]decimal.Decimal `json:"totals" yaml:"totals"`
	NetBalance decimal.Decimal                      `json:"net_balance" yaml:"net_balance"`
	Shares     map[domain.EntryType]decimal.Decimal `json:"shares" yaml:"shares"`
}

// Total returns the sum of the four category totals.
func (s Summary) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, t := range domain.EntryTypes {
		sum = sum.Add(s.Totals[t])
	}
	return sum
}

// Aggregate totals the entries in period per category.
//
// NetBalance is Income minus Expense; savings and investments are allocated
// funds and do not affect it. Shares[c] is Totals[c] as a percentage of the
// sum of all four totals, and every share is zero when that sum is zero.
// Entries of unknown type are ignored.
func Aggregate(entries []domain.LedgerEntry, period Period, now time.Time) Summary {
	s := Summary{
		Period: period,
		Totals: make(map[domain.EntryType]decimal.Decimal, len(domain.EntryTypes)),
		Shares: make(map[domain.EntryType]decimal.Decimal, len(domain.EntryTypes)),
	}
	for _, t := range domain.EntryTypes {
		s.Totals[t] = decimal.Zero
		s.Shares[t] = decimal.Zero
	}

	for _, e := range entries {
		if !e.Type.Valid() || !period.Contains(e.RecordDate, now) {
			continue
		}
		s.Totals[e.Type] = s.Totals[e.Type].Add(e.Amount)
		s.Count++
	}

	s.NetBalance = s.Totals[domain.EntryIncome].Sub(s.Totals[domain.EntryExpense])

	denominator := s.Total()
	if denominator.IsZero() {
		return s
	}
	for _, t := range domain.EntryTypes {
		s.Shares[t] = s.Totals[t].Div(denominator).Mul(hundred)
	}
	return s
}

// AccountGroup is the per-account section of a ledger log screen
type AccountGroup struct {
	Account  string               `json:"account" yaml:"account"`
	Entries  []domain.LedgerEntry `json:"entries" yaml:"entries"`
	Subtotal decimal.Decimal      `json:"subtotal" yaml:"subtotal"`
}

// GroupByAccount groups entries by account name. Groups are ordered by
// account, entries newest first.
func GroupByAccount(entries []domain.LedgerEntry) []AccountGroup {
	index := make(map[string]int)
	var groups []AccountGroup

	for _, e := range entries {
		i, ok := index[e.Account]
		if !ok {
			i = len(groups)
			index[e.Account] = i
			groups = append(groups, AccountGroup{Account: e.Account, Subtotal: decimal.Zero})
		}
		groups[i].Entries = append(groups[i].Entries, e)
		groups[i].Subtotal = groups[i].Subtotal.Add(e.Amount)
	}

	sort.Slice(groups, func(a, b int) bool { return groups[a].Account < groups[b].Account })
	for _, g := range groups {
		sort.SliceStable(g.Entries, func(a, b int) bool {
			if !g.Entries[a].RecordDate.Equal(g.Entries[b].RecordDate) {
				return g.Entries[a].RecordDate.After(g.Entries[b].RecordDate)
			}
			return g.Entries[a].ID > g.Entries[b].ID
		})
	}
	return groups
}
