package backend

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/aristath/agrimarket/internal/domain"
	"github.com/shopspring/decimal"
)

// tableSpec whitelists the columns of one table. Table and column names are
// interpolated into SQL, so nothing outside these lists ever reaches a query.
type tableSpec struct {
	key      string
	serial   bool // key assigned by SQLite
	columns  []string
	decimals map[string]bool // TEXT columns holding decimal numbers
	bools    map[string]bool
}

var specs = map[domain.Table]tableSpec{
	domain.TableProfiles: {
		key:     "id",
		columns: []string{"id", "display_name", "role", "owner_id"},
	},
	domain.TableLedgerEntries: {
		key:      "id",
		serial:   true,
		columns:  []string{"id", "account", "description", "amount", "type", "record_date", "owner_id"},
		decimals: map[string]bool{"amount": true},
	},
	domain.TableSchedules: {
		key:     "id",
		serial:  true,
		columns: []string{"id", "description", "date", "start_time", "end_time", "owner_id"},
	},
	domain.TableTags: {
		key:      "id",
		serial:   true,
		columns:  []string{"id", "description", "amount", "owner_id"},
		decimals: map[string]bool{"amount": true},
	},
	domain.TableBalances: {
		key:      "id",
		serial:   true,
		columns:  []string{"id", "account", "amount", "owner_id"},
		decimals: map[string]bool{"amount": true},
	},
	domain.TableProducts: {
		key:      "id",
		columns:  []string{"id", "name", "price", "available", "stock_quantity", "unit", "category", "description", "status", "owner_id"},
		decimals: map[string]bool{"price": true},
	},
	domain.TableOrders: {
		key:      "order_id",
		columns:  []string{"order_id", "product_id", "quantity", "total_price", "consumer_id", "farmer_id", "confirm_order", "created_at"},
		decimals: map[string]bool{"quantity": true, "total_price": true},
		bools:    map[string]bool{"confirm_order": true},
	},
}

// KeyColumn returns the primary key column of table.
func KeyColumn(table domain.Table) (string, error) {
	spec, err := specFor(table)
	if err != nil {
		return "", err
	}
	return spec.key, nil
}

func specFor(table domain.Table) (tableSpec, error) {
	spec, ok := specs[table]
	if !ok {
		return tableSpec{}, fmt.Errorf("%w: %s", domain.ErrInvalidTable, table)
	}
	return spec, nil
}

func (s tableSpec) hasColumn(col string) bool {
	for _, c := range s.columns {
		if c == col {
			return true
		}
	}
	return false
}

// checkColumns validates every column of a row, patch or filter and returns
// them in a stable order.
func (s tableSpec) checkColumns(table domain.Table, m map[string]any) ([]string, error) {
	cols := make([]string, 0, len(m))
	for col := range m {
		if !s.hasColumn(col) {
			return nil, fmt.Errorf("%w: unknown column %s.%s", domain.ErrInvalidTable, table, col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols, nil
}

// value converts a wire value into what the column stores. JSON numbers
// arrive as float64 or json.Number and decimal columns are stored as exact
// text.
func (s tableSpec) value(col string, v any) any {
	switch x := v.(type) {
	case decimal.Decimal:
		return x.String()
	case json.Number:
		if s.decimals[col] {
			return x.String()
		}
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case float64:
		if s.decimals[col] {
			return decimal.NewFromFloat(x).String()
		}
	case bool:
		if x {
			return 1
		}
		return 0
	}
	return v
}

// row converts a scanned row into its wire form
func (s tableSpec) row(cols []string, values []any) domain.Row {
	r := make(domain.Row, len(cols))
	for i, col := range cols {
		v := values[i]
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		if s.bools[col] {
			v = domain.Row{col: v}.Bool(col)
		}
		r[col] = v
	}
	return r
}
