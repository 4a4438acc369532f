package domain

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire format of calendar dates (record_date, date)
const DateLayout = "2006-01-02"

// Row is an untyped table row as it travels over the wire
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String returns the column as a string ("" when absent or null).
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// Int64 returns the column as an int64.
func (r Row) Int64(col string) (int64, error) {
	switch v := r[col].(type) {
	case nil:
		return 0, nil
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case float32:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("column %s: unsupported integer type %T", col, v)
	}
}

// Decimal returns the column as a decimal. Numeric values are converted
// exactly from their textual form.
func (r Row) Decimal(col string) (decimal.Decimal, error) {
	switch v := r[col].(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		return v, nil
	case string:
		if v == "" {
			return decimal.Zero, nil
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, fmt.Errorf("column %s: %w", col, err)
		}
		return d, nil
	case []byte:
		return decimal.NewFromString(string(v))
	case float64:
		return decimal.NewFromFloat(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	default:
		n, err := r.Int64(col)
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromInt(n), nil
	}
}

// Bool returns the column as a bool. SQLite stores booleans as integers.
func (r Row) Bool(col string) bool {
	switch v := r[col].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	case nil:
		return false
	default:
		n, err := r.Int64(col)
		return err == nil && n != 0
	}
}

// Date parses a YYYY-MM-DD column in UTC.
func (r Row) Date(col string) (time.Time, error) {
	s := r.String(col)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("column %s: invalid date %q: %w", col, s, err)
	}
	return t, nil
}

// Timestamp parses an RFC3339 column.
func (r Row) Timestamp(col string) (time.Time, error) {
	s := r.String(col)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("column %s: invalid timestamp %q: %w", col, s, err)
	}
	return t, nil
}

func (r Row) optionalString(col string) *string {
	if r[col] == nil {
		return nil
	}
	s := r.String(col)
	return &s
}

// LedgerEntryFromRow decodes a ledger_entries row
func LedgerEntryFromRow(r Row) (LedgerEntry, error) {
	id, err := r.Int64("id")
	if err != nil {
		return LedgerEntry{}, err
	}
	amount, err := r.Decimal("amount")
	if err != nil {
		return LedgerEntry{}, err
	}
	date, err := r.Date("record_date")
	if err != nil {
		return LedgerEntry{}, err
	}
	return LedgerEntry{
		ID:          id,
		Account:     r.String("account"),
		Description: r.String("description"),
		Amount:      amount,
		Type:        EntryType(r.String("type")),
		RecordDate:  date,
		OwnerID:     r.String("owner_id"),
	}, nil
}

// ToRow encodes the entry for insertion. The id is assigned by the backend.
func (e LedgerEntry) ToRow() Row {
	return Row{
		"account":     e.Account,
		"description": e.Description,
		"amount":      e.Amount.String(),
		"type":        string(e.Type),
		"record_date": e.RecordDate.Format(DateLayout),
		"owner_id":    e.OwnerID,
	}
}

// ScheduleEntryFromRow decodes a schedules row
func ScheduleEntryFromRow(r Row) (ScheduleEntry, error) {
	id, err := r.Int64("id")
	if err != nil {
		return ScheduleEntry{}, err
	}
	date, err := r.Date("date")
	if err != nil {
		return ScheduleEntry{}, err
	}
	return ScheduleEntry{
		ID:          id,
		Description: r.String("description"),
		Date:        date,
		StartTime:   r.optionalString("start_time"),
		EndTime:     r.optionalString("end_time"),
		OwnerID:     r.String("owner_id"),
	}, nil
}

// TagFromRow decodes a tags row
func TagFromRow(r Row) (Tag, error) {
	id, err := r.Int64("id")
	if err != nil {
		return Tag{}, err
	}
	amount, err := r.Decimal("amount")
	if err != nil {
		return Tag{}, err
	}
	return Tag{ID: id, Description: r.String("description"), Amount: amount, OwnerID: r.String("owner_id")}, nil
}

// ProductFromRow decodes a products row
func ProductFromRow(r Row) (Product, error) {
	price, err := r.Decimal("price")
	if err != nil {
		return Product{}, err
	}
	stock, err := r.Decimal("stock_quantity")
	if err != nil {
		return Product{}, err
	}
	return Product{
		ID:            r.String("id"),
		Name:          r.String("name"),
		Price:         price,
		Available:     r.String("available"),
		StockQuantity: stock,
		Unit:          r.String("unit"),
		Category:      r.String("category"),
		Description:   r.String("description"),
		Status:        ProductStatus(r.String("status")),
		OwnerID:       r.String("owner_id"),
	}, nil
}

// OrderFromRow decodes an orders row
func OrderFromRow(r Row) (Order, error) {
	qty, err := r.Decimal("quantity")
	if err != nil {
		return Order{}, err
	}
	total, err := r.Decimal("total_price")
	if err != nil {
		return Order{}, err
	}
	created, err := r.Timestamp("created_at")
	if err != nil {
		return Order{}, err
	}
	return Order{
		OrderID:      r.String("order_id"),
		ProductID:    r.String("product_id"),
		Quantity:     qty,
		TotalPrice:   total,
		ConsumerID:   r.String("consumer_id"),
		FarmerID:     r.String("farmer_id"),
		ConfirmOrder: r.Bool("confirm_order"),
		CreatedAt:    created,
	}, nil
}

// ToRow encodes the order for insertion.
func (o Order) ToRow() Row {
	return Row{
		"order_id":      o.OrderID,
		"product_id":    o.ProductID,
		"quantity":      o.Quantity.String(),
		"total_price":   o.TotalPrice.String(),
		"consumer_id":   o.ConsumerID,
		"farmer_id":     o.FarmerID,
		"confirm_order": o.ConfirmOrder,
		"created_at":    o.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// DecodeRows decodes every row with fn, stopping at the first error.
func DecodeRows[T any](rows []Row, fn func(Row) (T, error)) ([]T, error) {
	out := make([]T, 0, len(rows))
	for i, r := range rows {
		v, err := fn(r)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}
