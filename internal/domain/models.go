// Package domain provides the marketplace models shared by the sync core, the
// backend reference store and the transport clients.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Table names a remote table the client reads or subscribes to
type Table string

const (
	TableLedgerEntries Table = "ledger_entries"
	TableSchedules     Table = "schedules"
	TableTags          Table = "tags"
	TableBalances      Table = "balances"
	TableProducts      Table = "products"
	TableProfiles      Table = "profiles"
	TableOrders        Table = "orders"
)

// AllTables lists every table exposed by the backend.
var AllTables = []Table{
	TableLedgerEntries,
	TableSchedules,
	TableTags,
	TableBalances,
	TableProducts,
	TableProfiles,
	TableOrders,
}

// Valid reports whether t is one of the known tables.
func (t Table) Valid() bool {
	for _, known := range AllTables {
		if t == known {
			return true
		}
	}
	return false
}

// EntryType is the ledger category of an entry
type EntryType string

const (
	EntryIncome     EntryType = "Income"
	EntryExpense    EntryType = "Expense"
	EntrySaving     EntryType = "Saving"
	EntryInvestment EntryType = "Investment"
)

// EntryTypes lists the ledger categories in display order.
var EntryTypes = []EntryType{EntryIncome, EntryExpense, EntrySaving, EntryInvestment}

// Valid reports whether e is a known ledger category.
func (e EntryType) Valid() bool {
	switch e {
	case EntryIncome, EntryExpense, EntrySaving, EntryInvestment:
		return true
	}
	return false
}

// LedgerEntry is one personal ledger row. Entries are immutable once written
// except by explicit delete.
type LedgerEntry struct {
	ID          int64           `json:"id"`
	Account     string          `json:"account"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Type        EntryType       `json:"type"`
	RecordDate  time.Time       `json:"record_date"`
	OwnerID     string          `json:"owner_id"`
}

// ScheduleEntry is a calendar item created from the scheduling form.
type ScheduleEntry struct {
	ID          int64     `json:"id"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	StartTime   *string   `json:"start_time,omitempty"` // HH:MM
	EndTime     *string   `json:"end_time,omitempty"`   // HH:MM
	OwnerID     string    `json:"owner_id"`
}

// Tag is a lightweight budget-category marker
type Tag struct {
	ID          int64           `json:"id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	OwnerID     string          `json:"owner_id"`
}

// Balance is a per-account balance shown on the overview screen
type Balance struct {
	ID      int64           `json:"id"`
	Account string          `json:"account"`
	Amount  decimal.Decimal `json:"amount"`
	OwnerID string          `json:"owner_id"`
}

// Role distinguishes sellers from buyers
type Role string

const (
	RoleProducer Role = "producer"
	RoleBuyer    Role = "buyer"
)

// Profile is the user profile row
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
}

// ProductStatus is the listing state of a product
type ProductStatus string

const (
	ProductActive   ProductStatus = "active"
	ProductDepleted ProductStatus = "done"
)

// StockPrecision is the number of decimal places a stock quantity keeps
const StockPrecision = 4

// CheckQuantity rejects order quantities that are not positive or that are
// finer than StockPrecision, which stock could not record exactly.
func CheckQuantity(q decimal.Decimal) error {
	if !q.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive, got %s", ErrValidation, q)
	}
	if !q.Equal(q.Truncate(StockPrecision)) {
		return fmt.Errorf("%w: quantity %s has more than %d decimal places", ErrValidation, q, StockPrecision)
	}
	return nil
}

// Product is a marketplace listing.
//
// Available is the legacy "<numeric> <unit>" display string. StockQuantity and
// Unit are the authoritative counter; stock arithmetic only touches StockQuantity.
type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	Available     string          `json:"available"`
	StockQuantity decimal.Decimal `json:"stock_quantity"`
	Unit          string          `json:"unit"`
	Category      string          `json:"category"`
	Description   string          `json:"description"`
	Status        ProductStatus   `json:"status"`
	OwnerID       string          `json:"owner_id"`
}

// Order is created once per purchase attempt. Only ConfirmOrder changes
// afterwards, set by the seller.
type Order struct {
	OrderID      string          `json:"order_id"`
	ProductID    string          `json:"product_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	TotalPrice   decimal.Decimal `json:"total_price"`
	ConsumerID   string          `json:"consumer_id"`
	FarmerID     string          `json:"farmer_id"`
	ConfirmOrder bool            `json:"confirm_order"`
	CreatedAt    time.Time       `json:"created_at"`
}

// OrderRequest is the input of the server-side order placement RPC
type OrderRequest struct {
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	BuyerID   string          `json:"buyer_id"`
}

// Placement is the result of a committed order placement
type Placement struct {
	Order        Order           `json:"order"`
	NewAvailable decimal.Decimal `json:"new_available"`
	Unit         string          `json:"unit"`
}

// Depleted reports whether the placement exhausted the product's stock.
func (p Placement) Depleted() bool {
	return !p.NewAvailable.IsPositive()
}
