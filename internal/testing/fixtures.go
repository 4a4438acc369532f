package testing

import (
	"time"

	"github.com/aristath/agrimarket/internal/domain"
	"github.com/shopspring/decimal"
)

// Fixture users
const (
	FarmerID = "farmer-1"
	BuyerID  = "buyer-1"
)

// NewProductFixtures returns a set of products owned by FarmerID
func NewProductFixtures() []domain.Product {
	return []domain.Product{
		{
			ID:            "prod-tomatoes",
			Name:          "Tomatoes",
			Price:         decimal.RequireFromString("2.50"),
			Available:     "10.00 kg",
			StockQuantity: decimal.NewFromInt(10),
			Unit:          "kg",
			Category:      "Vegetables",
			Description:   "Vine ripened",
			Status:        domain.ProductActive,
			OwnerID:       FarmerID,
		},
		{
			ID:            "prod-honey",
			Name:          "Honey",
			Price:         decimal.RequireFromString("8.00"),
			Available:     "2.00 jar",
			StockQuantity: decimal.NewFromInt(2),
			Unit:          "jar",
			Category:      "Pantry",
			Status:        domain.ProductActive,
			OwnerID:       FarmerID,
		},
	}
}

// ProductRow encodes a product the way the backend returns it
func ProductRow(p domain.Product) domain.Row {
	return domain.Row{
		"id":             p.ID,
		"name":           p.Name,
		"price":          p.Price.StringFixed(2),
		"available":      p.Available,
		"stock_quantity": p.StockQuantity.InexactFloat64(),
		"unit":           p.Unit,
		"category":       p.Category,
		"description":    p.Description,
		"status":         string(p.Status),
		"owner_id":       p.OwnerID,
	}
}

// NewLedgerFixtures returns entries spread over days, months and years
// relative to now. IDs are 1-based.
func NewLedgerFixtures(now time.Time) []domain.LedgerEntry {
	day := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	entries := []domain.LedgerEntry{
		{Account: "Sales", Description: "Market stall", Amount: decimal.NewFromInt(200), Type: domain.EntryIncome, RecordDate: day(now)},
		{Account: "Feed", Description: "Chicken feed", Amount: decimal.NewFromInt(50), Type: domain.EntryExpense, RecordDate: day(now)},
		{Account: "Savings", Description: "Rainy day", Amount: decimal.NewFromInt(100), Type: domain.EntrySaving, RecordDate: day(now.AddDate(0, 0, -40))},
		{Account: "Tractor", Description: "Shared tractor", Amount: decimal.NewFromInt(150), Type: domain.EntryInvestment, RecordDate: day(now.AddDate(-1, 0, 0))},
	}
	for i := range entries {
		entries[i].ID = int64(i + 1)
		entries[i].OwnerID = FarmerID
	}
	return entries
}
