package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterMatches(t *testing.T) {
	f := OwnedBy("u1")

	assert.True(t, f.Matches(Row{"owner_id": "u1", "id": int64(3)}))
	assert.False(t, f.Matches(Row{"owner_id": "u2"}))
	assert.False(t, f.Matches(Row{"id": 1}))
	assert.True(t, Filter{}.Matches(Row{"anything": 1}))
	// msgpack decodes small integers as int8
	assert.True(t, Filter{"id": int64(7)}.Matches(Row{"id": int8(7)}))
}

func TestFilterColumnsSorted(t *testing.T) {
	f := Filter{"b": 1, "a": 2, "c": 3}
	assert.Equal(t, []string{"a", "b", "c"}, f.Columns())
}

func TestWantsKind(t *testing.T) {
	assert.True(t, WantsKind(nil, ChangeDelete))
	assert.True(t, WantsKind([]ChangeKind{ChangeInsert, ChangeDelete}, ChangeDelete))
	assert.False(t, WantsKind([]ChangeKind{ChangeInsert}, ChangeUpdate))
}

func TestRowDecimal_AcceptsWireTypes(t *testing.T) {
	row := Row{"s": "12.50", "f": 7.25, "i": int64(3), "u": uint8(4), "n": nil}

	for col, want := range map[string]string{"s": "12.5", "f": "7.25", "i": "3", "u": "4", "n": "0"} {
		got, err := row.Decimal(col)
		require.NoError(t, err, col)
		assert.True(t, got.Equal(decimal.RequireFromString(want)), "%s: got %s", col, got)
	}

	_, err := Row{"bad": "x"}.Decimal("bad")
	assert.Error(t, err)
}

func TestProductFromRow(t *testing.T) {
	p, err := ProductFromRow(Row{
		"id":             "p1",
		"name":           "Tomatoes",
		"price":          "2.50",
		"available":      "10.00 kg",
		"stock_quantity": 10.0,
		"unit":           "kg",
		"status":         "active",
		"owner_id":       "farmer",
	})
	require.NoError(t, err)

	assert.Equal(t, "p1", p.ID)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("2.5")))
	assert.True(t, p.StockQuantity.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, ProductActive, p.Status)
}

func TestOrderRoundTripThroughRow(t *testing.T) {
	o := Order{
		OrderID:    "o1",
		ProductID:  "p1",
		Quantity:   decimal.NewFromInt(3),
		TotalPrice: decimal.RequireFromString("7.5"),
		ConsumerID: "buyer",
		FarmerID:   "farmer",
	}

	got, err := OrderFromRow(o.ToRow())
	require.NoError(t, err)

	assert.Equal(t, "7.50", got.TotalPrice.StringFixed(2))
	assert.True(t, got.Quantity.Equal(o.Quantity))
	assert.False(t, got.ConfirmOrder)
}

func TestDecodeRows_ReportsIndex(t *testing.T) {
	_, err := DecodeRows([]Row{{"id": 1, "amount": "1"}, {"id": 1, "amount": "oops"}}, TagFromRow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 1")
}

func TestTableValid(t *testing.T) {
	assert.True(t, TableProducts.Valid())
	assert.False(t, Table("users; DROP TABLE x").Valid())
}
