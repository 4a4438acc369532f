package backend

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aristath/agrimarket/internal/domain"
	"github.com/aristath/agrimarket/internal/events"
	testingpkg "github.com/aristath/agrimarket/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *events.Manager) {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "backend")
	t.Cleanup(cleanup)

	em := events.NewManager(events.NewBus(), zerolog.Nop())
	return New(db, em, zerolog.Nop()), em
}

func seedProducts(t *testing.T, s *Store) {
	t.Helper()
	rows := make([]domain.Row, 0)
	for _, p := range testingpkg.NewProductFixtures() {
		rows = append(rows, testingpkg.ProductRow(p))
	}
	_, err := s.Insert(context.Background(), domain.TableProducts, rows)
	require.NoError(t, err)
}

func nextEvent(t *testing.T, stream domain.ChangeStream) domain.ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-stream.Events():
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change event")
		return domain.ChangeEvent{}
	}
}

func TestStore_InsertQueryRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	entry := domain.LedgerEntry{
		Account:     "Sales",
		Description: "Saturday market",
		Amount:      decimal.RequireFromString("120.50"),
		Type:        domain.EntryIncome,
		RecordDate:  time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC),
		OwnerID:     testingpkg.FarmerID,
	}
	inserted, err := s.Insert(ctx, domain.TableLedgerEntries, []domain.Row{entry.ToRow(), entry.ToRow()})
	require.NoError(t, err)
	require.Len(t, inserted, 2)
	assert.NotEqual(t, inserted[0]["id"], inserted[1]["id"])

	_, err = s.Insert(ctx, domain.TableLedgerEntries, []domain.Row{{"account": "x", "amount": "1", "type": "Income", "record_date": "2024-01-01", "owner_id": "other"}})
	require.NoError(t, err)

	rows, err := s.Query(ctx, domain.TableLedgerEntries, domain.OwnedBy(testingpkg.FarmerID))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	decoded, err := domain.DecodeRows(rows, domain.LedgerEntryFromRow)
	require.NoError(t, err)
	assert.True(t, entry.Amount.Equal(decoded[0].Amount))
	assert.Equal(t, entry.RecordDate, decoded[0].RecordDate)
	assert.Equal(t, domain.EntryIncome, decoded[0].Type)
}

func TestStore_RejectsUnknownTablesAndColumns(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Query(ctx, domain.Table("sqlite_master"), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidTable)

	_, err = s.Query(ctx, domain.TableProducts, domain.Filter{"id; DROP TABLE products": "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidTable)

	_, err = s.Insert(ctx, domain.TableTags, []domain.Row{{"bogus": 1}})
	assert.ErrorIs(t, err, domain.ErrInvalidTable)

	_, err = s.Update(ctx, domain.TableProducts, domain.Row{"id": "new"}, domain.Filter{"id": "x"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = s.Insert(ctx, domain.TableLedgerEntries, []domain.Row{{"account": "x", "amount": "1", "type": "Gift", "record_date": "2024-01-01", "owner_id": "u"}})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestStore_WritesEmitChangeEvents(t *testing.T) {
	s, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := s.SubscribeChanges(ctx, domain.TableTags, nil)
	require.NoError(t, err)
	defer stream.Close()

	inserted, err := s.Insert(ctx, domain.TableTags, []domain.Row{{"description": "Seeds", "amount": 12.5, "owner_id": "u1"}})
	require.NoError(t, err)
	assert.Equal(t, "12.5", inserted[0]["amount"])

	ev := nextEvent(t, stream)
	assert.Equal(t, domain.ChangeInsert, ev.Kind)
	assert.Equal(t, "Seeds", ev.Row.String("description"))

	id := inserted[0]["id"]
	_, err = s.Update(ctx, domain.TableTags, domain.Row{"description": "Seedlings"}, domain.Filter{"id": id})
	require.NoError(t, err)
	ev = nextEvent(t, stream)
	assert.Equal(t, domain.ChangeUpdate, ev.Kind)
	assert.Equal(t, "Seeds", ev.OldRow.String("description"))
	assert.Equal(t, "Seedlings", ev.Row.String("description"))

	require.NoError(t, s.Delete(ctx, domain.TableTags, domain.Filter{"id": id}))
	ev = nextEvent(t, stream)
	assert.Equal(t, domain.ChangeDelete, ev.Kind)
	assert.Equal(t, "Seedlings", ev.OldRow.String("description"))

	rows, err := s.Query(ctx, domain.TableTags, nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStore_SubscriptionEndsWithContext(t *testing.T) {
	s, em := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	stream, err := s.SubscribeChanges(ctx, domain.TableProducts, []domain.ChangeKind{domain.ChangeUpdate})
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-stream.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed after cancel")
	}
	assert.Equal(t, 0, em.Bus().SubscriberCount(events.RowUpdated))
}

func TestDecrementStock(t *testing.T) {
	s, _ := newTestStore(t)
	seedProducts(t, s)
	ctx := context.Background()

	left, err := s.DecrementStock(ctx, "prod-tomatoes", decimal.NewFromInt(3))
	require.NoError(t, err)
	assert.True(t, left.Equal(decimal.NewFromInt(7)), left.String())

	rows, err := s.Query(ctx, domain.TableProducts, domain.Filter{"id": "prod-tomatoes"})
	require.NoError(t, err)
	assert.Equal(t, "7.00 kg", rows[0]["available"])

	_, err = s.DecrementStock(ctx, "prod-tomatoes", decimal.NewFromInt(8))
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	_, err = s.DecrementStock(ctx, "missing", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.DecrementStock(ctx, "prod-tomatoes", decimal.Zero)
	assert.ErrorIs(t, err, domain.ErrValidation)

	left, err = s.DecrementStock(ctx, "prod-tomatoes", decimal.RequireFromString("6.9"))
	require.NoError(t, err)
	assert.True(t, left.Equal(decimal.RequireFromString("0.1")), left.String())
}

func TestPlaceOrder(t *testing.T) {
	s, em := newTestStore(t)
	seedProducts(t, s)
	ctx := context.Background()

	var placed []*events.OrderPlacedData
	var mu sync.Mutex
	em.Bus().Subscribe(events.OrderPlaced, func(e *events.Event) {
		mu.Lock()
		defer mu.Unlock()
		placed = append(placed, e.Data.(*events.OrderPlacedData))
	})

	p, err := s.PlaceOrder(ctx, domain.OrderRequest{ProductID: "prod-tomatoes", Quantity: decimal.NewFromInt(3), BuyerID: testingpkg.BuyerID})
	require.NoError(t, err)
	assert.True(t, p.NewAvailable.Equal(decimal.NewFromInt(7)))
	assert.Equal(t, "kg", p.Unit)
	assert.False(t, p.Depleted())
	assert.True(t, p.Order.TotalPrice.Equal(decimal.RequireFromString("7.5")))
	assert.Equal(t, testingpkg.FarmerID, p.Order.FarmerID)
	assert.NotEmpty(t, p.Order.OrderID)

	rows, err := s.Query(ctx, domain.TableOrders, domain.Filter{"consumer_id": testingpkg.BuyerID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	order, err := domain.OrderFromRow(rows[0])
	require.NoError(t, err)
	assert.Equal(t, p.Order.OrderID, order.OrderID)
	assert.False(t, order.ConfirmOrder)

	p, err = s.PlaceOrder(ctx, domain.OrderRequest{ProductID: "prod-honey", Quantity: decimal.NewFromInt(2), BuyerID: testingpkg.BuyerID})
	require.NoError(t, err)
	assert.True(t, p.Depleted())

	_, err = s.PlaceOrder(ctx, domain.OrderRequest{ProductID: "prod-honey", Quantity: decimal.NewFromInt(1), BuyerID: testingpkg.BuyerID})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	rows, err = s.Query(ctx, domain.TableOrders, nil)
	require.NoError(t, err)
	assert.Len(t, rows, 2, "failed placement must not leave an order")

	mu.Lock()
	assert.Len(t, placed, 2)
	mu.Unlock()
}

// Concurrent orders never lose an update: final stock is S minus the sum of
// the successful quantities, and no order is accepted past zero.
func TestPlaceOrder_ConcurrentStress(t *testing.T) {
	s, _ := newTestStore(t)
	seedProducts(t, s)
	ctx := context.Background()

	const buyers = 30
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.PlaceOrder(ctx, domain.OrderRequest{ProductID: "prod-tomatoes", Quantity: decimal.RequireFromString("0.5"), BuyerID: testingpkg.BuyerID})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrInsufficientStock):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, succeeded)
	assert.Equal(t, 10, rejected)

	rows, err := s.Query(ctx, domain.TableProducts, domain.Filter{"id": "prod-tomatoes"})
	require.NoError(t, err)
	product, err := domain.ProductFromRow(rows[0])
	require.NoError(t, err)
	assert.True(t, product.StockQuantity.IsZero(), product.StockQuantity.String())
	assert.Equal(t, "0.00 kg", product.Available)

	orders, err := s.Query(ctx, domain.TableOrders, domain.Filter{"product_id": "prod-tomatoes"})
	require.NoError(t, err)
	assert.Len(t, orders, 20)
}

func TestPlaceOrder_QuantityPrecision(t *testing.T) {
	s, _ := newTestStore(t)
	seedProducts(t, s)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.PlaceOrder(ctx, domain.OrderRequest{ProductID: "prod-honey", Quantity: decimal.RequireFromString("0.00004"), BuyerID: testingpkg.BuyerID})
		require.ErrorIs(t, err, domain.ErrValidation)
	}
	_, err := s.DecrementStock(ctx, "prod-honey", decimal.RequireFromString("0.00004"))
	require.ErrorIs(t, err, domain.ErrValidation)

	orders, err := s.Query(ctx, domain.TableOrders, nil)
	require.NoError(t, err)
	assert.Empty(t, orders, "rejected quantities must not leave orders")

	// Quantities at full precision decrement exactly
	var last domain.Placement
	for i := 0; i < 3; i++ {
		last, err = s.PlaceOrder(ctx, domain.OrderRequest{ProductID: "prod-tomatoes", Quantity: decimal.RequireFromString("0.3333"), BuyerID: testingpkg.BuyerID})
		require.NoError(t, err)
	}
	assert.True(t, last.NewAvailable.Equal(decimal.RequireFromString("9.0001")), last.NewAvailable.String())

	rows, err := s.Query(ctx, domain.TableProducts, domain.Filter{"id": "prod-tomatoes"})
	require.NoError(t, err)
	product, err := domain.ProductFromRow(rows[0])
	require.NoError(t, err)
	assert.True(t, product.StockQuantity.Round(domain.StockPrecision).Equal(decimal.RequireFromString("9.0001")), product.StockQuantity.String())
	assert.Equal(t, "9.00 kg", product.Available)
}

func TestMarkProductDepleted(t *testing.T) {
	s, _ := newTestStore(t)
	seedProducts(t, s)
	ctx := context.Background()

	require.NoError(t, s.MarkProductDepleted(ctx, "prod-honey"))
	require.NoError(t, s.MarkProductDepleted(ctx, "prod-honey"))

	rows, err := s.Query(ctx, domain.TableProducts, domain.Filter{"status": string(domain.ProductDepleted)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "prod-honey", rows[0]["id"])

	assert.ErrorIs(t, s.MarkProductDepleted(ctx, "missing"), domain.ErrNotFound)
}
