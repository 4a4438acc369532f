package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/agrimarket/internal/backend"
	"github.com/aristath/agrimarket/internal/domain"
	"github.com/aristath/agrimarket/internal/events"
	"github.com/aristath/agrimarket/internal/orders"
	"github.com/aristath/agrimarket/internal/realtime"
	"github.com/aristath/agrimarket/internal/server"
	testingpkg "github.com/aristath/agrimarket/internal/testing"
)

func newTestClient(t *testing.T) (*Client, *httptest.Server) {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "backend")
	t.Cleanup(cleanup)

	em := events.NewManager(events.NewBus(), zerolog.Nop())
	srv := server.New(server.Config{Log: zerolog.Nop(), Backend: backend.New(db, em, zerolog.Nop()), DevMode: true})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	c := NewClient(ts.URL+"/", zerolog.Nop())
	var rows []domain.Row
	for _, p := range testingpkg.NewProductFixtures() {
		rows = append(rows, testingpkg.ProductRow(p))
	}
	_, err := c.Insert(context.Background(), domain.TableProducts, rows)
	require.NoError(t, err)
	return c, ts
}

func nextEvent(t *testing.T, stream domain.ChangeStream) domain.ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-stream.Events():
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for change event")
		return domain.ChangeEvent{}
	}
}

func TestClient_TableRoundTrip(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	inserted, err := c.Insert(ctx, domain.TableBalances, []domain.Row{
		{"account": "Cash", "amount": "12.30", "owner_id": "u1"},
		{"account": "Bank", "amount": "5", "owner_id": "u2"},
	})
	require.NoError(t, err)
	require.Len(t, inserted, 2)
	id, err := inserted[0].Int64("id")
	require.NoError(t, err)
	assert.Positive(t, id)

	rows, err := c.Query(ctx, domain.TableBalances, domain.OwnedBy("u1"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	amount, err := rows[0].Decimal("amount")
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.RequireFromString("12.30")))

	updated, err := c.Update(ctx, domain.TableBalances, domain.Row{"amount": "20"}, domain.Filter{"id": id})
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, "20", updated[0].String("amount"))

	require.NoError(t, c.Delete(ctx, domain.TableBalances, domain.Filter{"id": id}))
	rows, err = c.Query(ctx, domain.TableBalances, domain.OwnedBy("u1"))
	require.NoError(t, err)
	assert.Empty(t, rows)

	assert.NoError(t, c.Health(ctx))
}

func TestClient_MapsErrors(t *testing.T) {
	c, ts := newTestClient(t)
	ctx := context.Background()

	_, err := c.Query(ctx, domain.Table("users"), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidTable)

	_, err = c.DecrementStock(ctx, "prod-honey", decimal.NewFromInt(3))
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	err = c.MarkProductDepleted(ctx, "prod-missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = c.SubscribeChanges(ctx, domain.Table("users"), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidTable)

	ts.Close()
	_, err = c.Query(ctx, domain.TableProducts, nil)
	assert.ErrorIs(t, err, domain.ErrNetwork)
}

func TestSentinelFor_StatusFallback(t *testing.T) {
	assert.ErrorIs(t, sentinelFor(http.StatusNotFound, ""), domain.ErrNotFound)
	assert.ErrorIs(t, sentinelFor(http.StatusConflict, ""), domain.ErrInsufficientStock)
	assert.ErrorIs(t, sentinelFor(http.StatusUnprocessableEntity, ""), domain.ErrValidation)
	assert.ErrorIs(t, sentinelFor(http.StatusServiceUnavailable, ""), domain.ErrNetwork)
	assert.ErrorIs(t, sentinelFor(http.StatusInternalServerError, "internal"), domain.ErrNetwork)
	assert.ErrorIs(t, sentinelFor(http.StatusBadRequest, "invalid_table"), domain.ErrInvalidTable)
}

func TestClient_RPC(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	left, err := c.DecrementStock(ctx, "prod-tomatoes", decimal.RequireFromString("2.5"))
	require.NoError(t, err)
	assert.Equal(t, "7.5", left.String())

	placement, err := c.PlaceOrder(ctx, domain.OrderRequest{ProductID: "prod-honey", Quantity: decimal.NewFromInt(2), BuyerID: testingpkg.BuyerID})
	require.NoError(t, err)
	assert.True(t, placement.Depleted())
	assert.NotEmpty(t, placement.Order.OrderID)
	assert.Equal(t, "jar", placement.Unit)

	require.NoError(t, c.MarkProductDepleted(ctx, "prod-honey"))
}

func TestClient_SubscribeChanges(t *testing.T) {
	c, _ := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := c.SubscribeChanges(ctx, domain.TableProducts, []domain.ChangeKind{domain.ChangeUpdate})
	require.NoError(t, err)

	_, err = c.DecrementStock(context.Background(), "prod-tomatoes", decimal.NewFromInt(1))
	require.NoError(t, err)

	ev := nextEvent(t, stream)
	assert.Equal(t, domain.ChangeUpdate, ev.Kind)
	assert.Equal(t, "prod-tomatoes", ev.Row.String("id"))
	assert.Equal(t, "9.00 kg", ev.Row.String("available"))

	cancel()
	select {
	case _, ok := <-stream.Events():
		assert.False(t, ok)
	case <-time.After(3 * time.Second):
		t.Fatal("stream did not end with its context")
	}
}

func TestClient_DrivesSyncCore(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	em := events.NewManager(events.NewBus(), zerolog.Nop())

	views := make(chan realtime.View, 8)
	reg := realtime.NewRegistry(c, em, zerolog.Nop())
	defer reg.Close()

	h, err := reg.Subscribe(ctx, "market", domain.TableProducts, realtime.Options{
		Filter:   domain.Filter{"status": "active"},
		OnChange: func(v realtime.View) { views <- v },
	})
	require.NoError(t, err)
	initial := <-views
	assert.Len(t, initial.Rows, 2)

	hook := testingpkg.NewMockDepletionHook()
	wf := orders.NewAtomicWorkflow(c, hook, em, zerolog.Nop())
	placement, err := wf.PlaceOrder(ctx, orders.Request{ProductID: "prod-tomatoes", Quantity: decimal.NewFromInt(3), BuyerID: testingpkg.BuyerID})
	require.NoError(t, err)
	assert.Equal(t, "7", placement.NewAvailable.String())
	assert.Empty(t, hook.Calls())

	select {
	case v := <-views:
		assert.Equal(t, realtime.SourceReload, v.Source)
		products, err := domain.DecodeRows(v.Rows, domain.ProductFromRow)
		require.NoError(t, err)
		var tomatoes domain.Product
		for _, p := range products {
			if p.ID == "prod-tomatoes" {
				tomatoes = p
			}
		}
		assert.Equal(t, "7.00 kg", tomatoes.Available)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after the order")
	}

	assert.Eventually(t, func() bool { return reg.State(h) == realtime.Subscribed }, 3*time.Second, 10*time.Millisecond)
}
