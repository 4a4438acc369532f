package orders

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aristath/agrimarket/internal/backend"
	"github.com/aristath/agrimarket/internal/domain"
	"github.com/aristath/agrimarket/internal/events"
	testingpkg "github.com/aristath/agrimarket/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func qty(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newManager() (*events.Manager, *events.Bus) {
	bus := events.NewBus()
	return events.NewManager(bus, zerolog.Nop()), bus
}

func seededRemote(available string) *testingpkg.MemoryRemote {
	remote := testingpkg.NewMemoryRemote()
	p := testingpkg.NewProductFixtures()[0]
	p.Available = available
	remote.Seed(domain.TableProducts, testingpkg.ProductRow(p))
	return remote
}

func request(q string) Request {
	return Request{ProductID: "prod-tomatoes", Quantity: qty(q), BuyerID: testingpkg.BuyerID}
}

func TestParseAvailable(t *testing.T) {
	tests := []struct {
		in   string
		qty  string
		unit string
	}{
		{"10.00 kg", "10", "kg"},
		{"2 bunches", "2", "bunches"},
		{"  3.5kg", "3.5", "kg"},
		{"-1.00 kg", "-1", "kg"},
		{"sold out", "0", "sold out"},
		{"", "0", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			q, unit := ParseAvailable(tt.in)
			assert.True(t, qty(tt.qty).Equal(q), q.String())
			assert.Equal(t, tt.unit, unit)
		})
	}

	assert.Equal(t, "7.00 kg", FormatAvailable(qty("7"), "kg"))
	assert.Equal(t, "0.50", FormatAvailable(qty("0.5"), ""))
}

func TestValidate(t *testing.T) {
	zero := decimal.Zero
	two := qty("2")

	tests := []struct {
		name string
		req  Request
	}{
		{"missing product", Request{Quantity: qty("1"), BuyerID: "b"}},
		{"missing buyer", Request{ProductID: "p", Quantity: qty("1")}},
		{"zero quantity", Request{ProductID: "p", BuyerID: "b"}},
		{"negative quantity", Request{ProductID: "p", Quantity: qty("-1"), BuyerID: "b"}},
		{"finer than stock precision", Request{ProductID: "p", Quantity: qty("0.00004"), BuyerID: "b"}},
		{"no stock shown", Request{ProductID: "p", Quantity: qty("1"), BuyerID: "b", DisplayedStock: &zero}},
		{"more than shown", Request{ProductID: "p", Quantity: qty("3"), BuyerID: "b", DisplayedStock: &two}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, Validate(tt.req), domain.ErrValidation)
		})
	}

	assert.NoError(t, Validate(Request{ProductID: "p", Quantity: qty("2"), BuyerID: "b", DisplayedStock: &two}))
	assert.NoError(t, Validate(Request{ProductID: "p", Quantity: qty("0.3333"), BuyerID: "b"}))
	assert.NoError(t, Validate(Request{ProductID: "p", Quantity: qty("1.500000"), BuyerID: "b"}), "trailing zeros are exact")
}

func TestLegacy_ValidationMakesNoRemoteCalls(t *testing.T) {
	remote := seededRemote("10.00 kg")
	em, _ := newManager()
	w := NewLegacyWorkflow(remote, testingpkg.NewMockDepletionHook(), em, zerolog.Nop())

	_, err := w.PlaceOrder(context.Background(), request("0"))
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Zero(t, remote.Calls(testingpkg.OpQuery))
}

func TestLegacy_PlaceOrderDecrementsAvailable(t *testing.T) {
	remote := seededRemote("10.00 kg")
	hook := testingpkg.NewMockDepletionHook()
	em, _ := newManager()
	w := NewLegacyWorkflow(remote, hook, em, zerolog.Nop())

	p, err := w.PlaceOrder(context.Background(), request("3"))
	require.NoError(t, err)

	assert.True(t, p.NewAvailable.Equal(qty("7")))
	assert.Equal(t, "7.00 kg", remote.Rows(domain.TableProducts)[0]["available"])
	assert.Empty(t, hook.Calls())

	orders := remote.Rows(domain.TableOrders)
	require.Len(t, orders, 1)
	order, err := domain.OrderFromRow(orders[0])
	require.NoError(t, err)
	assert.True(t, order.TotalPrice.Equal(qty("3").Mul(qty("2.50"))))
	assert.Equal(t, testingpkg.FarmerID, order.FarmerID)
	assert.Equal(t, p.Order.OrderID, order.OrderID)
}

func TestLegacy_DepletionHookCalledOnce(t *testing.T) {
	remote := seededRemote("2.00 kg")
	hook := testingpkg.NewMockDepletionHook()
	em, bus := newManager()
	w := NewLegacyWorkflow(remote, hook, em, zerolog.Nop())

	var depleted []*events.StockDepletedData
	bus.Subscribe(events.StockDepleted, func(e *events.Event) {
		depleted = append(depleted, e.Data.(*events.StockDepletedData))
	})

	p, err := w.PlaceOrder(context.Background(), request("2"))
	require.NoError(t, err)

	assert.True(t, p.Depleted())
	assert.Equal(t, "0.00 kg", remote.Rows(domain.TableProducts)[0]["available"])
	assert.Equal(t, []string{"prod-tomatoes"}, hook.Calls())
	require.Len(t, depleted, 1)
	assert.Empty(t, depleted[0].HookError)
}

func TestLegacy_HookFailureKeepsOrder(t *testing.T) {
	remote := seededRemote("1.00 kg")
	hook := testingpkg.NewMockDepletionHook()
	hook.SetError(errors.New("hook down"))
	em, bus := newManager()
	w := NewLegacyWorkflow(remote, hook, em, zerolog.Nop())

	var hookErr string
	bus.Subscribe(events.StockDepleted, func(e *events.Event) {
		hookErr = e.Data.(*events.StockDepletedData).HookError
	})

	_, err := w.PlaceOrder(context.Background(), request("1"))
	require.NoError(t, err)
	assert.Len(t, remote.Rows(domain.TableOrders), 1)
	assert.Equal(t, "hook down", hookErr)
}

func TestLegacy_FailuresBeforeMutationAbort(t *testing.T) {
	hook := testingpkg.NewMockDepletionHook()
	em, _ := newManager()

	remote := seededRemote("10.00 kg")
	remote.FailNext(testingpkg.OpQuery, errors.New("timeout"))
	w := NewLegacyWorkflow(remote, hook, em, zerolog.Nop())
	_, err := w.PlaceOrder(context.Background(), request("1"))
	assert.ErrorIs(t, err, domain.ErrNetwork)
	assert.Zero(t, remote.Calls(testingpkg.OpInsert))

	remote = seededRemote("10.00 kg")
	remote.FailNext(testingpkg.OpInsert, errors.New("timeout"))
	w = NewLegacyWorkflow(remote, hook, em, zerolog.Nop())
	_, err = w.PlaceOrder(context.Background(), request("1"))
	assert.ErrorIs(t, err, domain.ErrNetwork)
	assert.Zero(t, remote.Calls(testingpkg.OpUpdate))
	assert.Equal(t, "10.00 kg", remote.Rows(domain.TableProducts)[0]["available"])

	w = NewLegacyWorkflow(testingpkg.NewMemoryRemote(), hook, em, zerolog.Nop())
	_, err = w.PlaceOrder(context.Background(), request("1"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLegacy_UpdateFailureCompensates(t *testing.T) {
	remote := seededRemote("10.00 kg")
	remote.FailNext(testingpkg.OpUpdate, errors.New("connection reset"))
	em, bus := newManager()
	w := NewLegacyWorkflow(remote, testingpkg.NewMockDepletionHook(), em, zerolog.Nop())

	compensated := 0
	bus.Subscribe(events.OrderCompensated, func(*events.Event) { compensated++ })

	_, err := w.PlaceOrder(context.Background(), request("3"))
	assert.ErrorIs(t, err, domain.ErrNetwork)
	assert.NotErrorIs(t, err, domain.ErrStockInconsistency)

	assert.Empty(t, remote.Rows(domain.TableOrders), "inserted order must be rolled back")
	assert.Equal(t, "10.00 kg", remote.Rows(domain.TableProducts)[0]["available"])
	assert.Equal(t, 1, compensated)
}

func TestLegacy_WriteBackMatchingNoProductCompensates(t *testing.T) {
	remote := seededRemote("10.00 kg")
	remote.SetOnQuery(func(table domain.Table) {
		if table == domain.TableProducts {
			_ = remote.Delete(context.Background(), domain.TableProducts, domain.Filter{"id": "prod-tomatoes"})
		}
	})
	em, bus := newManager()
	w := NewLegacyWorkflow(remote, testingpkg.NewMockDepletionHook(), em, zerolog.Nop())

	placed := 0
	bus.Subscribe(events.OrderPlaced, func(*events.Event) { placed++ })

	_, err := w.PlaceOrder(context.Background(), request("3"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NotErrorIs(t, err, domain.ErrStockInconsistency)
	assert.Empty(t, remote.Rows(domain.TableOrders), "order for a vanished product must be rolled back")
	assert.Zero(t, placed)
}

func TestLegacy_FailedCompensationIsInconsistency(t *testing.T) {
	remote := seededRemote("10.00 kg")
	remote.SetError(testingpkg.OpUpdate, errors.New("connection reset"))
	remote.SetError(testingpkg.OpDelete, errors.New("connection reset"))
	em, _ := newManager()
	w := NewLegacyWorkflow(remote, testingpkg.NewMockDepletionHook(), em, zerolog.Nop())

	_, err := w.PlaceOrder(context.Background(), request("3"))
	assert.ErrorIs(t, err, domain.ErrStockInconsistency)
	assert.Len(t, remote.Rows(domain.TableOrders), 1)
}

// Reproduces the lost update: both placements read "10.00 kg" before either
// writes back, so one decrement is overwritten and stock is oversold.
func TestLegacy_ConcurrentPlacementsLoseAnUpdate(t *testing.T) {
	remote := seededRemote("10.00 kg")
	em, _ := newManager()
	w := NewLegacyWorkflow(remote, testingpkg.NewMockDepletionHook(), em, zerolog.Nop())

	var readers sync.WaitGroup
	readers.Add(2)
	remote.SetOnQuery(func(table domain.Table) {
		if table == domain.TableProducts {
			readers.Done()
			readers.Wait()
		}
	})

	var wg sync.WaitGroup
	for _, q := range []string{"3", "2"} {
		wg.Add(1)
		go func(q string) {
			defer wg.Done()
			_, err := w.PlaceOrder(context.Background(), request(q))
			assert.NoError(t, err)
		}(q)
	}
	wg.Wait()

	assert.Len(t, remote.Rows(domain.TableOrders), 2)
	available := remote.Rows(domain.TableProducts)[0]["available"]
	assert.Contains(t, []string{"7.00 kg", "8.00 kg"}, available)
	assert.NotEqual(t, "5.00 kg", available)
}

type stubPlacer struct {
	placement domain.Placement
	err       error
	calls     int
}

func (s *stubPlacer) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.Placement, error) {
	s.calls++
	return s.placement, s.err
}

func TestAtomic_PassesThroughErrors(t *testing.T) {
	em, _ := newManager()
	hook := testingpkg.NewMockDepletionHook()

	placer := &stubPlacer{err: domain.ErrInsufficientStock}
	w := NewAtomicWorkflow(placer, hook, em, zerolog.Nop())
	_, err := w.PlaceOrder(context.Background(), request("1"))
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.NotErrorIs(t, err, domain.ErrNetwork)

	placer.err = errors.New("dial tcp: refused")
	_, err = w.PlaceOrder(context.Background(), request("1"))
	assert.ErrorIs(t, err, domain.ErrNetwork)

	_, err = w.PlaceOrder(context.Background(), request("-1"))
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 2, placer.calls)
	assert.Empty(t, hook.Calls())
}

func newAtomicAgainstBackend(t *testing.T, hook domain.DepletionHook) (*AtomicWorkflow, *backend.Store) {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "backend")
	t.Cleanup(cleanup)

	em, _ := newManager()
	store := backend.New(db, em, zerolog.Nop())
	for _, p := range testingpkg.NewProductFixtures() {
		_, err := store.Insert(context.Background(), domain.TableProducts, []domain.Row{testingpkg.ProductRow(p)})
		require.NoError(t, err)
	}
	return NewAtomicWorkflow(store, hook, em, zerolog.Nop()), store
}

func TestAtomic_AgainstBackend(t *testing.T) {
	hook := testingpkg.NewMockDepletionHook()
	w, store := newAtomicAgainstBackend(t, hook)
	ctx := context.Background()

	p, err := w.PlaceOrder(ctx, request("3"))
	require.NoError(t, err)
	assert.True(t, p.NewAvailable.Equal(qty("7")))
	assert.True(t, p.Order.TotalPrice.Equal(qty("7.5")))

	rows, err := store.Query(ctx, domain.TableProducts, domain.Filter{"id": "prod-tomatoes"})
	require.NoError(t, err)
	assert.Equal(t, "7.00 kg", rows[0]["available"])

	_, err = w.PlaceOrder(ctx, Request{ProductID: "prod-honey", Quantity: qty("2"), BuyerID: testingpkg.BuyerID})
	require.NoError(t, err)
	assert.Equal(t, []string{"prod-honey"}, hook.Calls())

	_, err = w.PlaceOrder(ctx, Request{ProductID: "prod-honey", Quantity: qty("1"), BuyerID: testingpkg.BuyerID})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Len(t, hook.Calls(), 1)
}

// Concurrent orders with q1+...+qn <= S leave exactly S-(q1+...+qn), and the
// order reaching zero is the only one that depletes the product.
func TestAtomic_ConcurrentOrdersKeepEveryDecrement(t *testing.T) {
	hook := testingpkg.NewMockDepletionHook()
	w, store := newAtomicAgainstBackend(t, hook)
	ctx := context.Background()

	quantities := []string{"3", "2", "1.5", "0.5", "1", "2"} // sums to 10
	var wg sync.WaitGroup
	for _, q := range quantities {
		wg.Add(1)
		go func(q string) {
			defer wg.Done()
			_, err := w.PlaceOrder(ctx, request(q))
			assert.NoError(t, err)
		}(q)
	}
	wg.Wait()

	rows, err := store.Query(ctx, domain.TableProducts, domain.Filter{"id": "prod-tomatoes"})
	require.NoError(t, err)
	product, err := domain.ProductFromRow(rows[0])
	require.NoError(t, err)
	assert.True(t, product.StockQuantity.IsZero(), product.StockQuantity.String())
	assert.Equal(t, "0.00 kg", product.Available)
	assert.Equal(t, []string{"prod-tomatoes"}, hook.Calls())

	orders, err := store.Query(ctx, domain.TableOrders, domain.Filter{"product_id": "prod-tomatoes"})
	require.NoError(t, err)
	assert.Len(t, orders, len(quantities))
}
