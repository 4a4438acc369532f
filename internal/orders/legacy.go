package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/agrimarket/internal/domain"
	"github.com/aristath/agrimarket/internal/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const moduleName = "orders"

// LegacyWorkflow places an order with six sequential client-side steps:
// fetch the product, parse its available string, subtract, insert the
// order, write the new available string back, then call the depletion hook
// when stock ran out.
//
// Steps one to five are not atomic. Two concurrent placements can read the
// same stock and the later write-back silently overwrites the earlier one,
// overselling the product. AtomicWorkflow is the replacement; this one is
// kept for backends that only offer plain table access.
//
// If the write-back fails after the order was inserted, the order is deleted
// again. Only when that delete also fails does PlaceOrder report
// ErrStockInconsistency.
type LegacyWorkflow struct {
	remote domain.RemoteStore
	hook   domain.DepletionHook
	events *events.Manager
	log    zerolog.Logger
	now    func() time.Time
	newID  func() string
}

// NewLegacyWorkflow creates the read-modify-write workflow
func NewLegacyWorkflow(remote domain.RemoteStore, hook domain.DepletionHook, em *events.Manager, log zerolog.Logger) *LegacyWorkflow {
	return &LegacyWorkflow{
		remote: remote,
		hook:   hook,
		events: em,
		log:    log.With().Str("service", "orders").Str("workflow", "legacy").Logger(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// PlaceOrder runs the workflow. Steps execute strictly in order and each
// failure aborts before the next step.
func (w *LegacyWorkflow) PlaceOrder(ctx context.Context, req Request) (domain.Placement, error) {
	if err := Validate(req); err != nil {
		return domain.Placement{}, err
	}

	// 1. Fetch
	rows, err := w.remote.Query(ctx, domain.TableProducts, domain.Filter{"id": req.ProductID})
	if err != nil {
		return domain.Placement{}, remoteError("fetch product", err)
	}
	if len(rows) == 0 {
		return domain.Placement{}, fmt.Errorf("%w: product %s", domain.ErrNotFound, req.ProductID)
	}
	product, err := domain.ProductFromRow(rows[0])
	if err != nil {
		return domain.Placement{}, fmt.Errorf("decode product %s: %w", req.ProductID, err)
	}

	// 2-3. Parse and subtract
	current, unit := ParseAvailable(product.Available)
	newAvailable := current.Sub(req.Quantity)

	// 4. Insert the order
	order := domain.Order{
		OrderID:    w.newID(),
		ProductID:  product.ID,
		Quantity:   req.Quantity,
		TotalPrice: req.Quantity.Mul(product.Price),
		ConsumerID: req.BuyerID,
		FarmerID:   product.OwnerID,
		CreatedAt:  w.now().UTC().Truncate(time.Second),
	}
	if _, err := w.remote.Insert(ctx, domain.TableOrders, []domain.Row{order.ToRow()}); err != nil {
		return domain.Placement{}, remoteError("insert order", err)
	}

	// 5. Write back
	patch := domain.Row{"available": FormatAvailable(newAvailable, unit)}
	updated, err := w.remote.Update(ctx, domain.TableProducts, patch, domain.Filter{"id": product.ID})
	if err == nil && len(updated) == 0 {
		// The product vanished after the fetch; nothing was decremented.
		err = fmt.Errorf("%w: product %s", domain.ErrNotFound, product.ID)
	}
	if err != nil {
		return domain.Placement{}, w.compensate(ctx, order, err)
	}

	placement := domain.Placement{Order: order, NewAvailable: newAvailable, Unit: unit}
	w.events.Emit(moduleName, &events.OrderPlacedData{
		OrderID:      order.OrderID,
		ProductID:    order.ProductID,
		Quantity:     order.Quantity.String(),
		NewAvailable: newAvailable.StringFixed(2),
	})

	// 6. Deplete
	if placement.Depleted() {
		notifyDepleted(ctx, w.hook, w.events, w.log, product.ID)
	}
	return placement, nil
}

// compensate deletes an order whose stock write-back failed
func (w *LegacyWorkflow) compensate(ctx context.Context, order domain.Order, updateErr error) error {
	log := w.log.With().Str("order_id", order.OrderID).Str("product_id", order.ProductID).Logger()

	// The caller's context may be what failed the update.
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := w.remote.Delete(cctx, domain.TableOrders, domain.Filter{"order_id": order.OrderID}); err != nil {
		log.Error().
			Err(err).
			AnErr("update_error", updateErr).
			Msg("Order recorded against stock that was never decremented")
		w.events.EmitError(moduleName, err, map[string]interface{}{
			"order_id":   order.OrderID,
			"product_id": order.ProductID,
		})
		return fmt.Errorf("%w: order %s kept after stock update failed: %w",
			domain.ErrStockInconsistency, order.OrderID, errors.Join(updateErr, err))
	}

	log.Warn().Err(updateErr).Msg("Stock update failed, order compensated")
	w.events.Emit(moduleName, &events.OrderCompensatedData{
		OrderID:   order.OrderID,
		ProductID: order.ProductID,
		Reason:    updateErr.Error(),
	})
	return remoteError("update stock", updateErr)
}

// notifyDepleted calls the depletion hook once. A failing hook is logged and
// reported on the bus; the committed order stands.
func notifyDepleted(ctx context.Context, hook domain.DepletionHook, em *events.Manager, log zerolog.Logger, productID string) {
	data := &events.StockDepletedData{ProductID: productID}
	if err := hook.MarkProductDepleted(ctx, productID); err != nil {
		log.Error().Err(err).Str("product_id", productID).Msg("Failed to mark product depleted")
		data.HookError = err.Error()
	} else {
		log.Info().Str("product_id", productID).Msg("Product depleted")
	}
	em.Emit(moduleName, data)
}
