package orders

import (
	"context"

	"github.com/aristath/agrimarket/internal/domain"
	"github.com/aristath/agrimarket/internal/events"
	"github.com/rs/zerolog"
)

// AtomicWorkflow places orders through the backend's PlaceOrder RPC, which
// checks stock, decrements it and inserts the order in one transaction.
// Overselling is prevented best-effort: an order that does not fit the
// remaining stock fails with ErrInsufficientStock, nothing is reserved.
type AtomicWorkflow struct {
	placer domain.OrderPlacer
	hook   domain.DepletionHook
	events *events.Manager
	log    zerolog.Logger
}

// NewAtomicWorkflow creates the server-side workflow
func NewAtomicWorkflow(placer domain.OrderPlacer, hook domain.DepletionHook, em *events.Manager, log zerolog.Logger) *AtomicWorkflow {
	return &AtomicWorkflow{
		placer: placer,
		hook:   hook,
		events: em,
		log:    log.With().Str("service", "orders").Str("workflow", "atomic").Logger(),
	}
}

// PlaceOrder validates req and places it. Exactly one order, the one whose
// decrement reaches zero, triggers the depletion hook.
func (w *AtomicWorkflow) PlaceOrder(ctx context.Context, req Request) (domain.Placement, error) {
	if err := Validate(req); err != nil {
		return domain.Placement{}, err
	}

	placement, err := w.placer.PlaceOrder(ctx, domain.OrderRequest{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		BuyerID:   req.BuyerID,
	})
	if err != nil {
		return domain.Placement{}, remoteError("place order", err)
	}

	w.log.Debug().
		Str("order_id", placement.Order.OrderID).
		Str("new_available", placement.NewAvailable.String()).
		Msg("Order placed")

	if placement.Depleted() {
		notifyDepleted(ctx, w.hook, w.events, w.log, req.ProductID)
	}
	return placement, nil
}
