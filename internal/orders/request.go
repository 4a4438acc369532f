// Package orders places marketplace orders. LegacyWorkflow keeps the
// client-side read-modify-write on the display string; AtomicWorkflow hands
// the whole placement to the backend as one transaction.
package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/aristath/agrimarket/internal/domain"
	"github.com/shopspring/decimal"
)

// Request is a buyer's order attempt
type Request struct {
	ProductID string
	Quantity  decimal.Decimal
	BuyerID   string
	// DisplayedStock is the stock the buyer was shown, when known.
	DisplayedStock *decimal.Decimal
}

// Placer places orders
type Placer interface {
	PlaceOrder(ctx context.Context, req Request) (domain.Placement, error)
}

// Validate rejects a request before any remote call is made.
func Validate(req Request) error {
	switch {
	case req.ProductID == "":
		return fmt.Errorf("%w: product is required", domain.ErrValidation)
	case req.BuyerID == "":
		return fmt.Errorf("%w: buyer is required", domain.ErrValidation)
	}
	if err := domain.CheckQuantity(req.Quantity); err != nil {
		return err
	}

	if req.DisplayedStock != nil {
		if !req.DisplayedStock.IsPositive() {
			return fmt.Errorf("%w: no stock available", domain.ErrValidation)
		}
		if req.Quantity.GreaterThan(*req.DisplayedStock) {
			return fmt.Errorf("%w: only %s available", domain.ErrValidation, req.DisplayedStock)
		}
	}
	return nil
}

var classified = []error{
	domain.ErrNetwork,
	domain.ErrValidation,
	domain.ErrNotFound,
	domain.ErrInvalidTable,
	domain.ErrInsufficientStock,
}

// remoteError wraps a failed remote call. Failures the remote already
// classified keep their class; anything else is a network error.
func remoteError(op string, err error) error {
	for _, known := range classified {
		if errors.Is(err, known) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrNetwork, err)
}
