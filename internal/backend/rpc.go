package backend

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/agrimarket/internal/database"
	"github.com/aristath/agrimarket/internal/domain"
	"github.com/aristath/agrimarket/internal/events"
	"github.com/aristath/agrimarket/internal/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// stockPrecision is the number of decimal places stock_quantity keeps.
// Quantities are checked against it, so a REAL rounded to it is exact.
const stockPrecision = domain.StockPrecision

// decrementSQL is the conditional decrement. SET expressions see the old
// row, so available is rendered from the same new quantity. The WHERE guard
// makes the statement a no-op instead of driving stock negative.
var decrementSQL = fmt.Sprintf(`UPDATE products
	SET stock_quantity = ROUND(stock_quantity - ?, %[1]d),
	    available = printf('%%.2f', ROUND(stock_quantity - ?, %[1]d)) || ' ' || unit
	WHERE id = ? AND stock_quantity >= ?
	RETURNING %[2]s`, stockPrecision, strings.Join(specs[domain.TableProducts].columns, ", "))

func checkQuantity(quantity decimal.Decimal) error {
	return domain.CheckQuantity(quantity)
}

// decrement runs the conditional decrement inside tx and returns the product
// before and after.
func decrement(ctx context.Context, tx *sql.Tx, productID string, quantity decimal.Decimal) (before, after domain.Row, err error) {
	spec := specs[domain.TableProducts]

	found, err := selectRows(ctx, tx, spec,
		fmt.Sprintf("SELECT %s FROM products WHERE id = ?", strings.Join(spec.columns, ", ")), productID)
	if err != nil {
		return nil, nil, err
	}
	if len(found) == 0 {
		return nil, nil, fmt.Errorf("%w: product %s", domain.ErrNotFound, productID)
	}

	q := quantity.InexactFloat64()
	updated, err := selectRows(ctx, tx, spec, decrementSQL, q, q, productID, q)
	if err != nil {
		return nil, nil, err
	}
	if len(updated) == 0 {
		return nil, nil, fmt.Errorf("%w: product %s has %v, requested %s",
			domain.ErrInsufficientStock, productID, found[0]["stock_quantity"], quantity)
	}
	return found[0], updated[0], nil
}

func stockOf(row domain.Row) decimal.Decimal {
	d, _ := row.Decimal("stock_quantity")
	return d.Round(stockPrecision)
}

// DecrementStock atomically subtracts quantity from the product's stock.
// It fails with ErrInsufficientStock, leaving the product untouched, when the
// stock is lower than quantity.
func (s *Store) DecrementStock(ctx context.Context, productID string, quantity decimal.Decimal) (decimal.Decimal, error) {
	if err := checkQuantity(quantity); err != nil {
		return decimal.Zero, err
	}

	var before, after domain.Row
	err := database.WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		before, after, err = decrement(ctx, tx, productID, quantity)
		return err
	})
	if err != nil {
		return decimal.Zero, classify("decrement stock of", domain.TableProducts, err)
	}

	s.events.EmitChange(moduleName, domain.ChangeEvent{Kind: domain.ChangeUpdate, Table: domain.TableProducts, Row: after, OldRow: before})
	return stockOf(after), nil
}

// PlaceOrder inserts the order and decrements stock in one transaction.
// total_price is quantity times the product's price at the time of the order.
func (s *Store) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.Placement, error) {
	defer utils.OperationTimer("place_order", s.log)()

	if err := checkQuantity(req.Quantity); err != nil {
		return domain.Placement{}, err
	}
	if req.ProductID == "" || req.BuyerID == "" {
		return domain.Placement{}, fmt.Errorf("%w: product and buyer are required", domain.ErrValidation)
	}

	var (
		before, after domain.Row
		orderRow      domain.Row
		placement     domain.Placement
	)
	err := database.WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		before, after, err = decrement(ctx, tx, req.ProductID, req.Quantity)
		if err != nil {
			return err
		}
		product, err := domain.ProductFromRow(after)
		if err != nil {
			return err
		}

		order := domain.Order{
			OrderID:    uuid.NewString(),
			ProductID:  product.ID,
			Quantity:   req.Quantity,
			TotalPrice: req.Quantity.Mul(product.Price),
			ConsumerID: req.BuyerID,
			FarmerID:   product.OwnerID,
			CreatedAt:  s.now().UTC().Truncate(time.Second),
		}

		spec := specs[domain.TableOrders]
		row := order.ToRow()
		cols, err := spec.checkColumns(domain.TableOrders, row)
		if err != nil {
			return err
		}
		args := make([]any, len(cols))
		for i, col := range cols {
			args[i] = spec.value(col, row[col])
		}
		inserted, err := selectRows(ctx, tx, spec,
			fmt.Sprintf("INSERT INTO orders (%s) VALUES (%s) RETURNING %s",
				strings.Join(cols, ", "), placeholders(len(cols)), strings.Join(spec.columns, ", ")),
			args...)
		if err != nil {
			return err
		}
		orderRow = inserted[0]

		placement = domain.Placement{Order: order, NewAvailable: stockOf(after), Unit: product.Unit}
		return nil
	})
	if err != nil {
		return domain.Placement{}, classify("place order on", domain.TableProducts, err)
	}

	s.events.EmitChange(moduleName, domain.ChangeEvent{Kind: domain.ChangeUpdate, Table: domain.TableProducts, Row: after, OldRow: before})
	s.events.EmitChange(moduleName, domain.ChangeEvent{Kind: domain.ChangeInsert, Table: domain.TableOrders, Row: orderRow})
	s.events.Emit(moduleName, &events.OrderPlacedData{
		OrderID:      placement.Order.OrderID,
		ProductID:    placement.Order.ProductID,
		Quantity:     placement.Order.Quantity.String(),
		NewAvailable: placement.NewAvailable.StringFixed(2),
		Atomic:       true,
	})

	s.log.Info().
		Str("order_id", placement.Order.OrderID).
		Str("product_id", req.ProductID).
		Str("quantity", req.Quantity.String()).
		Str("new_available", placement.NewAvailable.String()).
		Msg("Order placed")
	return placement, nil
}

// MarkProductDepleted moves the product to the done state. Marking an
// already depleted product succeeds.
func (s *Store) MarkProductDepleted(ctx context.Context, productID string) error {
	rows, err := s.Update(ctx, domain.TableProducts,
		domain.Row{"status": string(domain.ProductDepleted)},
		domain.Filter{"id": productID})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("%w: product %s", domain.ErrNotFound, productID)
	}
	return nil
}
