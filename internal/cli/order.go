package cli

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/aristath/agrimarket/internal/domain"
	"github.com/aristath/agrimarket/internal/orders"
)

// NewOrderCommand creates the order command group.
func NewOrderCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Place marketplace orders",
	}
	cmd.AddCommand(newOrderPlaceCommand(rootOpts))
	return cmd
}

type placeOptions struct {
	legacy    bool
	displayed string
}

func newOrderPlaceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &placeOptions{}

	cmd := &cobra.Command{
		Use:   "place <product-id> <quantity>",
		Short: "Place an order for a product",
		Long: `Place an order as the signed-in user.

By default the backend places the order and decrements stock in one
transaction. --legacy runs the client-side read-modify-write on the
product's available string instead.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrderPlace(rootOpts, opts, cmd, args[0], args[1])
		},
	}

	cmd.Flags().BoolVar(&opts.legacy, "legacy", false, "use the client-side read-modify-write workflow")
	cmd.Flags().StringVar(&opts.displayed, "displayed-stock", "", "stock the buyer was shown; larger orders are rejected")
	return cmd
}

func runOrderPlace(rootOpts *RootOptions, opts *placeOptions, cmd *cobra.Command, productID, quantity string) error {
	f := rootOpts.formatter(cmd)

	qty, err := decimal.NewFromString(quantity)
	if err != nil {
		return f.Fail("invalid quantity", fmt.Errorf("%w: %v", domain.ErrValidation, err))
	}

	c, err := rootOpts.client(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	req := orders.Request{ProductID: productID, Quantity: qty, BuyerID: c.Session.UserID}
	if opts.displayed != "" {
		shown, err := decimal.NewFromString(opts.displayed)
		if err != nil {
			return f.Fail("invalid displayed stock", fmt.Errorf("%w: %v", domain.ErrValidation, err))
		}
		req.DisplayedStock = &shown
	}

	var placer orders.Placer = c.AtomicOrders
	if opts.legacy {
		placer = c.LegacyOrders
	}
	f.VerboseLog("Placing order for %s %s (legacy=%t)", qty, productID, opts.legacy)

	placement, err := placer.PlaceOrder(cmd.Context(), req)
	if err != nil {
		return f.Fail("order failed", err)
	}

	return f.Success(placement, func(w io.Writer) {
		fmt.Fprintf(w, "Order %s placed\n", placement.Order.OrderID)
		fmt.Fprintf(w, "  total:     %s\n", placement.Order.TotalPrice.StringFixed(2))
		fmt.Fprintf(w, "  available: %s\n", orders.FormatAvailable(placement.NewAvailable, placement.Unit))
		if placement.Depleted() {
			fmt.Fprintln(w, "  product is now sold out")
		}
	})
}
