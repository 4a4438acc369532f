package domain

import "errors"

// Error taxonomy. Callers match with errors.Is; producers wrap with %w.
var (
	// ErrNetwork is a transient fetch/insert/update/delete failure.
	ErrNetwork = errors.New("network error")
	// ErrValidation is raised before any remote call is made.
	ErrValidation = errors.New("validation error")
	// ErrInsufficientStock is returned by the atomic decrement when the
	// requested quantity exceeds the remaining stock.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrStockInconsistency marks a partial write that could not be undone:
	// an order exists for stock that was never decremented.
	ErrStockInconsistency = errors.New("stock inconsistency")
	// ErrSubscription is logged and degrades the screen to cache-only mode.
	ErrSubscription = errors.New("subscription error")
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTable rejects table or column names outside the whitelist.
	ErrInvalidTable = errors.New("invalid table")
)

var errorCodes = []struct {
	code string
	err  error
}{
	{"network", ErrNetwork},
	{"validation", ErrValidation},
	{"insufficient_stock", ErrInsufficientStock},
	{"stock_inconsistency", ErrStockInconsistency},
	{"subscription", ErrSubscription},
	{"not_found", ErrNotFound},
	{"invalid_table", ErrInvalidTable},
}

// ErrorCode returns the wire code of the first sentinel err wraps, or
// "internal".
func ErrorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

// ErrorForCode is the inverse of ErrorCode. Unknown codes return nil.
func ErrorForCode(code string) error {
	for _, c := range errorCodes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}
