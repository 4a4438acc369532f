package events

import (
	"github.com/aristath/agrimarket/internal/domain"
)

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// RowChangedData carries one change-feed notification
type RowChangedData struct {
	Change domain.ChangeEvent `json:"change"`
}

// EventType returns the event type for RowChangedData
func (d *RowChangedData) EventType() EventType {
	return TypeForChange(d.Change.Kind)
}

// OrderPlacedData contains data for OrderPlaced events
type OrderPlacedData struct {
	OrderID      string `json:"order_id"`
	ProductID    string `json:"product_id"`
	Quantity     string `json:"quantity"`
	NewAvailable string `json:"new_available"`
	Atomic       bool   `json:"atomic"`
}

// EventType returns the event type for OrderPlacedData
func (d *OrderPlacedData) EventType() EventType {
	return OrderPlaced
}

// StockDepletedData contains data for StockDepleted events
type StockDepletedData struct {
	ProductID string `json:"product_id"`
	HookError string `json:"hook_error,omitempty"`
}

// EventType returns the event type for StockDepletedData
func (d *StockDepletedData) EventType() EventType {
	return StockDepleted
}

// OrderCompensatedData is emitted when an inserted order is rolled back
// because the stock write-back failed.
type OrderCompensatedData struct {
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Reason    string `json:"reason"`
}

// EventType returns the event type for OrderCompensatedData
func (d *OrderCompensatedData) EventType() EventType {
	return OrderCompensated
}

// SubscriptionDegradedData is emitted when a screen falls back to cache-only mode
type SubscriptionDegradedData struct {
	Screen string `json:"screen"`
	Table  string `json:"table"`
	Error  string `json:"error"`
}

// EventType returns the event type for SubscriptionDegradedData
func (d *SubscriptionDegradedData) EventType() EventType {
	return SubscriptionDegraded
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
