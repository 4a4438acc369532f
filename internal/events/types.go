// Package events provides the in-process event bus and the event manager that
// publishes and logs backend and client events.
package events

import (
	"time"

	"github.com/aristath/agrimarket/internal/domain"
)

// EventType represents different event types
type EventType string

const (
	// Row-level change feed
	RowInserted EventType = "ROW_INSERTED"
	RowUpdated  EventType = "ROW_UPDATED"
	RowDeleted  EventType = "ROW_DELETED"

	// Order workflow
	OrderPlaced      EventType = "ORDER_PLACED"
	StockDepleted    EventType = "STOCK_DEPLETED"
	OrderCompensated EventType = "ORDER_COMPENSATED"

	// Client sync
	SubscriptionDegraded EventType = "SUBSCRIPTION_DEGRADED"

	ErrorOccurred EventType = "ERROR_OCCURRED"
)

// ChangeEventTypes are the bus types carrying change-feed rows.
var ChangeEventTypes = []EventType{RowInserted, RowUpdated, RowDeleted}

// TypeForChange maps a change kind to its bus event type.
func TypeForChange(kind domain.ChangeKind) EventType {
	switch kind {
	case domain.ChangeInsert:
		return RowInserted
	case domain.ChangeDelete:
		return RowDeleted
	default:
		return RowUpdated
	}
}

// Event represents a system event with typed data
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}
