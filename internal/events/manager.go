package events

import (
	"encoding/json"
	"time"

	"github.com/aristath/agrimarket/internal/domain"
	"github.com/rs/zerolog"
)

// Manager handles event emission and logging
type Manager struct {
	bus *Bus
	log zerolog.Logger
}

// NewManager creates a new event manager
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{
		bus: bus,
		log: log.With().Str("service", "events").Logger(),
	}
}

// Bus returns the underlying bus for subscribers.
func (m *Manager) Bus() *Bus {
	return m.bus
}

// Emit publishes typed data to the bus and logs it
func (m *Manager) Emit(module string, data EventData) {
	event := &Event{
		Type:      data.EventType(),
		Timestamp: time.Now(),
		Module:    module,
		Data:      data,
	}

	m.bus.Publish(event)

	eventJSON, _ := json.Marshal(event)
	m.log.Debug().
		Str("event_type", string(event.Type)).
		Str("module", module).
		RawJSON("event", eventJSON).
		Msg("Event emitted")
}

// EmitChange publishes a change-feed notification
func (m *Manager) EmitChange(module string, change domain.ChangeEvent) {
	if change.CommitTime == 0 {
		change.CommitTime = time.Now().UnixMilli()
	}
	m.Emit(module, &RowChangedData{Change: change})
}

// EmitError emits an error event
func (m *Manager) EmitError(module string, err error, context map[string]interface{}) {
	m.Emit(module, &ErrorEventData{
		Error:   err.Error(),
		Context: context,
	})
}

// ChangeStream opens a stream of the change-feed notifications for table
// published on the bus from now on. Closing the stream unsubscribes it.
func (m *Manager) ChangeStream(table domain.Table, kinds []domain.ChangeKind) *QueueStream {
	var ids []SubscriptionID
	stream := NewQueueStream(func() {
		for _, id := range ids {
			m.bus.Unsubscribe(id)
		}
	})

	handler := func(e *Event) {
		data, ok := e.Data.(*RowChangedData)
		if !ok || data.Change.Table != table || !domain.WantsKind(kinds, data.Change.Kind) {
			return
		}
		stream.Push(data.Change)
	}
	for _, typ := range ChangeEventTypes {
		ids = append(ids, m.bus.Subscribe(typ, handler))
	}
	return stream
}
