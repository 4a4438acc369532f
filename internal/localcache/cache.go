package localcache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aristath/agrimarket/internal/domain"
	"github.com/rs/zerolog"
)

// Cache stores JSON encoded slices in a domain.KeyValueStore
type Cache struct {
	store domain.KeyValueStore
	log   zerolog.Logger
}

// New creates a cache on top of store
func New(store domain.KeyValueStore, log zerolog.Logger) *Cache {
	return &Cache{
		store: store,
		log:   log.With().Str("component", "localcache").Logger(),
	}
}

// Save overwrites the value stored for (userID, kind)
func (c *Cache) Save(ctx context.Context, userID string, kind Kind, value any) error {
	if userID == "" {
		return fmt.Errorf("%w: cache save without user id", domain.ErrValidation)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", kind, err)
	}

	if err := c.store.Set(ctx, Key(userID, kind), string(data)); err != nil {
		return fmt.Errorf("failed to save %s: %w", kind, err)
	}

	c.log.Debug().
		Str("user_id", userID).
		Str("kind", string(kind)).
		Int("bytes", len(data)).
		Msg("Saved cache entry")
	return nil
}

// Raw returns the stored JSON for (userID, kind), if any
func (c *Cache) Raw(ctx context.Context, userID string, kind Kind) (json.RawMessage, bool, error) {
	value, ok, err := c.store.Get(ctx, Key(userID, kind))
	if err != nil {
		return nil, false, fmt.Errorf("failed to load %s: %w", kind, err)
	}
	if !ok {
		return nil, false, nil
	}
	return json.RawMessage(value), true, nil
}

// Load returns the value stored for (userID, kind). ok is false when nothing
// was saved yet. An entry that no longer decodes into T is reported as absent
// and logged, so a schema change never blocks a cold start.
func Load[T any](ctx context.Context, c *Cache, userID string, kind Kind) (T, bool, error) {
	var zero T

	raw, ok, err := c.Raw(ctx, userID, kind)
	if err != nil || !ok {
		return zero, false, err
	}

	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		c.log.Warn().
			Err(err).
			Str("user_id", userID).
			Str("kind", string(kind)).
			Msg("Discarding undecodable cache entry")
		return zero, false, nil
	}
	return value, true, nil
}
