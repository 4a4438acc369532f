package di

import (
	"github.com/rs/zerolog"

	"github.com/aristath/agrimarket/internal/backend"
	"github.com/aristath/agrimarket/internal/config"
	"github.com/aristath/agrimarket/internal/events"
	"github.com/aristath/agrimarket/internal/localcache"
	"github.com/aristath/agrimarket/internal/scheduler"
)

// InitializeServices builds the event bus, the backend store and the cache
// store on top of the opened databases.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) {
	container.EventBus = events.NewBus()
	container.EventManager = events.NewManager(container.EventBus, log)

	container.Backend = backend.New(container.BackendDB, container.EventManager, log)
	container.CacheStore = localcache.NewSQLiteStore(container.CacheDB.Conn(), cfg.CacheTTL)
	container.Scheduler = scheduler.New(log)
}
