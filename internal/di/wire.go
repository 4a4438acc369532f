package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/agrimarket/internal/clients/remote"
	"github.com/aristath/agrimarket/internal/config"
	"github.com/aristath/agrimarket/internal/database"
	"github.com/aristath/agrimarket/internal/events"
	"github.com/aristath/agrimarket/internal/localcache"
	"github.com/aristath/agrimarket/internal/orders"
	"github.com/aristath/agrimarket/internal/realtime"
	"github.com/aristath/agrimarket/internal/session"
)

// Wire initializes the backend server's dependencies.
// Order of operations:
// 1. Initialize databases
// 2. Initialize services
// 3. Register jobs
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, *JobInstances, error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	InitializeServices(container, cfg, log)

	jobs, err := RegisterJobs(container, cfg, log)
	if err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	log.Info().Msg("Dependency injection wiring completed successfully")
	return container, jobs, nil
}

// WireClient initializes a marketplace client talking to cfg.BackendURL as
// cfg.UserID, with its local cache under cfg.DataDir.
func WireClient(cfg *config.Config, log zerolog.Logger) (*ClientContainer, error) {
	cacheDB, err := openDB(cfg.CachePath(), database.ProfileCache, "cache", log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	c := &ClientContainer{CacheDB: cacheDB}
	c.CacheStore = localcache.NewSQLiteStore(cacheDB.Conn(), cfg.CacheTTL)
	c.Cache = localcache.New(c.CacheStore, log)

	c.EventBus = events.NewBus()
	c.EventManager = events.NewManager(c.EventBus, log)

	c.Remote = remote.NewClient(cfg.BackendURL, log)
	c.Registry = realtime.NewRegistry(c.Remote, c.EventManager, log)
	c.Session = session.New(cfg.UserID, c.Registry, c.Cache, log)
	c.Session.Strategy = cfg.SyncStrategy

	c.AtomicOrders = orders.NewAtomicWorkflow(c.Remote, c.Remote, c.EventManager, log)
	c.LegacyOrders = orders.NewLegacyWorkflow(c.Remote, c.Remote, c.EventManager, log)

	return c, nil
}
