// Package di wires the application's dependencies.
package di

import (
	"github.com/aristath/agrimarket/internal/backend"
	"github.com/aristath/agrimarket/internal/clients/remote"
	"github.com/aristath/agrimarket/internal/database"
	"github.com/aristath/agrimarket/internal/events"
	"github.com/aristath/agrimarket/internal/localcache"
	"github.com/aristath/agrimarket/internal/orders"
	"github.com/aristath/agrimarket/internal/realtime"
	"github.com/aristath/agrimarket/internal/scheduler"
	"github.com/aristath/agrimarket/internal/session"
)

// Container holds the backend server's dependencies
type Container struct {
	BackendDB *database.DB
	CacheDB   *database.DB

	EventBus     *events.Bus
	EventManager *events.Manager

	Backend    *backend.Store
	CacheStore *localcache.SQLiteStore
	Scheduler  *scheduler.Scheduler
}

// Close stops the scheduler and closes the databases
func (c *Container) Close() {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	closeDBs(c.BackendDB, c.CacheDB)
}

// JobInstances holds the registered jobs, for manual triggering
type JobInstances struct {
	CacheCleanup scheduler.Job
	Maintenance  scheduler.Job
}

// ClientContainer holds a marketplace client's dependencies: the local
// cache, the backend client and the sync core on top of them.
type ClientContainer struct {
	CacheDB    *database.DB
	CacheStore *localcache.SQLiteStore
	Cache      *localcache.Cache

	EventBus     *events.Bus
	EventManager *events.Manager

	Remote   *remote.Client
	Registry *realtime.Registry
	Session  *session.Session

	AtomicOrders *orders.AtomicWorkflow
	LegacyOrders *orders.LegacyWorkflow
}

// Close stops every subscription and closes the cache
func (c *ClientContainer) Close() {
	if c.Registry != nil {
		c.Registry.Close()
	}
	closeDBs(c.CacheDB)
}

func closeDBs(dbs ...*database.DB) {
	for _, db := range dbs {
		if db != nil {
			_ = db.Close()
		}
	}
}
