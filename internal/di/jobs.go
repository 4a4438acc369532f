package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/agrimarket/internal/config"
	"github.com/aristath/agrimarket/internal/database"
	"github.com/aristath/agrimarket/internal/localcache"
)

// RegisterJobs registers the maintenance jobs with the scheduler
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil || container.Scheduler == nil {
		return nil, fmt.Errorf("container has no scheduler")
	}

	instances := &JobInstances{}

	cleanup := localcache.NewCleanupJob(container.CacheStore, log)
	if err := container.Scheduler.AddJob(cfg.CacheCleanupSchedule, cleanup); err != nil {
		return nil, err
	}
	instances.CacheCleanup = cleanup

	maintenance := database.NewMaintenanceJob(log, container.BackendDB, container.CacheDB)
	if err := container.Scheduler.AddJob(cfg.MaintenanceSchedule, maintenance); err != nil {
		return nil, err
	}
	instances.Maintenance = maintenance

	return instances, nil
}
