package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/agrimarket/internal/config"
	"github.com/aristath/agrimarket/internal/database"
)

func openDB(path string, profile database.DatabaseProfile, name string, log zerolog.Logger) (*database.DB, error) {
	db, err := database.New(database.Config{
		Path:    path,
		Profile: profile,
		Name:    name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s database: %w", name, err)
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate %s database: %w", name, err)
	}

	log.Info().Str("database", name).Str("path", db.Path()).Msg("Database ready")
	return db, nil
}

// InitializeDatabases opens and migrates the backend and cache databases
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// backend.db - marketplace tables; single writer for stock decrements
	backendDB, err := openDB(cfg.BackendPath(), database.ProfileBackend, "backend", log)
	if err != nil {
		return nil, err
	}
	container.BackendDB = backendDB

	// cache.db - server-side copy of the cache schema, kept for the cleanup job
	cacheDB, err := openDB(cfg.CachePath(), database.ProfileCache, "cache", log)
	if err != nil {
		_ = backendDB.Close()
		return nil, err
	}
	container.CacheDB = cacheDB

	return container, nil
}
