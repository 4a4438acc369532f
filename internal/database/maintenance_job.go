package database

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
)

// MinFreeBytes is the free space below which maintenance fails
const MinFreeBytes = 500 << 20

// MaintenanceJob keeps the databases healthy: an integrity check, a WAL
// checkpoint and a free disk space check. It should be scheduled to run daily.
type MaintenanceJob struct {
	databases []*DB
	log       zerolog.Logger
	timeout   time.Duration
	minFree   uint64
}

// NewMaintenanceJob creates a maintenance job over dbs
func NewMaintenanceJob(log zerolog.Logger, dbs ...*DB) *MaintenanceJob {
	return &MaintenanceJob{
		databases: dbs,
		log:       log.With().Str("job", "db_maintenance").Logger(),
		timeout:   5 * time.Minute,
		minFree:   MinFreeBytes,
	}
}

// Run executes the maintenance job
func (j *MaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	for _, db := range j.databases {
		if err := db.IntegrityCheck(ctx); err != nil {
			j.log.Error().Str("database", db.Name()).Err(err).Msg("Integrity check failed")
			return err
		}

		// Checkpoint failures only cost disk space
		if err := db.Checkpoint(ctx); err != nil {
			j.log.Warn().Str("database", db.Name()).Err(err).Msg("WAL checkpoint failed")
		}

		if err := j.checkDiskSpace(db); err != nil {
			return err
		}
	}

	j.log.Info().
		Int("databases", len(j.databases)).
		Dur("duration_ms", time.Since(start)).
		Msg("Database maintenance completed")
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *MaintenanceJob) Name() string {
	return "db_maintenance"
}

func (j *MaintenanceJob) checkDiskSpace(db *DB) error {
	if isMemoryPath(db.Path()) {
		return nil
	}
	usage, err := disk.Usage(filepath.Dir(db.Path()))
	if err != nil {
		j.log.Warn().Str("database", db.Name()).Err(err).Msg("Failed to read disk usage")
		return nil
	}

	j.log.Debug().
		Str("database", db.Name()).
		Uint64("free_bytes", usage.Free).
		Float64("used_percent", usage.UsedPercent).
		Msg("Disk space check")

	if usage.Free < j.minFree {
		return fmt.Errorf("only %d bytes free for %s", usage.Free, db.Name())
	}
	return nil
}

// IntegrityCheck runs PRAGMA quick_check and fails unless it reports ok.
func (db *DB) IntegrityCheck(ctx context.Context) error {
	var result string
	if err := db.conn.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("failed to check %s: %w", db.name, err)
	}
	if result != "ok" {
		return fmt.Errorf("database %s is corrupt: %s", db.name, result)
	}
	return nil
}

// Checkpoint truncates the write-ahead log
func (db *DB) Checkpoint(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}
