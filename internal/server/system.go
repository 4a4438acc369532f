package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/agrimarket/internal/database"
	"github.com/aristath/agrimarket/internal/scheduler"
)

// SystemStatus is the body of GET /api/system/status
type SystemStatus struct {
	Status        string                `json:"status"`
	UptimeSeconds int64                 `json:"uptime_seconds"`
	CPUPercent    float64               `json:"cpu_percent"`
	MemoryPercent float64               `json:"memory_percent"`
	Goroutines    int                   `json:"goroutines"`
	Database      *database.Stats       `json:"database,omitempty"`
	Jobs          []scheduler.JobStatus `json:"jobs,omitempty"`
}

// getSystemStats calculates CPU and RAM usage percentages
func (s *Server) getSystemStats() (float64, float64) {
	// 100ms keeps the endpoint responsive
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}

// handleSystemStatus handles GET /api/system/status
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := s.getSystemStats()

	status := SystemStatus{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Goroutines:    runtime.NumGoroutine(),
	}

	if s.db != nil {
		if err := s.db.QuickCheck(r.Context()); err != nil {
			s.log.Error().Err(err).Msg("Database health check failed")
			status.Status = "degraded"
		} else if stats, err := s.db.GetStats(); err != nil {
			s.log.Warn().Err(err).Msg("Failed to get database statistics")
		} else {
			status.Database = stats
		}
	}

	if s.scheduler != nil {
		status.Jobs = s.scheduler.Status()
	}

	s.writeJSON(w, http.StatusOK, status)
}
