package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/mosaicfin/atrader/internal/database"
)

// SystemHandlers serves health and host status endpoints.
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	databases   []*database.DB
}

func NewSystemHandlers(log zerolog.Logger, dataDir string, databases ...*database.DB) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("handler", "system").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
		databases:   databases,
	}
}

// health is the liveness probe: a quick check on every database.
func (h *SystemHandlers) health(w http.ResponseWriter, r *http.Request) {
	dbs := make(map[string]string, len(h.databases))
	healthy := true
	for _, db := range h.databases {
		if err := db.QuickCheck(r.Context()); err != nil {
			dbs[db.Name()] = err.Error()
			healthy = false
		} else {
			dbs[db.Name()] = "ok"
		}
	}

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "unhealthy"
	}
	writeSystemJSON(w, status, map[string]any{
		"status":    state,
		"databases": dbs,
		"uptime_s":  int(time.Since(h.startupTime).Seconds()),
	})
}

// status reports host resource usage for the admin dashboard.
func (h *SystemHandlers) status(w http.ResponseWriter, _ *http.Request) {
	out := map[string]any{
		"uptime_s":   int(time.Since(h.startupTime).Seconds()),
		"goroutines": runtime.NumGoroutine(),
		"go_version": runtime.Version(),
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		out["cpu_percent"] = percents[0]
	} else if err != nil {
		h.log.Debug().Err(err).Msg("cpu stats unavailable")
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		out["memory"] = map[string]any{
			"total_mb":     vm.Total / 1024 / 1024,
			"used_mb":      vm.Used / 1024 / 1024,
			"used_percent": vm.UsedPercent,
		}
	}
	if du, err := disk.Usage(h.dataDir); err == nil {
		out["disk"] = map[string]any{
			"total_gb":     float64(du.Total) / 1024 / 1024 / 1024,
			"free_gb":      float64(du.Free) / 1024 / 1024 / 1024,
			"used_percent": du.UsedPercent,
		}
	}

	writeSystemJSON(w, http.StatusOK, out)
}

func writeSystemJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
