package observability

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// PresenceSnapshot is a point-in-time view of the presence engine.
type PresenceSnapshot struct {
	Connections int `json:"connections"`
	Users       int `json:"users"`
	Rooms       int `json:"rooms"`
}

// ProcessStats is sampled from the OS by the presence reporter.
type ProcessStats struct {
	RSSMb      uint64  `json:"rss_mb"`
	CPUPercent float64 `json:"cpu_percent"`
}

// MonitoringStats aggregates everything the debug endpoint exposes.
type MonitoringStats struct {
	Presence PresenceSnapshot `json:"presence"`
	Process  ProcessStats     `json:"process"`

	Admitted         uint64 `json:"admitted"`
	Rejected         uint64 `json:"rejected"`
	Retracted        uint64 `json:"retracted"`
	Delivered        uint64 `json:"delivered"`
	DeliveryFailures uint64 `json:"delivery_failures"`

	Goroutines int       `json:"goroutines"`
	AllocMemMb uint64    `json:"alloc_mem_mb"`
	NumGC      uint32    `json:"num_gc"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// MonitoringManager holds hot-path counters as atomics and a periodically refreshed snapshot.
type MonitoringManager struct {
	log         *slog.Logger
	mu          sync.RWMutex
	latestStats MonitoringStats

	admitted         atomic.Uint64
	rejected         atomic.Uint64
	retracted        atomic.Uint64
	delivered        atomic.Uint64
	deliveryFailures atomic.Uint64
}

func NewMonitoringManager(log *slog.Logger) *MonitoringManager {
	return &MonitoringManager{log: log}
}

func (mm *MonitoringManager) IncrAdmitted()        { mm.admitted.Add(1) }
func (mm *MonitoringManager) IncrRejected()        { mm.rejected.Add(1) }
func (mm *MonitoringManager) IncrRetracted()       { mm.retracted.Add(1) }
func (mm *MonitoringManager) IncrDelivered()       { mm.delivered.Add(1) }
func (mm *MonitoringManager) IncrDeliveryFailure() { mm.deliveryFailures.Add(1) }

// Update refreshes the snapshot with the latest presence and process figures.
func (mm *MonitoringManager) Update(presence PresenceSnapshot, process ProcessStats) MonitoringStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mm.mu.Lock()
	defer mm.mu.Unlock()

	mm.latestStats = MonitoringStats{
		Presence:         presence,
		Process:          process,
		Admitted:         mm.admitted.Load(),
		Rejected:         mm.rejected.Load(),
		Retracted:        mm.retracted.Load(),
		Delivered:        mm.delivered.Load(),
		DeliveryFailures: mm.deliveryFailures.Load(),
		Goroutines:       runtime.NumGoroutine(),
		AllocMemMb:       m.Alloc / 1024 / 1024,
		NumGC:            m.NumGC,
		UpdatedAt:        time.Now().UTC(),
	}
	return mm.latestStats
}

// GetLatest returns the last snapshot with live counters.
func (mm *MonitoringManager) GetLatest() MonitoringStats {
	mm.mu.RLock()
	stats := mm.latestStats
	mm.mu.RUnlock()

	stats.Admitted = mm.admitted.Load()
	stats.Rejected = mm.rejected.Load()
	stats.Retracted = mm.retracted.Load()
	stats.Delivered = mm.delivered.Load()
	stats.DeliveryFailures = mm.deliveryFailures.Load()
	return stats
}
