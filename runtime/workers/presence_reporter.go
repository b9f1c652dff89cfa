package workers

import (
	"chat-relay/contract"
	"chat-relay/observability"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// PresenceReporterWorker periodically samples the presence engine and the process itself
// and refreshes the monitoring snapshot.
type PresenceReporterWorker struct {
	log        *slog.Logger
	presence   contract.IPresence
	monitoring *observability.MonitoringManager
	interval   time.Duration
}

func NewPresenceReporterWorker(
	log *slog.Logger,
	presence contract.IPresence,
	monitoring *observability.MonitoringManager,
	interval time.Duration,
) *PresenceReporterWorker {
	return &PresenceReporterWorker{
		log:        log.With("worker", "presence_reporter"),
		presence:   presence,
		monitoring: monitoring,
		interval:   interval,
	}
}

func (w *PresenceReporterWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping presence reporter")
			return nil
		case <-ticker.C:
			stats, err := getSelfStats(p)
			if err != nil {
				w.log.Debug("Failed to collect self stats", "err", err)
			}
			snapshot := w.monitoring.Update(w.presence.Snapshot(), stats)
			w.log.Debug("Presence",
				"connections", snapshot.Presence.Connections,
				"users", snapshot.Presence.Users,
				"rooms", snapshot.Presence.Rooms,
				"rss_mb", snapshot.Process.RSSMb,
				"cpu", snapshot.Process.CPUPercent,
			)
		}
	}
}

// getSelfStats retrieves resident memory and CPU usage for the given process.
func getSelfStats(p *process.Process) (observability.ProcessStats, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return observability.ProcessStats{}, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return observability.ProcessStats{}, err
	}
	return observability.ProcessStats{
		RSSMb:      memInfo.RSS / 1024 / 1024,
		CPUPercent: cpuPercent,
	}, nil
}
