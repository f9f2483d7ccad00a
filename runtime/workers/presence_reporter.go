package workers

import (
	"chat-relay/observability"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

type PresenceCounter interface {
	Count() (users int, connections int)
}

type SessionCounter interface {
	Len() int
}

// PresenceReporterWorker periodically snapshots who is online and how the
// process is doing, then logs it and publishes it for /debug/stats.
type PresenceReporterWorker struct {
	log        *slog.Logger
	presence   PresenceCounter
	sessions   SessionCounter
	monitoring *observability.MonitoringManager
	interval   time.Duration
}

func NewPresenceReporterWorker(log *slog.Logger, presence PresenceCounter, sessions SessionCounter,
	monitoring *observability.MonitoringManager, interval time.Duration) *PresenceReporterWorker {
	return &PresenceReporterWorker{
		log:        log,
		presence:   presence,
		sessions:   sessions,
		monitoring: monitoring,
		interval:   interval,
	}
}

func (w *PresenceReporterWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping presence reporter")
			return nil
		case <-ticker.C:
			w.report(p)
		}
	}
}

func (w *PresenceReporterWorker) report(p *process.Process) {
	users, connections := w.presence.Count()
	w.monitoring.UpdatePresence(users, connections, w.sessions.Len())

	if rss, cpu, status, err := selfStats(p); err != nil {
		w.log.Debug("Failed to collect self stats", "error", err)
	} else {
		w.monitoring.UpdateProcess(p.Pid, status, cpu, rss)
	}

	stats := w.monitoring.Refresh()
	w.log.Info("Presence",
		"online_users", stats.OnlineUsers,
		"connections", stats.Connections,
		"push_rate", stats.PushRate,
		"pushes_failed", stats.PushesFailed,
		"rss_bytes", stats.RssBytes,
		"cpu_percent", stats.CpuPercent)
}

// selfStats retrieves memory, CPU and OS status of the given process.
func selfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}
	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
