package observability

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// MonitoringStats is the snapshot served on /debug/stats and logged by the
// presence reporter.
type MonitoringStats struct {
	// --- PRESENCE ---
	OnlineUsers int `json:"online_users"`
	Connections int `json:"connections"`
	Sessions    int `json:"sessions"`

	// --- ROUTING ---
	PushesDelivered uint64  `json:"pushes_delivered"`
	PushesFailed    uint64  `json:"pushes_failed"`
	PushRate        float64 `json:"push_rate"` // pushes/s since the previous snapshot
	QueueFillMax    float64 `json:"queue_fill_max"`
	SaturatedQueues int     `json:"saturated_queues"`

	// --- PROCESS ---
	Pid        int32   `json:"pid"`
	Status     string  `json:"status"`
	CpuPercent float64 `json:"cpu_percent"`
	RssBytes   uint64  `json:"rss_bytes"`
	AllocMemMb uint64  `json:"alloc_mem_mb"`
	NumGC      uint32  `json:"num_gc"`
	Goroutines int     `json:"goroutines"`

	UpdatedAt time.Time `json:"updated_at"`
}

// MonitoringManager aggregates counters fed by the router and the snapshot
// refreshed by the presence reporter.
type MonitoringManager struct {
	log         *slog.Logger
	mu          sync.RWMutex
	latestStats MonitoringStats

	pushed    atomic.Uint64
	failed    atomic.Uint64
	lastCheck time.Time
	lastTotal uint64
}

func NewMonitoringManager(log *slog.Logger) *MonitoringManager {
	return &MonitoringManager{log: log, lastCheck: time.Now()}
}

// RecordPush counts one push attempt, err is the outcome.
func (mm *MonitoringManager) RecordPush(err error) {
	if err != nil {
		mm.failed.Add(1)
		return
	}
	mm.pushed.Add(1)
}

func (mm *MonitoringManager) UpdatePresence(users, connections, sessions int) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.latestStats.OnlineUsers = users
	mm.latestStats.Connections = connections
	mm.latestStats.Sessions = sessions
}

func (mm *MonitoringManager) UpdateQueues(fillMax float64, saturated int) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.latestStats.QueueFillMax = fillMax
	mm.latestStats.SaturatedQueues = saturated
}

func (mm *MonitoringManager) UpdateProcess(pid int32, status string, cpu float64, rss uint64) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.latestStats.Pid = pid
	mm.latestStats.Status = status
	mm.latestStats.CpuPercent = cpu
	mm.latestStats.RssBytes = rss
}

// Refresh folds the counters and the Go runtime figures into the snapshot.
func (mm *MonitoringManager) Refresh() MonitoringStats {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	now := time.Now()
	pushed, failed := mm.pushed.Load(), mm.failed.Load()
	total := pushed + failed
	if elapsed := now.Sub(mm.lastCheck).Seconds(); elapsed > 0 {
		mm.latestStats.PushRate = float64(total-mm.lastTotal) / elapsed
	}
	mm.lastCheck = now
	mm.lastTotal = total
	mm.latestStats.PushesDelivered = pushed
	mm.latestStats.PushesFailed = failed

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	mm.latestStats.AllocMemMb = m.Alloc / 1024 / 1024
	mm.latestStats.NumGC = m.NumGC
	mm.latestStats.Goroutines = runtime.NumGoroutine()
	mm.latestStats.UpdatedAt = now.UTC()

	return mm.latestStats
}

func (mm *MonitoringManager) GetLatest() MonitoringStats {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.latestStats
}
