package observability

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMonitoringManager_Refresh_Folds_Counters(t *testing.T) {
	req := require.New(t)
	mm := NewMonitoringManager(slog.Default())

	// Given two successful pushes and one failure
	mm.RecordPush(nil)
	mm.RecordPush(nil)
	mm.RecordPush(errors.New("timeout"))
	mm.UpdatePresence(2, 3, 3)

	// When the snapshot is refreshed
	stats := mm.Refresh()

	// Then it carries both presence and routing figures
	req.Equal(uint64(2), stats.PushesDelivered)
	req.Equal(uint64(1), stats.PushesFailed)
	req.Equal(2, stats.OnlineUsers)
	req.Equal(3, stats.Connections)
	req.Positive(stats.Goroutines)
	req.Equal(stats, mm.GetLatest())
}
