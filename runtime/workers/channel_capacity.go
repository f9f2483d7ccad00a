package workers

import (
	"chat-relay/domain"
	"chat-relay/observability"
	"context"
	"log/slog"
	"time"
)

type QueueSampler interface {
	QueueDepths() []domain.QueueDepth
}

// ChannelCapacityWorker periodically samples the outbound queue of every
// session. A queue above the threshold means its writer can't keep up and
// the router is about to time out pushes to that connection.
type ChannelCapacityWorker struct {
	log            *slog.Logger
	sampler        QueueSampler
	monitoring     *observability.MonitoringManager
	threshold      float64
	metricInterval time.Duration
}

func NewChannelCapacityWorker(log *slog.Logger, sampler QueueSampler,
	monitoring *observability.MonitoringManager,
	threshold float64, metricInterval time.Duration) *ChannelCapacityWorker {
	return &ChannelCapacityWorker{
		log:            log,
		sampler:        sampler,
		monitoring:     monitoring,
		threshold:      threshold,
		metricInterval: metricInterval,
	}
}

func (w *ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping queue sampling")
			return nil
		case <-ticker.C:
			w.sample()
		}
	}
}

func (w *ChannelCapacityWorker) sample() (fillMax float64, saturated int) {
	for _, depth := range w.sampler.QueueDepths() {
		fill := depth.Fill()
		fillMax = max(fillMax, fill)
		if fill < w.threshold {
			continue
		}
		saturated++
		w.log.Warn("Outbound queue nearly full",
			"user_id", depth.UserID,
			"connection_id", depth.ConnectionID.String(),
			"length", depth.Length,
			"capacity", depth.Capacity)
	}
	w.monitoring.UpdateQueues(fillMax, saturated)
	return fillMax, saturated
}
