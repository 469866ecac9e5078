package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/isocam/internal/events"
	"github.com/smazurov/isocam/internal/metrics"
)

// DefaultMetricsInterval is how often the metrics stream sends a snapshot.
const DefaultMetricsInterval = time.Second

// CameraMetricsEvent is one snapshot of every open camera's counters.
type CameraMetricsEvent struct {
	Cameras   map[string]metrics.CameraMetrics `json:"cameras" doc:"Counters by camera GUID"`
	Timestamp string                           `json:"timestamp" doc:"Snapshot time"`
}

// registerMetricsRoutes registers the metrics SSE endpoint.
func (s *Server) registerMetricsRoutes() {
	interval := s.options.MetricsInterval
	if interval <= 0 {
		interval = DefaultMetricsInterval
	}

	sse.Register(s.api, huma.Operation{
		OperationID: "metrics-stream",
		Method:      http.MethodGet,
		Path:        "/api/metrics",
		Summary:     "Metrics Server-Sent Events Stream",
		Description: "Periodic camera counters plus a frame event per acquired frame",
		Tags:        []string{"metrics"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"camera-metrics": CameraMetricsEvent{},
		"frame-acquired": events.FrameAcquiredEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)
		unsubscribe := events.SubscribeToChannel[events.FrameAcquiredEvent](s.eventBus, eventCh)
		defer unsubscribe()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		if err := send.Data(s.snapshot()); err != nil {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := send.Data(s.snapshot()); err != nil {
					return
				}
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}

func (s *Server) snapshot() CameraMetricsEvent {
	ev := CameraMetricsEvent{
		Cameras:   make(map[string]metrics.CameraMetrics),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	for _, id := range s.cameras.IDs() {
		if m := metrics.Get(id); m != nil {
			ev.Cameras[id] = *m
		}
	}
	return ev
}
