package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/isocam/internal/events"
)

// EventsInput filters the event stream.
type EventsInput struct {
	Camera string `query:"camera" doc:"Only events of this camera; daemon-wide events always pass"`
}

// registerSSERoutes registers the camera event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time camera lifecycle, settings and run-state events",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, events.Names(), func(ctx context.Context, input *EventsInput, send sse.Sender) {
		eventCh := make(chan any, 32)
		unsubscribe := events.SubscribeAll(s.eventBus, eventCh)
		defer unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if id := events.CameraID(event); input.Camera != "" && id != "" && id != input.Camera {
					continue
				}
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
