package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/isocam/internal/api/models"
	"github.com/smazurov/isocam/internal/service"
	"github.com/smazurov/isocam/pkg/camera"
)

// registerFrameRoutes registers the frame grab endpoint.
func (s *Server) registerFrameRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-camera-frame",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{id}/frame",
		Summary:     "Grab Frame",
		Description: "Wait for the next frame and return its pixels. Geometry and timing are in X-Frame-* headers.",
		Tags:        []string{"frames"},
		Errors:      []int{401, 404, 409, 415, 500, 503, 504},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.FrameRequest) (*models.FrameResponse, error) {
		ctx, cancel := context.WithTimeout(ctx, time.Duration(input.TimeoutMs)*time.Millisecond)
		defer cancel()

		f, err := s.cameras.Capture(ctx, input.ID, service.CaptureOptions{
			Shot:  input.Shot,
			Fresh: input.Fresh,
			Pulse: input.Pulse,
		})
		if err != nil {
			return nil, s.mapCameraError(err)
		}

		resp := &models.FrameResponse{
			ContentType: "application/octet-stream",
			Width:       strconv.Itoa(f.Width),
			Height:      strconv.Itoa(f.Height),
			Coding:      f.Coding.String(),
			Number:      strconv.FormatUint(f.Number, 10),
			Lag:         strconv.Itoa(f.Lag),
			Timestamp:   f.TriggerTime.UTC().Format(time.RFC3339Nano),
			Body:        f.Data,
		}
		if input.Format == "pnm" {
			ct, body, err := encodePNM(f)
			if err != nil {
				return nil, huma.Error415UnsupportedMediaType(err.Error())
			}
			resp.ContentType, resp.Body = ct, body
		}
		return resp, nil
	})
}

// encodePNM wraps a frame in a binary PGM or PPM header. Sixteen-bit
// samples are already big-endian on the wire, as PNM wants them.
func encodePNM(f *service.Frame) (string, []byte, error) {
	var magic, ct string
	var maxval int
	switch f.Coding {
	case camera.Mono8, camera.Raw8:
		magic, ct, maxval = "P5", "image/x-portable-graymap", 255
	case camera.Mono16, camera.Raw16:
		magic, ct, maxval = "P5", "image/x-portable-graymap", 65535
	case camera.RGB8:
		magic, ct, maxval = "P6", "image/x-portable-pixmap", 255
	default:
		return "", nil, fmt.Errorf("no PNM form for %s frames", f.Coding)
	}
	header := fmt.Sprintf("%s\n%d %d\n%d\n", magic, f.Width, f.Height, maxval)
	out := make([]byte, 0, len(header)+len(f.Data))
	out = append(out, header...)
	out = append(out, f.Data...)
	return ct, out, nil
}
