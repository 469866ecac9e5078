package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/isocam/internal/api/models"
	"github.com/smazurov/isocam/internal/service"
)

// registerCameraRoutes registers camera control endpoints.
func (s *Server) registerCameraRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-cameras",
		Method:      http.MethodGet,
		Path:        "/api/cameras",
		Summary:     "List Cameras",
		Description: "Get every open camera with its session state",
		Tags:        []string{"cameras"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.CameraListResponse, error) {
		list := s.cameras.List()
		out := make([]models.CameraData, len(list))
		for i, info := range list {
			out[i] = toCameraData(info)
		}
		return &models.CameraListResponse{
			Body: models.CameraListData{Cameras: out, Count: len(out)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "scan-cameras",
		Method:      http.MethodPost,
		Path:        "/api/cameras/scan",
		Summary:     "Scan Bus",
		Description: "Open every camera on the bus that is not open yet",
		Tags:        []string{"cameras"},
		Errors:      []int{401, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*models.ScanResponse, error) {
		n, err := s.cameras.OpenAll(ctx)
		body := models.ScanData{Opened: n, Cameras: s.cameras.IDs()}
		if err != nil {
			// Per-camera failures come back joined; anything else failed the scan.
			if _, joined := err.(interface{ Unwrap() []error }); !joined {
				return nil, s.mapCameraError(err)
			}
			body.Errors = splitJoined(err)
		}
		return &models.ScanResponse{Body: body}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-camera",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{id}",
		Summary:     "Get Camera",
		Description: "Get one open camera",
		Tags:        []string{"cameras"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.CameraPath) (*models.CameraResponse, error) {
		info, err := s.cameras.Info(input.ID)
		if err != nil {
			return nil, s.mapCameraError(err)
		}
		return &models.CameraResponse{Body: toCameraData(info)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "close-camera",
		Method:      http.MethodDelete,
		Path:        "/api/cameras/{id}",
		Summary:     "Close Camera",
		Description: "Destroy the camera's session. A later scan opens it again.",
		Tags:        []string{"cameras"},
		Errors:      []int{401, 404, 500},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.CloseRequest) (*models.MessageResponse, error) {
		if err := s.cameras.Close(input.ID, input.Reason); err != nil {
			return nil, s.mapCameraError(err)
		}
		resp := &models.MessageResponse{}
		resp.Body.Message = "camera closed"
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-camera-state",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{id}/state",
		Summary:     "Get Settings",
		Description: "Get the complete settings of a camera",
		Tags:        []string{"cameras"},
		Errors:      []int{401, 404, 503},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.CameraPath) (*models.StateResponse, error) {
		settings, err := s.cameras.State(input.ID)
		if err != nil {
			return nil, s.mapCameraError(err)
		}
		return &models.StateResponse{Body: settings}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-camera-state",
		Method:      http.MethodPut,
		Path:        "/api/cameras/{id}/state",
		Summary:     "Apply Settings",
		Description: "Apply a complete settings struct. Features the camera lacks are reported as warnings.",
		Tags:        []string{"cameras"},
		Errors:      []int{400, 401, 404, 409, 422, 500, 503},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.SetStateRequest) (*models.SetStateResponse, error) {
		applied, err := s.cameras.SetState(input.ID, input.Body, service.ApplyOptions{Source: "api", Save: input.Save})
		if err != nil {
			return nil, s.mapCameraError(err)
		}
		return &models.SetStateResponse{
			Body: models.SetStateData{
				Settings: applied.Settings,
				Warnings: applied.Warnings,
				Saved:    input.Save,
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-camera-config",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{id}/config",
		Summary:     "Get Hardware Configuration",
		Description: "Get the hardware configuration and probed capabilities of a camera",
		Tags:        []string{"cameras"},
		Errors:      []int{401, 404, 503},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.CameraPath) (*models.ConfigResponse, error) {
		cfg, caps, err := s.cameras.Config(input.ID)
		if err != nil {
			return nil, s.mapCameraError(err)
		}
		return &models.ConfigResponse{
			Body: models.ConfigData{Config: cfg, Capabilities: caps},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-camera-run",
		Method:      http.MethodPost,
		Path:        "/api/cameras/{id}/run",
		Summary:     "Start or Stop",
		Description: "Start or stop transmission, continuous or single-shot",
		Tags:        []string{"cameras"},
		Errors:      []int{401, 404, 422, 500, 503},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.RunRequest) (*models.RunResponse, error) {
		rs, err := s.cameras.SetRun(input.ID, input.Body.Running, input.Body.SingleShot)
		if err != nil {
			return nil, s.mapCameraError(err)
		}
		return &models.RunResponse{Body: models.RunData{RunState: rs.String()}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "dump-camera",
		Method:      http.MethodGet,
		Path:        "/api/cameras/{id}/dump",
		Summary:     "Debug Report",
		Description: "Get a plain-text report of the session for debugging",
		Tags:        []string{"cameras"},
		Errors:      []int{401, 404, 503},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.CameraPath) (*models.DumpResponse, error) {
		dump, err := s.cameras.Dump(input.ID)
		if err != nil {
			return nil, s.mapCameraError(err)
		}
		return &models.DumpResponse{ContentType: "text/plain; charset=utf-8", Body: []byte(dump)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "save-camera-profile",
		Method:      http.MethodPost,
		Path:        "/api/cameras/{id}/profile",
		Summary:     "Save Profile",
		Description: "Store the camera's current settings as the profile applied when it is next opened",
		Tags:        []string{"profiles"},
		Errors:      []int{401, 404, 500},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.CameraPath) (*models.MessageResponse, error) {
		if err := s.cameras.SaveProfile(input.ID); err != nil {
			return nil, s.mapCameraError(err)
		}
		resp := &models.MessageResponse{}
		resp.Body.Message = "profile saved"
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "delete-camera-profile",
		Method:      http.MethodDelete,
		Path:        "/api/cameras/{id}/profile",
		Summary:     "Delete Profile",
		Description: "Forget the camera's saved profile",
		Tags:        []string{"profiles"},
		Errors:      []int{401, 404, 500},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.CameraPath) (*models.MessageResponse, error) {
		if err := s.cameras.DeleteProfile(input.ID); err != nil {
			return nil, s.mapCameraError(err)
		}
		resp := &models.MessageResponse{}
		resp.Body.Message = "profile deleted"
		return resp, nil
	})
}

func toCameraData(info service.Info) models.CameraData {
	return models.CameraData{
		ID:         info.ID,
		SessionID:  info.SessionID,
		Vendor:     info.Vendor,
		Model:      info.Model,
		State:      info.State,
		Regime:     info.Regime,
		RunState:   info.RunState,
		Frames:     info.Frames,
		Reconnects: info.Reconnects,
		Opened:     info.Opened,
		Metrics:    info.Metrics,
	}
}

// splitJoined lists the messages of an errors.Join result.
func splitJoined(err error) []string {
	var out []string
	for _, e := range err.(interface{ Unwrap() []error }).Unwrap() {
		out = append(out, e.Error())
	}
	return out
}

// mapCameraError maps domain errors to HTTP errors
func (s *Server) mapCameraError(err error) error {
	var ce *service.CameraError
	if !errors.As(err, &ce) {
		s.logger.Error("Unclassified camera error", "error", err)
		return huma.Error500InternalServerError("internal server error", err)
	}
	switch ce.Code {
	case service.ErrCodeCameraNotFound:
		return huma.Error404NotFound(ce.Message, err)
	case service.ErrCodeCameraExists, service.ErrCodeBusy:
		return huma.Error409Conflict(ce.Message, err)
	case service.ErrCodeInvalidSettings:
		return huma.Error400BadRequest(ce.Message, err)
	case service.ErrCodeUnsupported:
		return huma.Error422UnprocessableEntity(ce.Message, err)
	case service.ErrCodeDisconnected:
		return huma.Error503ServiceUnavailable(ce.Message, err)
	case service.ErrCodeTimeout:
		return huma.Error504GatewayTimeout(ce.Message, err)
	case service.ErrCodeDeviceError, service.ErrCodeProfileError:
		return huma.Error500InternalServerError(ce.Message, err)
	default:
		return huma.Error500InternalServerError("internal server error", err)
	}
}
