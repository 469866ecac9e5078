package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/isocam/internal/api/models"
	"github.com/smazurov/isocam/internal/logging"
)

// registerLogRoutes registers the log history and level endpoints.
func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent Logs",
		Description: "Get buffered log entries, optionally filtered by module and minimum level",
		Tags:        []string{"logs"},
		Errors:      []int{400, 401},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.LogsRequest) (*models.LogsResponse, error) {
		minLevel := slog.LevelDebug
		if input.Level != "" {
			l, err := logging.ParseLevel(input.Level)
			if err != nil {
				return nil, huma.Error400BadRequest(err.Error())
			}
			minLevel = l
		}

		var out []logging.Entry
		for _, e := range logging.Recent() {
			if input.Module != "" && e.Module != input.Module {
				continue
			}
			if l, err := logging.ParseLevel(e.Level); err == nil && l < minLevel {
				continue
			}
			out = append(out, e)
		}
		if len(out) > input.Limit {
			out = out[len(out)-input.Limit:]
		}
		if out == nil {
			out = []logging.Entry{}
		}
		return &models.LogsResponse{Body: models.LogsData{Entries: out, Count: len(out)}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-log-level",
		Method:      http.MethodPut,
		Path:        "/api/logs/level",
		Summary:     "Set Log Level",
		Description: "Change the level of one module, or the global level, until restart",
		Tags:        []string{"logs"},
		Errors:      []int{400, 401},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.LogLevelRequest) (*models.MessageResponse, error) {
		if err := logging.SetLevel(input.Body.Module, input.Body.Level); err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
		module := input.Body.Module
		if module == "" {
			module = "global"
		}
		s.logger.Info("Log level changed", "target", module, "level", input.Body.Level)
		resp := &models.MessageResponse{}
		resp.Body.Message = module + " level set to " + input.Body.Level
		return resp, nil
	})
}
