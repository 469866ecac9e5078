package exporters

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/smazurov/isocam/internal/metrics"
)

func TestHTTPHandler(t *testing.T) {
	metrics.SetFrameRate("http-test-camera", 15)
	metrics.RecordFrame("http-test-camera", 2)
	t.Cleanup(func() { metrics.DeleteCamera("http-test-camera") })

	tests := []struct {
		name   string
		accept string
		want   string
	}{
		{"text", "", "text/plain"},
		{"openmetrics", "application/openmetrics-text; version=1.0.0", "application/openmetrics-text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			w := httptest.NewRecorder()
			HTTPHandler().ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, tt.want) {
				t.Errorf("Content-Type = %q, want %s", ct, tt.want)
			}
			if body := w.Body.String(); !strings.Contains(body, `isocam_camera_frame_rate{camera="http-test-camera"} 15`) {
				t.Errorf("camera frame rate missing from response:\n%s", body)
			}
		})
	}
}
