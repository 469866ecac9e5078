// Package metrics provides Prometheus metrics for open camera sessions.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "isocam",
		Subsystem: "camera",
		Name:      "frames_total",
		Help:      "Frames checked out of the capture ring",
	}, []string{"camera"})

	frameLag = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "isocam",
		Subsystem: "camera",
		Name:      "frame_lag",
		Help:      "Filled buffers queued behind the last acquired frame",
	}, []string{"camera"})

	reconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "isocam",
		Subsystem: "camera",
		Name:      "reconnects_total",
		Help:      "Reconnect attempts by result",
	}, []string{"camera", "result"})

	connectFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "isocam",
		Subsystem: "camera",
		Name:      "connect_failures_total",
		Help:      "Cameras that failed to open or connect",
	}, []string{"camera"})

	frameRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "isocam",
		Subsystem: "camera",
		Name:      "frame_rate",
		Help:      "Frame rate the camera is programmed for",
	}, []string{"camera"})

	connected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "isocam",
		Subsystem: "camera",
		Name:      "connected",
		Help:      "1 while the session is connected",
	}, []string{"camera"})

	// Local cache for the camera list endpoint.
	cache   = make(map[string]*CameraMetrics)
	cacheMu sync.RWMutex
)

// CameraMetrics holds current metric values for a camera.
type CameraMetrics struct {
	Frames          uint64  `json:"frames"`
	Lag             int     `json:"lag"`
	Reconnects      int     `json:"reconnects"`
	ReconnectErrors int     `json:"reconnect_errors"`
	ConnectFailures int     `json:"connect_failures"`
	FrameRate       float64 `json:"frame_rate"`
	Connected       bool    `json:"connected"`
}

// RecordFrame counts an acquired frame and its lag.
func RecordFrame(cameraID string, lag int) {
	framesTotal.WithLabelValues(cameraID).Inc()
	frameLag.WithLabelValues(cameraID).Set(float64(lag))
	update(cameraID, func(m *CameraMetrics) {
		m.Frames++
		m.Lag = lag
	})
}

// RecordReconnect counts a reconnect attempt.
func RecordReconnect(cameraID string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	reconnectsTotal.WithLabelValues(cameraID, result).Inc()
	update(cameraID, func(m *CameraMetrics) {
		m.Reconnects++
		if err != nil {
			m.ReconnectErrors++
		}
	})
}

// RecordConnectFailure counts a camera that could not be opened.
func RecordConnectFailure(cameraID string) {
	connectFailuresTotal.WithLabelValues(cameraID).Inc()
	update(cameraID, func(m *CameraMetrics) { m.ConnectFailures++ })
}

// SetFrameRate sets the programmed frame rate.
func SetFrameRate(cameraID string, fps float64) {
	frameRate.WithLabelValues(cameraID).Set(fps)
	update(cameraID, func(m *CameraMetrics) { m.FrameRate = fps })
}

// SetConnected sets the connection gauge.
func SetConnected(cameraID string, on bool) {
	v := 0.0
	if on {
		v = 1
	}
	connected.WithLabelValues(cameraID).Set(v)
	update(cameraID, func(m *CameraMetrics) { m.Connected = on })
}

// DeleteCamera removes the per-camera gauges. Counters of a closed camera
// keep their last value until the process exits.
func DeleteCamera(cameraID string) {
	frameLag.DeleteLabelValues(cameraID)
	frameRate.DeleteLabelValues(cameraID)
	connected.DeleteLabelValues(cameraID)

	cacheMu.Lock()
	delete(cache, cameraID)
	cacheMu.Unlock()
}

// Get returns a copy of the current values for a camera, nil if unknown.
func Get(cameraID string) *CameraMetrics {
	cacheMu.RLock()
	defer cacheMu.RUnlock()
	if m, ok := cache[cameraID]; ok {
		dup := *m
		return &dup
	}
	return nil
}

func update(cameraID string, fn func(*CameraMetrics)) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	m, ok := cache[cameraID]
	if !ok {
		m = &CameraMetrics{}
		cache[cameraID] = m
	}
	fn(m)
}
