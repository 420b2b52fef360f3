package web

import (
	"encoding/json"
	"io/fs"
	"net/http"
	"time"

	"github.com/mherranz/HominGo/internal/logic/homing"
)

// StatusFunc returns the current controller snapshot.
// It is called from HTTP goroutines while the control loop runs.
type StatusFunc func() homing.Status

// MotionInfo is the effective motion configuration, exposed read-only.
type MotionInfo struct {
	Axis          string  `json:"axis"`
	MaxSpeed      float64 `json:"max_speed"`
	Acceleration  float64 `json:"acceleration"`
	ForwardTravel int64   `json:"forward_travel_steps"`
	SeekTravel    int64   `json:"seek_travel_steps"`
}

// Handlers holds dependencies for HTTP handlers. The surface is
// observation-only: nothing here feeds back into the control loop.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Status      StatusFunc
	Motion      MotionInfo
	staticFS    fs.FS
}

// NewHandlers creates handlers with the given dependencies.
// If status is nil, GET /status returns 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, status StatusFunc, motion MotionInfo, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Status:      status,
		Motion:      motion,
		staticFS:    staticFS,
	}
}

// HandleStatus returns the current controller snapshot as JSON.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if h.Status == nil {
		http.Error(w, "controller not running", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Status())
}

// HandleConfig returns the effective motion parameters as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Motion)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
