package api

import (
	"net/http"
	"time"

	"github.com/videlboga/cyberkitty119-sub001/internal/pipeline"
	"github.com/videlboga/cyberkitty119-sub001/internal/watch"
)

// QueueSource exposes pipeline queue state for health reporting.
type QueueSource interface {
	Stats() pipeline.QueueStats
}

// RelaySource exposes relay correlation state for health reporting.
type RelaySource interface {
	Pending() int
}

// WatcherSource exposes drop-folder watcher state for health reporting.
type WatcherSource interface {
	CurrentStatus() watch.Status
}

type HealthResponse struct {
	Status        string              `json:"status"`
	Version       string              `json:"version"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	Checks        map[string]string   `json:"checks"`
	Queue         *pipeline.QueueStats `json:"queue,omitempty"`
	Watcher       *watch.Status       `json:"watcher,omitempty"`
	RelayPending  *int                `json:"relay_pending,omitempty"`
}

type HealthHandler struct {
	queue     QueueSource
	relay     RelaySource
	watcher   WatcherSource
	version   string
	startTime time.Time
}

// NewHealthHandler creates the health endpoint. Any source may be nil when
// the corresponding subsystem is not configured.
func NewHealthHandler(queue QueueSource, relay RelaySource, watcher WatcherSource, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		queue:     queue,
		relay:     relay,
		watcher:   watcher,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"

	resp := HealthResponse{
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	}

	if h.queue != nil {
		stats := h.queue.Stats()
		resp.Queue = &stats
		if stats.Pending > 0 && stats.Active == 0 && stats.Completed == 0 {
			// Jobs queued but nothing ever ran: workers likely not started
			checks["pipeline"] = "stalled"
			status = "degraded"
		} else {
			checks["pipeline"] = "ok"
		}
	} else {
		checks["pipeline"] = "not_configured"
		status = "degraded"
	}

	if h.relay != nil {
		pending := h.relay.Pending()
		resp.RelayPending = &pending
		checks["relay"] = "ok"
	} else {
		checks["relay"] = "not_configured"
	}

	if h.watcher != nil {
		ws := h.watcher.CurrentStatus()
		resp.Watcher = &ws
		checks["file_watcher"] = ws.Status
		if ws.Status == "stopped" && status == "healthy" {
			status = "degraded"
		}
	} else {
		checks["file_watcher"] = "not_configured"
	}

	resp.Status = status
	WriteJSON(w, http.StatusOK, resp)
}
