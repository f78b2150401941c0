package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-influx/internal/status"
)

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Health        status.State   `json:"health"`
	Export        ExportStatus   `json:"export"`
	Import        ImportStatus   `json:"import"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
}

// ExportStatus describes the collector of the running pipeline.
type ExportStatus struct {
	Rules         int    `json:"rules"`
	RulesVersion  string `json:"rules_version"`
	PendingPoints int    `json:"pending_points"`
}

// ImportStatus describes the import manager of the running pipeline.
type ImportStatus struct {
	Definitions int      `json:"definitions"`
	Devices     []string `json:"devices"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// handleStatus returns the bridge health together with pipeline and runtime
// statistics.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	snap := s.settings.Current()
	writeJSON(w, http.StatusOK, StatusResponse{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Health:        s.status.State(),
		Export: ExportStatus{
			Rules:         snap.Rules.Len(),
			RulesVersion:  snap.Rules.Version(),
			PendingPoints: s.pipeline.Pending(),
		},
		Import: ImportStatus{
			Definitions: len(snap.Imports),
			Devices:     s.pipeline.ImportDeviceIDs(),
		},
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
	})
}
