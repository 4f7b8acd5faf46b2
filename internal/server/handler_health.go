package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/me/framephase/internal/jobpool"
)

type healthResponse struct {
	Status    string         `json:"status"`
	Version   string         `json:"version"`
	GoVersion string         `json:"go_version"`
	Uptime    string         `json:"uptime"`
	Scheduler string         `json:"scheduler"`
	Ticks     uint64         `json:"ticks"`
	Blocks    int            `json:"blocks"`
	Store     string         `json:"store"`
	RunID     string         `json:"run_id,omitempty"`
	Pool      *jobpool.Stats `json:"pool,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	resp := healthResponse{
		Status:    "healthy",
		Version:   Version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Scheduler: "stopped",
		Ticks:     s.status.Ticks(),
		Blocks:    len(s.status.Snapshot()),
		Store:     "disabled",
		RunID:     s.runID,
	}
	if s.status.Running() {
		resp.Scheduler = "running"
	}
	if s.store != nil {
		resp.Store = "sqlite"
	}
	if s.pool != nil {
		stats := s.pool.Stats()
		resp.Pool = &stats
	}
	respondOK(w, reqID, resp)
}
