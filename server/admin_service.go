package server

import (
	"net/http"
	"time"

	"github.com/spatialkit/tessera/bridge"
)

// AdminService serves health and worker lifecycle routes.
type AdminService struct {
	holder  *bridge.Holder
	version string
	started time.Time
}

// NewAdminService creates the admin service.
func NewAdminService(holder *bridge.Holder, version string, started time.Time) *AdminService {
	return &AdminService{holder: holder, version: version, started: started}
}

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	WorkerRunning bool   `json:"worker_running"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (s *AdminService) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		http.Error(w, "Method not allowed", 405)
		return
	}
	writeJSON(w, 200, healthResponse{
		Status:        "ok",
		Version:       s.version,
		WorkerRunning: s.holder.Running(),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	})
}

// handleWorkerRestart drops the current worker; the next command spawns
// a fresh one. This is the recovery path after a protocol or I/O
// failure left the stream in an unknown state.
func (s *AdminService) handleWorkerRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", 405)
		return
	}
	if err := s.holder.Reset(); err != nil {
		writeError(w, 500, err.Error())
		return
	}
	log.Infof("worker restarted on request")
	writeJSON(w, 200, map[string]string{"status": "restarted"})
}
