package api

import (
	"net/http"
	"time"
)

// StatusResponse is the GET /api/status body.
type StatusResponse struct {
	Monitoring     bool      `json:"monitoring"`
	WalletCount    int       `json:"walletCount"`
	InflightChecks int       `json:"inflightChecks"`
	UptimeSeconds  int64     `json:"uptimeSeconds"`
	Time           time.Time `json:"time"`
}

// handleStatus handles GET /api/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, StatusResponse{
		Monitoring:     s.engine.Running(),
		WalletCount:    s.engine.Scheduler().Count(),
		InflightChecks: s.engine.Scheduler().InflightCount(),
		UptimeSeconds:  int64(time.Since(s.startedAt).Seconds()),
		Time:           time.Now().UTC(),
	})
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "wallet-monitor",
	})
}
