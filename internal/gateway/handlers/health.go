package handlers

import (
	"net/http"
	"sync"
	"time"
)

var (
	startTime time.Time
	startOnce sync.Once
)

// InitStartTime records the server start time. Only the first call counts.
func InitStartTime() {
	startOnce.Do(func() {
		startTime = time.Now()
	})
}

// HealthResponse is the health check body.
type HealthResponse struct {
	Status  string `json:"status"`
	Agent   string `json:"agent"`
	Version string `json:"version"`
	Uptime  int64  `json:"uptime"`
}

// HealthHandler reports liveness, the agent name and uptime in seconds.
func HealthHandler(agent, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(0)
		if !startTime.IsZero() {
			uptime = int64(time.Since(startTime).Seconds())
		}

		SendJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Agent:   agent,
			Version: version,
			Uptime:  uptime,
		})
	}
}
