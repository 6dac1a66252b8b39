package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"mindrian/internal/retention"
)

// Sweeper is the retention surface exposed over HTTP.
type Sweeper interface {
	Sweep(ctx context.Context) (retention.Report, error)
	Last() (retention.Report, bool)
	Next() time.Time
	Schedule() string
}

// RetentionHandler handles retention endpoints.
type RetentionHandler struct {
	sweeper Sweeper
}

// NewRetentionHandler creates a new retention handler.
func NewRetentionHandler(s Sweeper) *RetentionHandler {
	return &RetentionHandler{sweeper: s}
}

// RegisterRoutes registers retention routes on the router.
func (h *RetentionHandler) RegisterRoutes(router *mux.Router) {
	sub := router.PathPrefix("/api/v1/retention").Subrouter()
	sub.HandleFunc("", h.HandleStatus).Methods(http.MethodGet)
	sub.HandleFunc("/sweep", h.HandleSweep).Methods(http.MethodPost)
}

// HandleStatus returns the schedule, the next sweep and the last report.
func (h *RetentionHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"schedule": h.sweeper.Schedule()}
	if next := h.sweeper.Next(); !next.IsZero() {
		resp["next_run"] = next
	}
	if last, ok := h.sweeper.Last(); ok {
		resp["last"] = last
	}
	SendJSON(w, http.StatusOK, resp)
}

// HandleSweep runs a sweep immediately. A partial failure still returns the
// report alongside the error.
func (h *RetentionHandler) HandleSweep(w http.ResponseWriter, r *http.Request) {
	rep, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		SendJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  ErrorDetail{Code: ErrCodeInternalError, Message: err.Error()},
			"report": rep,
		})
		return
	}
	SendJSON(w, http.StatusOK, rep)
}
