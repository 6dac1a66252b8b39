package v1

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"mindrian/internal/gateway/handlers"
	"mindrian/internal/session"
)

// HandleGetSession returns a session snapshot. The resume token itself is
// never exposed.
func (r *Router) HandleGetSession(w http.ResponseWriter, req *http.Request) {
	if r.sessions == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Session store not available")
		return
	}

	sess, err := r.sessions.Get(mux.Vars(req)["id"])
	if errors.Is(err, session.ErrNotFound) {
		handlers.SendError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
		return
	}
	if err != nil {
		handlers.SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	counts := make(map[string]int, len(sess.Exchanges))
	for kind, track := range sess.Exchanges {
		counts[kind] = len(track)
	}
	handlers.SendJSON(w, http.StatusOK, SessionResponse{
		SessionID:      sess.ID,
		UserID:         sess.UserID,
		WorkspaceID:    sess.WorkspaceID,
		HasResumeToken: sess.ResumeToken != "",
		ActiveRunID:    sess.ActiveRunID,
		CreatedAt:      sess.CreatedAt,
		Exchanges:      counts,
	})
}

// HandleDeleteSession tears a session down. A session with a run in flight
// is left alone.
func (r *Router) HandleDeleteSession(w http.ResponseWriter, req *http.Request) {
	if r.sessions == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Session store not available")
		return
	}

	id := mux.Vars(req)["id"]
	sess, err := r.sessions.Get(id)
	if errors.Is(err, session.ErrNotFound) {
		handlers.SendError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
		return
	}
	if err != nil {
		handlers.SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if sess.ActiveRunID != "" {
		handlers.SendError(w, http.StatusConflict, ErrCodeConflict, "Session has an active run")
		return
	}

	if err := r.sessions.Destroy(id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			handlers.SendError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
			return
		}
		handlers.SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	r.log.Info().Str("session_id", id).Msg("Session deleted")
	w.WriteHeader(http.StatusNoContent)
}
