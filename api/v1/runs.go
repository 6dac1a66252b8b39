package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"mindrian/internal/event"
	"mindrian/internal/gateway/handlers"
	"mindrian/internal/orchestrator"
	"mindrian/internal/storage"
)

const (
	maxFormMemory = 1 << 20
	// sseWriteTimeout bounds each event write to a client that stopped reading.
	sseWriteTimeout = 30 * time.Second
)

// HandleStartRun starts a run and streams its events as SSE.
func (r *Router) HandleStartRun(w http.ResponseWriter, req *http.Request) {
	if !r.agentAllowed(req) {
		handlers.SendError(w, http.StatusNotFound, ErrCodeNotFound, "Unknown agent")
		return
	}

	runReq, err := parseRunRequest(req)
	if err != nil {
		handlers.SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	if runReq.Stream != nil && !*runReq.Stream {
		handlers.SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Only streaming runs are supported")
		return
	}
	if r.orch == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Orchestrator not available")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		handlers.SendError(w, http.StatusInternalServerError, ErrCodeStreamUnsupported, "Streaming not supported")
		return
	}

	runID, events, err := r.orch.StartRun(req.Context(), orchestrator.StartRequest{
		Message:     runReq.Message,
		SessionID:   runReq.SessionID,
		UserID:      runReq.UserID,
		WorkspaceID: runReq.WorkspaceID,
	})
	if errors.Is(err, orchestrator.ErrMissingSession) || errors.Is(err, orchestrator.ErrMissingMessage) {
		handlers.SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	if err != nil {
		handlers.SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	setSSEHeaders(w)
	w.Header().Set("X-Run-ID", runID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// A failed write cancels the run; the stream is still drained so the run
	// can reach its terminal event.
	rc := http.NewResponseController(w)
	writeErr := false
	for e := range events {
		if writeErr {
			continue
		}
		_ = rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout))
		if err := event.Encode(w, e); err != nil {
			r.log.Warn().Err(err).Str("run_id", runID).Msg("SSE write failed, cancelling run")
			writeErr = true
			go r.orch.CancelRun(runID, runReq.SessionID)
			continue
		}
		flusher.Flush()
	}
}

// HandleContinueRun applies tool decisions and acknowledges with a single
// RunContinued event.
func (r *Router) HandleContinueRun(w http.ResponseWriter, req *http.Request) {
	if !r.agentAllowed(req) {
		handlers.SendError(w, http.StatusNotFound, ErrCodeNotFound, "Unknown agent")
		return
	}
	if r.orch == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Orchestrator not available")
		return
	}

	contReq, err := parseContinueRequest(req)
	if err != nil {
		handlers.SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	decisions := make([]orchestrator.Decision, 0, len(contReq.ToolDecisions))
	for _, d := range contReq.ToolDecisions {
		if d.ToolCallID == "" {
			continue
		}
		decisions = append(decisions, orchestrator.Decision{ToolCallID: d.ToolCallID, Approved: d.Confirmed})
	}
	ack := r.orch.SubmitDecisions(mux.Vars(req)["run_id"], contReq.SessionID, decisions)

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := event.Encode(w, ack); err != nil {
		r.log.Warn().Err(err).Msg("SSE write failed")
		return
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// HandleCancelRun cancels a run. Unknown or finished runs still succeed.
func (r *Router) HandleCancelRun(w http.ResponseWriter, req *http.Request) {
	if !r.agentAllowed(req) {
		handlers.SendError(w, http.StatusNotFound, ErrCodeNotFound, "Unknown agent")
		return
	}
	if r.orch == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Orchestrator not available")
		return
	}

	var cancelReq CancelRequest
	if err := decodeBody(req, &cancelReq, func() {
		cancelReq.SessionID = req.FormValue("session_id")
	}); err != nil {
		handlers.SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	runID := mux.Vars(req)["run_id"]
	r.orch.CancelRun(runID, cancelReq.SessionID)
	handlers.SendJSON(w, http.StatusOK, CancelResponse{Status: "cancelled", RunID: runID})
}

// HandleGetRun returns the recorded lifecycle of a run.
func (r *Router) HandleGetRun(w http.ResponseWriter, req *http.Request) {
	if r.runs == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Run records not available")
		return
	}

	id := mux.Vars(req)["id"]
	rec, err := r.runs.GetRun(id)
	if errors.Is(err, storage.ErrNotFound) {
		handlers.SendError(w, http.StatusNotFound, ErrCodeNotFound, "Run not found")
		return
	}
	if err != nil {
		handlers.SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	handlers.SendJSON(w, http.StatusOK, RunResponse{
		ID:        rec.ID,
		SessionID: rec.SessionID,
		Status:    rec.Status,
		Error:     rec.Error,
		Active:    r.orch != nil && r.orch.IsActive(rec.ID),
		StartedAt: rec.StartedAt,
		EndedAt:   rec.EndedAt,
	})
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

func isJSON(req *http.Request) bool {
	mt, _, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

// decodeBody decodes a JSON body into v, or parses the form and calls
// fromForm. An empty JSON body leaves v untouched.
func decodeBody(req *http.Request, v any, fromForm func()) error {
	if isJSON(req) {
		if req.Body == nil || req.ContentLength == 0 {
			return nil
		}
		if err := json.NewDecoder(req.Body).Decode(v); err != nil {
			return errors.New("invalid JSON body")
		}
		return nil
	}

	var err error
	if strings.HasPrefix(req.Header.Get("Content-Type"), "multipart/form-data") {
		err = req.ParseMultipartForm(maxFormMemory)
	} else {
		err = req.ParseForm()
	}
	if err != nil {
		return fmt.Errorf("invalid form body: %w", err)
	}
	fromForm()
	return nil
}

func parseRunRequest(req *http.Request) (RunRequest, error) {
	var out RunRequest
	var streamErr error
	err := decodeBody(req, &out, func() {
		out.Message = req.FormValue("message")
		out.SessionID = req.FormValue("session_id")
		out.UserID = req.FormValue("user_id")
		out.WorkspaceID = req.FormValue("workspace_id")
		if raw := req.FormValue("stream"); raw != "" {
			b, err := strconv.ParseBool(raw)
			if err != nil {
				streamErr = fmt.Errorf("invalid stream value %q", raw)
				return
			}
			out.Stream = &b
		}
	})
	if err != nil {
		return out, err
	}
	return out, streamErr
}

func parseContinueRequest(req *http.Request) (ContinueRequest, error) {
	var out ContinueRequest
	var decisionsErr error
	err := decodeBody(req, &out, func() {
		out.SessionID = req.FormValue("session_id")
		if raw := req.FormValue("tool_decisions"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &out.ToolDecisions); err != nil {
				decisionsErr = errors.New("tool_decisions must be a JSON list")
			}
		}
	})
	if err != nil {
		return out, err
	}
	return out, decisionsErr
}
