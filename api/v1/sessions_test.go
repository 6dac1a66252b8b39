package v1

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"mindrian/internal/backend"
	bt "mindrian/internal/backend/backendtest"
	"mindrian/internal/session"
)

func TestHandleGetSession(t *testing.T) {
	env := newTestEnv(t, nil, bt.Run{Steps: bt.Steps(bt.Msg(backend.SystemInit{}), bt.Done("T1"))})

	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, formRequest(http.MethodPost, "/agents/mindrian-claude/runs", url.Values{
		"message": {"hi"}, "session_id": {"s1"}, "user_id": {"u1"}, "workspace_id": {"w1"},
	}))

	rr = httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/s1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var resp SessionResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SessionID != "s1" || resp.UserID != "u1" || resp.WorkspaceID != "w1" {
		t.Errorf("Unexpected session %+v", resp)
	}
	if !resp.HasResumeToken {
		t.Error("Expected resume token after a completed run")
	}
	if resp.ActiveRunID != "" {
		t.Errorf("Expected no active run, got %q", resp.ActiveRunID)
	}
}

func TestHandleGetSession_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
}

func TestHandleDeleteSession(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.sessions.GetOrCreate("s1", "u1", "w1"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/s1", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d", rr.Code)
	}
	if _, err := env.sessions.Get("s1"); err != session.ErrNotFound {
		t.Errorf("Expected session removed, got %v", err)
	}

	rr = httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/s1", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 on second delete, got %d", rr.Code)
	}
}

func TestHandleDeleteSession_ActiveRun(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.sessions.GetOrCreate("s1", "", ""); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if err := env.sessions.SetActiveRun("s1", "r1"); err != nil {
		t.Fatalf("SetActiveRun: %v", err)
	}

	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/s1", nil))
	if rr.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", rr.Code)
	}
	if env.sessions.Len() != 1 {
		t.Error("Expected session kept")
	}
}
