package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	v1 "mindrian/api/v1"
	"mindrian/internal/event"
	"mindrian/internal/gateway/handlers"
)

// apiClient talks to a running gateway.
type apiClient struct {
	base  string
	agent string
	http  *http.Client
}

func newAPIClient(base, agent string) *apiClient {
	return &apiClient{
		base:  strings.TrimRight(base, "/"),
		agent: agent,
		http:  &http.Client{}, // no timeout: run streams stay open
	}
}

func (c *apiClient) agentURL(parts ...string) string {
	return c.base + "/agents/" + url.PathEscape(c.agent) + "/" + strings.Join(parts, "/")
}

func (c *apiClient) postForm(ctx context.Context, target string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, responseError(resp)
	}
	return resp, nil
}

// startRun returns the open SSE response. The caller closes the body.
func (c *apiClient) startRun(ctx context.Context, req v1.RunRequest) (*http.Response, error) {
	form := url.Values{
		"message":    {req.Message},
		"stream":     {"true"},
		"session_id": {req.SessionID},
	}
	if req.UserID != "" {
		form.Set("user_id", req.UserID)
	}
	if req.WorkspaceID != "" {
		form.Set("workspace_id", req.WorkspaceID)
	}
	return c.postForm(ctx, c.agentURL("runs"), form)
}

func (c *apiClient) continueRun(ctx context.Context, runID, sessionID string, decisions []v1.ToolDecision) error {
	data, err := json.Marshal(decisions)
	if err != nil {
		return err
	}
	resp, err := c.postForm(ctx, c.agentURL("runs", url.PathEscape(runID), "continue"), url.Values{
		"session_id":     {sessionID},
		"tool_decisions": {string(data)},
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	f, err := event.NewReader(resp.Body).Next()
	if err != nil {
		return fmt.Errorf("read continue acknowledgement: %w", err)
	}
	if f.Kind != event.KindRunContinued {
		return fmt.Errorf("unexpected continue acknowledgement %s", f.Kind)
	}
	return nil
}

func (c *apiClient) cancelRun(ctx context.Context, runID, sessionID string) error {
	resp, err := c.postForm(ctx, c.agentURL("runs", url.PathEscape(runID), "cancel"), url.Values{"session_id": {sessionID}})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var env handlers.ErrorResponse
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		return fmt.Errorf("server returned %d %s: %s", resp.StatusCode, env.Error.Code, env.Error.Message)
	}
	if len(body) == 0 {
		return errors.New(resp.Status)
	}
	return fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
}
