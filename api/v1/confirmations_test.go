package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHandleListConfirmations_Empty(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/confirmations", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var resp ConfirmationsResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 0 || len(resp.Confirmations) != 0 {
		t.Errorf("Expected no confirmations, got %+v", resp)
	}
}

func TestHandleListConfirmations_Pending(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.sessions.GetOrCreate("s1", "", ""); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	done := make(chan bool, 1)
	go func() {
		approved, _ := env.coord.Request(context.Background(), "s1", "tc9", deleteDoc, json.RawMessage(`{"document_id":"d1"}`))
		done <- approved
	}()

	deadline := time.Now().Add(2 * time.Second)
	for env.coord.PendingCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("confirmation never became pending")
		}
		time.Sleep(5 * time.Millisecond)
	}

	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/confirmations", nil))

	var resp ConfirmationsResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 {
		t.Fatalf("Expected 1 confirmation, got %d", resp.Count)
	}
	c := resp.Confirmations[0]
	if c.ToolCallID != "tc9" || c.SessionID != "s1" || c.ToolName != deleteDoc {
		t.Errorf("Unexpected confirmation %+v", c)
	}
	if args, ok := c.ToolArgs.(map[string]any); !ok || args["document_id"] != "d1" {
		t.Errorf("Expected decoded tool args, got %#v", c.ToolArgs)
	}

	env.coord.Resolve("tc9", false)
	if <-done {
		t.Error("Expected denial")
	}
}
