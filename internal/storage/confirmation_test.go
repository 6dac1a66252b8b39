package storage

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestConfirmationAudit(t *testing.T) {
	db := openTestDB(t)

	err := db.RecordConfirmationRequest(ConfirmationRecord{
		ToolCallID: "toolu_1",
		SessionID:  "s1",
		RunID:      "r1",
		ToolName:   "mcp__mindrian__delete_document",
		ToolArgs:   json.RawMessage(`{"document_id":"d1"}`),
	})
	if err != nil {
		t.Fatalf("RecordConfirmationRequest failed: %v", err)
	}

	rec, err := db.GetConfirmation("toolu_1")
	if err != nil {
		t.Fatalf("GetConfirmation failed: %v", err)
	}
	if rec.Decision != DecisionPending || rec.DecidedAt != nil {
		t.Errorf("fresh record = %+v", rec)
	}

	if err := db.RecordConfirmationDecision("toolu_1", DecisionDenied); err != nil {
		t.Fatalf("RecordConfirmationDecision failed: %v", err)
	}
	rec, _ = db.GetConfirmation("toolu_1")
	if rec.Decision != DecisionDenied || rec.DecidedAt == nil {
		t.Errorf("decided record = %+v", rec)
	}
	if string(rec.ToolArgs) != `{"document_id":"d1"}` {
		t.Errorf("tool args = %s", rec.ToolArgs)
	}

	if err := db.RecordConfirmationDecision("unknown", DecisionApproved); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPruneConfirmations(t *testing.T) {
	db := openTestDB(t)

	old := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return old }
	_ = db.RecordConfirmationRequest(ConfirmationRecord{ToolCallID: "a", SessionID: "s", ToolName: "x"})
	_ = db.RecordConfirmationDecision("a", DecisionTimeout)
	_ = db.RecordConfirmationRequest(ConfirmationRecord{ToolCallID: "b", SessionID: "s", ToolName: "x"})

	n, err := db.PruneConfirmations(old.Add(time.Hour))
	if err != nil {
		t.Fatalf("PruneConfirmations failed: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}
	if _, err := db.GetConfirmation("b"); err != nil {
		t.Errorf("pending confirmation pruned: %v", err)
	}
}
