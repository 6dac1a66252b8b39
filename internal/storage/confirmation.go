package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// Confirmation decisions.
const (
	DecisionPending   = "pending"
	DecisionApproved  = "approved"
	DecisionDenied    = "denied"
	DecisionTimeout   = "timeout"
	DecisionCancelled = "cancelled"
)

// ConfirmationRecord 工具确认审计记录
type ConfirmationRecord struct {
	ToolCallID string          `json:"tool_call_id"`
	SessionID  string          `json:"session_id"`
	RunID      string          `json:"run_id,omitempty"`
	ToolName   string          `json:"tool_name"`
	ToolArgs   json.RawMessage `json:"tool_args"`
	Decision   string          `json:"decision"`
	CreatedAt  time.Time       `json:"created_at"`
	DecidedAt  *time.Time      `json:"decided_at,omitempty"`
}

// RecordConfirmationRequest 记录一次确认请求
func (db *DB) RecordConfirmationRequest(rec ConfirmationRecord) error {
	args := rec.ToolArgs
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	_, err := db.Exec(`
		INSERT OR REPLACE INTO confirmations (tool_call_id, session_id, run_id, tool_name, tool_args, decision, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ToolCallID, rec.SessionID, rec.RunID, rec.ToolName, string(args), DecisionPending, db.now(),
	)
	return err
}

// RecordConfirmationDecision 记录确认结果
func (db *DB) RecordConfirmationDecision(toolCallID, decision string) error {
	result, err := db.Exec(
		"UPDATE confirmations SET decision = ?, decided_at = ? WHERE tool_call_id = ?",
		decision, db.now(), toolCallID,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetConfirmation 按 tool_call_id 获取确认记录
func (db *DB) GetConfirmation(toolCallID string) (*ConfirmationRecord, error) {
	var rec ConfirmationRecord
	var args string
	var decided sql.NullTime
	err := db.QueryRow(`
		SELECT tool_call_id, session_id, run_id, tool_name, tool_args, decision, created_at, decided_at
		FROM confirmations WHERE tool_call_id = ?`, toolCallID,
	).Scan(&rec.ToolCallID, &rec.SessionID, &rec.RunID, &rec.ToolName, &args, &rec.Decision, &rec.CreatedAt, &decided)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.ToolArgs = json.RawMessage(args)
	if decided.Valid {
		t := decided.Time
		rec.DecidedAt = &t
	}
	return &rec, nil
}

// PruneConfirmations 删除在 before 之前已决定的确认记录
func (db *DB) PruneConfirmations(before time.Time) (int64, error) {
	result, err := db.Exec(
		"DELETE FROM confirmations WHERE decision != ? AND decided_at IS NOT NULL AND decided_at < ?",
		DecisionPending, before.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
