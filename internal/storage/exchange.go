package storage

import (
	"encoding/json"
	"fmt"
	"time"
)

// ExchangeRecord 委托子代理的一轮交互
type ExchangeRecord struct {
	SessionID      string    `json:"session_id"`
	DelegateKind   string    `json:"delegate_kind"`
	Seq            int       `json:"seq"`
	DelegateOutput string    `json:"delegate_output"`
	UserInput      string    `json:"user_input"`
	ResearchNotes  []string  `json:"research_notes"`
	CreatedAt      time.Time `json:"created_at"`
}

// AppendExchange 追加一轮交互，seq 自动递增
func (db *DB) AppendExchange(rec ExchangeRecord) error {
	notes := rec.ResearchNotes
	if notes == nil {
		notes = []string{}
	}
	notesJSON, err := json.Marshal(notes)
	if err != nil {
		return fmt.Errorf("marshal research notes: %w", err)
	}

	return db.WithTx(func(tx *Tx) error {
		var next int
		if err := tx.QueryRow(
			"SELECT COALESCE(MAX(seq), 0) + 1 FROM exchanges WHERE session_id = ? AND delegate_kind = ?",
			rec.SessionID, rec.DelegateKind,
		).Scan(&next); err != nil {
			return err
		}
		_, err := tx.Exec(`
			INSERT INTO exchanges (session_id, delegate_kind, seq, delegate_output, user_input, research_notes, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.SessionID, rec.DelegateKind, next, rec.DelegateOutput, rec.UserInput, string(notesJSON), db.now(),
		)
		return err
	})
}

// ListExchanges 返回会话下所有交互，按委托类型和 seq 排序
func (db *DB) ListExchanges(sessionID string) ([]ExchangeRecord, error) {
	rows, err := db.Query(`
		SELECT session_id, delegate_kind, seq, delegate_output, user_input, research_notes, created_at
		FROM exchanges WHERE session_id = ?
		ORDER BY delegate_kind, seq`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExchangeRecord
	for rows.Next() {
		var rec ExchangeRecord
		var notes string
		if err := rows.Scan(&rec.SessionID, &rec.DelegateKind, &rec.Seq, &rec.DelegateOutput, &rec.UserInput, &notes, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(notes), &rec.ResearchNotes); err != nil {
			return nil, fmt.Errorf("decode research notes: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
