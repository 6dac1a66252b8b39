package storage

import (
	"database/sql"
	"errors"
	"time"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunError     = "error"
	RunCancelled = "cancelled"
)

// RunRecord 一次 run 的生命周期记录
type RunRecord struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Status    string     `json:"status"`
	Error     string     `json:"error,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// StartRun 记录 run 开始
func (db *DB) StartRun(id, sessionID string) error {
	_, err := db.Exec(
		"INSERT INTO runs (id, session_id, status, started_at) VALUES (?, ?, ?, ?)",
		id, sessionID, RunRunning, db.now(),
	)
	return err
}

// FinishRun 记录 run 结束状态。已结束的 run 不会被覆盖
func (db *DB) FinishRun(id, status, errMsg string) error {
	result, err := db.Exec(
		"UPDATE runs SET status = ?, error = ?, ended_at = ? WHERE id = ? AND status = ?",
		status, errMsg, db.now(), id, RunRunning,
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

// GetRun 按 ID 获取 run 记录
func (db *DB) GetRun(id string) (*RunRecord, error) {
	var r RunRecord
	var ended sql.NullTime
	err := db.QueryRow(
		"SELECT id, session_id, status, error, started_at, ended_at FROM runs WHERE id = ?", id,
	).Scan(&r.ID, &r.SessionID, &r.Status, &r.Error, &r.StartedAt, &ended)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if ended.Valid {
		t := ended.Time
		r.EndedAt = &t
	}
	return &r, nil
}

// PruneRuns 删除在 before 之前结束的 run
func (db *DB) PruneRuns(before time.Time) (int64, error) {
	result, err := db.Exec(
		"DELETE FROM runs WHERE status != ? AND ended_at IS NOT NULL AND ended_at < ?",
		RunRunning, before.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
