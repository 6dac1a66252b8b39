package storage

import (
	"database/sql"
	"errors"
	"time"
)

// SessionRecord 会话持久化记录
type SessionRecord struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	WorkspaceID string    `json:"workspace_id"`
	ResumeToken string    `json:"resume_token"`
	ActiveRunID string    `json:"active_run_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UpsertSession 创建会话，已存在时更新用户与工作区标识
func (db *DB) UpsertSession(id, userID, workspaceID string) error {
	now := db.now()
	_, err := db.Exec(`
		INSERT INTO sessions (id, user_id, workspace_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			workspace_id = excluded.workspace_id,
			updated_at = excluded.updated_at`,
		id, userID, workspaceID, now, now,
	)
	return err
}

// GetSession 按 ID 获取会话
func (db *DB) GetSession(id string) (*SessionRecord, error) {
	var s SessionRecord
	err := db.QueryRow(`
		SELECT id, user_id, workspace_id, resume_token, active_run_id, created_at, updated_at
		FROM sessions WHERE id = ?`, id,
	).Scan(&s.ID, &s.UserID, &s.WorkspaceID, &s.ResumeToken, &s.ActiveRunID, &s.CreatedAt, &s.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SetSessionResumeToken 更新会话的恢复令牌
func (db *DB) SetSessionResumeToken(id, token string) error {
	return db.updateSession(id, "resume_token", token)
}

// SetSessionActiveRun 更新会话当前运行的 run ID，空字符串表示无运行
func (db *DB) SetSessionActiveRun(id, runID string) error {
	return db.updateSession(id, "active_run_id", runID)
}

func (db *DB) updateSession(id, column, value string) error {
	// column 只来自本包的固定常量
	result, err := db.Exec(
		"UPDATE sessions SET "+column+" = ?, updated_at = ? WHERE id = ?",
		value, db.now(), id,
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

// DeleteSession 删除会话及其委托历史和运行记录
func (db *DB) DeleteSession(id string) error {
	return db.WithTx(func(tx *Tx) error {
		for _, q := range []string{
			"DELETE FROM exchanges WHERE session_id = ?",
			"DELETE FROM runs WHERE session_id = ?",
			"DELETE FROM confirmations WHERE session_id = ?",
		} {
			if _, err := tx.Exec(q, id); err != nil {
				return err
			}
		}
		result, err := tx.Exec("DELETE FROM sessions WHERE id = ?", id)
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
	})
}
