package storage

import (
	"database/sql"
	"errors"
	"time"
)

// KVSet 设置键值，ttl 为 0 表示永不过期
func (db *DB) KVSet(key, value string, ttl time.Duration) error {
	var expiresAt *time.Time
	if ttl > 0 {
		t := db.now().Add(ttl)
		expiresAt = &t
	}

	_, err := db.Exec(
		"INSERT OR REPLACE INTO kv_store (key, value, expires_at) VALUES (?, ?, ?)",
		key, value, expiresAt,
	)
	return err
}

// KVGet 获取键值
func (db *DB) KVGet(key string) (string, error) {
	var value string
	var expiresAt sql.NullTime

	err := db.QueryRow(
		"SELECT value, expires_at FROM kv_store WHERE key = ?",
		key,
	).Scan(&value, &expiresAt)

	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}

	// 检查是否过期
	if expiresAt.Valid && expiresAt.Time.Before(db.now()) {
		_, _ = db.Exec("DELETE FROM kv_store WHERE key = ?", key)
		return "", ErrNotFound
	}

	return value, nil
}

// KVDelete 删除键值
func (db *DB) KVDelete(key string) error {
	result, err := db.Exec("DELETE FROM kv_store WHERE key = ?", key)
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

// KVCleanExpired 清理过期的键值对
func (db *DB) KVCleanExpired() (int64, error) {
	result, err := db.Exec(
		"DELETE FROM kv_store WHERE expires_at IS NOT NULL AND expires_at < ?",
		db.now(),
	)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
