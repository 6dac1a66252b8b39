// Package storage persists sessions, delegate exchanges, run records,
// confirmation decisions and backend transcripts in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mindrian/internal/config"
	"mindrian/internal/storage/migrations"

	_ "modernc.org/sqlite"
)

// ErrNotFound 表示记录不存在
var ErrNotFound = errors.New("not found")

// DB 封装数据库连接
type DB struct {
	*sql.DB
	path string
	now  func() time.Time
}

// Open 打开数据库连接并执行迁移
func Open(path string) (*DB, error) {
	expandedPath, err := config.ExpandPath(path)
	if err != nil {
		return nil, fmt.Errorf("expand path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(expandedPath), 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	db, err := sql.Open("sqlite", expandedPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if err := migrations.Run(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &DB{DB: db, path: expandedPath, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Path 返回数据库文件路径
func (db *DB) Path() string {
	return db.path
}

// Tx 封装事务
type Tx struct {
	*sql.Tx
}

// WithTx 在事务中执行函数，自动处理提交或回滚
func (db *DB) WithTx(fn func(*Tx) error) error {
	tx, err := db.DB.Begin()
	if err != nil {
		return err
	}

	if err := fn(&Tx{Tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}
