package database

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// sqliteSchema は単一ノード構成用のスキーマ。
// PostgreSQLのマイグレーション（migrations/）と同じテーブル構造を保つこと。
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS members (
    user_id       INTEGER PRIMARY KEY,
    display_name  TEXT NOT NULL,
    registered_by INTEGER NOT NULL,
    registered_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_members_registered_at ON members (registered_at);
`

func openSQLite(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// インメモリDBは接続ごとに別のDBになるため、接続を1本に固定する
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sqlite schema: %w", err)
	}

	return db, nil
}
