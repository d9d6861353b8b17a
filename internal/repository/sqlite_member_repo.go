package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/roomguard/internal/model"
)

// SQLiteMemberRepo はSQLiteを使用した登録簿リポジトリ。単一ノード構成とテストで使う。
type SQLiteMemberRepo struct {
	db *sql.DB
}

var _ MemberRepository = (*SQLiteMemberRepo)(nil)

// NewSQLiteMemberRepo はSQLiteMemberRepoを生成する。
func NewSQLiteMemberRepo(db *sql.DB) *SQLiteMemberRepo {
	return &SQLiteMemberRepo{db: db}
}

// FindByID は指定ユーザーの登録情報を取得する。見つからない場合はnilを返す。
func (r *SQLiteMemberRepo) FindByID(ctx context.Context, userID int64) (*model.Member, error) {
	m := &model.Member{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, display_name, registered_by, registered_at FROM members WHERE user_id = ?`,
		userID,
	).Scan(&m.UserID, &m.DisplayName, &m.RegisteredBy, &m.RegisteredAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: finding member %d: %w", userID, err)
	}
	return m, nil
}

// Upsert は登録情報を作成または更新する。日時はUTCで保存する。
func (r *SQLiteMemberRepo) Upsert(ctx context.Context, m *model.Member) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO members (user_id, display_name, registered_by, registered_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		   display_name = excluded.display_name,
		   registered_by = excluded.registered_by,
		   registered_at = excluded.registered_at`,
		m.UserID, m.DisplayName, m.RegisteredBy, m.RegisteredAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting member %d: %w", m.UserID, err)
	}
	return nil
}

// DeleteByID は指定ユーザーの登録情報を削除する。
func (r *SQLiteMemberRepo) DeleteByID(ctx context.Context, userID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM members WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("sqlite: deleting member %d: %w", userID, err)
	}
	return nil
}

// List は登録済みユーザーを登録日時の昇順で返す。
func (r *SQLiteMemberRepo) List(ctx context.Context) ([]*model.Member, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, display_name, registered_by, registered_at
		 FROM members ORDER BY registered_at ASC, user_id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing members: %w", err)
	}
	defer rows.Close()
	return scanMembers(rows)
}
