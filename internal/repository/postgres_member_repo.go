package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/roomguard/internal/model"
)

// PostgresMemberRepo はPostgreSQLを使用した登録簿リポジトリ。
type PostgresMemberRepo struct {
	db *sql.DB
}

var _ MemberRepository = (*PostgresMemberRepo)(nil)

// NewPostgresMemberRepo はPostgresMemberRepoを生成する。
func NewPostgresMemberRepo(db *sql.DB) *PostgresMemberRepo {
	return &PostgresMemberRepo{db: db}
}

// FindByID は指定ユーザーの登録情報を取得する。見つからない場合はnilを返す。
func (r *PostgresMemberRepo) FindByID(ctx context.Context, userID int64) (*model.Member, error) {
	m := &model.Member{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, display_name, registered_by, registered_at FROM members WHERE user_id = $1`,
		userID,
	).Scan(&m.UserID, &m.DisplayName, &m.RegisteredBy, &m.RegisteredAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find member by ID: %w", err)
	}
	return m, nil
}

// Upsert は登録情報を作成または更新する。
func (r *PostgresMemberRepo) Upsert(ctx context.Context, m *model.Member) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO members (user_id, display_name, registered_by, registered_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE SET
		   display_name = EXCLUDED.display_name,
		   registered_by = EXCLUDED.registered_by,
		   registered_at = EXCLUDED.registered_at`,
		m.UserID, m.DisplayName, m.RegisteredBy, m.RegisteredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert member: %w", err)
	}
	return nil
}

// DeleteByID は指定ユーザーの登録情報を削除する。
func (r *PostgresMemberRepo) DeleteByID(ctx context.Context, userID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM members WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete member: %w", err)
	}
	return nil
}

// List は登録済みユーザーを登録日時の昇順で返す。
func (r *PostgresMemberRepo) List(ctx context.Context) ([]*model.Member, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, display_name, registered_by, registered_at
		 FROM members ORDER BY registered_at ASC, user_id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()
	return scanMembers(rows)
}

func scanMembers(rows *sql.Rows) ([]*model.Member, error) {
	var members []*model.Member
	for rows.Next() {
		m := &model.Member{}
		if err := rows.Scan(&m.UserID, &m.DisplayName, &m.RegisteredBy, &m.RegisteredAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}
	return members, nil
}
