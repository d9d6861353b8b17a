// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/roomguard/internal/model"
)

// MemberRepository は登録簿の永続化インターフェース。
type MemberRepository interface {
	// FindByID は指定ユーザーの登録情報を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID int64) (*model.Member, error)

	// Upsert は登録情報を作成する。既に存在する場合は表示名と登録者・登録日時を更新する。
	Upsert(ctx context.Context, m *model.Member) error

	// DeleteByID は指定ユーザーの登録情報を削除する。存在しない場合は何もしない。
	DeleteByID(ctx context.Context, userID int64) error

	// List は登録済みユーザーを登録日時の昇順で返す。
	List(ctx context.Context) ([]*model.Member, error)
}
