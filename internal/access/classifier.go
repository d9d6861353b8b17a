// Package access は送信者を管理者・登録済み・未登録の3つのロールに分類する。
package access

import (
	"context"
	"fmt"

	"github.com/hitoshi/roomguard/internal/model"
)

// Role は送信者のアクセスロール。永続化せず、メッセージごとに導出する。
type Role int

const (
	RoleUnregistered Role = iota
	RoleRegistered
	RoleAdmin
)

// String はログやメトリクスのラベルに使う名前を返す。
func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleRegistered:
		return "registered"
	default:
		return "unregistered"
	}
}

// Directory はユーザー登録簿の参照インターフェース。
// 未登録の場合は (nil, nil) を返す。
type Directory interface {
	FindByID(ctx context.Context, userID int64) (*model.Member, error)
}

// AdminSet は管理者IDの集合。
type AdminSet map[int64]struct{}

// NewAdminSet は指定IDから管理者集合を生成する。0は無視する。
func NewAdminSet(ids ...int64) AdminSet {
	s := make(AdminSet, len(ids))
	for _, id := range ids {
		if id != 0 {
			s[id] = struct{}{}
		}
	}
	return s
}

// Contains はidが管理者かどうかを返す。
func (s AdminSet) Contains(id int64) bool {
	_, ok := s[id]
	return ok
}

// IDs は管理者IDの一覧を返す。順序は不定。
func (s AdminSet) IDs() []int64 {
	ids := make([]int64, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	return ids
}

// RoleOf は登録簿の参照結果からロールを決定する。
// 管理者判定が登録簿より優先される。
func RoleOf(senderID int64, admins AdminSet, record *model.Member) Role {
	if admins.Contains(senderID) {
		return RoleAdmin
	}
	if record != nil {
		return RoleRegistered
	}
	return RoleUnregistered
}

// Classify は送信者のロールを判定する。
// 結果はキャッシュせず、呼び出しのたびに登録簿を参照する。
// 管理者の場合は登録簿を参照しない。
func Classify(ctx context.Context, senderID int64, admins AdminSet, dir Directory) (Role, error) {
	if admins.Contains(senderID) {
		return RoleAdmin, nil
	}
	record, err := dir.FindByID(ctx, senderID)
	if err != nil {
		return RoleUnregistered, fmt.Errorf("lookup member %d: %w", senderID, err)
	}
	return RoleOf(senderID, admins, record), nil
}
