package repository

import (
	"database/sql"

	"github.com/hitoshi/roomguard/internal/database"
)

// NewMemberRepository はDATABASE_URLの種類に応じた登録簿リポジトリを返す。
func NewMemberRepository(db *sql.DB, databaseURL string) MemberRepository {
	if database.IsSQLite(databaseURL) {
		return NewSQLiteMemberRepo(db)
	}
	return NewPostgresMemberRepo(db)
}
