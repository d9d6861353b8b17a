package model

import "time"

// Member は登録簿に登録されたユーザーを表す。
// レコードが存在すること自体が「登録済み」を意味する。
type Member struct {
	UserID       int64
	DisplayName  string
	RegisteredBy int64
	RegisteredAt time.Time
}
