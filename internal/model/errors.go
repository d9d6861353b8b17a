// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は管理操作の統一エラーフォーマットを表す。
// チャットへの返信とHTTPレスポンスの両方で同じ内容を使う。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: permission, directory, validation
	Action   string // 利用者向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodePermissionDenied = "PERMISSION_DENIED"
	ErrCodeMemberNotFound   = "MEMBER_NOT_FOUND"
	ErrCodeInvalidArgument  = "INVALID_ARGUMENT"
)

// NewPermissionError は管理者以外が管理操作を実行しようとした場合のエラーを生成する。
func NewPermissionError(actingID int64) *APIError {
	return &APIError{
		Code:     ErrCodePermissionDenied,
		Message:  fmt.Sprintf("この操作は管理者のみ実行できます (user_id=%d)", actingID),
		Category: "permission",
		Action:   "管理者に依頼してください。",
	}
}

// NewNotFoundError は登録簿に対象ユーザーが存在しない場合のエラーを生成する。
func NewNotFoundError(userID int64) *APIError {
	return &APIError{
		Code:     ErrCodeMemberNotFound,
		Message:  fmt.Sprintf("ユーザーは登録されていません (user_id=%d)", userID),
		Category: "directory",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewValidationError は引数が不正な場合のエラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidArgument,
		Message:  fmt.Sprintf("引数が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// IsPermissionError はerrがPermissionErrorかどうかを返す。
func IsPermissionError(err error) bool { return hasCode(err, ErrCodePermissionDenied) }

// IsNotFoundError はerrがNotFoundErrorかどうかを返す。
func IsNotFoundError(err error) bool { return hasCode(err, ErrCodeMemberNotFound) }

func hasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// DeliveryError はメッセージングゲートウェイ呼び出しの失敗を表す。
// 送信・削除・退室処理のいずれで発生しても、呼び出し側で記録して握りつぶす。
type DeliveryError struct {
	Op          string // sendMessage, deleteMessage, banChatMember, getUpdates
	StatusCode  int    // HTTPステータス。通信エラーの場合は0
	Description string // ゲートウェイが返した説明
	Err         error  // 下位のエラー（通信エラーなど）
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s failed (%d): %s", e.Op, e.StatusCode, e.Description)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
