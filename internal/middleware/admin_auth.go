// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/hitoshi/roomguard/internal/model"
)

// ActingUserHeader は管理APIの操作者を示すヘッダー。
// 権限判定は操作者のユーザーIDで行い、トークンは接続元の認証にのみ使う。
const ActingUserHeader = "X-Acting-User-ID"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// actingUserIDContextKey はリクエストコンテキストに操作者IDを格納するためのキー。
var actingUserIDContextKey = contextKey("acting_user_id")

// NewAdminAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証し、
// X-Acting-User-IDの値をリクエストコンテキストに注入するミドルウェアを返す。
// トークン不一致は401、操作者IDの欠落・不正は400を返す。
func NewAdminAuthMiddleware(token string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Bearerトークンを検証
			presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="roomguard"`)
				WriteErrorResponse(w, http.StatusUnauthorized, &model.APIError{
					Code:     "UNAUTHORIZED",
					Message:  "認証に失敗しました。",
					Category: "auth",
					Action:   "管理APIトークンを確認してください。",
				})
				return
			}

			// 2. 操作者IDを取得
			actingID, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(ActingUserHeader)), 10, 64)
			if err != nil || actingID <= 0 {
				WriteErrorResponse(w, http.StatusBadRequest,
					model.NewValidationError(ActingUserHeader+"ヘッダーに操作者のユーザーIDを指定してください"))
				return
			}

			// 3. 操作者IDをコンテキストに注入
			next.ServeHTTP(w, r.WithContext(ContextWithActingUserID(r.Context(), actingID)))
		})
	}
}

// ActingUserIDFromContext はリクエストコンテキストから操作者IDを取得する。
// 管理API認証ミドルウェアを通過したリクエストでのみ有効。
func ActingUserIDFromContext(ctx context.Context) (int64, error) {
	id, ok := ctx.Value(actingUserIDContextKey).(int64)
	if !ok || id == 0 {
		return 0, fmt.Errorf("acting user ID not found in context")
	}
	return id, nil
}

// ContextWithActingUserID はコンテキストに操作者IDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithActingUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, actingUserIDContextKey, userID)
}
