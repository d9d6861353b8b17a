package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/roomguard/internal/member"
	"github.com/hitoshi/roomguard/internal/middleware"
	"github.com/hitoshi/roomguard/internal/model"
)

// MemberServiceInterface はメンバーハンドラーが必要とするサービスインターフェース。
type MemberServiceInterface interface {
	RegisterUser(ctx context.Context, actingID, targetID int64, displayName string) member.Result
	RemoveUser(ctx context.Context, actingID, targetID int64) member.Result
	AccessState(ctx context.Context, userID int64) (*member.AccessState, error)
	List(ctx context.Context) ([]*model.Member, error)
}

// MemberHandler は登録簿管理のHTTPハンドラー。
type MemberHandler struct {
	service MemberServiceInterface
}

// NewMemberHandler はMemberHandlerを生成する。
func NewMemberHandler(service MemberServiceInterface) *MemberHandler {
	return &MemberHandler{service: service}
}

// registerRequest はPOST /api/membersのリクエストボディ。
type registerRequest struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// memberResponse は登録済みユーザーのレスポンス形式。
type memberResponse struct {
	UserID       int64     `json:"user_id"`
	DisplayName  string    `json:"display_name"`
	RegisteredBy int64     `json:"registered_by"`
	RegisteredAt time.Time `json:"registered_at"`
}

// accessStateResponse はGET /api/members/{id}/accessのレスポンス形式。
type accessStateResponse struct {
	UserID        int64           `json:"user_id"`
	Role          string          `json:"role"`
	Member        *memberResponse `json:"member"`
	LastWarningAt *time.Time      `json:"last_warning_at"`
	KickArmed     bool            `json:"kick_armed"`
}

func toMemberResponse(m *model.Member) *memberResponse {
	return &memberResponse{
		UserID:       m.UserID,
		DisplayName:  m.DisplayName,
		RegisteredBy: m.RegisteredBy,
		RegisteredAt: m.RegisteredAt,
	}
}

// RegisterMember はユーザーを登録簿に登録する。
// POST /api/members
func (h *MemberHandler) RegisterMember(w http.ResponseWriter, r *http.Request) {
	actingID, ok := actingUser(w, r)
	if !ok {
		return
	}

	var req registerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("リクエストボディが不正です"))
		return
	}

	res := h.service.RegisterUser(r.Context(), actingID, req.UserID, req.DisplayName)
	writeResult(w, res, http.StatusCreated)
}

// RemoveMember はユーザーを登録簿から削除する。
// DELETE /api/members/{id}
func (h *MemberHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	actingID, ok := actingUser(w, r)
	if !ok {
		return
	}
	targetID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	res := h.service.RemoveUser(r.Context(), actingID, targetID)
	writeResult(w, res, http.StatusOK)
}

// ListMembers は登録済みユーザーの一覧を返す。
// GET /api/members
func (h *MemberHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]*memberResponse, 0, len(members))
	for _, m := range members {
		resp = append(resp, toMemberResponse(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": resp})
}

// GetAccessState はユーザーのロールと警告状態を返す。
// GET /api/members/{id}/access
func (h *MemberHandler) GetAccessState(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	state, err := h.service.AccessState(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := accessStateResponse{
		UserID:    state.UserID,
		Role:      state.Role.String(),
		KickArmed: state.Warning.KickArmed,
	}
	if state.Member != nil {
		resp.Member = toMemberResponse(state.Member)
	}
	if state.HasWarning && !state.Warning.LastWarningAt.IsZero() {
		t := state.Warning.LastWarningAt
		resp.LastWarningAt = &t
	}
	writeJSON(w, http.StatusOK, resp)
}

func actingUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := middleware.ActingUserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError(middleware.ActingUserHeader+"ヘッダーに操作者のユーザーIDを指定してください"))
		return 0, false
	}
	return id, true
}

func pathUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("ユーザーIDは正の整数で指定してください"))
		return 0, false
	}
	return id, true
}

// writeResult は管理操作の結果を{success, message}形式で書き込む。
// 失敗時のステータスはエラーの種類から決める。
func writeResult(w http.ResponseWriter, res member.Result, successStatus int) {
	status := successStatus
	if !res.Success {
		status = middleware.StatusForError(res.Err)
		if status == http.StatusInternalServerError && res.Err != nil {
			slog.Error("member operation failed", slog.String("error", res.Err.Error()))
		}
	}
	writeJSON(w, status, res)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	status := middleware.StatusForError(err)
	if status != http.StatusInternalServerError {
		writeAPIErrorResponse(w, status, asAPIError(err))
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

func asAPIError(err error) *model.APIError {
	var apiErr *model.APIError
	errors.As(err, &apiErr)
	return apiErr
}

func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
