// Package member は登録簿の管理操作（登録・削除・照会）を提供する。
// 登録と削除は管理者のみ実行できる。
package member

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/roomguard/internal/access"
	"github.com/hitoshi/roomguard/internal/clock"
	"github.com/hitoshi/roomguard/internal/model"
	"github.com/hitoshi/roomguard/internal/repository"
	"github.com/hitoshi/roomguard/internal/warning"
)

// WarningStates は警告状態の参照・更新インターフェース。
type WarningStates interface {
	Get(userID int64) (warning.State, bool)
	Disarm(userID int64) bool
	Armed() []int64
}

// Result は管理操作の結果。失敗も例外ではなく結果として返す。
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func failure(err error) Result {
	msg := err.Error()
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		msg = apiErr.Message
	}
	return Result{Success: false, Message: msg, Err: err}
}

// AccessState はユーザーの現在のアクセス状態。
type AccessState struct {
	UserID     int64
	Role       access.Role
	Member     *model.Member // 未登録の場合はnil
	Warning    warning.State
	HasWarning bool
}

// Service は登録簿管理のサービス層。
type Service struct {
	repo     repository.MemberRepository
	warnings WarningStates
	admins   access.AdminSet
	clock    clock.Clock
	logger   *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	repo repository.MemberRepository,
	warnings WarningStates,
	admins access.AdminSet,
	clk clock.Clock,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:     repo,
		warnings: warnings,
		admins:   admins,
		clock:    clk,
		logger:   logger,
	}
}

// RegisterUser はユーザーを登録簿に登録する。
// 登録後、そのユーザーの退室予約フラグを下ろす。予約済みのタイマーは
// 発火時に登録簿を再確認して何もせずに終了する。
func (s *Service) RegisterUser(ctx context.Context, actingID, targetID int64, displayName string) Result {
	if !s.admins.Contains(actingID) {
		s.logger.Warn("管理者以外による登録操作を拒否しました",
			slog.Int64("acting_user_id", actingID),
			slog.Int64("target_user_id", targetID),
		)
		return failure(model.NewPermissionError(actingID))
	}
	if targetID <= 0 {
		return failure(model.NewValidationError("ユーザーIDは正の整数で指定してください"))
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return failure(model.NewValidationError("表示名を指定してください"))
	}

	m := &model.Member{
		UserID:       targetID,
		DisplayName:  displayName,
		RegisteredBy: actingID,
		RegisteredAt: s.clock.Now(),
	}
	if err := s.repo.Upsert(ctx, m); err != nil {
		s.logger.Error("ユーザーの登録に失敗しました",
			slog.Int64("target_user_id", targetID),
			slog.String("error", err.Error()),
		)
		return Result{Success: false, Message: "ユーザーの登録に失敗しました", Err: fmt.Errorf("upsert member: %w", err)}
	}

	disarmed := s.warnings.Disarm(targetID)

	s.logger.Info("ユーザーを登録しました",
		slog.Int64("acting_user_id", actingID),
		slog.Int64("target_user_id", targetID),
		slog.Bool("eviction_disarmed", disarmed),
	)
	return Result{Success: true, Message: fmt.Sprintf("%s (%d) を登録しました", displayName, targetID)}
}

// RemoveUser はユーザーを登録簿から削除する。
func (s *Service) RemoveUser(ctx context.Context, actingID, targetID int64) Result {
	if !s.admins.Contains(actingID) {
		s.logger.Warn("管理者以外による削除操作を拒否しました",
			slog.Int64("acting_user_id", actingID),
			slog.Int64("target_user_id", targetID),
		)
		return failure(model.NewPermissionError(actingID))
	}

	existing, err := s.repo.FindByID(ctx, targetID)
	if err != nil {
		return Result{Success: false, Message: "登録情報の取得に失敗しました", Err: fmt.Errorf("find member: %w", err)}
	}
	if existing == nil {
		return failure(model.NewNotFoundError(targetID))
	}

	if err := s.repo.DeleteByID(ctx, targetID); err != nil {
		s.logger.Error("ユーザーの削除に失敗しました",
			slog.Int64("target_user_id", targetID),
			slog.String("error", err.Error()),
		)
		return Result{Success: false, Message: "ユーザーの削除に失敗しました", Err: fmt.Errorf("delete member: %w", err)}
	}

	s.logger.Info("ユーザーを削除しました",
		slog.Int64("acting_user_id", actingID),
		slog.Int64("target_user_id", targetID),
	)
	return Result{Success: true, Message: fmt.Sprintf("%s (%d) を削除しました", existing.DisplayName, targetID)}
}

// AccessState はユーザーのロール・登録情報・警告状態をまとめて返す。
func (s *Service) AccessState(ctx context.Context, userID int64) (*AccessState, error) {
	record, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find member: %w", err)
	}
	state, ok := s.warnings.Get(userID)
	return &AccessState{
		UserID:     userID,
		Role:       access.RoleOf(userID, s.admins, record),
		Member:     record,
		Warning:    state,
		HasWarning: ok,
	}, nil
}

// List は登録済みユーザーの一覧を返す。
func (s *Service) List(ctx context.Context) ([]*model.Member, error) {
	members, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// PendingEvictions は退室予約中のユーザーIDを返す。
func (s *Service) PendingEvictions() []int64 {
	return s.warnings.Armed()
}

// IsAdmin はuserIDが管理者かどうかを返す。
func (s *Service) IsAdmin(userID int64) bool {
	return s.admins.Contains(userID)
}
