package enforce

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/roomguard/internal/access"
	"github.com/hitoshi/roomguard/internal/model"
	"github.com/hitoshi/roomguard/internal/notice"
)

// 退室処理の結果。メトリクスのラベルに使う。
const (
	EvictionEvicted   = "evicted"
	EvictionCancelled = "cancelled"
	EvictionFailed    = "failed"
)

// PendingEviction は予約済みの退室処理。
// 個別に取り消す手段は持たず、実行時に登録簿を再確認して
// 登録済みなら何もせずに終了する。
type PendingEviction struct {
	ID          string
	UserID      int64
	RoomID      int64
	DisplayName string
	ArmedAt     time.Time
	FireAt      time.Time
}

func (e *Engine) armEviction(msg *model.InboundMessage, now time.Time) {
	p := PendingEviction{
		ID:          uuid.NewString(),
		UserID:      msg.SenderID,
		RoomID:      e.cfg.TargetRoomID,
		DisplayName: msg.SenderDisplayName,
		ArmedAt:     now,
		FireAt:      now.Add(GracePeriod),
	}
	e.scheduler.Arm(GracePeriod, func(ctx context.Context) {
		e.fireEviction(ctx, p)
	})
	e.metrics.RecordEvictionArmed()
	e.logger.Info("退室処理を予約しました",
		slog.String("eviction_id", p.ID),
		slog.Int64("user_id", p.UserID),
		slog.Int64("room_id", p.RoomID),
		slog.Time("fire_at", p.FireAt),
	)
}

// fireEviction は猶予期間の経過時に呼ばれる。
// 登録簿を再確認し、まだ未登録であれば最終通知を送り、
// FinalNoticeDelay後に退室させる。
func (e *Engine) fireEviction(ctx context.Context, p PendingEviction) {
	role, err := access.Classify(ctx, p.UserID, e.cfg.Admins, e.dir)
	if err != nil {
		e.store.Disarm(p.UserID)
		e.metrics.RecordEviction(EvictionFailed)
		e.logger.Error("登録簿の再確認に失敗したため退室処理を中止しました",
			slog.String("eviction_id", p.ID),
			slog.Int64("user_id", p.UserID),
			slog.String("error", err.Error()),
		)
		return
	}
	if role != access.RoleUnregistered {
		e.store.Disarm(p.UserID)
		e.metrics.RecordEviction(EvictionCancelled)
		e.logger.Info("猶予期間内に登録されたため退室処理を取り消しました",
			slog.String("eviction_id", p.ID),
			slog.Int64("user_id", p.UserID),
			slog.String("role", role.String()),
		)
		return
	}

	e.sendNotice(ctx, p.RoomID, e.cfg.SubChannels.General, notice.KindFinalWarning, notice.Data{
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		GracePeriod: GracePeriod,
	})

	e.scheduler.Arm(FinalNoticeDelay, func(ctx context.Context) {
		e.completeEviction(ctx, p)
	})
}

// completeEviction は退室を実行し、管理者へ報告する。
// 各ゲートウェイ呼び出しの失敗は記録のみ行い、再試行しない。
func (e *Engine) completeEviction(ctx context.Context, p PendingEviction) {
	defer e.store.Disarm(p.UserID)

	outcome := EvictionEvicted
	if err := e.gateway.Evict(ctx, p.RoomID, p.UserID, Suspension); err != nil {
		outcome = EvictionFailed
		e.deliveryFailed("banChatMember", p.UserID, err)
	}
	e.metrics.RecordEviction(outcome)

	report, err := e.notices.Render(notice.KindEvictionReport, notice.Data{
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		Time:        e.clock.Now(),
	})
	if err != nil {
		e.logger.Error("退室報告の生成に失敗しました", slog.String("error", err.Error()))
		return
	}
	for _, adminID := range e.cfg.Admins.IDs() {
		// 管理者との個別チャットのIDはユーザーIDと同じ
		if err := e.gateway.Send(ctx, adminID, 0, report, true); err != nil {
			e.deliveryFailed("sendMessage", p.UserID, err)
		}
	}

	e.logger.Info("未登録ユーザーの退室処理が完了しました",
		slog.String("eviction_id", p.ID),
		slog.Int64("user_id", p.UserID),
		slog.Int64("room_id", p.RoomID),
		slog.String("outcome", outcome),
		slog.Duration("suspension", Suspension),
	)
}
