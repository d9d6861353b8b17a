// Package poll はゲートウェイからアップデートを受信し、判定エンジンへ渡すワーカーを提供する。
package poll

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/roomguard/internal/clock"
	"github.com/hitoshi/roomguard/internal/enforce"
	"github.com/hitoshi/roomguard/internal/metrics"
	"github.com/hitoshi/roomguard/internal/model"
	"github.com/hitoshi/roomguard/internal/telegram"
)

// UpdateSource はアップデートの取得インターフェース。
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
}

// MessageHandler は受信メッセージの処理インターフェース。
type MessageHandler interface {
	Handle(ctx context.Context, msg *model.InboundMessage) enforce.Decision
}

// Poller はロングポーリングでアップデートを受信する。
// メッセージは受信順に1件ずつハンドラーへ渡す。
type Poller struct {
	source  UpdateSource
	handler MessageHandler
	clock   clock.Clock
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	timeout time.Duration

	offset            int64
	consecutiveErrors int
}

// NewPoller はPollerの新しいインスタンスを生成する。
// timeoutが0以下の場合はデフォルト値30秒を使用する。
func NewPoller(
	source UpdateSource,
	handler MessageHandler,
	clk clock.Clock,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	timeout time.Duration,
) *Poller {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Poller{
		source:  source,
		handler: handler,
		clock:   clk,
		metrics: collector,
		logger:  logger,
		timeout: timeout,
	}
}

// Offset は次に要求するアップデートIDを返す。
func (p *Poller) Offset() int64 { return p.offset }

// Start はコンテキストがキャンセルされるまでポーリングを継続する。
// 停止が必要なエラーを受け取った場合はそのエラーを返す。
func (p *Poller) Start(ctx context.Context) error {
	p.logger.Info("ポーリングを開始しました",
		slog.Duration("timeout", p.timeout),
	)

	for {
		err := p.RunOnce(ctx)
		switch ClassifyError(ctx, err) {
		case PollResultOK:
			p.consecutiveErrors = 0
		case PollResultCancelled:
			p.logger.Info("ポーリングを停止しました")
			return nil
		case PollResultStop:
			p.logger.Error("ゲートウェイが認証を拒否したためポーリングを停止します",
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("ポーリングを停止しました: %w", err)
		case PollResultBackoff:
			delay := CalculateBackoff(p.consecutiveErrors)
			p.consecutiveErrors++
			p.logger.Warn("アップデートの取得に失敗しました。待機して再試行します",
				slog.String("error", err.Error()),
				slog.Int("consecutive_errors", p.consecutiveErrors),
				slog.Duration("backoff", delay),
			)
			select {
			case <-ctx.Done():
				p.logger.Info("ポーリングを停止しました")
				return nil
			case <-p.clock.After(delay):
			}
		}
	}
}

// RunOnce はアップデートを1回取得し、含まれるメッセージを順に処理する。
// オフセットは処理したアップデートごとに進める。
func (p *Poller) RunOnce(ctx context.Context) error {
	updates, err := p.source.GetUpdates(ctx, p.offset, p.timeout)
	if err != nil {
		return err
	}
	if len(updates) == 0 {
		return nil
	}
	p.metrics.RecordUpdatesReceived(len(updates))

	for i := range updates {
		u := &updates[i]
		if u.UpdateID >= p.offset {
			p.offset = u.UpdateID + 1
		}
		msg := u.Inbound()
		if msg == nil {
			continue
		}
		d := p.handler.Handle(ctx, msg)
		p.logger.Debug("メッセージを判定しました",
			slog.Int64("update_id", u.UpdateID),
			slog.Int64("user_id", msg.SenderID),
			slog.String("role", d.Role.String()),
			slog.String("outcome", d.Outcome.String()),
		)
	}
	return nil
}
