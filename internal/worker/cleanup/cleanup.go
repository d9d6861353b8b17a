// Package cleanup は警告状態の自動削除ジョブを提供する。
// 退室予約のない古い警告状態を定期的に削除し、
// 一度だけ発言した未登録ユーザーの状態がメモリに残り続けないようにする。
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/roomguard/internal/clock"
)

// Pruner は古い警告状態を削除するインターフェース。
// *warning.Store が満たす。
type Pruner interface {
	Prune(before time.Time) int
	Len() int
}

// CleanupJob は保持期間を超過した警告状態の削除ジョブ。
type CleanupJob struct {
	store  Pruner
	clock  clock.Clock
	logger *slog.Logger

	Retention time.Duration // 警告状態の保持期間（デフォルト: 24時間）
	Interval  time.Duration // 実行間隔（デフォルト: 1時間）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(store Pruner, clk clock.Clock, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		store:     store,
		clock:     clk,
		logger:    logger,
		Retention: 24 * time.Hour,
		Interval:  time.Hour,
	}
}

// Run は最後の警告からRetention以上経過した警告状態を削除し、削除件数を返す。
// 退室予約中のユーザーは削除しない。
func (j *CleanupJob) Run() int {
	start := j.clock.Now()

	deleted := j.store.Prune(start.Add(-j.Retention))

	j.logger.Info("警告状態のクリーンアップが完了しました",
		slog.Int("deleted_count", deleted),
		slog.Int("remaining", j.store.Len()),
		slog.Duration("retention", j.Retention),
	)
	return deleted
}

// Start はctxがキャンセルされるまでInterval毎にRunを実行する。
func (j *CleanupJob) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-j.clock.After(j.Interval):
			j.Run()
		}
	}
}
