package poll

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hitoshi/roomguard/internal/model"
)

// PollResult はgetUpdatesの失敗の分類。
type PollResult int

const (
	// PollResultOK は取得成功。
	PollResultOK PollResult = iota
	// PollResultStop はポーリングの停止が必要な失敗（トークン不正など）。
	PollResultStop
	// PollResultBackoff は待機してから再試行する失敗（429/5xx/通信エラー）。
	PollResultBackoff
	// PollResultCancelled はコンテキストのキャンセル。
	PollResultCancelled
)

const (
	// initialBackoff は指数バックオフの初回遅延（1秒）。
	initialBackoff = time.Second
	// maxBackoff は指数バックオフの最大遅延（1分）。
	maxBackoff = time.Minute
)

// ClassifyError はgetUpdatesのエラーを分類する。
// 401/404はトークンが無効であることを示すため再試行しない。
func ClassifyError(ctx context.Context, err error) PollResult {
	if err == nil {
		return PollResultOK
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return PollResultCancelled
	}
	var de *model.DeliveryError
	if errors.As(err, &de) {
		switch de.StatusCode {
		case http.StatusUnauthorized, http.StatusNotFound:
			return PollResultStop
		}
	}
	return PollResultBackoff
}

// CalculateBackoff は連続エラー回数に基づいて指数バックオフ遅延を計算する。
// 初回1秒、2倍ずつ増加、最大1分。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}
