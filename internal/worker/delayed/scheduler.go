// Package delayed は「N分後に1回だけ実行する」遅延タスクを提供する。
// タスクはメモリ上にのみ保持し、再起動で失われる。
package delayed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/roomguard/internal/clock"
)

// Action は遅延実行される処理。ctxはStopでキャンセルされる。
type Action func(ctx context.Context)

// Scheduler は一度きりの遅延タスクを管理する。
// 登録したタスクは個別に取り消せない。取り消したい場合は
// 実行時に状態を再確認して何もしないようにする。
type Scheduler struct {
	clock  clock.Clock
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	nextID  uint64
	timers  map[uint64]*clock.Timer
	stopped bool
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(clk clock.Clock, logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		clock:  clk,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		timers: make(map[uint64]*clock.Timer),
	}
}

// Arm はdelay経過後にactionを1回実行するよう登録する。
// actionは専用のgoroutine（FakeClockではAdvance内）で実行され、
// panicは回収してログに記録する。Stop後の登録は無視する。
func (s *Scheduler) Arm(delay time.Duration, action Action) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.logger.Warn("停止済みのスケジューラへの登録を無視しました",
			slog.Duration("delay", delay),
		)
		return
	}
	s.nextID++
	id := s.nextID
	s.timers[id] = nil
	s.mu.Unlock()

	timer := s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()
		s.run(action)
	})

	s.mu.Lock()
	// 即時実行された場合はエントリが既に削除されている
	if _, ok := s.timers[id]; ok {
		s.timers[id] = timer
	}
	s.mu.Unlock()
}

func (s *Scheduler) run(action Action) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("遅延タスクでpanicが発生しました",
				slog.Any("panic", rec),
			)
		}
	}()
	action(s.ctx)
}

// Pending は未実行のタスク数を返す。
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop は未実行のタスクをすべて破棄し、実行中のタスクのctxをキャンセルする。
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	timers := s.timers
	s.timers = make(map[uint64]*clock.Timer)
	s.mu.Unlock()

	for _, t := range timers {
		if t != nil {
			t.Stop()
		}
	}
	s.cancel()

	if len(timers) > 0 {
		s.logger.Info("未実行の遅延タスクを破棄しました",
			slog.Int("count", len(timers)),
		)
	}
}
