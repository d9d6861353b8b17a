// Package clock は時刻取得とタイマーを抽象化する。
// 本番ではReal()を、テストではFake()を注入し、30分の猶予期間などを
// 実時間を待たずに検証できるようにする。
package clock

import "time"

// Clock は時刻とタイマーの取得元。
type Clock interface {
	// Now は現在時刻を返す。
	Now() time.Time

	// After はd経過後に現在時刻を受信するチャネルを返す。
	After(d time.Duration) <-chan time.Time

	// AfterFunc はd経過後にfを呼び出す。
	// Realでは新しいgoroutineで、FakeではAdvance内で同期的に呼ばれる。
	AfterFunc(d time.Duration, f func()) *Timer

	// Sleep は少なくともdの間ブロックする。
	Sleep(d time.Duration)
}

// Timer はAfterFuncで登録した呼び出しを表す。
type Timer struct {
	stopFunc func() bool
}

// Stop は未発火の呼び出しを取り消す。取り消せた場合はtrueを返す。
func (t *Timer) Stop() bool { return t.stopFunc() }

// Real は標準ライブラリのtimeパッケージに委譲するClockを返す。
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	t := time.AfterFunc(d, f)
	return &Timer{stopFunc: t.Stop}
}

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }
