// Package warning は未登録ユーザーごとの警告状態を保持する。
// 状態はプロセス内のみに保持し、再起動で失われる。
package warning

import (
	"sort"
	"sync"
	"time"
)

// State はユーザーごとの警告状態。
type State struct {
	LastWarningAt time.Time // 直近の警告試行時刻（配信されなかった試行も含む）
	KickArmed     bool      // 退室予約が有効かどうか
}

// Store は警告状態のスレッドセーフな保管庫。
// メッセージ処理と退室タイマーの両方から並行に呼ばれる。
type Store struct {
	mu     sync.Mutex
	states map[int64]*State
}

// NewStore は空のStoreを生成する。
func NewStore() *Store {
	return &Store{states: make(map[int64]*State)}
}

func (s *Store) stateLocked(userID int64) *State {
	st, ok := s.states[userID]
	if !ok {
		st = &State{}
		s.states[userID] = st
	}
	return st
}

// RecordWarning は警告の試行を記録し、警告を配信すべきかどうかを返す。
// 配信可否は更新前のLastWarningAtで判定する（未記録、またはwindow以上経過していれば配信）。
// LastWarningAtは配信可否に関わらず常にnowへ更新される。
// そのため間隔window未満でメッセージを送り続ける限り、2回目以降の警告は配信されない。
func (s *Store) RecordWarning(userID int64, now time.Time, window time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stateLocked(userID)
	deliver := st.LastWarningAt.IsZero() || now.Sub(st.LastWarningAt) >= window
	st.LastWarningAt = now
	return deliver
}

// TryArm は退室予約フラグを立てる。既に立っていた場合はfalseを返す。
// 確認と設定は1回のロック内で行うため、同一ユーザーに予約が重複しない。
func (s *Store) TryArm(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stateLocked(userID)
	if st.KickArmed {
		return false
	}
	st.KickArmed = true
	return true
}

// Disarm は退室予約フラグを下ろす。フラグが立っていた場合はtrueを返す。
// タイマー自体は取り消さない。
func (s *Store) Disarm(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[userID]
	if !ok || !st.KickArmed {
		return false
	}
	st.KickArmed = false
	return true
}

// Get はユーザーの警告状態のコピーを返す。未記録の場合はfalseを返す。
func (s *Store) Get(userID int64) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[userID]
	if !ok {
		return State{}, false
	}
	return *st, true
}

// Armed は退室予約が有効なユーザーIDを昇順で返す。
func (s *Store) Armed() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64
	for id, st := range s.states {
		if st.KickArmed {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Prune は退室予約がなく、最後の警告がbefore以前のユーザーの状態を削除し、削除件数を返す。
// 削除後の初回メッセージは未記録として扱われ警告が配信されるため、
// beforeが警告間隔より前であれば判定結果は変わらない。
func (s *Store) Prune(before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, st := range s.states {
		if st.KickArmed || st.LastWarningAt.After(before) {
			continue
		}
		delete(s.states, id)
		n++
	}
	return n
}

// Len は記録中のユーザー数を返す。
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}
