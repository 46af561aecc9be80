// Package auth はセッションのライフサイクル管理を提供する。
// トークンの取得・永続化・プロセス再起動後の復元と、
// 認証付きリクエストへのクレデンシャル供給を担う。
package auth

import (
	"sync"

	"github.com/hitoshi/recipeman/internal/model"
)

// Store は「誰がログインしているか」の単一の情報源。
// セッションはnil（未ログイン）か、クレデンシャルと識別情報が両方揃った値のどちらかであり、
// 部分的なセッションは存在しない。
// 変更はServiceの操作（Login/Logout/Restore/Invalidate）経由でのみ行われ、
// 他のコンポーネントは読み取りと購読のみを行う。
type Store struct {
	mu          sync.RWMutex
	session     *model.Session
	subscribers []func(*model.Session)
}

// NewStore は空（未ログイン）のStoreを生成する。
func NewStore() *Store {
	return &Store{}
}

// Current は現在のセッションのコピーを返す。未ログインの場合はnilを返す。
func (s *Store) Current() *model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.session == nil {
		return nil
	}
	copied := *s.session
	return &copied
}

// LoggedIn はログイン中かどうかを返す。
func (s *Store) LoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session != nil
}

// Token は現在のクレデンシャルを返す。api.TokenSourceを実装する。
func (s *Store) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.session == nil {
		return "", false
	}
	return s.session.Token, true
}

// Subscribe はセッション遷移の購読者を登録する。
// 登録後の全ての遷移（ログイン・ログアウト・復元・無効化）で呼び出される。
// 購読者には遷移後のセッションのコピー（未ログインの場合はnil）が渡される。
func (s *Store) Subscribe(fn func(*model.Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// set はセッションを置き換え、購読者へ通知する。
// 同時実行されるログイン操作の直列化は行わない（最後に完了した変更が勝つ）。
func (s *Store) set(session *model.Session) {
	s.mu.Lock()
	s.session = session
	subscribers := make([]func(*model.Session), len(s.subscribers))
	copy(subscribers, s.subscribers)
	s.mu.Unlock()

	// 通知はロック外で行い、購読者からの読み戻しをデッドロックさせない
	for _, fn := range subscribers {
		var copied *model.Session
		if session != nil {
			c := *session
			copied = &c
		}
		fn(copied)
	}
}
