package feed

import (
	"context"
	"log/slog"
	"sync"
)

// ContinuationLoader はトリガーが呼び出すローダー操作のインターフェース。
// Loaderが実装する。
type ContinuationLoader interface {
	FetchNextPage(ctx context.Context) error
}

// Trigger は一覧末尾の番兵（sentinel）の可視状態を観測し、
// 「継続」イベントを発火する境界交差型のイベントソース。
//
// 可視状態の立ち上がり（不可視→可視）でのみFetchNextPageを呼び出す。
// フェッチ実行中の高速な可視トグルで複数リクエストが積まれないことは
// Loader側のloadingガードが保証する。トリガー自身は重複排除を行わない。
type Trigger struct {
	loader ContinuationLoader
	logger *slog.Logger

	events chan bool
	done   chan struct{}
	once   sync.Once
}

// NewTrigger はTriggerを生成する。Run を呼ぶまでイベントは消費されない。
func NewTrigger(loader ContinuationLoader, logger *slog.Logger) *Trigger {
	return &Trigger{
		loader: loader,
		logger: logger,
		// バッファ分を超える連続トグルは破棄してよい（ガードにより結果は同じ）
		events: make(chan bool, 16),
		done:   make(chan struct{}),
	}
}

// Run は可視イベントの消費ループを実行する。
// Detachが呼ばれるかctxがキャンセルされるまでブロックする。
func (t *Trigger) Run(ctx context.Context) {
	visible := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		case v := <-t.events:
			if v && !visible {
				// 立ち上がりエッジ: 1回の遷移につき1回だけ継続を要求する
				if err := t.loader.FetchNextPage(ctx); err != nil {
					t.logger.Warn("継続取得がエラーを返しました",
						slog.String("error", err.Error()),
					)
				}
			}
			visible = v
		}
	}
}

// SetVisible は番兵の可視状態の観測値を通知する。
// Detach後の呼び出しは無視される。ブロックしない。
func (t *Trigger) SetVisible(visible bool) {
	select {
	case <-t.done:
		return
	default:
	}

	select {
	case t.events <- visible:
	default:
		// バッファ満杯時は破棄。最終状態はLoaderのガードが守る
	}
}

// Detach は観測を切り離す。所有ビューの破棄時に呼ぶこと。
// 以降のSetVisibleは無視され、Runは速やかに終了する。冪等。
func (t *Trigger) Detach() {
	t.once.Do(func() {
		close(t.done)
	})
}
