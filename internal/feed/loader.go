// Package feed はページネーションされた一覧の増分読み込みを提供する。
// カーソルベースのページ取得、ID重複排除付きマージ、
// 末尾到達イベントによる継続取得を含む。
package feed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/recipeman/internal/metrics"
	"github.com/hitoshi/recipeman/internal/model"
)

// PageFetcher は一覧リソースの1ページ分の取得インターフェース。
// pageURLが空の場合はリソースのデフォルト一覧を、
// それ以外の場合はサーバーが返した不透明カーソルURLを取得する。
type PageFetcher interface {
	FetchPage(ctx context.Context, pageURL string) (*model.RecipePage, error)
}

// Snapshot はLoaderの状態の不変ビュー。レンダリング層へ渡される。
type Snapshot struct {
	Items      []model.RecipeSummary
	NextCursor string
	TotalCount int
	Loading    bool
	Err        *model.APIError
}

// HasMore は未取得のページが残っているかどうかを返す。
func (s Snapshot) HasMore() bool {
	return s.NextCursor != ""
}

// Loader は1つの一覧リソースのフィード状態を蓄積する。
// 不変条件:
//   - itemsに同一IDのエントリは2つ存在しない
//   - 順序は初回出現順（ページNの項目はページN+1で初めて現れた項目より前）
//   - 実行中のフェッチは同時に最大1つ（loadingフラグで直列化）
//
// ビューごとに独立したLoaderインスタンスを持ち、インスタンス間で状態は共有しない。
type Loader struct {
	fetcher   PageFetcher
	logger    *slog.Logger
	collector metrics.MetricsCollector

	mu         sync.Mutex
	items      []model.RecipeSummary
	seen       map[int]struct{}
	nextCursor string
	totalCount int
	loading    bool
	lastErr    *model.APIError
}

// NewLoader はLoaderの新しいインスタンスを生成する。
// collectorがnilの場合はメトリクスを記録しない。
func NewLoader(fetcher PageFetcher, logger *slog.Logger, collector metrics.MetricsCollector) *Loader {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Loader{
		fetcher:   fetcher,
		logger:    logger,
		collector: collector,
		seen:      make(map[int]struct{}),
	}
}

// FetchFirstPage はデフォルト一覧を取得し、蓄積状態を結果で置き換える。
// 取得失敗時は蓄積済みの項目を破棄せず、エラーのみを記録する。
func (l *Loader) FetchFirstPage(ctx context.Context) error {
	l.mu.Lock()
	if l.loading {
		l.mu.Unlock()
		return nil
	}
	l.loading = true
	l.lastErr = nil
	l.mu.Unlock()

	page, err := l.fetcher.FetchPage(ctx, "")

	l.mu.Lock()
	defer l.mu.Unlock()
	l.loading = false

	if err != nil {
		l.lastErr = toAPIError(err)
		l.logger.Error("先頭ページの取得に失敗しました",
			slog.String("kind", string(l.lastErr.Kind)),
			slog.String("error", err.Error()),
		)
		return err
	}

	// 置き換え: 蓄積状態をリセットしてから結果をマージする
	l.items = nil
	l.seen = make(map[int]struct{})
	l.merge(page)
	return nil
}

// FetchNextPage は次ページを取得して蓄積状態へマージする。
// 実行中のフェッチが存在する場合、またはカーソルが尽きている場合は
// 即座にnilを返すno-opとなる（同時実行ガードと終端ガード）。
// 取得失敗時は蓄積済みの項目を破棄せず、エラーのみを記録する。
func (l *Loader) FetchNextPage(ctx context.Context) error {
	l.mu.Lock()
	if l.loading || l.nextCursor == "" {
		l.mu.Unlock()
		return nil
	}
	l.loading = true
	l.lastErr = nil
	cursor := l.nextCursor
	l.mu.Unlock()

	page, err := l.fetcher.FetchPage(ctx, cursor)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.loading = false

	if err != nil {
		l.lastErr = toAPIError(err)
		l.logger.Error("継続ページの取得に失敗しました",
			slog.String("cursor", cursor),
			slog.String("kind", string(l.lastErr.Kind)),
			slog.String("error", err.Error()),
		)
		return err
	}

	l.merge(page)
	return nil
}

// merge はページを蓄積状態へ取り込む。l.muを保持して呼ぶこと。
// 既出IDの項目はフィルタされ、残りが末尾へ追加される。
// 隣接ページ間の重複（取得中の挿入によるオフセットずれ等）はここで吸収される。
// カーソルはサーバーが返した値をそのまま保持し、解析や再構築は行わない。
func (l *Loader) merge(page *model.RecipePage) {
	dropped := 0
	for _, item := range page.Results {
		if _, ok := l.seen[item.ID]; ok {
			dropped++
			continue
		}
		l.seen[item.ID] = struct{}{}
		l.items = append(l.items, item)
	}

	l.nextCursor = page.Next
	l.totalCount = page.Count

	l.collector.RecordPageFetched(len(page.Results))
	if dropped > 0 {
		l.collector.RecordDuplicatesDropped(dropped)
		l.logger.Debug("重複項目をマージ時に除外しました",
			slog.Int("dropped", dropped),
		)
	}
}

// Snapshot は現在の状態の不変ビューを返す。項目スライスはコピーされる。
func (l *Loader) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	items := make([]model.RecipeSummary, len(l.items))
	copy(items, l.items)

	return Snapshot{
		Items:      items,
		NextCursor: l.nextCursor,
		TotalCount: l.totalCount,
		Loading:    l.loading,
		Err:        l.lastErr,
	}
}

// toAPIError はフェッチャーのエラーをAPIErrorへ揃える。
// ゲートウェイ由来のエラーはそのまま、それ以外はネットワーク障害として扱う。
func toAPIError(err error) *model.APIError {
	if apiErr, ok := model.AsAPIError(err); ok {
		return apiErr
	}
	return model.NewNetworkFailureError(err.Error())
}
