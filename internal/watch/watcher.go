// Package watch は公開フィードのポーリング監視を提供する。
// 一定間隔で先頭ページを再取得し、未見のレシピをログで報告する。
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/recipeman/internal/feed"
)

// defaultInterval はポーリング間隔のデフォルト値。
const defaultInterval = 5 * time.Minute

// Watcher は公開フィードの新着レシピを監視する。
// サイクルごとにLoaderで先頭ページを取り直し、前回までに見ていないIDを新着として報告する。
type Watcher struct {
	loader   *feed.Loader
	logger   *slog.Logger
	interval time.Duration

	seen   map[int]struct{}
	primed bool
}

// NewWatcher はWatcherの新しいインスタンスを生成する。
// intervalが0以下の場合はデフォルト値を使用する。
func NewWatcher(loader *feed.Loader, logger *slog.Logger, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Watcher{
		loader:   loader,
		logger:   logger,
		interval: interval,
		seen:     make(map[int]struct{}),
	}
}

// Start はポーリングループを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (w *Watcher) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("フィード監視を開始しました",
		slog.Duration("interval", w.interval),
	)

	// 起動直後に1回実行してベースラインを確立する
	if err := w.RunOnce(ctx); err != nil {
		w.logger.Error("監視サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("フィード監視を停止しました")
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				w.logger.Error("監視サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は1サイクル分の監視を実行する。
// 初回サイクルは既存レシピをベースラインとして記録するのみで、新着としては報告しない。
func (w *Watcher) RunOnce(ctx context.Context) error {
	if err := w.loader.FetchFirstPage(ctx); err != nil {
		return fmt.Errorf("failed to refresh feed: %w", err)
	}

	snapshot := w.loader.Snapshot()
	newCount := 0

	for _, item := range snapshot.Items {
		if _, ok := w.seen[item.ID]; ok {
			continue
		}
		w.seen[item.ID] = struct{}{}
		if !w.primed {
			continue
		}
		newCount++
		w.logger.Info("新着レシピ",
			slog.Int("recipe_id", item.ID),
			slog.String("title", item.Title),
			slog.String("author", item.Author),
		)
	}

	if w.primed && newCount == 0 {
		w.logger.Debug("新着レシピはありません",
			slog.Int("total", snapshot.TotalCount),
		)
	}
	w.primed = true

	return nil
}
