// Package app はアプリケーションの初期化と起動を提供する。
// 設定読み込み、依存関係のワイヤリング、サブコマンドのディスパッチを行う。
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/recipeman/internal/api"
	"github.com/hitoshi/recipeman/internal/auth"
	"github.com/hitoshi/recipeman/internal/config"
	"github.com/hitoshi/recipeman/internal/database"
	"github.com/hitoshi/recipeman/internal/feed"
	"github.com/hitoshi/recipeman/internal/logger"
	"github.com/hitoshi/recipeman/internal/metrics"
	"github.com/hitoshi/recipeman/internal/recipe"
	"github.com/hitoshi/recipeman/internal/repository"
	"github.com/hitoshi/recipeman/internal/security"
	"github.com/hitoshi/recipeman/internal/watch"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// logWが指定された場合はログ出力先としてそのwriterを使用する（nilなら標準エラー出力）。
func Init(logW io.Writer) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(logW, cfg.Verbose)
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで実行する。
// outにはユーザー向け出力の書き込み先（通常はos.Stdout）、argsにはos.Args[1:]を渡す。
func Run(out io.Writer, args []string) error {
	cmd, rest := ParseCommand(args)

	cfg, err := Init(nil)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting recipeman",
		slog.String("command", string(cmd)),
		slog.String("api_base_url", cfg.APIBaseURL),
	)

	// migrate はDB接続前に完結する軽量サブコマンド
	if cmd == CommandMigrate {
		if err := database.RunMigrations(cfg.StateDBPath); err != nil {
			return err
		}
		fmt.Fprintln(out, "migrations applied")
		return nil
	}

	// watchモードのみ実メトリクスを収集・公開する。
	// コレクターはここで生成してワイヤリングへ渡し、ゲートウェイ・
	// レシピサービス・フィードローダーのすべてで共有させる。
	var registry *prometheus.Registry
	var collector metrics.MetricsCollector = metrics.NopCollector{}
	if cmd == CommandWatch {
		registry = prometheus.NewRegistry()
		collector = metrics.NewCollector(registry)
	}

	a, err := newApp(cfg, collector)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 起動時に永続化済みセッションを楽観的に復元する（ネットワーク検証はしない）
	if err := a.authSvc.Restore(ctx); err != nil {
		slog.Warn("セッションの復元に失敗しました", slog.String("error", err.Error()))
	}

	switch cmd {
	case CommandLogin:
		return runLogin(ctx, a, out, rest)
	case CommandLogout:
		return runLogout(ctx, a, out)
	case CommandRegister:
		return runRegister(ctx, a, out)
	case CommandBrowse:
		return runBrowse(ctx, a, out)
	case CommandMine:
		return runMine(ctx, a, out)
	case CommandShow:
		return runShow(ctx, a, out, rest)
	case CommandNew:
		return runNew(ctx, a, out)
	case CommandEdit:
		return runEdit(ctx, a, out, rest)
	case CommandDelete:
		return runDelete(ctx, a, out, rest)
	case CommandWatch:
		return runWatch(ctx, a, registry, out)
	default:
		return runBrowse(ctx, a, out)
	}
}

// App はワイヤリング済みの依存関係を保持する。
type App struct {
	cfg       *config.Config
	db        *sql.DB
	store     *auth.Store
	authSvc   *auth.Service
	client    *api.Client
	recipes   *recipe.Service
	guard     security.OriginGuardService
	collector metrics.MetricsCollector
}

// newApp は全依存関係をワイヤリングしたAppを生成する。
// ローカル状態DBのマイグレーションは起動時に冪等に適用される。
func newApp(cfg *config.Config, collector metrics.MetricsCollector) (*App, error) {
	// 1. ローカル状態DB
	if err := database.RunMigrations(cfg.StateDBPath); err != nil {
		return nil, fmt.Errorf("failed to migrate state database: %w", err)
	}

	db, err := database.Open(cfg.StateDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to state database: %w", err)
	}

	// 2. リポジトリの初期化
	credRepo := repository.NewSQLiteCredentialRepo(db)
	cacheRepo := repository.NewSQLiteRecipeCacheRepo(db)

	// 3. セキュリティとトランスポート
	guard, err := security.NewOriginGuard(cfg.APIBaseURL, cfg.AllowPrivateAPI)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to build origin guard: %w", err)
	}
	httpClient := guard.NewHTTPClient(cfg.HTTPTimeout)
	limiter := rate.NewLimiter(cfg.RequestRate, cfg.RequestBurst)

	// 4. セッションストアとゲートウェイ
	store := auth.NewStore()
	client := api.NewClient(cfg.APIBaseURL, httpClient, store, limiter, slog.Default(), collector)
	authSvc := auth.NewService(client, store, credRepo, slog.Default())

	// 認証付きリクエストがUnauthorizedで拒否されたらローカルセッションを破棄する
	client.SetUnauthorizedHook(authSvc.Invalidate)

	// 5. ドメインサービス
	sanitizer := security.NewContentSanitizer()
	recipes := recipe.NewService(client, sanitizer, cacheRepo, collector, slog.Default())

	return &App{
		cfg:       cfg,
		db:        db,
		store:     store,
		authSvc:   authSvc,
		client:    client,
		recipes:   recipes,
		guard:     guard,
		collector: collector,
	}, nil
}

// Close は保持しているリソースを解放する。
func (a *App) Close() error {
	return a.db.Close()
}

// newLoader は指定一覧パス用の独立したフィードローダーを生成する。
// ビューごとに別インスタンスを持ち、状態を共有しない。
func (a *App) newLoader(basePath string) *feed.Loader {
	fetcher := recipe.NewListFetcher(a.client, a.guard, basePath)
	return feed.NewLoader(fetcher, slog.Default(), a.collector)
}

// runWatch は常駐監視モードで実行する。
// registryにはRunがワイヤリング時に共有させたレジストリを渡す。
// METRICS_PORTが設定されている場合は/metricsと/healthzを公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWatch(ctx context.Context, a *App, registry *prometheus.Registry, out io.Writer) error {
	loader := a.newLoader(recipe.PathAllRecipes)
	watcher := watch.NewWatcher(loader, slog.Default(), a.cfg.WatchInterval)

	var server *http.Server
	if a.cfg.MetricsPort != "" {
		server = &http.Server{
			Addr:         ":" + a.cfg.MetricsPort,
			Handler:      metrics.NewRouter(registry),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			slog.Info("metrics server starting", slog.String("addr", server.Addr))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server listen error", slog.String("error", err.Error()))
			}
		}()
	}

	fmt.Fprintln(out, "watching for new recipes (Ctrl-C to stop)")
	watcher.Start(ctx)

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown failed: %w", err)
		}
	}

	return nil
}

// osStdin はプロンプト入力の読み取り元。テストで差し替える。
var osStdin io.Reader = os.Stdin
