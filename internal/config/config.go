package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// API
	APIBaseURL      string        // レシピAPIのベースURL（例: https://api.example.com/api）
	HTTPTimeout     time.Duration // 1リクエストのトランスポートタイムアウト
	AllowPrivateAPI bool          // ループバック/プライベートIPのAPIホストを許可するか（ローカル開発用）

	// Rate Limit（クライアント側の送信レート制限）
	RequestRate  rate.Limit // 送信レート（req/sec）
	RequestBurst int        // バーストサイズ

	// Local State
	StateDBPath string // クレデンシャル・キャッシュを保存するSQLiteファイルのパス

	// Watch
	WatchInterval time.Duration // watchモードのポーリング間隔

	// Metrics
	MetricsPort string // watchモードでメトリクスを公開するポート。空なら公開しない

	// Logging
	Verbose bool
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.APIBaseURL = strings.TrimRight(os.Getenv("API_BASE_URL"), "/")
	if cfg.APIBaseURL == "" {
		missing = append(missing, "API_BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.HTTPTimeout = getEnvDuration("HTTP_TIMEOUT", 15*time.Second)
	cfg.AllowPrivateAPI = getEnvBool("API_ALLOW_PRIVATE", false)
	cfg.RequestRate = rate.Limit(getEnvFloat("REQUEST_RATE", 5.0))
	cfg.RequestBurst = getEnvInt("REQUEST_BURST", 5)
	cfg.StateDBPath = getEnvString("STATE_DB_PATH", defaultStateDBPath())
	cfg.WatchInterval = getEnvDuration("WATCH_INTERVAL", 5*time.Minute)
	cfg.MetricsPort = getEnvString("METRICS_PORT", "")
	cfg.Verbose = getEnvBool("VERBOSE", false)

	return cfg, nil
}

// defaultStateDBPath はSQLite状態ファイルのデフォルトパスを返す。
// ブラウザのlocalStorageに相当する永続領域で、ユーザー単位に分離される。
func defaultStateDBPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "recipeman", "state.db")
	}
	return "recipeman-state.db"
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
