// Package security はクライアントのセキュリティ機能を提供する。
package security

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// allowedSchemes はAPIアクセスで許可されるURLスキーム。
var allowedSchemes = []string{"http", "https"}

// OriginGuardService はサーバー提供URLのオリジン検証機能のインターフェースを定義する。
// ページネーションカーソルはサーバーがURLとして返す不透明な値であり、
// 無検証で辿ると認証トークンを任意ホストへ送信してしまう。
// カーソルを辿る前に必ずこのガードを通すこと。
type OriginGuardService interface {
	// ValidateCursorURL はカーソルURLが設定済みAPIオリジン
	// （スキーム・ホスト・ポートの完全一致）に留まっているかを検証する。
	// オリジン外を指す場合はエラーを返す。
	ValidateCursorURL(rawURL string) error

	// NewHTTPClient はAPIアクセス用のHTTPクライアントを生成する。
	// allowPrivateが偽の場合はsafeurlでラップされ、DNS再バインディングを含む
	// プライベート/ループバック/リンクローカル宛のリクエストがDialerレベルで遮断される。
	NewHTTPClient(timeout time.Duration) *http.Client
}

// originGuard はOriginGuardServiceの実装。
type originGuard struct {
	scheme       string
	host         string // host:port（ポート指定がある場合を含む）
	allowPrivate bool
}

// NewOriginGuard はAPIベースURLを基準とするOriginGuardを生成する。
// allowPrivateはローカル開発時にループバックホストのAPIを許可するためのスイッチ。
func NewOriginGuard(apiBaseURL string, allowPrivate bool) (*originGuard, error) {
	parsed, err := url.Parse(apiBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API base URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return nil, fmt.Errorf("disallowed scheme in API base URL: %s (allowed: %v)", scheme, allowedSchemes)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("empty host in API base URL: %s", apiBaseURL)
	}

	return &originGuard{
		scheme:       scheme,
		host:         strings.ToLower(parsed.Host),
		allowPrivate: allowPrivate,
	}, nil
}

// ValidateCursorURL はカーソルURLが設定済みAPIオリジンに留まっているかを検証する。
func (g *originGuard) ValidateCursorURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty cursor URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid cursor URL: %w", err)
	}

	if !strings.EqualFold(parsed.Scheme, g.scheme) {
		return fmt.Errorf("cursor URL scheme %q does not match API origin scheme %q", parsed.Scheme, g.scheme)
	}
	if !strings.EqualFold(parsed.Host, g.host) {
		return fmt.Errorf("cursor URL host %q does not match API origin host %q", parsed.Host, g.host)
	}

	return nil
}

// NewHTTPClient はAPIアクセス用のHTTPクライアントを生成する。
// safeurlはnet.DialerのControlフックでDNS解決後のIPアドレスを検証するため、
// ホスト名がプライベートIPへ解決されるケースも遮断される。
func (g *originGuard) NewHTTPClient(timeout time.Duration) *http.Client {
	if g.allowPrivate {
		// ローカル開発用: ループバック宛APIを許可する素のクライアント
		return &http.Client{Timeout: timeout}
	}

	hostname := g.host
	if i := strings.Index(hostname, ":"); i >= 0 {
		hostname = hostname[:i]
	}

	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		SetAllowedHosts(hostname).
		Build()

	return safeurl.Client(config).Client
}

// isAllowedScheme はURLスキームが許可リストに含まれるかを検証する。
func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}
