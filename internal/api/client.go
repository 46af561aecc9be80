// Package api はバックエンドREST APIへの認証付きリクエストゲートウェイを提供する。
// 全ての送信リクエストはこのゲートウェイを経由し、クレデンシャル付与と
// エラーの正規化が一箇所で行われる。
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hitoshi/recipeman/internal/metrics"
	"github.com/hitoshi/recipeman/internal/model"
)

// maxResponseBody はレスポンスボディの最大読み取りサイズ。
const maxResponseBody = 10 << 20 // 10MiB

// TokenSource は現在のクレデンシャルの読み取り元を表す。
// セッションストアが実装する。トークンが存在しない場合はfalseを返し、
// ゲートウェイは未認証のままリクエストを送信する（公開エンドポイント向け）。
type TokenSource interface {
	Token() (string, bool)
}

// Client は認証付きリクエストゲートウェイ。
// リトライは行わない。失敗は正規化されたAPIErrorとして即座に呼び出し元へ返す。
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	limiter    *rate.Limiter
	logger     *slog.Logger
	collector  metrics.MetricsCollector

	// onUnauthorized はUnauthorizedエラーの正規化時に呼ばれるフック。
	// アプリ層がセッションストアのクリアを接続する。
	onUnauthorized func()
}

// NewClient はClientの新しいインスタンスを生成する。
// limiterがnilの場合は送信レート制限を行わない。
func NewClient(
	baseURL string,
	httpClient *http.Client,
	tokens TokenSource,
	limiter *rate.Limiter,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
) *Client {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		tokens:     tokens,
		limiter:    limiter,
		logger:     logger,
		collector:  collector,
	}
}

// SetUnauthorizedHook はUnauthorized検出時のフックを設定する。
func (c *Client) SetUnauthorizedHook(fn func()) {
	c.onUnauthorized = fn
}

// GetJSON はGETリクエストを送信し、レスポンスJSONをoutへデコードする。
// pathOrURLは相対パス（"/recipes/"）またはサーバーが返した絶対カーソルURLを受け付ける。
func (c *Client) GetJSON(ctx context.Context, pathOrURL string, out any) error {
	return c.do(ctx, http.MethodGet, pathOrURL, "", nil, out)
}

// PostJSON はJSONボディ付きのPOSTリクエストを送信する。
// bodyがnilの場合はボディなしで送信する（JSONリテラルのnullは送らない）。
func (c *Client) PostJSON(ctx context.Context, path string, body any, out any) error {
	if body == nil {
		return c.do(ctx, http.MethodPost, path, "", nil, out)
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, "application/json", bytes.NewReader(encoded), out)
}

// PutJSON はJSONボディ付きのPUTリクエストを送信する。
func (c *Client) PutJSON(ctx context.Context, path string, body any, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}
	return c.do(ctx, http.MethodPut, path, "application/json", bytes.NewReader(encoded), out)
}

// Delete はDELETEリクエストを送信する。
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, "", nil, nil)
}

// PostMultipart はmultipart/form-dataボディ付きのPOSTリクエストを送信する。
// エンコードモードは呼び出し元が明示的に選択する（ゲートウェイは内容から推測しない）。
func (c *Client) PostMultipart(ctx context.Context, path string, form *FormPayload, out any) error {
	body, contentType, err := encodeMultipart(form)
	if err != nil {
		return fmt.Errorf("failed to encode multipart body: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, contentType, body, out)
}

// PutMultipart はmultipart/form-dataボディ付きのPUTリクエストを送信する。
func (c *Client) PutMultipart(ctx context.Context, path string, form *FormPayload, out any) error {
	body, contentType, err := encodeMultipart(form)
	if err != nil {
		return fmt.Errorf("failed to encode multipart body: %w", err)
	}
	return c.do(ctx, http.MethodPut, path, contentType, body, out)
}

// resolve は相対パスをベースURLと結合する。絶対URL（カーソル）はそのまま返す。
// カーソルのオリジン検証は呼び出し側（ページフェッチャー）の責務。
func (c *Client) resolve(pathOrURL string) string {
	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") {
		return pathOrURL
	}
	return c.baseURL + pathOrURL
}

// do はリクエストを送信し、レスポンスを正規化する。
// 2xx以外のステータスおよびトランスポート障害はすべてmodel.APIErrorへ変換される。
func (c *Client) do(ctx context.Context, method, pathOrURL, contentType string, body io.Reader, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return model.NewNetworkFailureError(err.Error())
		}
	}

	reqURL := c.resolve(pathOrURL)
	requestID := uuid.New().String()

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return fmt.Errorf("failed to build HTTP request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("User-Agent", "Recipeman/1.0")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	// クレデンシャルが存在する場合のみAuthorizationヘッダーを付与する。
	// 未ログイン時は未認証のまま送信する（公開リードは許可されている）。
	if token, ok := c.tokens.Token(); ok {
		req.Header.Set("Authorization", "Token "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)
	c.collector.RecordRequestLatency(latency)

	if err != nil {
		c.collector.RecordRequest(method, string(model.KindNetworkFailure))
		c.logger.Error("APIリクエストの送信に失敗しました",
			slog.String("method", method),
			slog.String("url", reqURL),
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		return model.NewNetworkFailureError(err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		c.collector.RecordRequest(method, string(model.KindNetworkFailure))
		return model.NewNetworkFailureError(fmt.Sprintf("レスポンスボディの読み取りに失敗: %v", err))
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.collector.RecordRequest(method, "ok")
		c.logger.Debug("APIリクエスト成功",
			slog.String("method", method),
			slog.String("url", reqURL),
			slog.String("request_id", requestID),
			slog.Int("http_status", resp.StatusCode),
			slog.Duration("latency", latency),
		)
		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("failed to decode response body: %w", err)
			}
		}
		return nil
	}

	apiErr := c.normalizeError(resp.StatusCode, reqURL, respBody)
	c.collector.RecordRequest(method, string(apiErr.Kind))
	c.logger.Error("APIリクエストがエラーステータスを返しました",
		slog.String("method", method),
		slog.String("url", reqURL),
		slog.String("request_id", requestID),
		slog.Int("http_status", resp.StatusCode),
		slog.String("kind", string(apiErr.Kind)),
	)

	if apiErr.Kind == model.KindUnauthorized && c.onUnauthorized != nil {
		c.onUnauthorized()
	}

	return apiErr
}

// normalizeError はHTTPステータスとレスポンスボディをAPIErrorへ正規化する。
func (c *Client) normalizeError(statusCode int, reqURL string, body []byte) *model.APIError {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return model.NewUnauthorizedError()
	case statusCode == http.StatusNotFound:
		return model.NewNotFoundError(reqURL)
	case statusCode >= 500:
		return model.NewServerFailureError(statusCode)
	default:
		// 400/422を含む残りの4xxはバリデーション失敗として扱う
		return model.NewValidationFailedError(parseValidationFields(body))
	}
}

// errorEnvelope はバックエンドのエラーレスポンス形式。
// {"status":"error","message":"...","errors":{field:[msgs]},"missing_fields":[...]}
type errorEnvelope struct {
	Errors        map[string]json.RawMessage `json:"errors"`
	MissingFields []string                   `json:"missing_fields"`
}

// parseValidationFields はエラーレスポンスからフィールド単位の詳細を抽出する。
// サーバーが詳細を返さない形式の場合はnilを返す。
func parseValidationFields(body []byte) map[string][]string {
	if len(body) == 0 {
		return nil
	}

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil
	}

	fields := make(map[string][]string)

	for name, raw := range envelope.Errors {
		// フィールドの値は文字列配列または単一文字列のいずれかで返る
		var msgs []string
		if err := json.Unmarshal(raw, &msgs); err == nil {
			fields[name] = msgs
			continue
		}
		var msg string
		if err := json.Unmarshal(raw, &msg); err == nil {
			fields[name] = []string{msg}
		}
	}

	for _, name := range envelope.MissingFields {
		fields[name] = append(fields[name], "この項目は必須です。")
	}

	if len(fields) == 0 {
		return nil
	}
	return fields
}
