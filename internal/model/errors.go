// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ErrorKind はAPIエラーの原因分類を表す。
// ゲートウェイがトランスポート/サーバーエラーを正規化する際に必ずいずれかを割り当てる。
type ErrorKind string

const (
	// KindUnauthorized はクレデンシャルが無効・期限切れであることを示す。
	// 受信側はセッションストアのクリアを行うこと。
	KindUnauthorized ErrorKind = "unauthorized"
	// KindNotFound は対象リソースが存在しないことを示す。
	KindNotFound ErrorKind = "not_found"
	// KindValidationFailed はサーバーが入力値を拒否したことを示す。
	// サーバーがフィールド単位の詳細を返した場合はFieldsに格納される。
	KindValidationFailed ErrorKind = "validation_failed"
	// KindNetworkFailure はレスポンスが得られなかったことを示す（接続失敗・タイムアウト等）。
	KindNetworkFailure ErrorKind = "network_failure"
	// KindServerFailure はサーバー側エラー（5xx）を示す。
	KindServerFailure ErrorKind = "server_failure"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Kind     ErrorKind           // 原因分類
	Code     string              // エラーコード
	Message  string              // エラーメッセージ
	Category string              // カテゴリ: auth, validation, network, system
	Action   string              // ユーザー向け対処方法
	Fields   map[string][]string // フィールド単位のバリデーション詳細（存在する場合のみ）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeNetworkFailure   = "NETWORK_FAILURE"
	ErrCodeServerFailure    = "SERVER_FAILURE"
	ErrCodeCursorRejected   = "CURSOR_REJECTED"
	ErrCodeNotLoggedIn      = "NOT_LOGGED_IN"
)

// AsAPIError はerrからAPIErrorを取り出す。APIErrorでない場合はnilとfalseを返す。
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsKind はerrが指定KindのAPIErrorかどうかを判定する。
func IsKind(err error, kind ErrorKind) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Kind == kind
}

// NewUnauthorizedError は認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Kind:     KindUnauthorized,
		Code:     ErrCodeUnauthorized,
		Message:  "認証トークンが無効または期限切れです。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewNotFoundError はリソース未検出エラーを生成する。
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("指定されたリソースが見つかりません: %s", resource),
		Category: "system",
		Action:   "IDやパスを確認してください。",
	}
}

// NewValidationFailedError はバリデーションエラーを生成する。
// fieldsはサーバーが返したフィールド単位の詳細。不明な場合はnilでよい。
func NewValidationFailedError(fields map[string][]string) *APIError {
	return &APIError{
		Kind:     KindValidationFailed,
		Code:     ErrCodeValidationFailed,
		Message:  "入力内容がサーバーに拒否されました。",
		Category: "validation",
		Action:   "入力内容を確認して再度お試しください。",
		Fields:   fields,
	}
}

// NewNetworkFailureError はネットワークエラーを生成する。
func NewNetworkFailureError(reason string) *APIError {
	return &APIError{
		Kind:     KindNetworkFailure,
		Code:     ErrCodeNetworkFailure,
		Message:  fmt.Sprintf("サーバーに接続できませんでした: %s", reason),
		Category: "network",
		Action:   "ネットワーク接続を確認し、しばらく待ってから再度お試しください。",
	}
}

// NewServerFailureError はサーバーエラー（5xx）を生成する。
func NewServerFailureError(statusCode int) *APIError {
	return &APIError{
		Kind:     KindServerFailure,
		Code:     ErrCodeServerFailure,
		Message:  fmt.Sprintf("サーバーエラーが発生しました（ステータス %d）。", statusCode),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewCursorRejectedError はカーソルURLがAPIオリジン外を指していた場合のエラーを生成する。
// クレデンシャルを外部ホストへ送信しないための防御。
func NewCursorRejectedError(rawURL string) *APIError {
	return &APIError{
		Kind:     KindValidationFailed,
		Code:     ErrCodeCursorRejected,
		Message:  fmt.Sprintf("ページネーションカーソルがAPIオリジン外を指しています: %s", rawURL),
		Category: "validation",
		Action:   "API_BASE_URLの設定とサーバーのページネーション設定を確認してください。",
	}
}

// NewNotLoggedInError は未ログイン状態で認証必須の操作を行った場合のエラーを生成する。
func NewNotLoggedInError() *APIError {
	return &APIError{
		Kind:     KindUnauthorized,
		Code:     ErrCodeNotLoggedIn,
		Message:  "ログインしていません。",
		Category: "auth",
		Action:   "先にloginコマンドでログインしてください。",
	}
}
