// Package repository はローカル状態の永続化インターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/recipeman/internal/model"
)

// CredentialRepository はセッションのクレデンシャル・識別情報の永続化インターフェース。
// ブラウザのlocalStorage相当で、固定キー（token, user_id, username, email）の下に保存される。
type CredentialRepository interface {
	// Load は保存済みセッションを読み出す。
	// クレデンシャルと識別情報の両方が揃っていない場合はnilを返す（部分セッションは復元しない）。
	Load(ctx context.Context) (*model.Session, error)

	// Save はセッションを保存する。既存の値は上書きされる。
	Save(ctx context.Context, session *model.Session) error

	// Clear は保存済みセッションを無条件に削除する。保存されていない場合もエラーにしない。
	Clear(ctx context.Context) error
}

// RecipeCacheRepository はレシピ詳細のリードスルーキャッシュの永続化インターフェース。
type RecipeCacheRepository interface {
	// Get は指定IDのキャッシュ済みレシピを取得する。見つからない場合はnilを返す。
	Get(ctx context.Context, id int) (*model.Recipe, error)

	// Put はレシピをキャッシュに保存する。同一IDの既存エントリは上書きされる。
	Put(ctx context.Context, recipe *model.Recipe) error

	// Delete は指定IDのキャッシュエントリを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, id int) error
}
