package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/recipeman/internal/model"
)

// SQLiteRecipeCacheRepo はSQLiteを使用したレシピ詳細キャッシュリポジトリ。
// レシピ本体はJSONペイロードとしてそのまま保存する。
type SQLiteRecipeCacheRepo struct {
	db *sql.DB
}

// NewSQLiteRecipeCacheRepo はSQLiteRecipeCacheRepoを生成する。
func NewSQLiteRecipeCacheRepo(db *sql.DB) *SQLiteRecipeCacheRepo {
	return &SQLiteRecipeCacheRepo{db: db}
}

// Get は指定IDのキャッシュ済みレシピを取得する。見つからない場合はnilを返す。
func (r *SQLiteRecipeCacheRepo) Get(ctx context.Context, id int) (*model.Recipe, error) {
	var payload string
	err := r.db.QueryRowContext(ctx,
		`SELECT payload FROM recipe_cache WHERE id = ?`,
		id,
	).Scan(&payload)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read recipe cache: %w", err)
	}

	recipe := &model.Recipe{}
	if err := json.Unmarshal([]byte(payload), recipe); err != nil {
		return nil, fmt.Errorf("failed to decode cached recipe: %w", err)
	}
	return recipe, nil
}

// Put はレシピをキャッシュに保存する。同一IDの既存エントリは上書きされる。
func (r *SQLiteRecipeCacheRepo) Put(ctx context.Context, recipe *model.Recipe) error {
	if recipe == nil {
		return fmt.Errorf("recipe is nil")
	}

	payload, err := json.Marshal(recipe)
	if err != nil {
		return fmt.Errorf("failed to encode recipe for cache: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO recipe_cache (id, payload, cached_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, cached_at = excluded.cached_at`,
		recipe.ID, string(payload), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to write recipe cache: %w", err)
	}
	return nil
}

// Delete は指定IDのキャッシュエントリを削除する。
func (r *SQLiteRecipeCacheRepo) Delete(ctx context.Context, id int) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM recipe_cache WHERE id = ?`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete recipe cache entry: %w", err)
	}
	return nil
}

// compile-time interface check
var _ RecipeCacheRepository = (*SQLiteRecipeCacheRepo)(nil)
