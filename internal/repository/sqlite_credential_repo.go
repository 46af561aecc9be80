package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/hitoshi/recipeman/internal/model"
)

// 固定キー。ブラウザ版クライアントがlocalStorageに使うキーと同じ役割を持つ。
const (
	stateKeyToken    = "token"
	stateKeyUserID   = "user_id"
	stateKeyUsername = "username"
	stateKeyEmail    = "email"
)

// SQLiteCredentialRepo はSQLiteを使用したクレデンシャルリポジトリ。
type SQLiteCredentialRepo struct {
	db *sql.DB
}

// NewSQLiteCredentialRepo はSQLiteCredentialRepoを生成する。
func NewSQLiteCredentialRepo(db *sql.DB) *SQLiteCredentialRepo {
	return &SQLiteCredentialRepo{db: db}
}

// Load は保存済みセッションを読み出す。
// トークンと識別情報の両方が揃っていない場合はnilを返す（部分セッションは復元しない）。
func (r *SQLiteCredentialRepo) Load(ctx context.Context) (*model.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT key, value FROM client_state
		 WHERE key IN (?, ?, ?, ?)`,
		stateKeyToken, stateKeyUserID, stateKeyUsername, stateKeyEmail,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load client state: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string, 4)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan client state row: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate client state rows: %w", err)
	}

	token := values[stateKeyToken]
	rawUserID, hasUserID := values[stateKeyUserID]
	if token == "" || !hasUserID {
		return nil, nil
	}

	userID, err := strconv.Atoi(rawUserID)
	if err != nil {
		// 壊れた状態は復元せず未ログイン扱いにする
		return nil, nil
	}

	return &model.Session{
		Token: token,
		Identity: model.Identity{
			UserID:   userID,
			Username: values[stateKeyUsername],
			Email:    values[stateKeyEmail],
		},
	}, nil
}

// Save はセッションを保存する。4キーの書き込みは単一トランザクションで行い、
// 部分的な保存状態が残らないようにする。
func (r *SQLiteCredentialRepo) Save(ctx context.Context, session *model.Session) error {
	if session == nil {
		return fmt.Errorf("session is nil")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	entries := map[string]string{
		stateKeyToken:    session.Token,
		stateKeyUserID:   strconv.Itoa(session.Identity.UserID),
		stateKeyUsername: session.Identity.Username,
		stateKeyEmail:    session.Identity.Email,
	}

	for key, value := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO client_state (key, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, now,
		); err != nil {
			return fmt.Errorf("failed to save client state key %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit client state: %w", err)
	}
	return nil
}

// Clear は保存済みセッションを無条件に削除する。
func (r *SQLiteCredentialRepo) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM client_state WHERE key IN (?, ?, ?, ?)`,
		stateKeyToken, stateKeyUserID, stateKeyUsername, stateKeyEmail,
	)
	if err != nil {
		return fmt.Errorf("failed to clear client state: %w", err)
	}
	return nil
}

// compile-time interface check
var _ CredentialRepository = (*SQLiteCredentialRepo)(nil)
