package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/recipeman/internal/model"
	"github.com/hitoshi/recipeman/internal/repository"
)

// Gateway は認証サービスが必要とするリクエストゲートウェイのインターフェース。
// api.Clientが実装する。
type Gateway interface {
	// PostJSON はJSONボディ付きのPOSTリクエストを送信する。
	PostJSON(ctx context.Context, path string, body any, out any) error
}

// Service はセッションに関する変更操作を提供する。
// インメモリ状態（Store）と永続状態（CredentialRepository）の両方を
// 操作の解決と同期して更新する。
type Service struct {
	gw     Gateway
	store  *Store
	creds  repository.CredentialRepository
	logger *slog.Logger
}

// NewService はServiceを生成する。
func NewService(gw Gateway, store *Store, creds repository.CredentialRepository, logger *slog.Logger) *Service {
	return &Service{
		gw:     gw,
		store:  store,
		creds:  creds,
		logger: logger,
	}
}

// Restore は永続化済みのクレデンシャルと識別情報をメモリへ読み込む。
// 起動時に1回呼ばれる。冪等であり、すでにセッションが存在する場合は何もしない。
// ネットワーク呼び出しは行わない。復元は楽観的で、トークンの有効性は
// 最初の認証付きリクエストが実行されるまで検証されない。
func (s *Service) Restore(ctx context.Context) error {
	if s.store.LoggedIn() {
		return nil
	}

	session, err := s.creds.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}
	if session == nil {
		return nil
	}

	s.store.set(session)
	s.logger.Info("セッションを復元しました",
		slog.String("username", session.Identity.Username),
		slog.Int("user_id", session.Identity.UserID),
	)
	return nil
}

// loginResponse はログインエンドポイントのレスポンス。
// バックエンドのバリアントにより {token,user_id,email} が
// トップレベルまたはdataエンベロープ内で返るため両対応する。
type loginResponse struct {
	Token  string `json:"token"`
	UserID int    `json:"user_id"`
	Email  string `json:"email"`
	Data   *struct {
		Token  string `json:"token"`
		UserID int    `json:"user_id"`
		Email  string `json:"email"`
	} `json:"data"`
}

// Login はクレデンシャルをバックエンドへ送信し、成功時にセッションを確立する。
// 失敗時（認証エラー・ネットワーク障害）は既存セッションに一切触れず、
// 正規化済みエラーを返す。表示方法は呼び出し元が決める。
func (s *Service) Login(ctx context.Context, username, password string) error {
	var resp loginResponse
	err := s.gw.PostJSON(ctx, "/login/", map[string]string{
		"username": username,
		"password": password,
	}, &resp)
	if err != nil {
		s.logger.Warn("ログインに失敗しました",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		return err
	}

	token, userID, email := resp.Token, resp.UserID, resp.Email
	if resp.Data != nil && resp.Data.Token != "" {
		token, userID, email = resp.Data.Token, resp.Data.UserID, resp.Data.Email
	}
	if token == "" {
		return fmt.Errorf("login response did not include a token")
	}

	session := &model.Session{
		Token: token,
		Identity: model.Identity{
			UserID:   userID,
			Username: username,
			Email:    email,
		},
	}

	// 永続化に失敗した場合はセッションを確立しない（部分状態を残さない）
	if err := s.creds.Save(ctx, session); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	s.store.set(session)

	s.logger.Info("ログインしました",
		slog.String("username", username),
		slog.Int("user_id", userID),
	)
	return nil
}

// Logout はベストエフォートでサーバー側のトークン無効化を要求し、
// その成否にかかわらずローカルのセッション（メモリ・永続化の両方）を無条件にクリアする。
// サーバー側の無効化失敗によってクライアントがログイン状態のまま残ることはない。
func (s *Service) Logout(ctx context.Context) error {
	if err := s.gw.PostJSON(ctx, "/users/logout/", nil, nil); err != nil {
		s.logger.Warn("サーバー側のログアウトに失敗しました（ローカルセッションはクリアされます）",
			slog.String("error", err.Error()),
		)
	}

	if err := s.creds.Clear(ctx); err != nil {
		s.logger.Error("永続化済みセッションのクリアに失敗しました",
			slog.String("error", err.Error()),
		)
	}
	s.store.set(nil)

	s.logger.Info("ログアウトしました")
	return nil
}

// Register は新規アカウントをサーバー側に作成する。
// セッションは確立しない（アカウント作成と認証は分離されており、
// ユーザーは登録後に改めてログインする必要がある）。
func (s *Service) Register(ctx context.Context, profile model.Profile) error {
	if err := s.gw.PostJSON(ctx, "/users/register/", profile, nil); err != nil {
		return err
	}

	s.logger.Info("アカウントを登録しました",
		slog.String("username", profile.Username),
	)
	return nil
}

// Invalidate はローカルのセッションのみをクリアする。サーバー呼び出しは行わない。
// 認証付きリクエストがUnauthorizedで拒否された際のフックから呼ばれ、
// 死んだクレデンシャルで認証付きリクエストを送り続けることを防ぐ。
func (s *Service) Invalidate() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.creds.Clear(ctx); err != nil {
		s.logger.Error("永続化済みセッションのクリアに失敗しました",
			slog.String("error", err.Error()),
		)
	}
	s.store.set(nil)

	s.logger.Warn("無効なクレデンシャルを検出したためセッションを破棄しました")
}
