package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/hitoshi/recipeman/internal/model"
	"github.com/hitoshi/recipeman/internal/repository"
)

// --- Service テスト用モック ---

// mockGateway はテスト用のGateway。postFnで応答を差し替える。
type mockGateway struct {
	postFn func(ctx context.Context, path string, body any, out any) error
	calls  []string
}

func (m *mockGateway) PostJSON(ctx context.Context, path string, body any, out any) error {
	m.calls = append(m.calls, path)
	if m.postFn == nil {
		return nil
	}
	return m.postFn(ctx, path, body, out)
}

var _ Gateway = (*mockGateway)(nil)

// mockCredRepo はテスト用のCredentialRepository。
type mockCredRepo struct {
	stored     *model.Session
	saveErr    error
	loadErr    error
	clearCalls int
}

func (m *mockCredRepo) Load(_ context.Context) (*model.Session, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.stored, nil
}

func (m *mockCredRepo) Save(_ context.Context, session *model.Session) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.stored = session
	return nil
}

func (m *mockCredRepo) Clear(_ context.Context) error {
	m.clearCalls++
	m.stored = nil
	return nil
}

var _ repository.CredentialRepository = (*mockCredRepo)(nil)

// respondLogin はログインエンドポイントのレスポンスをoutへ書き込むpostFnを返す。
func respondLogin(payload string) func(context.Context, string, any, any) error {
	return func(_ context.Context, path string, _ any, out any) error {
		if path != "/login/" {
			return fmt.Errorf("unexpected path: %s", path)
		}
		return json.Unmarshal([]byte(payload), out)
	}
}

func TestService_Login_EstablishesAndPersistsSession(t *testing.T) {
	gw := &mockGateway{postFn: respondLogin(`{"token":"tok-1","user_id":7,"email":"a@example.com"}`)}
	store := NewStore()
	creds := &mockCredRepo{}
	svc := NewService(gw, store, creds, slog.Default())

	if err := svc.Login(context.Background(), "alice", "secret"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	session := store.Current()
	if session == nil {
		t.Fatal("expected session to be established")
	}
	if session.Token != "tok-1" {
		t.Errorf("Token = %q, want tok-1", session.Token)
	}
	if session.Identity.UserID != 7 {
		t.Errorf("UserID = %d, want 7", session.Identity.UserID)
	}
	// ユーザー名はレスポンスに含まれないため、ログインフォームの値を採用する
	if session.Identity.Username != "alice" {
		t.Errorf("Username = %q, want alice", session.Identity.Username)
	}

	if creds.stored == nil || creds.stored.Token != "tok-1" {
		t.Error("expected session to be persisted")
	}
}

// TestService_Login_DataEnvelopeVariant はレシピAPIの一部バリアントが返す
// {"data":{...}}形式のレスポンスでもセッションが確立されることを検証する。
func TestService_Login_DataEnvelopeVariant(t *testing.T) {
	gw := &mockGateway{postFn: respondLogin(`{"data":{"token":"tok-2","user_id":9,"email":"b@example.com"}}`)}
	store := NewStore()
	svc := NewService(gw, store, &mockCredRepo{}, slog.Default())

	if err := svc.Login(context.Background(), "bob", "secret"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	session := store.Current()
	if session == nil || session.Token != "tok-2" || session.Identity.UserID != 9 {
		t.Errorf("session = %+v, want token=tok-2 user_id=9", session)
	}
}

// TestService_Login_FailureLeavesSessionUntouched はログイン失敗が
// 既存セッションに影響しないことを検証する。
func TestService_Login_FailureLeavesSessionUntouched(t *testing.T) {
	gw := &mockGateway{postFn: func(_ context.Context, _ string, _ any, _ any) error {
		return model.NewUnauthorizedError()
	}}
	store := NewStore()
	store.set(testSession())
	svc := NewService(gw, store, &mockCredRepo{}, slog.Default())

	err := svc.Login(context.Background(), "alice", "wrong")
	if err == nil {
		t.Fatal("expected error from rejected login")
	}
	if !model.IsKind(err, model.KindUnauthorized) {
		t.Errorf("error kind = %v, want unauthorized", err)
	}

	// 失敗前のセッションはそのまま残る
	if token, _ := store.Token(); token != "abc123" {
		t.Errorf("token = %q, want abc123 (失敗時は既存セッションを保持)", token)
	}
}

// TestService_Login_PersistFailure_DoesNotEstablishSession は永続化失敗時に
// インメモリセッションも確立されないことを検証する（部分状態を残さない）。
func TestService_Login_PersistFailure_DoesNotEstablishSession(t *testing.T) {
	gw := &mockGateway{postFn: respondLogin(`{"token":"tok-3","user_id":1,"email":"c@example.com"}`)}
	store := NewStore()
	creds := &mockCredRepo{saveErr: fmt.Errorf("disk full")}
	svc := NewService(gw, store, creds, slog.Default())

	if err := svc.Login(context.Background(), "carol", "secret"); err == nil {
		t.Fatal("expected error when persistence fails")
	}

	if store.LoggedIn() {
		t.Error("expected no in-memory session when persistence fails")
	}
}

func TestService_Login_MissingToken_ReturnsError(t *testing.T) {
	gw := &mockGateway{postFn: respondLogin(`{"user_id":1,"email":"d@example.com"}`)}
	store := NewStore()
	svc := NewService(gw, store, &mockCredRepo{}, slog.Default())

	if err := svc.Login(context.Background(), "dave", "secret"); err == nil {
		t.Fatal("expected error for response without token")
	}
	if store.LoggedIn() {
		t.Error("expected no session for token-less response")
	}
}

// TestService_Logout_ClearsLocalStateEvenIfServerFails はサーバー側の
// 無効化失敗にかかわらずローカルセッションがクリアされることを検証する。
func TestService_Logout_ClearsLocalStateEvenIfServerFails(t *testing.T) {
	gw := &mockGateway{postFn: func(_ context.Context, path string, _ any, _ any) error {
		if path == "/users/logout/" {
			return model.NewNetworkFailureError("connection refused")
		}
		return nil
	}}
	store := NewStore()
	store.set(testSession())
	creds := &mockCredRepo{stored: testSession()}
	svc := NewService(gw, store, creds, slog.Default())

	if err := svc.Logout(context.Background()); err != nil {
		t.Fatalf("expected nil error from logout, got %v", err)
	}

	if store.LoggedIn() {
		t.Error("expected in-memory session to be cleared")
	}
	if creds.clearCalls != 1 {
		t.Errorf("clear calls = %d, want 1", creds.clearCalls)
	}
	if creds.stored != nil {
		t.Error("expected persisted session to be cleared")
	}
}

// TestService_Register_DoesNotEstablishSession は登録成功後も
// 未ログイン状態のままであることを検証する。
func TestService_Register_DoesNotEstablishSession(t *testing.T) {
	gw := &mockGateway{}
	store := NewStore()
	svc := NewService(gw, store, &mockCredRepo{}, slog.Default())

	profile := model.Profile{
		Username: "erin",
		Email:    "erin@example.com",
		Password: "secret",
	}
	if err := svc.Register(context.Background(), profile); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(gw.calls) != 1 || gw.calls[0] != "/users/register/" {
		t.Errorf("calls = %v, want [/users/register/]", gw.calls)
	}
	if store.LoggedIn() {
		t.Error("expected no session after registration")
	}
}

func TestService_Register_PropagatesValidationError(t *testing.T) {
	fields := map[string][]string{"email": {"既に使用されています。"}}
	gw := &mockGateway{postFn: func(_ context.Context, _ string, _ any, _ any) error {
		return model.NewValidationFailedError(fields)
	}}
	svc := NewService(gw, NewStore(), &mockCredRepo{}, slog.Default())

	err := svc.Register(context.Background(), model.Profile{Username: "erin"})
	apiErr, ok := model.AsAPIError(err)
	if !ok || apiErr.Kind != model.KindValidationFailed {
		t.Fatalf("error = %v, want validation_failed", err)
	}
	if len(apiErr.Fields["email"]) != 1 {
		t.Errorf("Fields = %v, want email detail preserved", apiErr.Fields)
	}
}

// TestService_Restore_LoadsPersistedSession は起動時の復元が
// ネットワーク呼び出しなしでセッションを確立することを検証する。
func TestService_Restore_LoadsPersistedSession(t *testing.T) {
	gw := &mockGateway{postFn: func(_ context.Context, _ string, _ any, _ any) error {
		return fmt.Errorf("restore must not call the network")
	}}
	store := NewStore()
	creds := &mockCredRepo{stored: testSession()}
	svc := NewService(gw, store, creds, slog.Default())

	if err := svc.Restore(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !store.LoggedIn() {
		t.Fatal("expected session to be restored")
	}
	if len(gw.calls) != 0 {
		t.Errorf("gateway calls = %v, want none (復元は楽観的)", gw.calls)
	}
}

func TestService_Restore_NoPersistedSession_IsNoop(t *testing.T) {
	store := NewStore()
	svc := NewService(&mockGateway{}, store, &mockCredRepo{}, slog.Default())

	if err := svc.Restore(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if store.LoggedIn() {
		t.Error("expected store to remain logged out")
	}
}

// TestService_Restore_Idempotent は既にセッションが存在する場合、
// 復元が何もしないことを検証する。
func TestService_Restore_Idempotent(t *testing.T) {
	store := NewStore()
	store.set(testSession())

	other := &model.Session{Token: "other", Identity: model.Identity{UserID: 99}}
	creds := &mockCredRepo{stored: other}
	svc := NewService(&mockGateway{}, store, creds, slog.Default())

	if err := svc.Restore(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if token, _ := store.Token(); token != "abc123" {
		t.Errorf("token = %q, want abc123 (既存セッションは上書きされない)", token)
	}
}

// TestService_Invalidate_ClearsLocalStateWithoutNetwork はUnauthorizedフックによる
// セッション破棄がサーバー呼び出しなしで行われることを検証する。
func TestService_Invalidate_ClearsLocalStateWithoutNetwork(t *testing.T) {
	gw := &mockGateway{}
	store := NewStore()
	store.set(testSession())
	creds := &mockCredRepo{stored: testSession()}
	svc := NewService(gw, store, creds, slog.Default())

	svc.Invalidate()

	if store.LoggedIn() {
		t.Error("expected in-memory session to be cleared")
	}
	if creds.stored != nil {
		t.Error("expected persisted session to be cleared")
	}
	if len(gw.calls) != 0 {
		t.Errorf("gateway calls = %v, want none", gw.calls)
	}
}
