package recipe

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/hitoshi/recipeman/internal/api"
	"github.com/hitoshi/recipeman/internal/model"
	"github.com/hitoshi/recipeman/internal/repository"
	"github.com/hitoshi/recipeman/internal/security"
)

// --- Service テスト用モック ---

// mockServiceGateway はテスト用のGateway。各メソッドはfunc fieldで差し替える。
type mockServiceGateway struct {
	getFn           func(ctx context.Context, pathOrURL string, out any) error
	postFn          func(ctx context.Context, path string, body any, out any) error
	putFn           func(ctx context.Context, path string, body any, out any) error
	deleteFn        func(ctx context.Context, path string) error
	postMultipartFn func(ctx context.Context, path string, form *api.FormPayload, out any) error
	putMultipartFn  func(ctx context.Context, path string, form *api.FormPayload, out any) error

	postJSONCalls      int
	postMultipartCalls int
	putJSONCalls       int
	putMultipartCalls  int
}

func (m *mockServiceGateway) GetJSON(ctx context.Context, pathOrURL string, out any) error {
	if m.getFn == nil {
		return nil
	}
	return m.getFn(ctx, pathOrURL, out)
}

func (m *mockServiceGateway) PostJSON(ctx context.Context, path string, body any, out any) error {
	m.postJSONCalls++
	if m.postFn == nil {
		return nil
	}
	return m.postFn(ctx, path, body, out)
}

func (m *mockServiceGateway) PutJSON(ctx context.Context, path string, body any, out any) error {
	m.putJSONCalls++
	if m.putFn == nil {
		return nil
	}
	return m.putFn(ctx, path, body, out)
}

func (m *mockServiceGateway) Delete(ctx context.Context, path string) error {
	if m.deleteFn == nil {
		return nil
	}
	return m.deleteFn(ctx, path)
}

func (m *mockServiceGateway) PostMultipart(ctx context.Context, path string, form *api.FormPayload, out any) error {
	m.postMultipartCalls++
	if m.postMultipartFn == nil {
		return nil
	}
	return m.postMultipartFn(ctx, path, form, out)
}

func (m *mockServiceGateway) PutMultipart(ctx context.Context, path string, form *api.FormPayload, out any) error {
	m.putMultipartCalls++
	if m.putMultipartFn == nil {
		return nil
	}
	return m.putMultipartFn(ctx, path, form, out)
}

var _ Gateway = (*mockServiceGateway)(nil)

// mockCacheRepo はテスト用のRecipeCacheRepository。
type mockCacheRepo struct {
	entries     map[int]*model.Recipe
	putCalls    int
	deleteCalls int
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{entries: make(map[int]*model.Recipe)}
}

func (m *mockCacheRepo) Get(_ context.Context, id int) (*model.Recipe, error) {
	r, ok := m.entries[id]
	if !ok {
		return nil, nil
	}
	return r, nil
}

func (m *mockCacheRepo) Put(_ context.Context, recipe *model.Recipe) error {
	m.putCalls++
	m.entries[recipe.ID] = recipe
	return nil
}

func (m *mockCacheRepo) Delete(_ context.Context, id int) error {
	m.deleteCalls++
	delete(m.entries, id)
	return nil
}

var _ repository.RecipeCacheRepository = (*mockCacheRepo)(nil)

func newTestService(gw Gateway, cache repository.RecipeCacheRepository) *Service {
	return NewService(gw, security.NewContentSanitizer(), cache, nil, slog.Default())
}

func testRecipe(id int) *model.Recipe {
	return &model.Recipe{
		RecipeSummary: model.RecipeSummary{
			ID:     id,
			Title:  fmt.Sprintf("recipe-%d", id),
			Author: "hitoshi",
		},
		Ingredients:  "じゃがいも、にんじん",
		Instructions: "切って煮る",
	}
}

func TestService_Get_ReturnsAndCachesRecipe(t *testing.T) {
	gw := &mockServiceGateway{getFn: func(_ context.Context, pathOrURL string, out any) error {
		if pathOrURL != "/recipes/5/" {
			return fmt.Errorf("unexpected path: %s", pathOrURL)
		}
		*out.(*model.Recipe) = *testRecipe(5)
		return nil
	}}
	cache := newMockCacheRepo()
	svc := newTestService(gw, cache)

	got, err := svc.Get(context.Background(), 5)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.ID != 5 || got.Title != "recipe-5" {
		t.Errorf("recipe = %+v, want id=5 title=recipe-5", got)
	}
	if cache.putCalls != 1 {
		t.Errorf("cache put calls = %d, want 1", cache.putCalls)
	}
}

// TestService_Get_NetworkFailure_FallsBackToCache はネットワーク障害時に
// キャッシュ済みコピーが返ることを検証する。
func TestService_Get_NetworkFailure_FallsBackToCache(t *testing.T) {
	gw := &mockServiceGateway{getFn: func(_ context.Context, _ string, _ any) error {
		return model.NewNetworkFailureError("connection refused")
	}}
	cache := newMockCacheRepo()
	cache.entries[5] = testRecipe(5)
	svc := newTestService(gw, cache)

	got, err := svc.Get(context.Background(), 5)
	if err != nil {
		t.Fatalf("expected cached fallback, got error %v", err)
	}
	if got.ID != 5 {
		t.Errorf("recipe ID = %d, want 5", got.ID)
	}
}

// TestService_Get_NotFound_DoesNotFallBackToCache はネットワーク障害以外のエラーが
// キャッシュで覆い隠されないことを検証する（削除済みレシピが蘇らない）。
func TestService_Get_NotFound_DoesNotFallBackToCache(t *testing.T) {
	gw := &mockServiceGateway{getFn: func(_ context.Context, pathOrURL string, _ any) error {
		return model.NewNotFoundError(pathOrURL)
	}}
	cache := newMockCacheRepo()
	cache.entries[5] = testRecipe(5)
	svc := newTestService(gw, cache)

	_, err := svc.Get(context.Background(), 5)
	if !model.IsKind(err, model.KindNotFound) {
		t.Errorf("error = %v, want not_found (キャッシュへフォールバックしない)", err)
	}
}

func TestService_Get_NetworkFailure_NoCacheEntry_ReturnsError(t *testing.T) {
	gw := &mockServiceGateway{getFn: func(_ context.Context, _ string, _ any) error {
		return model.NewNetworkFailureError("timeout")
	}}
	svc := newTestService(gw, newMockCacheRepo())

	_, err := svc.Get(context.Background(), 5)
	if !model.IsKind(err, model.KindNetworkFailure) {
		t.Errorf("error = %v, want network_failure", err)
	}
}

// TestService_Get_SanitizesFreeTextFields は受信本文の危険なマークアップが
// 除去されることを検証する。
func TestService_Get_SanitizesFreeTextFields(t *testing.T) {
	gw := &mockServiceGateway{getFn: func(_ context.Context, _ string, out any) error {
		r := testRecipe(5)
		r.Description = `<script>alert("x")</script>おいしい`
		r.Instructions = `<p>切って煮る</p><img src=x onerror=alert(1)>`
		*out.(*model.Recipe) = *r
		return nil
	}}
	svc := newTestService(gw, nil)

	got, err := svc.Get(context.Background(), 5)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if got.Description != "おいしい" {
		t.Errorf("Description = %q, want script tag stripped", got.Description)
	}
	if got.Instructions != "<p>切って煮る</p>" {
		t.Errorf("Instructions = %q, want img tag stripped", got.Instructions)
	}
}

// TestService_Create_WithoutImage_UsesJSON は画像なしの作成が
// JSONエンコードで送信されることを検証する。
func TestService_Create_WithoutImage_UsesJSON(t *testing.T) {
	gw := &mockServiceGateway{postFn: func(_ context.Context, path string, _ any, out any) error {
		if path != "/recipes/" {
			return fmt.Errorf("unexpected path: %s", path)
		}
		out.(*recipeEnvelope).Recipe = *testRecipe(10)
		return nil
	}}
	svc := newTestService(gw, nil)

	created, err := svc.Create(context.Background(), model.RecipeDraft{Title: "肉じゃが"}, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if gw.postJSONCalls != 1 || gw.postMultipartCalls != 0 {
		t.Errorf("calls = (json:%d, multipart:%d), want (1, 0)", gw.postJSONCalls, gw.postMultipartCalls)
	}
	if created.ID != 10 {
		t.Errorf("created ID = %d, want 10", created.ID)
	}
}

// TestService_Create_WithImage_UsesMultipart は画像付きの作成が
// multipart/form-dataで送信されることを検証する。
func TestService_Create_WithImage_UsesMultipart(t *testing.T) {
	var gotForm *api.FormPayload
	gw := &mockServiceGateway{postMultipartFn: func(_ context.Context, _ string, form *api.FormPayload, out any) error {
		gotForm = form
		out.(*recipeEnvelope).Recipe = *testRecipe(11)
		return nil
	}}
	svc := newTestService(gw, nil)

	draft := model.RecipeDraft{
		Title:    "カレーライス",
		Servings: 4,
	}
	image := &model.ImageAttachment{
		Filename:    "curry.jpg",
		ContentType: "image/jpeg",
		Data:        []byte("fake"),
	}

	if _, err := svc.Create(context.Background(), draft, image); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if gw.postMultipartCalls != 1 || gw.postJSONCalls != 0 {
		t.Errorf("calls = (json:%d, multipart:%d), want (0, 1)", gw.postJSONCalls, gw.postMultipartCalls)
	}
	if gotForm.Fields["title"] != "カレーライス" || gotForm.Fields["servings"] != "4" {
		t.Errorf("form fields = %v, want title/servings mapped", gotForm.Fields)
	}
	if gotForm.File == nil || gotForm.File.FieldName != "image" || gotForm.File.Filename != "curry.jpg" {
		t.Errorf("form file = %+v, want image part", gotForm.File)
	}
}

// TestService_Create_DataEnvelopeVariant は{"data":{...}}形式のレスポンスでも
// 作成結果が取り出せることを検証する。
func TestService_Create_DataEnvelopeVariant(t *testing.T) {
	gw := &mockServiceGateway{postFn: func(_ context.Context, _ string, _ any, out any) error {
		out.(*recipeEnvelope).Data = testRecipe(12)
		return nil
	}}
	svc := newTestService(gw, nil)

	created, err := svc.Create(context.Background(), model.RecipeDraft{Title: "味噌汁"}, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if created.ID != 12 {
		t.Errorf("created ID = %d, want 12", created.ID)
	}
}

func TestService_Update_WithImage_UsesMultipart(t *testing.T) {
	gw := &mockServiceGateway{putMultipartFn: func(_ context.Context, path string, _ *api.FormPayload, out any) error {
		if path != "/recipes/7/" {
			return fmt.Errorf("unexpected path: %s", path)
		}
		out.(*recipeEnvelope).Recipe = *testRecipe(7)
		return nil
	}}
	svc := newTestService(gw, nil)

	image := &model.ImageAttachment{Filename: "new.png", ContentType: "image/png", Data: []byte("x")}
	updated, err := svc.Update(context.Background(), 7, model.RecipeDraft{Title: "recipe-7"}, image)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if gw.putMultipartCalls != 1 || gw.putJSONCalls != 0 {
		t.Errorf("calls = (json:%d, multipart:%d), want (0, 1)", gw.putJSONCalls, gw.putMultipartCalls)
	}
	if updated.ID != 7 {
		t.Errorf("updated ID = %d, want 7", updated.ID)
	}
}

func TestService_Update_PropagatesValidationError(t *testing.T) {
	gw := &mockServiceGateway{putFn: func(_ context.Context, _ string, _ any, _ any) error {
		return model.NewValidationFailedError(map[string][]string{"title": {"この項目は空にできません。"}})
	}}
	svc := newTestService(gw, nil)

	_, err := svc.Update(context.Background(), 7, model.RecipeDraft{}, nil)
	if !model.IsKind(err, model.KindValidationFailed) {
		t.Errorf("error = %v, want validation_failed", err)
	}
}

// TestService_Delete_RemovesCacheEntry は削除成功時にキャッシュの
// 対応エントリも消えることを検証する。
func TestService_Delete_RemovesCacheEntry(t *testing.T) {
	var gotPath string
	gw := &mockServiceGateway{deleteFn: func(_ context.Context, path string) error {
		gotPath = path
		return nil
	}}
	cache := newMockCacheRepo()
	cache.entries[7] = testRecipe(7)
	svc := newTestService(gw, cache)

	if err := svc.Delete(context.Background(), 7); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if gotPath != "/recipes/7/" {
		t.Errorf("path = %q, want /recipes/7/", gotPath)
	}
	if _, ok := cache.entries[7]; ok {
		t.Error("expected cache entry to be removed")
	}
}

func TestService_Delete_ServerRejection_KeepsCacheIntact(t *testing.T) {
	gw := &mockServiceGateway{deleteFn: func(_ context.Context, _ string) error {
		return model.NewUnauthorizedError()
	}}
	cache := newMockCacheRepo()
	cache.entries[7] = testRecipe(7)
	svc := newTestService(gw, cache)

	if err := svc.Delete(context.Background(), 7); err == nil {
		t.Fatal("expected error from rejected delete")
	}
	if cache.deleteCalls != 0 {
		t.Errorf("cache delete calls = %d, want 0", cache.deleteCalls)
	}
}
