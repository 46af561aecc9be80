// Package recipe はレシピリソースの取得・作成・更新・削除を提供する。
package recipe

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/hitoshi/recipeman/internal/api"
	"github.com/hitoshi/recipeman/internal/metrics"
	"github.com/hitoshi/recipeman/internal/model"
	"github.com/hitoshi/recipeman/internal/repository"
	"github.com/hitoshi/recipeman/internal/security"
)

// Gateway はレシピサービスが必要とするリクエストゲートウェイのインターフェース。
// api.Clientが実装する。
type Gateway interface {
	GetJSON(ctx context.Context, pathOrURL string, out any) error
	PostJSON(ctx context.Context, path string, body any, out any) error
	PutJSON(ctx context.Context, path string, body any, out any) error
	Delete(ctx context.Context, path string) error
	PostMultipart(ctx context.Context, path string, form *api.FormPayload, out any) error
	PutMultipart(ctx context.Context, path string, form *api.FormPayload, out any) error
}

// Service はレシピのCRUD操作を提供する。
// 受信したレシピ本文はサニタイズしてから呼び出し元へ返し、
// 詳細取得結果はローカルキャッシュへ書き込む。
type Service struct {
	gw        Gateway
	sanitizer security.ContentSanitizerService
	cache     repository.RecipeCacheRepository
	collector metrics.MetricsCollector
	logger    *slog.Logger
}

// NewService はServiceを生成する。
// cacheがnilの場合はキャッシュを使用しない。collectorがnilの場合はメトリクスを記録しない。
func NewService(
	gw Gateway,
	sanitizer security.ContentSanitizerService,
	cache repository.RecipeCacheRepository,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		gw:        gw,
		sanitizer: sanitizer,
		cache:     cache,
		collector: collector,
		logger:    logger,
	}
}

// Get はレシピ詳細を取得する。
// 成功時はサニタイズ済みの本文をキャッシュへ書き込む。
// ネットワーク障害時のみ、キャッシュ済みのコピーがあればそれへフォールバックする
// （その他のエラー種別はフォールバックで覆い隠さない）。
func (s *Service) Get(ctx context.Context, id int) (*model.Recipe, error) {
	recipe := &model.Recipe{}
	err := s.gw.GetJSON(ctx, fmt.Sprintf("/recipes/%d/", id), recipe)
	if err != nil {
		if model.IsKind(err, model.KindNetworkFailure) && s.cache != nil {
			cached, cacheErr := s.cache.Get(ctx, id)
			if cacheErr == nil && cached != nil {
				s.collector.RecordCacheHit()
				s.logger.Info("ネットワーク障害のためキャッシュ済みレシピを返します",
					slog.Int("recipe_id", id),
				)
				return cached, nil
			}
			s.collector.RecordCacheMiss()
		}
		return nil, err
	}

	s.sanitizeRecipe(recipe)
	s.writeCache(ctx, recipe)
	return recipe, nil
}

// Create はレシピを作成する。
// 画像が添付されている場合はmultipart/form-data、ない場合はJSONで送信する。
// エンコードモードの選択は呼び出し元（このサービス）が行い、ゲートウェイは推測しない。
func (s *Service) Create(ctx context.Context, draft model.RecipeDraft, image *model.ImageAttachment) (*model.Recipe, error) {
	var envelope recipeEnvelope
	var err error

	if image != nil {
		err = s.gw.PostMultipart(ctx, "/recipes/", draftForm(draft, image), &envelope)
	} else {
		err = s.gw.PostJSON(ctx, "/recipes/", draft, &envelope)
	}
	if err != nil {
		return nil, err
	}

	created := envelope.recipe()
	s.sanitizeRecipe(created)
	s.writeCache(ctx, created)

	s.logger.Info("レシピを作成しました",
		slog.Int("recipe_id", created.ID),
		slog.String("title", created.Title),
	)
	return created, nil
}

// Update はレシピを更新する。エンコードモードの規則はCreateと同じ。
func (s *Service) Update(ctx context.Context, id int, draft model.RecipeDraft, image *model.ImageAttachment) (*model.Recipe, error) {
	path := fmt.Sprintf("/recipes/%d/", id)

	var envelope recipeEnvelope
	var err error

	if image != nil {
		err = s.gw.PutMultipart(ctx, path, draftForm(draft, image), &envelope)
	} else {
		err = s.gw.PutJSON(ctx, path, draft, &envelope)
	}
	if err != nil {
		return nil, err
	}

	updated := envelope.recipe()
	if updated.ID == 0 {
		updated.ID = id
	}
	s.sanitizeRecipe(updated)
	s.writeCache(ctx, updated)

	s.logger.Info("レシピを更新しました",
		slog.Int("recipe_id", id),
	)
	return updated, nil
}

// Delete はレシピを削除する。作者本人のみ成功する（サーバー側で強制される）。
// ローカルキャッシュの対応エントリも削除する。
func (s *Service) Delete(ctx context.Context, id int) error {
	if err := s.gw.Delete(ctx, fmt.Sprintf("/recipes/%d/", id)); err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, id); err != nil {
			s.logger.Warn("キャッシュエントリの削除に失敗しました",
				slog.Int("recipe_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("レシピを削除しました",
		slog.Int("recipe_id", id),
	)
	return nil
}

// sanitizeRecipe は自由入力フィールドをサニタイズする。
func (s *Service) sanitizeRecipe(r *model.Recipe) {
	if s.sanitizer == nil {
		return
	}
	r.Description = s.sanitizer.Sanitize(r.Description)
	r.Ingredients = s.sanitizer.Sanitize(r.Ingredients)
	r.Instructions = s.sanitizer.Sanitize(r.Instructions)
}

// writeCache はレシピをキャッシュへ書き込む。失敗しても操作自体は成功扱いとする。
func (s *Service) writeCache(ctx context.Context, r *model.Recipe) {
	if s.cache == nil || r.ID == 0 {
		return
	}
	if err := s.cache.Put(ctx, r); err != nil {
		s.logger.Warn("レシピのキャッシュ書き込みに失敗しました",
			slog.Int("recipe_id", r.ID),
			slog.String("error", err.Error()),
		)
	}
}

// recipeEnvelope はレシピ系エンドポイントのレスポンス。
// バックエンドのバリアントによりレシピ本体がトップレベルまたは
// dataエンベロープ内で返るため両対応する。
type recipeEnvelope struct {
	model.Recipe
	Data *model.Recipe `json:"data"`
}

// recipe はエンベロープから実際のレシピを取り出す。
func (e *recipeEnvelope) recipe() *model.Recipe {
	if e.Data != nil && e.Data.ID != 0 {
		return e.Data
	}
	r := e.Recipe
	return &r
}

// draftForm はドラフトと画像をmultipartフォームへ変換する。
func draftForm(draft model.RecipeDraft, image *model.ImageAttachment) *api.FormPayload {
	form := &api.FormPayload{
		Fields: map[string]string{
			"title":            draft.Title,
			"description":      draft.Description,
			"ingredients":      draft.Ingredients,
			"instructions":     draft.Instructions,
			"preparation_time": strconv.Itoa(draft.PreparationTime),
			"cooking_time":     strconv.Itoa(draft.CookingTime),
			"servings":         strconv.Itoa(draft.Servings),
			"difficulty":       string(draft.Difficulty),
			"category":         draft.Category,
			"cuisine":          draft.Cuisine,
		},
	}
	if image != nil {
		form.File = &api.FilePart{
			FieldName:   "image",
			Filename:    image.Filename,
			ContentType: image.ContentType,
			Data:        image.Data,
		}
	}
	return form
}
