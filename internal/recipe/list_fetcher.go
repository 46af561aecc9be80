package recipe

import (
	"context"
	"fmt"
	"net/url"

	"github.com/hitoshi/recipeman/internal/feed"
	"github.com/hitoshi/recipeman/internal/model"
	"github.com/hitoshi/recipeman/internal/security"
)

// 一覧リソースのベースパス。
const (
	// PathAllRecipes は公開レシピフィードの一覧パス。
	PathAllRecipes = "/recipes/"
	// PathMyRecipes はログイン中ユーザーのレシピに限定した一覧パス。
	PathMyRecipes = "/my-recipes/"
)

// PublicUserRecipesPath は指定ユーザーの公開レシピ一覧のパスを返す。
func PublicUserRecipesPath(username string) string {
	return fmt.Sprintf("/users/%s/public-recipes/", url.PathEscape(username))
}

// ListFetcher は1つの一覧リソースのページ取得を行うfeed.PageFetcher実装。
// カーソルURLはサーバー提供の不透明な値であり、辿る前にオリジンガードで検証する。
type ListFetcher struct {
	gw       Gateway
	guard    security.OriginGuardService
	basePath string
}

// NewListFetcher はListFetcherを生成する。
// basePathにはPathAllRecipes、PathMyRecipes等の一覧パスを指定する。
func NewListFetcher(gw Gateway, guard security.OriginGuardService, basePath string) *ListFetcher {
	return &ListFetcher{
		gw:       gw,
		guard:    guard,
		basePath: basePath,
	}
}

// FetchPage は1ページ分の一覧を取得する。
// pageURLが空の場合はベースパスのデフォルト一覧を取得する。
// カーソルがAPIオリジン外を指す場合は取得せずにエラーを返す。
func (f *ListFetcher) FetchPage(ctx context.Context, pageURL string) (*model.RecipePage, error) {
	target := f.basePath
	if pageURL != "" {
		if err := f.guard.ValidateCursorURL(pageURL); err != nil {
			return nil, model.NewCursorRejectedError(pageURL)
		}
		target = pageURL
	}

	page := &model.RecipePage{}
	if err := f.gw.GetJSON(ctx, target, page); err != nil {
		return nil, err
	}
	return page, nil
}

// compile-time interface check
var _ feed.PageFetcher = (*ListFetcher)(nil)
