package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/recipeman/internal/feed"
	"github.com/hitoshi/recipeman/internal/model"
	"github.com/hitoshi/recipeman/internal/recipe"
)

// runLogin はログインを実行する。
// ユーザー名は引数またはプロンプトから、パスワードは常に標準入力から読み取る
// （コマンドライン引数経由のパスワードはシェル履歴に残るため受け付けない）。
func runLogin(ctx context.Context, a *App, out io.Writer, args []string) error {
	reader := bufio.NewReader(osStdin)

	var username string
	if len(args) > 0 {
		username = args[0]
	} else {
		username = prompt(reader, out, "Username")
	}
	password := prompt(reader, out, "Password")

	if err := a.authSvc.Login(ctx, username, password); err != nil {
		return loginFailure(out, err)
	}

	session := a.store.Current()
	fmt.Fprintf(out, "logged in as %s (user_id=%d)\n", session.Identity.Username, session.Identity.UserID)
	return nil
}

// loginFailure はログイン失敗をユーザー向けに整形する。
// エラーは制御されない形でUI層へ投げず、メッセージとして表示する。
func loginFailure(out io.Writer, err error) error {
	if apiErr, ok := model.AsAPIError(err); ok {
		fmt.Fprintf(out, "login failed: %s\n", apiErr.Message)
		if apiErr.Action != "" {
			fmt.Fprintln(out, apiErr.Action)
		}
		return nil
	}
	return err
}

// runLogout はログアウトを実行する。
// サーバー側の無効化が失敗してもローカルセッションはクリアされる。
func runLogout(ctx context.Context, a *App, out io.Writer) error {
	if !a.store.LoggedIn() {
		fmt.Fprintln(out, "not logged in")
		return nil
	}

	if err := a.authSvc.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "logged out")
	return nil
}

// runRegister はアカウント登録を実行する。登録後のセッションは確立されない。
func runRegister(ctx context.Context, a *App, out io.Writer) error {
	reader := bufio.NewReader(osStdin)

	profile := model.Profile{
		Username:    prompt(reader, out, "Username"),
		Email:       prompt(reader, out, "Email"),
		Password:    prompt(reader, out, "Password"),
		FirstName:   prompt(reader, out, "First name (optional)"),
		LastName:    prompt(reader, out, "Last name (optional)"),
		Bio:         prompt(reader, out, "Bio (optional)"),
		DateOfBirth: prompt(reader, out, "Date of birth YYYY-MM-DD (optional)"),
	}

	if err := a.authSvc.Register(ctx, profile); err != nil {
		if apiErr, ok := model.AsAPIError(err); ok && apiErr.Kind == model.KindValidationFailed {
			fmt.Fprintf(out, "registration rejected: %s\n", apiErr.Message)
			printFieldErrors(out, apiErr.Fields)
			return nil
		}
		return err
	}

	fmt.Fprintln(out, "account created. run `recipeman login` to sign in.")
	return nil
}

// runBrowse は公開レシピフィードを対話的に閲覧する。
// 表示が一覧の末尾（番兵）に達したことをEnter入力で通知し、
// トリガー経由で次ページの取得を要求する。
func runBrowse(ctx context.Context, a *App, out io.Writer) error {
	loader := a.newLoader(recipe.PathAllRecipes)
	trigger := feed.NewTrigger(loader, slog.Default())

	go trigger.Run(ctx)
	defer trigger.Detach()

	if err := loader.FetchFirstPage(ctx); err != nil {
		return feedFailure(out, loader.Snapshot())
	}

	snapshot := loader.Snapshot()
	fmt.Fprintf(out, "%d recipes\n\n", snapshot.TotalCount)
	printSummaries(out, snapshot.Items)

	reader := bufio.NewReader(osStdin)
	for snapshot.HasMore() {
		fmt.Fprint(out, "\n-- more -- [Enter]=load next page, q=quit: ")
		line, err := reader.ReadString('\n')
		if err != nil || strings.TrimSpace(line) == "q" {
			return nil
		}

		rendered := len(snapshot.Items)
		prevCursor := snapshot.NextCursor

		// 末尾の番兵がビューポートに入った
		trigger.SetVisible(true)
		next, err := awaitPage(ctx, loader, prevCursor)
		// 描画が進み番兵はビューポートから出た
		trigger.SetVisible(false)
		if err != nil {
			return err
		}

		snapshot = next
		if snapshot.Err != nil {
			return feedFailure(out, snapshot)
		}
		printSummaries(out, snapshot.Items[rendered:])
	}

	fmt.Fprintln(out, "\nend of feed")
	return nil
}

// awaitPage はトリガー発火後、カーソルが進むかエラーが記録されるまで待つ。
// 待機の上限はトランスポートタイムアウトに余裕を足した値。
func awaitPage(ctx context.Context, loader *feed.Loader, prevCursor string) (feed.Snapshot, error) {
	deadline := time.Now().Add(30 * time.Second)

	for {
		snapshot := loader.Snapshot()
		if !snapshot.Loading && (snapshot.NextCursor != prevCursor || snapshot.Err != nil) {
			return snapshot, nil
		}
		if time.Now().After(deadline) {
			return snapshot, fmt.Errorf("timed out waiting for next page")
		}

		select {
		case <-ctx.Done():
			return snapshot, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// runMine はログイン中ユーザーのレシピを全ページ取得して表示する。
func runMine(ctx context.Context, a *App, out io.Writer) error {
	if !a.store.LoggedIn() {
		return model.NewNotLoggedInError()
	}

	loader := a.newLoader(recipe.PathMyRecipes)
	if err := loader.FetchFirstPage(ctx); err != nil {
		return feedFailure(out, loader.Snapshot())
	}

	// カーソルが尽きるまで直列に取得する
	for loader.Snapshot().HasMore() {
		if err := loader.FetchNextPage(ctx); err != nil {
			return feedFailure(out, loader.Snapshot())
		}
	}

	snapshot := loader.Snapshot()
	fmt.Fprintf(out, "%d recipes\n\n", len(snapshot.Items))
	printSummaries(out, snapshot.Items)
	return nil
}

// runShow はレシピ詳細を表示する。
func runShow(ctx context.Context, a *App, out io.Writer, args []string) error {
	id, err := parseIDArg(args)
	if err != nil {
		return err
	}

	r, err := a.recipes.Get(ctx, id)
	if err != nil {
		return err
	}

	printRecipe(out, r)
	return nil
}

// runNew はレシピを新規作成する。
func runNew(ctx context.Context, a *App, out io.Writer) error {
	if !a.store.LoggedIn() {
		return model.NewNotLoggedInError()
	}

	reader := bufio.NewReader(osStdin)
	draft := promptDraft(reader, out)

	image, err := promptImage(reader, out)
	if err != nil {
		return err
	}

	created, err := a.recipes.Create(ctx, draft, image)
	if err != nil {
		if apiErr, ok := model.AsAPIError(err); ok && apiErr.Kind == model.KindValidationFailed {
			fmt.Fprintf(out, "recipe rejected: %s\n", apiErr.Message)
			printFieldErrors(out, apiErr.Fields)
			return nil
		}
		return err
	}

	fmt.Fprintf(out, "created recipe #%d %q\n", created.ID, created.Title)
	return nil
}

// runEdit はレシピを更新する。全フィールドを再入力して置き換える。
func runEdit(ctx context.Context, a *App, out io.Writer, args []string) error {
	if !a.store.LoggedIn() {
		return model.NewNotLoggedInError()
	}

	id, err := parseIDArg(args)
	if err != nil {
		return err
	}

	reader := bufio.NewReader(osStdin)
	draft := promptDraft(reader, out)

	image, err := promptImage(reader, out)
	if err != nil {
		return err
	}

	updated, err := a.recipes.Update(ctx, id, draft, image)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "updated recipe #%d %q\n", updated.ID, updated.Title)
	return nil
}

// runDelete はレシピを削除する。削除前に確認を求める。
func runDelete(ctx context.Context, a *App, out io.Writer, args []string) error {
	if !a.store.LoggedIn() {
		return model.NewNotLoggedInError()
	}

	id, err := parseIDArg(args)
	if err != nil {
		return err
	}

	reader := bufio.NewReader(osStdin)
	answer := prompt(reader, out, fmt.Sprintf("delete recipe #%d? [y/N]", id))
	if !strings.EqualFold(answer, "y") {
		fmt.Fprintln(out, "aborted")
		return nil
	}

	if err := a.recipes.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(out, "deleted recipe #%d\n", id)
	return nil
}

// --- 入出力ヘルパー ---

// prompt はラベルを表示して1行読み取る。前後の空白は除去される。
func prompt(reader *bufio.Reader, out io.Writer, label string) string {
	fmt.Fprintf(out, "%s: ", label)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

// promptInt は整数を読み取る。不正な入力は0として扱う。
func promptInt(reader *bufio.Reader, out io.Writer, label string) int {
	n, _ := strconv.Atoi(prompt(reader, out, label))
	return n
}

// promptDraft はレシピの入力フィールド一式を読み取る。
func promptDraft(reader *bufio.Reader, out io.Writer) model.RecipeDraft {
	difficulty := model.Difficulty(prompt(reader, out, "Difficulty (easy/medium/hard)"))
	if difficulty == "" {
		difficulty = model.DifficultyMedium
	}

	return model.RecipeDraft{
		Title:           prompt(reader, out, "Title"),
		Description:     prompt(reader, out, "Description"),
		Ingredients:     prompt(reader, out, "Ingredients"),
		Instructions:    prompt(reader, out, "Instructions"),
		PreparationTime: promptInt(reader, out, "Preparation time (minutes)"),
		CookingTime:     promptInt(reader, out, "Cooking time (minutes)"),
		Servings:        promptInt(reader, out, "Servings"),
		Difficulty:      difficulty,
		Category:        prompt(reader, out, "Category"),
		Cuisine:         prompt(reader, out, "Cuisine"),
	}
}

// promptImage は添付画像のパスを読み取り、ファイルを読み込む。
// 空入力の場合は添付なし（nil）を返す。
func promptImage(reader *bufio.Reader, out io.Writer) (*model.ImageAttachment, error) {
	path := prompt(reader, out, "Image file (optional)")
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	return &model.ImageAttachment{
		Filename:    filepath.Base(path),
		ContentType: contentType,
		Data:        data,
	}, nil
}

// parseIDArg は先頭引数からレシピIDを取り出す。
func parseIDArg(args []string) (int, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("recipe ID is required")
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid recipe ID %q", args[0])
	}
	return id, nil
}

// printSummaries はレシピサマリーの一覧を出力する。
func printSummaries(out io.Writer, items []model.RecipeSummary) {
	for _, item := range items {
		fmt.Fprintf(out, "#%-5d %-40s %s / %s  by %s\n",
			item.ID, item.Title, item.Category, item.Cuisine, item.Author)
	}
}

// printRecipe はレシピ詳細を出力する。
func printRecipe(out io.Writer, r *model.Recipe) {
	fmt.Fprintf(out, "#%d %s\n", r.ID, r.Title)
	fmt.Fprintf(out, "by %s | %s / %s | %s\n", r.Author, r.Category, r.Cuisine, r.Difficulty)
	fmt.Fprintf(out, "prep %dmin / cook %dmin / serves %d\n\n", r.PreparationTime, r.CookingTime, r.Servings)
	if r.Description != "" {
		fmt.Fprintf(out, "%s\n\n", r.Description)
	}
	fmt.Fprintf(out, "Ingredients:\n%s\n\nInstructions:\n%s\n", r.Ingredients, r.Instructions)
}

// printFieldErrors はフィールド単位のバリデーション詳細を出力する。
func printFieldErrors(out io.Writer, fields map[string][]string) {
	for name, msgs := range fields {
		for _, msg := range msgs {
			fmt.Fprintf(out, "  %s: %s\n", name, msg)
		}
	}
}

// feedFailure はフィード取得失敗をユーザー向けに整形する。
func feedFailure(out io.Writer, snapshot feed.Snapshot) error {
	if snapshot.Err == nil {
		return fmt.Errorf("feed fetch failed")
	}
	fmt.Fprintf(out, "failed to load feed: %s\n", snapshot.Err.Message)
	if snapshot.Err.Action != "" {
		fmt.Fprintln(out, snapshot.Err.Action)
	}
	return nil
}
