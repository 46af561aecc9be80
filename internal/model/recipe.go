// Package model はドメインモデルを定義する。
package model

import "time"

// Difficulty はレシピの難易度を表す。
type Difficulty string

const (
	// DifficultyEasy は初心者向けの難易度。
	DifficultyEasy Difficulty = "easy"
	// DifficultyMedium は標準の難易度。
	DifficultyMedium Difficulty = "medium"
	// DifficultyHard は上級者向けの難易度。
	DifficultyHard Difficulty = "hard"
)

// RecipeSummary は一覧表示用のレシピサマリーを表す。
// IDがフィードマージ時の重複排除キーとなる。
type RecipeSummary struct {
	ID              int        `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	PreparationTime int        `json:"preparation_time"`
	CookingTime     int        `json:"cooking_time"`
	Servings        int        `json:"servings"`
	Difficulty      Difficulty `json:"difficulty"`
	Category        string     `json:"category"`
	Cuisine         string     `json:"cuisine"`
	Author          string     `json:"author"`
	ImageURL        string     `json:"image,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Recipe はレシピ詳細を表す。
type Recipe struct {
	RecipeSummary
	Ingredients  string `json:"ingredients"`
	Instructions string `json:"instructions"`
}

// RecipeDraft はレシピの作成・更新で送信する入力値を表す。
// author、タイムスタンプはサーバー側で付与されるためここには含まれない。
type RecipeDraft struct {
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Ingredients     string     `json:"ingredients"`
	Instructions    string     `json:"instructions"`
	PreparationTime int        `json:"preparation_time"`
	CookingTime     int        `json:"cooking_time"`
	Servings        int        `json:"servings"`
	Difficulty      Difficulty `json:"difficulty"`
	Category        string     `json:"category"`
	Cuisine         string     `json:"cuisine"`
}

// ImageAttachment はレシピに添付する画像ファイルを表す。
// 中身は不透明なバイナリペイロードとして扱い、エンコードの詳細には踏み込まない。
type ImageAttachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// RecipePage はページネーションされた一覧取得の1回分の結果を表す。
// NextはサーバーがそのままURLとして返す不透明カーソル。空文字列は終端を意味する。
type RecipePage struct {
	Count    int             `json:"count"`
	Next     string          `json:"next"`
	Previous string          `json:"previous"`
	Results  []RecipeSummary `json:"results"`
}
