// Package model はドメインモデルを定義する。
package model

// Identity はログイン中ユーザーの識別情報を表す。
// ログインレスポンスの {token, user_id, email} とログインフォームのusernameから構成される。
type Identity struct {
	UserID   int
	Username string
	Email    string
}

// Session はクライアント側の認証セッションを表す。
// Tokenはバックエンドが発行する不透明な認証トークン。
// Session値が存在する場合、クレデンシャルと識別情報は必ず両方揃っている
// （部分セッションは構造上作れない）。
type Session struct {
	Token    string
	Identity Identity
}

// Profile はアカウント登録時に送信するプロフィール全項目を表す。
// 登録コントラクトはフルプロフィール版を採用する（登録とログインは分離されており、
// 登録成功後もセッションは確立されない）。
type Profile struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Bio         string `json:"bio,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
}
