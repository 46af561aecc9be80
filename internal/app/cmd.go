package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandBrowse は公開レシピフィードを対話的に閲覧するモード。
	CommandBrowse Command = "browse"
	// CommandMine はログイン中ユーザーのレシピ一覧を全件表示するモード。
	CommandMine Command = "mine"
	// CommandShow はレシピ詳細を表示するモード。
	CommandShow Command = "show"
	// CommandNew はレシピを新規作成するモード。
	CommandNew Command = "new"
	// CommandEdit はレシピを更新するモード。
	CommandEdit Command = "edit"
	// CommandDelete はレシピを削除するモード。
	CommandDelete Command = "delete"
	// CommandLogin はログインを行うモード。
	CommandLogin Command = "login"
	// CommandLogout はログアウトを行うモード。
	CommandLogout Command = "logout"
	// CommandRegister はアカウント登録を行うモード。
	CommandRegister Command = "register"
	// CommandWatch は公開フィードの新着を監視する常駐モード。
	CommandWatch Command = "watch"
	// CommandMigrate はローカル状態DBのマイグレーションを実行するモード。
	CommandMigrate Command = "migrate"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandBrowseと引数全体を返す。
// サブコマンドが認識された場合は残りの引数を2番目の戻り値で返す。
func ParseCommand(args []string) (Command, []string) {
	if len(args) == 0 {
		return CommandBrowse, nil
	}

	switch args[0] {
	case "browse":
		return CommandBrowse, args[1:]
	case "mine":
		return CommandMine, args[1:]
	case "show":
		return CommandShow, args[1:]
	case "new":
		return CommandNew, args[1:]
	case "edit":
		return CommandEdit, args[1:]
	case "delete":
		return CommandDelete, args[1:]
	case "login":
		return CommandLogin, args[1:]
	case "logout":
		return CommandLogout, args[1:]
	case "register":
		return CommandRegister, args[1:]
	case "watch":
		return CommandWatch, args[1:]
	case "migrate":
		return CommandMigrate, args[1:]
	default:
		return CommandBrowse, args
	}
}
