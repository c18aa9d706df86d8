package app

// Command はclosetiqバイナリのサブコマンド。
type Command string

const (
	// CommandServe はREST APIと/ws/chatを提供するサーバーを起動する。
	CommandServe Command = "serve"
	// CommandWorker は期限切れおすすめを削除するcronワーカーを起動する。
	CommandWorker Command = "worker"
	// CommandMigrate は埋め込みのスキーマを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は/healthを叩いて終了コードで結果を返す。
	// distrolessイメージにはcurlがないため、Dockerのヘルスチェックはこれを使う。
	CommandHealthcheck Command = "healthcheck"
)

var commands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand は先頭の引数をサブコマンドとして解釈する。
// 引数なしや未知の名前はserveとして扱い、2つ目以降の引数は見ない。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := commands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}
