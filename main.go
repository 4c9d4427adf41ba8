package main

import (
	"github.com/joho/godotenv"

	"github.com/shouni/go-paper-manga/cmd"
)

// main はアプリケーションの唯一のエントリーポイントなのだ！
// コマンドライン引数の解析と実行はすべて cmd パッケージに委ねるのだよ。
func main() {
	// .env があれば読み込むのだ。無くてもエラーにはしないのだ。
	_ = godotenv.Load()

	cmd.Execute()
}
