package cmd

import (
	"fmt"
	"os"

	"github.com/shouni/go-paper-manga/internal/config"

	clibase "github.com/shouni/go-cli-base"
	"github.com/spf13/cobra"
)

// opts は各コマンドで共有するコマンドライン引数の置き場なのだ。
var opts config.GenerateOptions

// addAppFlags は、アプリケーション全般に適用されるグローバルフラグを定義するのだ。
func addAppFlags(rootCmd *cobra.Command) {
	// --- ソース入力関連 ---
	rootCmd.PersistentFlags().StringVarP(&opts.PDFFile, "pdf-file", "f", "", "入力する論文PDFのパス（ローカル or gs://...）なのだ。")
	rootCmd.PersistentFlags().StringVarP(&opts.OutputFile, "output-file", "o", config.DefaultLocalFile, "保存パス（ローカル or gs://...）なのだ。")
	rootCmd.PersistentFlags().StringVarP(&opts.Title, "title", "t", "", "漫画のタイトル。省略するとAIが論文から決めるのだ。")

	// --- 生成設定 ---
	rootCmd.PersistentFlags().StringVar(&opts.Theme, "theme", "", "作画テーマ（chiikawa / zundamon / watercolor）なのだ。")
	rootCmd.PersistentFlags().StringVarP(&opts.Language, "language", "l", "ja-JP", "セリフの言語コードなのだ。")
	rootCmd.PersistentFlags().IntVarP(&opts.PanelCount, "panel-count", "p", 8, "生成するコマ数なのだ。")

	// --- AIモデル・挙動設定 ---
	rootCmd.PersistentFlags().StringVar(&opts.Provider, "provider", "", "モデル提供元（openrouter / gemini）なのだ。")
	rootCmd.PersistentFlags().StringVar(&opts.TextModel, "model", "", "構成案の生成に使うモデル名なのだ。")
	rootCmd.PersistentFlags().StringVar(&opts.ImageModel, "image-model", "", "作画に使うモデル名なのだ。")
	rootCmd.PersistentFlags().DurationVar(&opts.Timeout, "http-timeout", config.DefaultHTTPTimeout, "生成リクエストのタイムアウトなのだ。")
}

// preRunAppE は、コマンド実行前に環境変数などの必須チェックを行うのだ。
func preRunAppE(cmd *cobra.Command, args []string) error {
	// どちらかの提供元のAPIキーがないと何も生成できないのだ！
	if os.Getenv("OPENROUTER_API_KEY") == "" && os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("エラー: 環境変数 OPENROUTER_API_KEY か GEMINI_API_KEY のどちらかが必要なのだ")
	}
	return nil
}

// loadConfig は環境変数の設定にコマンドラインフラグを上書きして返すのだ。
func loadConfig() *config.Config {
	cfg := config.LoadConfig()
	cfg.Options = opts

	if opts.Provider != "" {
		cfg.Provider = opts.Provider
	}
	if opts.Timeout > 0 {
		cfg.HTTPTimeout = opts.Timeout
	}
	if opts.TextModel != "" {
		cfg.OpenRouter.TextModel = opts.TextModel
		cfg.Gemini.TextModel = opts.TextModel
	}
	if opts.ImageModel != "" {
		cfg.OpenRouter.ImageModel = opts.ImageModel
		cfg.Gemini.ImageModel = opts.ImageModel
	}
	return cfg
}

// Execute は、アプリケーションのメインエントリポイントなのだ。
// main.go から呼び出されて、cobra のコマンドライン解析を開始するのだよ。
func Execute() {
	clibase.Execute(
		"paper-manga",
		addAppFlags,
		preRunAppE,
		serveCmd,
		generateCmd,
	)
}
