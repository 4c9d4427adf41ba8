package cmd

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/shouni/go-paper-manga/internal/pipeline"
	"github.com/shouni/go-paper-manga/internal/progress"
	"github.com/shouni/go-paper-manga/internal/server"

	"github.com/spf13/cobra"
)

// serveCmd は、漫画生成APIサーバーを起動するのだ。
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "漫画生成のHTTP APIサーバーを起動しますなのだ。",
	Long: `PDFのアップロード、構成案の生成、漫画の描画をHTTP APIとして公開するのだ。
進行状況は GET /api/manga/progress でポーリングできるのだよ。`,
	RunE: serveCommand,
}

func serveCommand(cmd *cobra.Command, args []string) error {
	// Ctrl+C や SIGTERM で安全に停止できるようにするのだ
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := loadConfig()
	tracker := progress.NewTracker()

	pipe, err := pipeline.Build(ctx, cfg, tracker)
	if err != nil {
		return fmt.Errorf("パイプラインの構築に失敗したのだ: %w", err)
	}

	slog.Info("漫画生成サーバーを起動するのだ！",
		"addr", cfg.ListenAddr,
		"provider", cfg.ActiveProvider().Name)

	if err := server.New(cfg, pipe, tracker).Run(ctx); err != nil {
		return fmt.Errorf("サーバーの実行中にエラーが発生したのだ: %w", err)
	}

	slog.Info("サーバーを停止したのだ")
	return nil
}
