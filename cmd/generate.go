package cmd

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/shouni/go-paper-manga/internal/extract"
	"github.com/shouni/go-paper-manga/internal/pipeline"
	"github.com/shouni/go-paper-manga/internal/progress"
	"github.com/shouni/go-paper-manga/pkg/domain"

	"github.com/shouni/go-remote-io/pkg/gcsfactory"
	"github.com/spf13/cobra"
)

// generateCmd は、論文PDFから漫画ストリップを一発生成するのだ。
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "論文PDFから解説漫画を生成しますなのだ。",
	Long: `PDFのテキストを抽出し、構成案の生成、コマの描画、縦長ストリップへの合成までを一気に実行するのだ。
出力はPNG画像で、ローカルパスにも gs:// にも保存できるのだよ。`,
	RunE: generateCommand,
}

func generateCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if opts.PDFFile == "" {
		return fmt.Errorf("入力PDF（--pdf-file）を指定してほしいのだ")
	}

	cfg := loadConfig()

	// ローカルと gs:// の両方を同じインターフェースで読み書きするのだ
	gcsFactory, err := gcsfactory.New(ctx)
	if err != nil {
		return fmt.Errorf("ストレージクライアントの初期化に失敗したのだ: %w", err)
	}
	reader, err := gcsFactory.InputReader()
	if err != nil {
		return err
	}
	writer, err := gcsFactory.OutputWriter()
	if err != nil {
		return err
	}

	// 1. PDFを読み込んでテキストを抽出するのだ
	rc, err := reader.Open(ctx, opts.PDFFile)
	if err != nil {
		return fmt.Errorf("PDF '%s' の読み込みに失敗したのだ: %w", opts.PDFFile, err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return err
	}

	doc, err := extract.Extract(data, filepath.Base(opts.PDFFile))
	if err != nil {
		return fmt.Errorf("テキスト抽出に失敗したのだ: %w", err)
	}
	slog.Info("PDFのテキストを抽出したのだ", "pages", doc.PageCount, "chars", len(doc.FullText))

	// 2. 構成案の生成から合成までを実行するのだ
	tracker := progress.NewTracker()
	pipe, err := pipeline.Build(ctx, cfg, tracker)
	if err != nil {
		return fmt.Errorf("パイプラインの構築に失敗したのだ: %w", err)
	}

	result, err := pipe.Generate(ctx, domain.StoryboardRequest{
		Text:       doc.FullText,
		Title:      opts.Title,
		Theme:      opts.Theme,
		Language:   opts.Language,
		PanelCount: opts.PanelCount,
	})
	if err != nil {
		return fmt.Errorf("漫画の生成に失敗したのだ: %w", err)
	}

	// 3. 完成したストリップを保存するのだ
	outputPath := opts.OutputFile
	if err := writer.Write(ctx, outputPath, bytes.NewReader(result.Image), result.MimeType); err != nil {
		return fmt.Errorf("ストリップの保存に失敗したのだ: %w", err)
	}

	slog.Info("解説漫画が完成したのだ！",
		"title", result.Storyboard.Title,
		"panels", len(result.Storyboard.Panels),
		"path", outputPath)
	return nil
}
