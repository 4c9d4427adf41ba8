// Package pipeline は、論文テキストから漫画ストリップまでの生成工程を束ねるのだ。
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shouni/go-http-kit/httpkit"

	"github.com/shouni/go-paper-manga/internal/compose"
	"github.com/shouni/go-paper-manga/internal/config"
	"github.com/shouni/go-paper-manga/internal/engine"
	"github.com/shouni/go-paper-manga/internal/planner"
	"github.com/shouni/go-paper-manga/internal/progress"
	"github.com/shouni/go-paper-manga/internal/render"
	"github.com/shouni/go-paper-manga/pkg/domain"
)

// Result は1回の生成工程の最終成果物なのだ。
type Result struct {
	Storyboard *domain.Storyboard
	Panels     []domain.RenderedPanel
	Image      []byte
	MimeType   string
}

// Pipeline は構成案の生成から画像の合成までを順に実行する構造体なのだ。
type Pipeline struct {
	planner  planner.Planner
	renderer render.Renderer
	tracker  *progress.Tracker
}

// New は組み立て済みの部品から Pipeline を生成するのだ。
func New(p planner.Planner, r render.Renderer, tracker *progress.Tracker) *Pipeline {
	return &Pipeline{planner: p, renderer: r, tracker: tracker}
}

// Build は設定からエンジンと各部品を初期化して Pipeline を組み立てるのだ。
func Build(ctx context.Context, cfg *config.Config, tracker *progress.Tracker) (*Pipeline, error) {
	eng, err := engine.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("生成エンジンの初期化に失敗したのだ: %w", err)
	}

	httpClient := httpkit.New(cfg.HTTPTimeout)
	storyboardPlanner := planner.NewStoryboardPlanner(eng, cfg.CacheTTL)
	batchRenderer := render.NewBatchRenderer(eng, httpClient, tracker, cfg.RateInterval, cfg.RenderRetries)
	batchRenderer.SetBatchPolicy(cfg.BatchCharLimitSingle, cfg.BatchCharLimitPair, cfg.MaxBatchSize)

	return New(storyboardPlanner, batchRenderer, tracker), nil
}

// Plan は構成案の生成だけを実行するのだ。進行状況はトラッカーに反映されるのだ。
func (p *Pipeline) Plan(ctx context.Context, req domain.StoryboardRequest) (*domain.Storyboard, error) {
	p.tracker.Reset()
	p.tracker.SetStage(progress.StageStoryboard, "構成案を生成中")

	storyboard, err := p.planner.Plan(ctx, req)
	if err != nil {
		p.tracker.SetStage(progress.StageError, err.Error())
		return nil, err
	}
	return storyboard, nil
}

// Generate は構成案の生成、コマの描画、ストリップの合成までを一気に実行するのだ。
// 途中で失敗した場合は部分的な成果物を返さず、トラッカーをエラー状態にして終わるのだ。
func (p *Pipeline) Generate(ctx context.Context, req domain.StoryboardRequest) (*Result, error) {
	storyboard, err := p.Plan(ctx, req)
	if err != nil {
		return nil, err
	}
	return p.generate(ctx, storyboard)
}

// GenerateFromStoryboard は、外から渡された構成案で描画と合成を実行するのだ。
// 構成案をクライアント側で編集してから生成し直すユースケースのために公開しているのだ。
// Plan を通らないため、ここで進捗をリセットしてから開始するのだ。
func (p *Pipeline) GenerateFromStoryboard(ctx context.Context, storyboard *domain.Storyboard) (*Result, error) {
	p.tracker.Reset()
	return p.generate(ctx, storyboard)
}

// generate は構成案の検証、コマの描画、ストリップの合成を実行するのだ。
// クライアント編集後の構成案も通るので、コマ番号の検証はここで必ずやり直すのだ。
func (p *Pipeline) generate(ctx context.Context, storyboard *domain.Storyboard) (*Result, error) {
	if err := storyboard.Validate(); err != nil {
		p.tracker.SetStage(progress.StageError, err.Error())
		return nil, err
	}

	p.tracker.SetStage(progress.StageGenerating, "コマを描画中")

	rendered, err := p.renderer.Render(ctx, storyboard)
	if err != nil {
		p.tracker.SetStage(progress.StageError, err.Error())
		return nil, err
	}

	strip, err := compose.ComposeStrip(rendered, len(storyboard.Panels))
	if err != nil {
		p.tracker.SetStage(progress.StageError, err.Error())
		return nil, err
	}

	p.tracker.SetStage(progress.StageCompleted, "漫画の生成が完了したのだ")
	slog.InfoContext(ctx, "漫画ストリップが完成したのだ",
		"title", storyboard.Title, "panels", len(storyboard.Panels), "bytes", len(strip))

	return &Result{
		Storyboard: storyboard,
		Panels:     rendered,
		Image:      strip,
		MimeType:   "image/png",
	}, nil
}

// ClearCache は構成案キャッシュを破棄して件数を返すのだ。
func (p *Pipeline) ClearCache() int {
	return p.planner.ClearCache()
}
