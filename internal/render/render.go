// Package render は、構成案の各コマを画像生成エンジンで描画します。
// セリフ量に応じて複数コマを1枚にまとめ、順次実行で確実に描き切ることを優先しています。
package render

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/shouni/gemini-image-kit/imgutil"

	"github.com/shouni/go-paper-manga/internal/engine"
	"github.com/shouni/go-paper-manga/internal/progress"
	"github.com/shouni/go-paper-manga/pkg/domain"
)

// HTTPClient は参照画像の取得に必要な最小限のHTTP機能です。
// httpkit のクライアントがこれを満たします。
type HTTPClient interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

const (
	defaultRateBurst = 2
	refCacheTTL      = 1 * time.Hour
	refJPEGQuality   = 85
)

// Renderer は構成案を描画するためのインターフェースを定義します。
type Renderer interface {
	Render(ctx context.Context, storyboard *domain.Storyboard) ([]domain.RenderedPanel, error)
}

// BatchRenderer は、コマをバッチ単位で順次描画する構造体です。
type BatchRenderer struct {
	imageEngine engine.ImageEngine
	httpClient  HTTPClient
	tracker     *progress.Tracker
	limiter     *rate.Limiter
	policy      batchPolicy
	retries     int
	refCache    *cache.Cache
}

// NewBatchRenderer は新しい BatchRenderer を生成します。
// rateInterval は画像生成リクエスト間の最小間隔、retries は失敗したバッチの再試行回数です。
func NewBatchRenderer(
	imageEngine engine.ImageEngine,
	httpClient HTTPClient,
	tracker *progress.Tracker,
	rateInterval time.Duration,
	retries int,
) *BatchRenderer {
	return &BatchRenderer{
		imageEngine: imageEngine,
		httpClient:  httpClient,
		tracker:     tracker,
		limiter:     rate.NewLimiter(rate.Every(rateInterval), defaultRateBurst),
		policy:      defaultBatchPolicy(),
		retries:     retries,
		refCache:    cache.New(refCacheTTL, refCacheTTL*2),
	}
}

// SetBatchPolicy はバッチサイズ決定のしきい値を設定値で上書きします。
func (r *BatchRenderer) SetBatchPolicy(charLimitSingle, charLimitPair, maxSize int) {
	r.policy = batchPolicy{
		charLimitSingle: charLimitSingle,
		charLimitPair:   charLimitPair,
		maxSize:         maxSize,
	}
}

// Render は構成案の全コマを描画し、番号順の描画結果を返します。
// いずれかのバッチが再試行しても失敗した場合は、部分的な結果を返さずエラーで終わります。
func (r *BatchRenderer) Render(ctx context.Context, storyboard *domain.Storyboard) ([]domain.RenderedPanel, error) {
	theme, err := domain.GetTheme(storyboard.Theme)
	if err != nil {
		return nil, &domain.RenderError{Err: err}
	}

	panels := storyboard.Panels.SortByNumber()
	total := len(panels)
	r.tracker.SetPanels(0, total, "キャラクターの参照画像を準備しています")

	refs, err := r.fetchReferences(ctx, theme)
	if err != nil {
		// 参照画像はキャラクターの一貫性を上げるための素材なので、取れなくても描画は続けます。
		slog.WarnContext(ctx, "参照画像の取得に失敗したため、参照なしで描画します", "error", err)
		refs = nil
	}

	rendered := make([]domain.RenderedPanel, 0, total)
	for idx := 0; idx < total; {
		size := r.policy.size(panels[idx:])
		batch := panels[idx : idx+size]

		r.tracker.SetPanels(idx+1, total, fmt.Sprintf("コマ %d/%d を描画中", idx+1, total))
		slog.InfoContext(ctx, "バッチを描画しています",
			"panels", panelNumbers(batch), "batch_size", size, "total", total)

		result, err := r.renderBatch(ctx, storyboard, batch, theme, refs)
		if err != nil {
			return nil, &domain.RenderError{PanelNumbers: panelNumbers(batch), Err: err}
		}

		rendered = append(rendered, domain.RenderedPanel{
			PanelNumber: batch[0].PanelNumber,
			Span:        size,
			Image:       result.Data,
			MimeType:    result.MimeType,
			Dialogue:    batchDialogue(batch),
		})
		idx += size
	}

	r.tracker.SetPanels(total, total, "全コマの描画が完了しました")
	return rendered, nil
}

// renderBatch は1バッチ分の画像を生成します。失敗した場合は設定回数だけ再試行します。
func (r *BatchRenderer) renderBatch(
	ctx context.Context,
	storyboard *domain.Storyboard,
	batch domain.Panels,
	theme domain.Theme,
	refs []engine.ReferenceImage,
) (*engine.ImageResult, error) {
	req := engine.ImageRequest{
		Prompt:          buildBatchPrompt(storyboard, batch, theme),
		NegativePrompt:  theme.NegativePrompt,
		AspectRatio:     batchAspectRatio(len(batch)),
		ReferenceImages: refs,
	}

	var lastErr error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("レートリミッターの待機が中断されました: %w", err)
		}
		if attempt > 0 {
			slog.WarnContext(ctx, "バッチの描画を再試行します",
				"panels", panelNumbers(batch), "attempt", attempt, "error", lastErr)
		}

		result, err := r.imageEngine.GenerateImage(ctx, req)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// fetchReferences は、テーマの全キャラクターの参照画像を並列で取得して圧縮します。
// 取得結果はURLキーでキャッシュされるため、2回目以降の生成ではネットワークに出ません。
func (r *BatchRenderer) fetchReferences(ctx context.Context, theme domain.Theme) ([]engine.ReferenceImage, error) {
	// 参照画像を持たないキャラクターはスキップします。
	var targets []domain.CharacterRef
	for _, char := range theme.Characters {
		if char.ReferenceURL != "" {
			targets = append(targets, char)
		}
	}
	if len(targets) == 0 {
		return nil, nil
	}

	refs := make([]engine.ReferenceImage, len(targets))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, char := range targets {
		eg.Go(func() error {
			if cached, found := r.refCache.Get(char.ReferenceURL); found {
				refs[i] = cached.(engine.ReferenceImage)
				return nil
			}

			data, err := r.httpClient.FetchBytes(egCtx, char.ReferenceURL)
			if err != nil {
				return fmt.Errorf("参照画像の取得に失敗しました (%s): %w", char.ID, err)
			}

			// 参照画像はJPEGに圧縮してリクエストサイズを抑えます。
			mimeType := "image/jpeg"
			compressed, err := imgutil.CompressToJPEG(bytes.NewReader(data), refJPEGQuality)
			if err != nil {
				slog.WarnContext(egCtx, "参照画像の圧縮に失敗したため元データを使います", "character", char.ID, "error", err)
				compressed = data
				mimeType = http.DetectContentType(data)
			}

			ref := engine.ReferenceImage{Data: compressed, MimeType: mimeType}
			r.refCache.Set(char.ReferenceURL, ref, cache.DefaultExpiration)
			refs[i] = ref
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return refs, nil
}
