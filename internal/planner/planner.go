// Package planner は、抽出された論文テキストから漫画の構成案（ストーリーボード）を生成します。
// テキスト生成エンジンにJSON形式の構成案を作らせ、検証とキャッシュを担います。
package planner

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/shouni/go-paper-manga/internal/engine"
	"github.com/shouni/go-paper-manga/pkg/domain"
)

// Planner は構成案を生成するためのインターフェースを定義します。
type Planner interface {
	Plan(ctx context.Context, req domain.StoryboardRequest) (*domain.Storyboard, error)
	ClearCache() int
}

// StoryboardPlanner は、テキスト生成エンジンを使って構成案を組み立てる構造体です。
type StoryboardPlanner struct {
	textEngine  engine.TextEngine
	cache       *cache.Cache
	group       singleflight.Group
	temperature float64
}

// NewStoryboardPlanner は新しい StoryboardPlanner を生成します。
func NewStoryboardPlanner(textEngine engine.TextEngine, ttl time.Duration) *StoryboardPlanner {
	return &StoryboardPlanner{
		textEngine:  textEngine,
		cache:       cache.New(ttl, ttl*2),
		temperature: 0.7,
	}
}

// Plan は構成案を生成して返します。同一入力に対する結果はTTL付きでキャッシュされ、
// 同時に届いた同一リクエストは singleflight で1回の生成にまとめられます。
func (p *StoryboardPlanner) Plan(ctx context.Context, req domain.StoryboardRequest) (*domain.Storyboard, error) {
	key := cacheKey(req)
	if cached, found := p.cache.Get(key); found {
		slog.InfoContext(ctx, "構成案をキャッシュから返します", "title", req.Title)
		return cached.(*domain.Storyboard), nil
	}

	result, err, _ := p.group.Do(key, func() (interface{}, error) {
		storyboard, err := p.plan(ctx, req)
		if err != nil {
			return nil, err
		}
		p.cache.Set(key, storyboard, cache.DefaultExpiration)
		return storyboard, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.Storyboard), nil
}

func (p *StoryboardPlanner) plan(ctx context.Context, req domain.StoryboardRequest) (*domain.Storyboard, error) {
	theme, err := domain.GetTheme(req.Theme)
	if err != nil {
		return nil, &domain.PlannerError{Reason: err.Error(), Err: err}
	}

	slog.InfoContext(ctx, "構成案を生成しています",
		"title", req.Title, "panels", req.PanelCount, "language", req.Language)

	prompt := BuildStoryboardPrompt(req, theme)
	raw, err := p.textEngine.GenerateText(ctx, engine.TextRequest{
		Prompt:      prompt,
		Temperature: p.temperature,
	})
	if err != nil {
		return nil, &domain.PlannerError{Reason: "text generation request failed", Err: err}
	}

	storyboard, err := parseStoryboard(raw)
	if err != nil {
		return nil, err
	}
	if err := storyboard.Validate(); err != nil {
		return nil, err
	}

	// モデルの出力順は信用せず、必ず番号順に並べ直します。
	storyboard.Panels = storyboard.Panels.SortByNumber()
	storyboard.Theme = theme.ID
	storyboard.Language = req.Language
	if storyboard.Title == "" {
		storyboard.Title = req.Title
	}

	// 英語以外が要求された場合は、セリフのみを後段で翻訳します。
	if needsTranslation(req.Language) {
		p.translateDialogue(ctx, storyboard, req.Language)
	}

	slog.InfoContext(ctx, "構成案の生成が完了しました",
		"title", storyboard.Title, "panels", len(storyboard.Panels))
	return storyboard, nil
}

// translateDialogue はセリフを対象言語に翻訳し、パネル番号で突き合わせて差し替えます。
// 翻訳は品質向上のための追加工程なので、失敗しても英語のまま処理を続けます。
func (p *StoryboardPlanner) translateDialogue(ctx context.Context, storyboard *domain.Storyboard, language string) {
	raw, err := p.textEngine.GenerateText(ctx, engine.TextRequest{
		Prompt:      BuildTranslationPrompt(storyboard, language),
		Temperature: 0.3,
	})
	if err != nil {
		slog.WarnContext(ctx, "セリフの翻訳に失敗したため英語のまま続行します", "error", err)
		return
	}

	var translated struct {
		Panels []struct {
			PanelNumber int               `json:"panel_number"`
			Dialogue    map[string]string `json:"dialogue"`
		} `json:"panels"`
	}
	if err := json.Unmarshal([]byte(stripJSONFence(raw)), &translated); err != nil {
		slog.WarnContext(ctx, "翻訳結果のパースに失敗したため英語のまま続行します", "error", err)
		return
	}

	byNumber := make(map[int]map[string]string, len(translated.Panels))
	for _, t := range translated.Panels {
		byNumber[t.PanelNumber] = t.Dialogue
	}
	for i := range storyboard.Panels {
		if dialogue, ok := byNumber[storyboard.Panels[i].PanelNumber]; ok && len(dialogue) > 0 {
			storyboard.Panels[i].Dialogue = dialogue
		}
	}
}

// ClearCache はキャッシュ済みの構成案をすべて破棄し、破棄した件数を返します。
func (p *StoryboardPlanner) ClearCache() int {
	count := p.cache.ItemCount()
	p.cache.Flush()
	return count
}

// parseStoryboard は、AIが返したテキストからMarkdownのコードブロック等を除去してJSONとしてパースします。
func parseStoryboard(raw string) (*domain.Storyboard, error) {
	storyboard := &domain.Storyboard{}
	if err := json.Unmarshal([]byte(stripJSONFence(raw)), storyboard); err != nil {
		return nil, &domain.PlannerError{Reason: "model returned malformed JSON", Err: err}
	}
	return storyboard, nil
}

// stripJSONFence は、AIが付けがちなMarkdownタグ (```json ... ```) を取り除きます。
func stripJSONFence(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// needsTranslation は翻訳工程が必要な言語かどうかを返します。
func needsTranslation(language string) bool {
	switch language {
	case "", "en", "en-US":
		return false
	}
	return true
}

// cacheKey はリクエスト内容から決定論的なキャッシュキーを作ります。
// 本文は先頭のみで十分に識別できるため、全文のハッシュ化は避けています。
func cacheKey(req domain.StoryboardRequest) string {
	text := truncateRunes(req.Text, 2000)
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d|%s",
		text, req.Title, req.Theme, req.PanelCount, req.Language)))
	return fmt.Sprintf("storyboard:%x", sum[:16])
}
