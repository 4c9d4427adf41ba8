// Package engine はテキスト生成・画像生成モデルへの統合窓口です。
// OpenRouter (OpenAI互換API) と Gemini API の2つの提供元を実装します。
package engine

import (
	"context"
	"fmt"

	"github.com/shouni/go-paper-manga/internal/config"
)

// ReferenceImage は生成リクエストに添付する参照画像です。
type ReferenceImage struct {
	Data     []byte
	MimeType string
}

// TextRequest は1回のテキスト生成要求です。
type TextRequest struct {
	Prompt       string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

// ImageRequest は1回の画像生成要求です。
type ImageRequest struct {
	Prompt          string
	NegativePrompt  string
	AspectRatio     string
	ReferenceImages []ReferenceImage
}

// ImageResult は生成された画像データとそのメタデータです。
type ImageResult struct {
	Data     []byte
	MimeType string
}

// TextEngine はビジネスロジック層が利用するテキスト生成の契約です。
type TextEngine interface {
	GenerateText(ctx context.Context, req TextRequest) (string, error)
}

// ImageEngine はビジネスロジック層が利用する画像生成の契約です。
type ImageEngine interface {
	GenerateImage(ctx context.Context, req ImageRequest) (*ImageResult, error)
}

// Engine はテキストと画像の両方を提供する統合エンジンです。
type Engine interface {
	TextEngine
	ImageEngine
	Name() string
}

// New は設定で選択されている提供元のエンジンを構築します。
func New(ctx context.Context, cfg *config.Config) (Engine, error) {
	provider := cfg.ActiveProvider()
	if !provider.HasAPIKey() {
		return nil, fmt.Errorf("provider %q has no API key configured", provider.Name)
	}

	switch provider.Name {
	case "openrouter":
		return NewOpenRouterEngine(provider, cfg.HTTPTimeout), nil
	case "gemini":
		return NewGeminiEngine(ctx, provider)
	}
	return nil, fmt.Errorf("unknown provider: %q", provider.Name)
}
