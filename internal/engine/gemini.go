package engine

import (
	"context"
	"fmt"

	"github.com/shouni/go-gemini-client/gemini"
	"google.golang.org/genai"

	"github.com/shouni/go-paper-manga/internal/config"
)

// GeminiEngine は Gemini API を直接呼び出すエンジンです。
// OpenRouter を経由しない分レイテンシが小さく、画像はインラインパートで返ります。
type GeminiEngine struct {
	aiClient   gemini.GenerativeModel
	textModel  string
	imageModel string
}

// NewGeminiEngine は gemini クライアントを初期化してエンジンを返します。
func NewGeminiEngine(ctx context.Context, provider config.ProviderConfig) (*GeminiEngine, error) {
	const defaultGeminiTemperature = float32(0.3)
	clientConfig := gemini.Config{
		APIKey:      provider.APIKey,
		Temperature: genai.Ptr(defaultGeminiTemperature),
	}
	aiClient, err := gemini.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("AIクライアントの初期化に失敗しました: %w", err)
	}

	return &GeminiEngine{
		aiClient:   aiClient,
		textModel:  provider.TextModel,
		imageModel: provider.ImageModel,
	}, nil
}

func (e *GeminiEngine) Name() string { return "gemini" }

// GenerateText はテキスト生成を1回実行します。
func (e *GeminiEngine) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	prompt := req.Prompt
	if req.SystemPrompt != "" {
		prompt = req.SystemPrompt + "\n\n" + prompt
	}

	resp, err := e.aiClient.GenerateContent(ctx, prompt, e.textModel)
	if err != nil {
		return "", fmt.Errorf("Geminiテキスト生成エラー: %w", err)
	}
	return resp.Text, nil
}

// GenerateImage は参照画像をインラインパートとして添付し、1枚の画像を生成します。
func (e *GeminiEngine) GenerateImage(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	prompt := req.Prompt
	if req.NegativePrompt != "" {
		prompt += "\n\nDo NOT include: " + req.NegativePrompt
	}

	parts := []*genai.Part{{Text: prompt}}
	for _, ref := range req.ReferenceImages {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: ref.MimeType, Data: ref.Data},
		})
	}

	resp, err := e.aiClient.GenerateWithParts(ctx, e.imageModel, parts, gemini.GenerateOptions{
		AspectRatio: req.AspectRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("Gemini画像生成エラー: %w", err)
	}

	return parseImageResponse(resp)
}

// parseImageResponse はレスポンス候補からインライン画像データを取り出します。
func parseImageResponse(resp *gemini.Response) (*ImageResult, error) {
	if resp == nil || resp.RawResponse == nil || len(resp.RawResponse.Candidates) == 0 {
		return nil, fmt.Errorf("invalid response")
	}
	candidate := resp.RawResponse.Candidates[0]
	if candidate.Content == nil {
		return nil, fmt.Errorf("no image data")
	}
	for _, part := range candidate.Content.Parts {
		if part.InlineData != nil {
			return &ImageResult{Data: part.InlineData.Data, MimeType: part.InlineData.MIMEType}, nil
		}
	}
	return nil, fmt.Errorf("no image data")
}
