package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shouni/go-paper-manga/internal/config"
)

// OpenRouterEngine は OpenAI 互換の chat/completions API を介して
// Gemini 系モデルにテキストと画像を生成させるエンジンです。
// 画像はレスポンスの message.images に data URL で返ってきます。
type OpenRouterEngine struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	textModel  string
	imageModel string
}

// NewOpenRouterEngine は OpenRouterEngine を初期化するのだ。
func NewOpenRouterEngine(provider config.ProviderConfig, timeout time.Duration) *OpenRouterEngine {
	return &OpenRouterEngine{
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     provider.APIKey,
		baseURL:    strings.TrimSuffix(provider.BaseURL, "/"),
		textModel:  provider.TextModel,
		imageModel: provider.ImageModel,
	}
}

func (e *OpenRouterEngine) Name() string { return "openrouter" }

// chatMessage は OpenAI 互換のメッセージ形式です。content は文字列または
// パートの配列のどちらかを取ります。
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
			Images  []struct {
				Type     string `json:"type"`
				ImageURL struct {
					URL string `json:"url"`
				} `json:"image_url"`
			} `json:"images"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// GenerateText はテキスト生成を1回実行します。再試行は行いません。
func (e *OpenRouterEngine) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	resp, err := e.post(ctx, chatRequest{
		Model:       e.textModel,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openrouter: empty choices in response")
	}

	var content string
	if err := json.Unmarshal(resp.Choices[0].Message.Content, &content); err != nil {
		return "", fmt.Errorf("openrouter: unexpected content shape: %w", err)
	}
	return content, nil
}

// GenerateImage は画像生成を1回実行します。参照画像は data URL として
// ユーザーメッセージの先頭に並べ、本文プロンプトを最後に置きます。
func (e *OpenRouterEngine) GenerateImage(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	parts := make([]contentPart, 0, len(req.ReferenceImages)+1)
	for _, ref := range req.ReferenceImages {
		parts = append(parts, contentPart{
			Type: "image_url",
			ImageURL: &imageURL{
				URL: fmt.Sprintf("data:%s;base64,%s", ref.MimeType, base64.StdEncoding.EncodeToString(ref.Data)),
			},
		})
	}

	prompt := req.Prompt
	if req.NegativePrompt != "" {
		prompt += "\n\nDo NOT include: " + req.NegativePrompt
	}
	parts = append(parts, contentPart{Type: "text", Text: prompt})

	resp, err := e.post(ctx, chatRequest{
		Model:       e.imageModel,
		Messages:    []chatMessage{{Role: "user", Content: parts}},
		Temperature: 0.3, // 低温度でキャラクターの一貫性を優先する
		MaxTokens:   4096,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openrouter: empty choices in image response")
	}

	result, err := extractImage(resp)
	if err != nil {
		return nil, err
	}

	slog.Debug("OpenRouter画像生成が完了したのだ", "model", resp.Model, "bytes", len(result.Data))
	return result, nil
}

// extractImage は message.images の data URL 形式を第一候補として画像を取り出します。
// 見つからない場合は content がパート配列になっている予備形式を試します。
func extractImage(resp *chatResponse) (*ImageResult, error) {
	msg := resp.Choices[0].Message

	for _, img := range msg.Images {
		if img.Type != "image_url" {
			continue
		}
		if result, ok := decodeDataURL(img.ImageURL.URL); ok {
			return result, nil
		}
	}

	// 予備: content がパート配列で返る実装系
	var contentParts []struct {
		Type  string `json:"type"`
		Image struct {
			Data string `json:"data"`
			URL  string `json:"url"`
		} `json:"image"`
	}
	if err := json.Unmarshal(msg.Content, &contentParts); err == nil {
		for _, part := range contentParts {
			if part.Type != "image" {
				continue
			}
			if part.Image.Data != "" {
				data, err := base64.StdEncoding.DecodeString(part.Image.Data)
				if err != nil {
					continue
				}
				return &ImageResult{Data: data, MimeType: "image/png"}, nil
			}
			if result, ok := decodeDataURL(part.Image.URL); ok {
				return result, nil
			}
		}
	}

	return nil, fmt.Errorf("openrouter: response contains no image data")
}

// decodeDataURL は "data:image/png;base64,..." 形式をデコードします。
func decodeDataURL(url string) (*ImageResult, bool) {
	if !strings.HasPrefix(url, "data:image") {
		return nil, false
	}
	head, payload, ok := strings.Cut(url, ",")
	if !ok {
		return nil, false
	}
	mimeType := strings.TrimPrefix(strings.SplitN(head, ";", 2)[0], "data:")

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, false
	}
	return &ImageResult{Data: data, MimeType: mimeType}, true
}

func (e *OpenRouterEngine) post(ctx context.Context, body chatRequest) (*chatResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("openrouter: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("openrouter: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	httpReq.Header.Set("HTTP-Referer", "https://go-paper-manga.local")
	httpReq.Header.Set("X-Title", "go-paper-manga")

	httpResp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openrouter: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("openrouter: read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openrouter: status %d: %s", httpResp.StatusCode, truncateForLog(raw))
	}

	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("openrouter: decode response: %w", err)
	}
	return &resp, nil
}

func truncateForLog(raw []byte) string {
	const limit = 512
	if len(raw) <= limit {
		return string(raw)
	}
	return string(raw[:limit]) + "..."
}
