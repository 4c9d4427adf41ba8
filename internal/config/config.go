package config

import (
	"time"

	"github.com/shouni/go-utils/envutil"
)

// デフォルト値の定義なのだ
const (
	DefaultProvider       = "openrouter"
	DefaultOpenRouterBase = "https://openrouter.ai/api/v1"
	DefaultTextModel      = "google/gemini-3-pro-preview"
	DefaultImageModel     = "google/gemini-3-pro-image-preview"
	DefaultGeminiModel    = "gemini-3-flash-preview"
	DefaultGeminiImage    = "gemini-3-pro-image-preview"
	DefaultHTTPTimeout    = 180 * time.Second
	DefaultRateInterval   = 5 * time.Second
	DefaultListenAddr     = ":8080"
	DefaultOutputDir      = "output"
	DefaultLocalFile      = "output/manga.png" // CLI生成のデフォルト保存先なのだ
	DefaultCacheTTL       = 30 * time.Minute

	// バッチサイズ決定のしきい値（セリフ合計文字数）。
	// CJK の文字はコマ密度が上がると潰れるため、セリフが長いほど
	// 1回の生成に含めるパネルを減らす。
	DefaultBatchCharLimitSingle = 200 // これを超えたら1パネルずつ
	DefaultBatchCharLimitPair   = 100 // これを超えたら2パネルまで
	DefaultMaxBatchSize         = 4   // 通常は2x2グリッドで4パネル

	// 描画失敗時の再試行回数。固定1回、指数バックオフはしない。
	DefaultRenderRetries = 1
)

// ProviderConfig は1つのモデル提供元の設定です。
type ProviderConfig struct {
	Name       string
	Enabled    bool
	APIKey     string
	BaseURL    string
	TextModel  string
	ImageModel string
}

// HasAPIKey は資格情報が設定されているかを返します。値そのものは公開しません。
func (p ProviderConfig) HasAPIKey() bool {
	return p.APIKey != ""
}

// Config はアプリケーション全体の環境設定を保持する構造体なのだ。
type Config struct {
	ListenAddr string
	OutputDir  string

	// --- モデル提供元 ---
	Provider   string // 使用する提供元: "openrouter" または "gemini"
	OpenRouter ProviderConfig
	Gemini     ProviderConfig

	// --- 生成挙動 ---
	HTTPTimeout  time.Duration
	RateInterval time.Duration
	CacheTTL     time.Duration

	BatchCharLimitSingle int
	BatchCharLimitPair   int
	MaxBatchSize         int
	RenderRetries        int

	Options GenerateOptions
}

// LoadConfig は環境変数から設定を読み込み、構造体を返すのだ！
func LoadConfig() *Config {
	openRouterKey := envutil.GetEnv("OPENROUTER_API_KEY", "")
	geminiKey := envutil.GetEnv("GEMINI_API_KEY", "")

	return &Config{
		ListenAddr: envutil.GetEnv("LISTEN_ADDR", DefaultListenAddr),
		OutputDir:  envutil.GetEnv("OUTPUT_DIR", DefaultOutputDir),
		Provider:   envutil.GetEnv("MODEL_PROVIDER", DefaultProvider),
		OpenRouter: ProviderConfig{
			Name:       "openrouter",
			Enabled:    openRouterKey != "",
			APIKey:     openRouterKey,
			BaseURL:    envutil.GetEnv("OPENROUTER_BASE_URL", DefaultOpenRouterBase),
			TextModel:  envutil.GetEnv("OPENROUTER_TEXT_MODEL", DefaultTextModel),
			ImageModel: envutil.GetEnv("OPENROUTER_IMAGE_MODEL", DefaultImageModel),
		},
		Gemini: ProviderConfig{
			Name:       "gemini",
			Enabled:    geminiKey != "",
			APIKey:     geminiKey,
			TextModel:  envutil.GetEnv("GEMINI_MODEL", DefaultGeminiModel),
			ImageModel: envutil.GetEnv("IMAGE_GEMINI_MODEL", DefaultGeminiImage),
		},
		HTTPTimeout:  DefaultHTTPTimeout,
		RateInterval: DefaultRateInterval,
		CacheTTL:     DefaultCacheTTL,

		BatchCharLimitSingle: DefaultBatchCharLimitSingle,
		BatchCharLimitPair:   DefaultBatchCharLimitPair,
		MaxBatchSize:         DefaultMaxBatchSize,
		RenderRetries:        DefaultRenderRetries,
	}
}

// ActiveProvider は設定で選択されている提供元の設定を返します。
func (c *Config) ActiveProvider() ProviderConfig {
	if c.Provider == "gemini" {
		return c.Gemini
	}
	return c.OpenRouter
}

// Providers は全提供元の設定を列挙します（設定APIの表示用）。
func (c *Config) Providers() []ProviderConfig {
	return []ProviderConfig{c.OpenRouter, c.Gemini}
}

// GenerateOptions は CLI フラグから渡される実行時のパラメータなのだ。
type GenerateOptions struct {
	// ソース入力関連
	PDFFile    string // --pdf-file
	OutputFile string // --output-file
	Title      string // --title

	// 生成設定
	Theme      string // --theme
	Language   string // --language
	PanelCount int    // --panel-count

	// AI挙動設定
	Provider   string        // --provider
	TextModel  string        // --model
	ImageModel string        // --image-model
	Timeout    time.Duration // --http-timeout
}
