package planner

import (
	"fmt"
	"strings"

	"github.com/shouni/go-paper-manga/pkg/domain"
)

// maxInputRunes は、プロンプトに埋め込む論文テキストの上限です。
// 長すぎる入力はモデルのコンテキストを圧迫するだけなので先頭から切り詰めます。
const maxInputRunes = 60000

// BuildStoryboardPrompt は、論文テキストから漫画の構成案をJSONで生成させるプロンプトを構築します。
func BuildStoryboardPrompt(req domain.StoryboardRequest, theme domain.Theme) string {
	var sb strings.Builder

	sb.WriteString("You are a skilled manga scriptwriter who turns academic papers into fun, accurate educational comics.\n")
	sb.WriteString("Read the paper text below and produce a manga storyboard as a single JSON object.\n\n")

	// 1. 登場キャラクターの定義セクション
	sb.WriteString("### CHARACTERS ###\n")
	for _, char := range theme.Characters {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", char.ID, char.Role))
	}
	sb.WriteString("Use ONLY these character IDs as dialogue speaker keys.\n\n")

	// 2. 出力スキーマの定義
	sb.WriteString("### OUTPUT FORMAT ###\n")
	sb.WriteString("Return ONLY valid JSON, no markdown fences, with this shape:\n")
	sb.WriteString(`{
  "title": "short catchy title",
  "summary": "one-paragraph summary of the paper",
  "panels": [
    {
      "panel_number": 1,
      "panel_type": "title|intro|explain|example|diagram|reaction|conclusion",
      "scene": "visual description of the panel in English",
      "dialogue": {"<character_id>": "spoken line"}
    }
  ]
}
`)
	sb.WriteString("\n")

	// 3. 制約条件
	sb.WriteString("### CONSTRAINTS ###\n")
	sb.WriteString(fmt.Sprintf("- The storyboard MUST contain exactly %d panels, numbered 1 through %d.\n", req.PanelCount, req.PanelCount))
	sb.WriteString("- panel_number values must be unique and sequential.\n")
	sb.WriteString("- The first panel introduces the paper, the last panel concludes with the key takeaway.\n")
	sb.WriteString("- Stay faithful to the paper. Do not invent findings that are not in the text.\n")
	sb.WriteString("- Keep each spoken line short enough to fit in a speech bubble.\n")
	// 構成案は常に英語で作らせ、必要なら後段で翻訳します。推論品質が安定するためです。
	sb.WriteString("- Write all dialogue in English.\n")
	sb.WriteString("\n")

	// 4. 入力本文
	sb.WriteString("### PAPER ###\n")
	if req.Title != "" {
		sb.WriteString(fmt.Sprintf("Title: %s\n\n", req.Title))
	}
	sb.WriteString(truncateRunes(req.Text, maxInputRunes))
	sb.WriteString("\n")

	return sb.String()
}

// BuildTranslationPrompt は、構成案のセリフを対象言語へ翻訳させるプロンプトを構築します。
// 翻訳対象はセリフのみで、シーン描写は画像生成のため英語のまま保ちます。
func BuildTranslationPrompt(storyboard *domain.Storyboard, language string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Translate the dialogue lines below into %s.\n", dialogueLanguage(language)))
	sb.WriteString("Keep the tone casual and friendly, suitable for an educational comic.\n\n")

	sb.WriteString("### OUTPUT FORMAT ###\n")
	sb.WriteString("Return ONLY valid JSON, no markdown fences, with this shape:\n")
	sb.WriteString(`{"panels": [{"panel_number": 1, "dialogue": {"<character_id>": "translated line"}}]}`)
	sb.WriteString("\nKeep panel_number and speaker keys exactly as given.\n\n")

	sb.WriteString("### DIALOGUE ###\n")
	for _, panel := range storyboard.Panels {
		sb.WriteString(fmt.Sprintf("panel %d:\n", panel.PanelNumber))
		for speaker, line := range panel.Dialogue {
			sb.WriteString(fmt.Sprintf("  %s: %s\n", speaker, line))
		}
	}

	return sb.String()
}

// dialogueLanguage は言語コードをプロンプト向けの表現に変換します。
func dialogueLanguage(code string) string {
	switch code {
	case "", "en", "en-US":
		return "English"
	case "ja", "ja-JP":
		return "Japanese"
	case "zh-CN":
		return "Simplified Chinese"
	case "zh-TW":
		return "Traditional Chinese"
	case "ko", "ko-KR":
		return "Korean"
	default:
		return code
	}
}

// truncateRunes はルーン数ベースで文字列を切り詰めます。
func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
