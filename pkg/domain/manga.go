package domain

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// PanelType は漫画パネルの役割を表す分類です。
type PanelType string

const (
	PanelTypeTitle       PanelType = "title"
	PanelTypeIntro       PanelType = "intro"
	PanelTypeExplanation PanelType = "explain"
	PanelTypeExample     PanelType = "example"
	PanelTypeDiagram     PanelType = "diagram"
	PanelTypeReaction    PanelType = "reaction"
	PanelTypeConclusion  PanelType = "conclusion"
	PanelTypeOther       PanelType = "other"
)

// PanelTypeFromString は AI が返す自由なタイプ表記を既知の分類へ寄せます。
// 未知の値はエラーにせず PanelTypeOther に丸めます。
func PanelTypeFromString(value string) PanelType {
	v := strings.ToLower(strings.TrimSpace(value))
	switch PanelType(v) {
	case PanelTypeTitle, PanelTypeIntro, PanelTypeExplanation, PanelTypeExample,
		PanelTypeDiagram, PanelTypeReaction, PanelTypeConclusion, PanelTypeOther:
		return PanelType(v)
	}

	// 部分一致での救済。モデルは "introduction" や "concept" などを返しがちなのだ。
	switch {
	case strings.Contains(v, "title") || strings.Contains(v, "intro"):
		return PanelTypeIntro
	case strings.Contains(v, "explain") || strings.Contains(v, "concept") || strings.Contains(v, "detail"):
		return PanelTypeExplanation
	case strings.Contains(v, "example") || strings.Contains(v, "analogy"):
		return PanelTypeExample
	case strings.Contains(v, "diagram") || strings.Contains(v, "figure"):
		return PanelTypeDiagram
	case strings.Contains(v, "react") || strings.Contains(v, "emotion"):
		return PanelTypeReaction
	case strings.Contains(v, "conclu") || strings.Contains(v, "summary") || strings.Contains(v, "ending"):
		return PanelTypeConclusion
	}
	return PanelTypeOther
}

// Panel は漫画の1コマの構成、場面描写、話者ごとのセリフを保持します。
type Panel struct {
	PanelNumber int               `json:"panel_number"`
	PanelType   PanelType         `json:"panel_type"`
	Scene       string            `json:"scene"`
	Dialogue    map[string]string `json:"dialogue"`
}

// DialogueLength はパネル内の全セリフの文字数（rune換算）を返します。
// CJK のセリフ密度からバッチサイズを決めるために使います。
func (p Panel) DialogueLength() int {
	total := 0
	for _, line := range p.Dialogue {
		total += utf8.RuneCountInString(line)
	}
	return total
}

// Panels はソートや集計のためのヘルパー型です。
type Panels []Panel

// SortByNumber は panel_number の昇順で並べ替えた新しいスライスを返すのだ。
// モデルの出力順は信頼できないため、描画前に必ずこれを通す。
func (ps Panels) SortByNumber() Panels {
	sorted := make(Panels, len(ps))
	copy(sorted, ps)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PanelNumber < sorted[j].PanelNumber
	})
	return sorted
}

// DialogueLength は全パネルのセリフ文字数の合計を返します。
func (ps Panels) DialogueLength() int {
	total := 0
	for _, p := range ps {
		total += p.DialogueLength()
	}
	return total
}

// UniqueSpeakers はパネル群に登場する話者名を重複なしで返します。
func (ps Panels) UniqueSpeakers() []string {
	set := make(map[string]struct{})
	for _, p := range ps {
		for speaker := range p.Dialogue {
			set[speaker] = struct{}{}
		}
	}

	speakers := make([]string, 0, len(set))
	for s := range set {
		speakers = append(speakers, s)
	}
	sort.Strings(speakers)
	return speakers
}

// StoryboardRequest は分鏡生成の入力一式です。生成中は変更されません。
type StoryboardRequest struct {
	Text       string `json:"text"`
	Title      string `json:"title"`
	Theme      string `json:"theme"`
	PanelCount int    `json:"panel_count"` // 目標値のヒント。モデルは前後しうる
	Language   string `json:"language"`
}

// Storyboard は画像生成前の分鏡（構成案）全体です。
// Panels は panel_number 昇順で保持されます。
type Storyboard struct {
	Title    string `json:"title"`
	Summary  string `json:"summary"`
	Theme    string `json:"theme"`
	Language string `json:"language"`
	Panels   Panels `json:"panels"`
}

// Validate は、構成案が描画可能な状態かを検証します。
// コマが空、番号が0以下、番号の重複、1..Nの連番になっていない構成案はいずれも
// 後段のバッチ描画と合成を壊すため、PlannerError として弾きます。
// 並び順には依存せず、番号をソートしてから判定します。
func (s *Storyboard) Validate() error {
	if len(s.Panels) == 0 {
		return &PlannerError{Reason: "empty panel list"}
	}
	sorted := s.Panels.SortByNumber()
	for i, panel := range sorted {
		switch {
		case panel.PanelNumber <= 0:
			return &PlannerError{Reason: fmt.Sprintf("invalid panel_number %d", panel.PanelNumber)}
		case i > 0 && panel.PanelNumber == sorted[i-1].PanelNumber:
			return &PlannerError{Reason: fmt.Sprintf("duplicate panel_number %d", panel.PanelNumber)}
		case panel.PanelNumber != i+1:
			return &PlannerError{Reason: fmt.Sprintf(
				"panel numbers must form a contiguous 1..%d sequence: missing panel %d", len(sorted), i+1)}
		}
	}
	return nil
}

// RenderedPanel は1回の画像生成呼び出しの成果物です。
// バッチ生成では1枚の画像が複数パネルを含むため、先頭パネル番号と
// カバーするパネル数（Span）を持ちます。
type RenderedPanel struct {
	PanelNumber int    `json:"panel_number"`
	Span        int    `json:"span"`
	Image       []byte `json:"image_base64"` // JSONでは自動的にbase64になります
	MimeType    string `json:"mime_type"`
	Dialogue    string `json:"dialogue"` // 表示用に結合したセリフ
}

// Manga は1リクエスト分の最終成果物です。永続化はしません。
type Manga struct {
	Title         string          `json:"title"`
	Theme         string          `json:"theme"`
	Language      string          `json:"language"`
	Panels        []RenderedPanel `json:"panels"`
	CombinedImage []byte          `json:"combined_image_base64"`
	MimeType      string          `json:"mime_type"`
}

// IsCJKLanguage は対象言語が CJK 系かどうかを返します。
// CJK はコマ内テキストが潰れやすく、バッチサイズ決定に影響します。
func IsCJKLanguage(lang string) bool {
	switch lang {
	case "zh-CN", "zh-TW", "ja-JP", "ko-KR":
		return true
	}
	return false
}
