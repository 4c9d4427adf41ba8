package domain

import (
	"fmt"
	"sort"
	"strings"
)

// CharacterRef はテーマに属するキャラクターの定義です。
// ReferenceURL は一貫性保持のための参照画像で、空なら参照なしで生成します。
type CharacterRef struct {
	ID           string `json:"id"`
	Role         string `json:"role"`
	ReferenceURL string `json:"reference_url"`
}

// Theme は漫画全体へ一様に適用する画風の定義です。
// キャラクターの顔ぶれと描画スタイルの指示をセットで持ちます。
type Theme struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Characters     []CharacterRef `json:"characters"`
	StylePrompt    string         `json:"style_prompt"`
	NegativePrompt string         `json:"negative_prompt"`
}

// SpeakerIDs はテーマのキャラクターIDを列挙します。
func (t Theme) SpeakerIDs() []string {
	ids := make([]string, 0, len(t.Characters))
	for _, c := range t.Characters {
		ids = append(ids, c.ID)
	}
	return ids
}

const defaultNegativePrompt = "photorealistic, 3d render, complex shading, blurry, messy lines, inconsistent characters, changing character designs between panels, watermark, signature"

// assetBaseURL はキャラクター参照画像の配信元です。
const assetBaseURL = "https://storage.googleapis.com/paper-manga-assets/themes"

// builtinThemes は定義済みテーマの一覧です。実行時に変更されることはありません。
var builtinThemes = map[string]Theme{
	"chiikawa": {
		ID:   "chiikawa",
		Name: "Chiikawa",
		Characters: []CharacterRef{
			{ID: "hachiware", Role: "teacher", ReferenceURL: assetBaseURL + "/chiikawa/hachiware.png"},
			{ID: "chiikawa", Role: "student", ReferenceURL: assetBaseURL + "/chiikawa/chiikawa.png"},
			{ID: "usagi", Role: "comic relief", ReferenceURL: assetBaseURL + "/chiikawa/usagi.png"},
		},
		StylePrompt:    "Chiikawa style, soft rounded character design, thin clean outlines, pastel colors, cute and simple, flat shading",
		NegativePrompt: defaultNegativePrompt,
	},
	"zundamon": {
		ID:   "zundamon",
		Name: "Zundamon",
		Characters: []CharacterRef{
			{ID: "metan", Role: "teacher", ReferenceURL: assetBaseURL + "/zundamon/metan.png"},
			{ID: "zundamon", Role: "student", ReferenceURL: assetBaseURL + "/zundamon/zundamon.png"},
		},
		StylePrompt:    "Japanese anime style, official art, cel-shaded, clean line art, expressive eyes, vibrant colors, flat shading, high resolution",
		NegativePrompt: defaultNegativePrompt,
	},
	"watercolor": {
		ID:   "watercolor",
		Name: "Watercolor",
		Characters: []CharacterRef{
			{ID: "professor", Role: "teacher"},
			{ID: "student", Role: "student"},
		},
		StylePrompt:    "gentle watercolor illustration, soft edges, muted warm palette, storybook look, hand-painted texture",
		NegativePrompt: defaultNegativePrompt,
	},
}

// DefaultThemeID は theme 未指定時に使うテーマです。
const DefaultThemeID = "chiikawa"

// GetTheme は ID からテーマ定義を引きます。未知の ID はエラーです。
func GetTheme(id string) (Theme, error) {
	key := strings.ToLower(strings.TrimSpace(id))
	if key == "" {
		key = DefaultThemeID
	}
	t, ok := builtinThemes[key]
	if !ok {
		return Theme{}, fmt.Errorf("unknown theme: %q (available: %s)", id, strings.Join(ThemeIDs(), ", "))
	}
	return t, nil
}

// ThemeIDs は利用可能なテーマIDを昇順で返します。
func ThemeIDs() []string {
	ids := make([]string, 0, len(builtinThemes))
	for id := range builtinThemes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
