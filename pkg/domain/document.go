package domain

import "unicode/utf8"

// PreviewLength はアップロード直後にクライアントへ返すプレビューの最大文字数です。
const PreviewLength = 500

// Document は PDF から抽出したテキストの集合です。
// 1回の生成リクエストの間だけ保持され、永続化されません。
type Document struct {
	Filename  string `json:"filename"`
	PageCount int    `json:"total_pages"`
	FullText  string `json:"full_text"`
	Preview   string `json:"text_preview"`
}

// MakePreview は全文の先頭 PreviewLength 文字に省略記号を付けて返します。
// 全文が収まる場合はそのまま返します。
func MakePreview(fullText string) string {
	if utf8.RuneCountInString(fullText) <= PreviewLength {
		return fullText
	}
	runes := []rune(fullText)
	return string(runes[:PreviewLength]) + "..."
}
