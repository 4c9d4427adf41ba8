// Package extract は PDF バイト列からテキストレイヤーを取り出します。
// OCR は行わず、テキストレイヤーを持たない PDF（スキャン画像のみ等）は
// ExtractionError として拒否します。
package extract

import (
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/shouni/go-paper-manga/pkg/domain"
)

// Extract は PDF のバイト列を受け取り、全ページのテキストとプレビューを返します。
// 入力バイト列以外に依存しない純粋な変換で、ストリーミングはしません。
func Extract(data []byte, filename string) (*domain.Document, error) {
	if len(data) == 0 {
		return nil, &domain.ExtractionError{Reason: "empty file"}
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, &domain.ExtractionError{Reason: "not a valid PDF", Err: err}
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, &domain.ExtractionError{Reason: "PDF has no pages"}
	}

	var sb strings.Builder
	for n := 0; n < pageCount; n++ {
		text, err := doc.Text(n)
		if err != nil {
			// 壊れた単一ページは飛ばす。全滅なら下の空チェックで拾う。
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(text)
	}

	fullText := sb.String()
	if fullText == "" {
		return nil, &domain.ExtractionError{Reason: "no extractable text layer (scanned or image-only PDF)"}
	}

	return &domain.Document{
		Filename:  filename,
		PageCount: pageCount,
		FullText:  fullText,
		Preview:   domain.MakePreview(fullText),
	}, nil
}
