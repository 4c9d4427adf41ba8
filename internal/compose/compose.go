// Package compose は、描画済みのコマ画像を1枚のページ画像に合成します。
package compose

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sort"

	_ "image/gif"
	_ "image/jpeg"

	"github.com/shouni/go-paper-manga/pkg/domain"
)

const (
	panelGap    = 24 // コマ画像どうしの余白（ピクセル）
	stripMargin = 32 // ページ全体の外周余白

	// GridColumns はグリッドレイアウトの列数です。
	GridColumns = 2
)

// ComposeStrip は、描画結果を番号順に縦へ並べた1枚のPNGを生成します。
// totalPanels は構成案のコマ総数で、描画結果が全コマを漏れなく覆っているか検証します。
func ComposeStrip(rendered []domain.RenderedPanel, totalPanels int) ([]byte, error) {
	if len(rendered) == 0 {
		return nil, &domain.CompositionError{Reason: "no rendered panels to compose"}
	}

	// 描画が並列化されても順序が保証されるよう、合成前に必ず並べ直します。
	sorted := make([]domain.RenderedPanel, len(rendered))
	copy(sorted, rendered)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PanelNumber < sorted[j].PanelNumber
	})

	if err := verifyCoverage(sorted, totalPanels); err != nil {
		return nil, err
	}

	images := make([]image.Image, len(sorted))
	for i, rp := range sorted {
		img, _, err := image.Decode(bytes.NewReader(rp.Image))
		if err != nil {
			return nil, &domain.CompositionError{
				Reason: fmt.Sprintf("panel %d image is not decodable: %v", rp.PanelNumber, err),
			}
		}
		images[i] = img
	}
	return stackVertical(images)
}

// ComposeVertical は、生の画像バイト列を上から順に縦へ並べた1枚のPNGを生成します。
// エクスポート操作向けで、コマ番号の検証は行いません。
func ComposeVertical(images [][]byte) ([]byte, error) {
	decoded, err := decodeImages(images)
	if err != nil {
		return nil, err
	}
	return stackVertical(decoded)
}

// ComposeGrid は、生の画像バイト列を columns 列のグリッドに並べた1枚のPNGを生成します。
// セルの大きさは最大画像に合わせ、小さい画像はセル内で中央寄せにします。
func ComposeGrid(images [][]byte, columns int) ([]byte, error) {
	decoded, err := decodeImages(images)
	if err != nil {
		return nil, err
	}
	if columns <= 0 {
		columns = GridColumns
	}

	cellW, cellH := 0, 0
	for _, img := range decoded {
		bounds := img.Bounds()
		if bounds.Dx() > cellW {
			cellW = bounds.Dx()
		}
		if bounds.Dy() > cellH {
			cellH = bounds.Dy()
		}
	}

	rows := (len(decoded) + columns - 1) / columns
	width := stripMargin*2 + columns*cellW + (columns-1)*panelGap
	height := stripMargin*2 + rows*cellH + (rows-1)*panelGap

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	for i, img := range decoded {
		bounds := img.Bounds()
		col := i % columns
		row := i / columns
		x := stripMargin + col*(cellW+panelGap) + (cellW-bounds.Dx())/2
		y := stripMargin + row*(cellH+panelGap) + (cellH-bounds.Dy())/2
		rect := image.Rect(x, y, x+bounds.Dx(), y+bounds.Dy())
		draw.Draw(canvas, rect, img, bounds.Min, draw.Src)
	}
	return encodePNG(canvas)
}

func decodeImages(images [][]byte) ([]image.Image, error) {
	if len(images) == 0 {
		return nil, &domain.CompositionError{Reason: "no images to compose"}
	}
	decoded := make([]image.Image, len(images))
	for i, data := range images {
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, &domain.CompositionError{
				Reason: fmt.Sprintf("image %d is not decodable: %v", i+1, err),
			}
		}
		decoded[i] = img
	}
	return decoded, nil
}

// stackVertical は、デコード済みの画像を縦に積んだ白背景のPNGを生成します。
func stackVertical(images []image.Image) ([]byte, error) {
	maxWidth := 0
	totalHeight := stripMargin * 2
	for i, img := range images {
		bounds := img.Bounds()
		if bounds.Dx() > maxWidth {
			maxWidth = bounds.Dx()
		}
		totalHeight += bounds.Dy()
		if i > 0 {
			totalHeight += panelGap
		}
	}

	canvas := image.NewRGBA(image.Rect(0, 0, maxWidth+stripMargin*2, totalHeight))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	y := stripMargin
	for _, img := range images {
		bounds := img.Bounds()
		// 幅の狭い画像は中央寄せにします。
		x := stripMargin + (maxWidth-bounds.Dx())/2
		rect := image.Rect(x, y, x+bounds.Dx(), y+bounds.Dy())
		draw.Draw(canvas, rect, img, bounds.Min, draw.Src)
		y += bounds.Dy() + panelGap
	}
	return encodePNG(canvas)
}

func encodePNG(canvas *image.RGBA) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, &domain.CompositionError{Reason: fmt.Sprintf("png encoding failed: %v", err)}
	}
	return buf.Bytes(), nil
}

// verifyCoverage は、描画結果が1番からコマ総数までを隙間も重複もなく覆っているか検証します。
func verifyCoverage(sorted []domain.RenderedPanel, totalPanels int) error {
	next := 1
	for _, rp := range sorted {
		if rp.PanelNumber != next {
			return &domain.CompositionError{
				Reason: fmt.Sprintf("panel coverage is broken: expected panel %d, got %d", next, rp.PanelNumber),
			}
		}
		if rp.Span <= 0 {
			return &domain.CompositionError{
				Reason: fmt.Sprintf("panel %d has invalid span %d", rp.PanelNumber, rp.Span),
			}
		}
		next += rp.Span
	}
	if next != totalPanels+1 {
		return &domain.CompositionError{
			Reason: fmt.Sprintf("panel coverage is incomplete: covered up to %d of %d panels", next-1, totalPanels),
		}
	}
	return nil
}
