package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shouni/go-paper-manga/internal/config"
	"github.com/shouni/go-paper-manga/pkg/domain"
)

// batchPolicy は、1枚の画像に何コマ詰めるかを決めるしきい値（ルーン数）です。
// セリフが多いコマを詰め込むと吹き出しが潰れるため、1枚あたりのコマ数を減らします。
type batchPolicy struct {
	charLimitSingle int // これを超えたら1コマずつ描く
	charLimitPair   int // これを超えたら2コマまで
	maxSize         int // 通常は2x2グリッドで4コマ
}

func defaultBatchPolicy() batchPolicy {
	return batchPolicy{
		charLimitSingle: config.DefaultBatchCharLimitSingle,
		charLimitPair:   config.DefaultBatchCharLimitPair,
		maxSize:         config.DefaultMaxBatchSize,
	}
}

// size は、残りのコマ列の先頭から次の1枚に何コマ詰めるかを決めます。
// 先頭から最大コマ数を候補とし、その合計セリフ量で判定します。
func (p batchPolicy) size(remaining domain.Panels) int {
	size := p.maxSize
	if len(remaining) < size {
		size = len(remaining)
	}
	candidate := remaining[:size]

	total := candidate.DialogueLength()
	switch {
	case total > p.charLimitSingle:
		size = 1
	case total > p.charLimitPair:
		size = 2
	}
	if len(remaining) < size {
		size = len(remaining)
	}
	return size
}

// batchAspectRatio は、コマ数に応じた画像のアスペクト比を返します。
// 1コマは縦長、2コマは横並び、4コマは2x2グリッドを想定しています。
func batchAspectRatio(size int) string {
	switch size {
	case 1:
		return "3:4"
	case 2:
		return "16:9"
	default:
		return "1:1"
	}
}

// layoutPositions はグリッド内の各コマの位置指示です。読み順は左上から右下です。
var layoutPositions = map[int][]string{
	1: {"FULL IMAGE"},
	2: {"LEFT HALF", "RIGHT HALF"},
	3: {"TOP-LEFT", "TOP-RIGHT", "BOTTOM (full width)"},
	4: {"TOP-LEFT", "TOP-RIGHT", "BOTTOM-LEFT", "BOTTOM-RIGHT"},
}

// buildBatchPrompt は、1枚の画像に収めるコマ群の描画プロンプトを構築します。
func buildBatchPrompt(storyboard *domain.Storyboard, batch domain.Panels, theme domain.Theme) string {
	var sb strings.Builder

	sb.WriteString("### MANGA PAGE STRUCTURE ###\n")
	sb.WriteString(fmt.Sprintf("- This image MUST contain exactly %d distinct manga panel(s) with clear black borders.\n", len(batch)))
	if len(batch) == 4 {
		sb.WriteString("- Arrange the panels in a 2x2 grid. Reading order: top-left, top-right, bottom-left, bottom-right.\n")
	}
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("### TITLE: %s ###\n", storyboard.Title))
	if theme.StylePrompt != "" {
		sb.WriteString(fmt.Sprintf("- GLOBAL_STYLE: %s\n", theme.StylePrompt))
	}
	sb.WriteString("\n")

	sb.WriteString("### CHARACTER IDENTITIES ###\n")
	sb.WriteString("The attached reference images define each character's appearance. Keep them consistent.\n")
	for _, char := range theme.Characters {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", char.ID, char.Role))
	}
	sb.WriteString("\n")

	positions := layoutPositions[len(batch)]
	for i, panel := range batch {
		sb.WriteString(fmt.Sprintf("#### PANEL %d [%s] ####\n", panel.PanelNumber, positions[i]))
		sb.WriteString(fmt.Sprintf("VISUAL: %s\n", panel.Scene))
		for _, speaker := range sortedSpeakers(panel.Dialogue) {
			sb.WriteString(fmt.Sprintf("DIALOGUE (%s, in a speech bubble): %s\n", speaker, panel.Dialogue[speaker]))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("All dialogue text must be rendered inside speech bubbles, spelled exactly as given.\n")
	return sb.String()
}

// batchDialogue は、バッチ内の全セリフを表示用に1つの文字列へまとめます。
func batchDialogue(batch domain.Panels) string {
	var lines []string
	for _, panel := range batch {
		for _, speaker := range sortedSpeakers(panel.Dialogue) {
			lines = append(lines, fmt.Sprintf("%s: %s", speaker, panel.Dialogue[speaker]))
		}
	}
	return strings.Join(lines, "\n")
}

// sortedSpeakers はセリフの話者キーを安定した順序で返します。
func sortedSpeakers(dialogue map[string]string) []string {
	speakers := make([]string, 0, len(dialogue))
	for speaker := range dialogue {
		speakers = append(speakers, speaker)
	}
	sort.Strings(speakers)
	return speakers
}

// panelNumbers はバッチ内のコマ番号の一覧を返します。エラー報告用です。
func panelNumbers(batch domain.Panels) []int {
	numbers := make([]int, len(batch))
	for i, panel := range batch {
		numbers[i] = panel.PanelNumber
	}
	return numbers
}
