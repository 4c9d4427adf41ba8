package domain

import (
	"fmt"
	"strings"
)

// パイプラインの各段階は固有のエラー型で失敗を報告します。
// どの段階でも失敗はリクエスト全体を中断させ、部分的な成果物は返しません。

// ExtractionError は PDF が不正、またはテキストレイヤーを持たない場合のエラーです。
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("extraction failed: %s", e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// PlannerError はモデルの分鏡出力が壊れている、または空の場合のエラーです。
// パネル番号の重複も検証失敗として扱います（黙って上書きしない）。
type PlannerError struct {
	Reason string
	Err    error
}

func (e *PlannerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("storyboard planning failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("storyboard planning failed: %s", e.Reason)
}

func (e *PlannerError) Unwrap() error { return e.Err }

// RenderError は1つのバッチが再試行込みで画像生成に失敗した場合のエラーです。
// 失敗したパネル番号を保持します。
type RenderError struct {
	PanelNumbers []int
	Err          error
}

func (e *RenderError) Error() string {
	nums := make([]string, len(e.PanelNumbers))
	for i, n := range e.PanelNumbers {
		nums[i] = fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("render failed for panels [%s]: %v", strings.Join(nums, ","), e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// CompositionError は合成時に期待したパネルが欠けている、または画像が壊れている場合のエラーです。
type CompositionError struct {
	Reason string
}

func (e *CompositionError) Error() string {
	return fmt.Sprintf("composition failed: %s", e.Reason)
}
