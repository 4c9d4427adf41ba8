// Package progress は、生成処理の進行状況を保持する単一スロットのトラッカーを提供します。
// サーバー全体で 1 つのトラッカーを共有し、HTTP のポーリングで参照される想定です。
package progress

import (
	"sync"
	"time"
)

// Stage は生成処理の段階を表します。
type Stage string

const (
	StageIdle       Stage = "idle"
	StageStoryboard Stage = "storyboard"
	StageGenerating Stage = "generating"
	StageCompleted  Stage = "completed"
	StageError      Stage = "error"
)

// Snapshot は、ある時点での進行状況のコピーです。
type Snapshot struct {
	Stage        Stage     `json:"stage"`
	CurrentPanel int       `json:"current_panel"`
	TotalPanels  int       `json:"total_panels"`
	Percent      int       `json:"percent"`
	Message      string    `json:"message"`
	StartedAt    time.Time `json:"started_at"`
}

// Tracker は進行状況を保持します。書き込みはパイプラインの単一ゴルーチンのみが行い、
// 読み出しは任意のゴルーチンから可能です。
type Tracker struct {
	mu        sync.Mutex
	stage     Stage
	current   int
	total     int
	message   string
	startedAt time.Time
}

// NewTracker は idle 状態のトラッカーを返します。
func NewTracker() *Tracker {
	return &Tracker{stage: StageIdle}
}

// SetStage は段階とメッセージを更新します。
func (t *Tracker) SetStage(stage Stage, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stage = stage
	t.message = message
}

// SetPanels はコマ単位の進捗を更新します。段階は変更しません。
func (t *Tracker) SetPanels(current, total int, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = current
	t.total = total
	t.message = message
}

// Reset は新しい生成処理の開始時に呼び出し、進捗をゼロに戻して開始時刻を記録します。
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stage = StageIdle
	t.current = 0
	t.total = 0
	t.message = ""
	t.startedAt = time.Now()
}

// Snapshot は現在の進行状況のコピーを返します。
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	percent := 0
	switch {
	case t.stage == StageCompleted:
		percent = 100
	case t.total > 0:
		percent = t.current * 100 / t.total
	}

	return Snapshot{
		Stage:        t.stage,
		CurrentPanel: t.current,
		TotalPanels:  t.total,
		Percent:      percent,
		Message:      t.message,
		StartedAt:    t.startedAt,
	}
}
