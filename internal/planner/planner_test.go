package planner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-paper-manga/internal/engine"
	"github.com/shouni/go-paper-manga/pkg/domain"
)

// fakeTextEngine はテスト用に決まった応答を返すテキストエンジンです。
// responses を指定すると呼び出し順に応答を返し、errOnCall で指定した回だけ err を返します。
type fakeTextEngine struct {
	response  string
	responses []string
	err       error
	errOnCall int32
	calls     atomic.Int32
}

func (f *fakeTextEngine) GenerateText(_ context.Context, _ engine.TextRequest) (string, error) {
	n := f.calls.Add(1)
	if f.err != nil && (f.errOnCall == 0 || f.errOnCall == n) {
		return "", f.err
	}
	if len(f.responses) > 0 {
		if int(n) <= len(f.responses) {
			return f.responses[n-1], nil
		}
		return f.responses[len(f.responses)-1], nil
	}
	return f.response, nil
}

const validStoryboardJSON = `{
  "title": "Attention Is All You Need",
  "summary": "Transformers replace recurrence with attention.",
  "panels": [
    {"panel_number": 2, "panel_type": "explain", "scene": "A diagram of attention heads", "dialogue": {"chiikawa": "So many heads!"}},
    {"panel_number": 1, "panel_type": "title", "scene": "A classroom", "dialogue": {"hachiware": "Today we learn Transformers!"}}
  ]
}`

func testRequest() domain.StoryboardRequest {
	return domain.StoryboardRequest{
		Text:       "We propose the Transformer, a model architecture based on attention.",
		Title:      "Attention Is All You Need",
		Theme:      "chiikawa",
		PanelCount: 2,
		Language:   "en",
	}
}

func TestStoryboardPlanner_Plan(t *testing.T) {
	t.Run("フェンス付きJSONをパースして番号順に並べる", func(t *testing.T) {
		eng := &fakeTextEngine{response: "```json\n" + validStoryboardJSON + "\n```"}
		p := NewStoryboardPlanner(eng, time.Minute)

		storyboard, err := p.Plan(context.Background(), testRequest())

		require.NoError(t, err)
		assert.Equal(t, "Attention Is All You Need", storyboard.Title)
		require.Len(t, storyboard.Panels, 2)
		assert.Equal(t, 1, storyboard.Panels[0].PanelNumber)
		assert.Equal(t, 2, storyboard.Panels[1].PanelNumber)
		assert.Equal(t, "chiikawa", storyboard.Theme)
	})

	t.Run("同一リクエストはキャッシュされエンジンは1回しか呼ばれない", func(t *testing.T) {
		eng := &fakeTextEngine{response: validStoryboardJSON}
		p := NewStoryboardPlanner(eng, time.Minute)

		_, err := p.Plan(context.Background(), testRequest())
		require.NoError(t, err)
		_, err = p.Plan(context.Background(), testRequest())
		require.NoError(t, err)

		assert.Equal(t, int32(1), eng.calls.Load())
	})

	t.Run("ClearCache後は再生成される", func(t *testing.T) {
		eng := &fakeTextEngine{response: validStoryboardJSON}
		p := NewStoryboardPlanner(eng, time.Minute)

		_, err := p.Plan(context.Background(), testRequest())
		require.NoError(t, err)
		assert.Equal(t, 1, p.ClearCache())

		_, err = p.Plan(context.Background(), testRequest())
		require.NoError(t, err)
		assert.Equal(t, int32(2), eng.calls.Load())
	})

	t.Run("壊れたJSONはPlannerError", func(t *testing.T) {
		eng := &fakeTextEngine{response: "I cannot produce a storyboard, sorry."}
		p := NewStoryboardPlanner(eng, time.Minute)

		_, err := p.Plan(context.Background(), testRequest())

		var plannerErr *domain.PlannerError
		require.ErrorAs(t, err, &plannerErr)
		assert.Contains(t, plannerErr.Reason, "malformed JSON")
	})

	t.Run("エンジンのエラーはPlannerErrorにラップされる", func(t *testing.T) {
		cause := errors.New("upstream unavailable")
		eng := &fakeTextEngine{err: cause}
		p := NewStoryboardPlanner(eng, time.Minute)

		_, err := p.Plan(context.Background(), testRequest())

		var plannerErr *domain.PlannerError
		require.ErrorAs(t, err, &plannerErr)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("panel_numberの重複はPlannerError", func(t *testing.T) {
		eng := &fakeTextEngine{response: `{
  "title": "Dup", "summary": "s",
  "panels": [
    {"panel_number": 1, "panel_type": "title", "scene": "a", "dialogue": {}},
    {"panel_number": 1, "panel_type": "intro", "scene": "b", "dialogue": {}}
  ]
}`}
		p := NewStoryboardPlanner(eng, time.Minute)

		_, err := p.Plan(context.Background(), testRequest())

		var plannerErr *domain.PlannerError
		require.ErrorAs(t, err, &plannerErr)
		assert.Contains(t, plannerErr.Reason, "duplicate panel_number")
	})

	t.Run("空のコマ一覧はPlannerError", func(t *testing.T) {
		eng := &fakeTextEngine{response: `{"title": "Empty", "summary": "s", "panels": []}`}
		p := NewStoryboardPlanner(eng, time.Minute)

		_, err := p.Plan(context.Background(), testRequest())

		var plannerErr *domain.PlannerError
		require.ErrorAs(t, err, &plannerErr)
		assert.Contains(t, plannerErr.Reason, "empty panel list")
	})

	t.Run("panel_numberの抜けはPlannerError", func(t *testing.T) {
		eng := &fakeTextEngine{response: `{
  "title": "Gap", "summary": "s",
  "panels": [
    {"panel_number": 2, "panel_type": "intro", "scene": "a", "dialogue": {}},
    {"panel_number": 3, "panel_type": "explain", "scene": "b", "dialogue": {}}
  ]
}`}
		p := NewStoryboardPlanner(eng, time.Minute)

		_, err := p.Plan(context.Background(), testRequest())

		var plannerErr *domain.PlannerError
		require.ErrorAs(t, err, &plannerErr)
		assert.Contains(t, plannerErr.Reason, "missing panel 1")
	})
}

func jaRequest() domain.StoryboardRequest {
	req := testRequest()
	req.Language = "ja-JP"
	return req
}

func TestStoryboardPlanner_Translation(t *testing.T) {
	t.Run("英語以外の要求では翻訳結果が番号で突き合わされて差し替わる", func(t *testing.T) {
		eng := &fakeTextEngine{responses: []string{
			validStoryboardJSON,
			// コマ1だけを翻訳する応答。含まれないコマ2は英語のまま残るべき
			"```json\n" + `{"panels": [{"panel_number": 1, "dialogue": {"hachiware": "今日はTransformerを学ぶのだ！"}}]}` + "\n```",
		}}
		p := NewStoryboardPlanner(eng, time.Minute)

		storyboard, err := p.Plan(context.Background(), jaRequest())

		require.NoError(t, err)
		assert.Equal(t, int32(2), eng.calls.Load())
		require.Len(t, storyboard.Panels, 2)
		assert.Equal(t, "今日はTransformerを学ぶのだ！", storyboard.Panels[0].Dialogue["hachiware"])
		assert.Equal(t, "So many heads!", storyboard.Panels[1].Dialogue["chiikawa"])
		assert.Equal(t, "ja-JP", storyboard.Language)
	})

	t.Run("翻訳呼び出しの失敗は致命的ではなく英語のまま返る", func(t *testing.T) {
		eng := &fakeTextEngine{
			response:  validStoryboardJSON,
			err:       errors.New("translation service down"),
			errOnCall: 2,
		}
		p := NewStoryboardPlanner(eng, time.Minute)

		storyboard, err := p.Plan(context.Background(), jaRequest())

		require.NoError(t, err)
		assert.Equal(t, int32(2), eng.calls.Load())
		assert.Equal(t, "Today we learn Transformers!", storyboard.Panels[0].Dialogue["hachiware"])
	})

	t.Run("壊れた翻訳JSONでも英語のまま返る", func(t *testing.T) {
		eng := &fakeTextEngine{responses: []string{
			validStoryboardJSON,
			"Here is your translation, enjoy!",
		}}
		p := NewStoryboardPlanner(eng, time.Minute)

		storyboard, err := p.Plan(context.Background(), jaRequest())

		require.NoError(t, err)
		assert.Equal(t, "Today we learn Transformers!", storyboard.Panels[0].Dialogue["hachiware"])
		assert.Equal(t, "So many heads!", storyboard.Panels[1].Dialogue["chiikawa"])
	})

	t.Run("英語の要求では翻訳呼び出しをしない", func(t *testing.T) {
		eng := &fakeTextEngine{response: validStoryboardJSON}
		p := NewStoryboardPlanner(eng, time.Minute)

		_, err := p.Plan(context.Background(), testRequest())

		require.NoError(t, err)
		assert.Equal(t, int32(1), eng.calls.Load())
	})
}

func TestStripJSONFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"フェンスなし", `{"a":1}`, `{"a":1}`},
		{"jsonフェンス", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"言語指定なしフェンス", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"前後の空白", "  \n{\"a\":1}\n  ", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripJSONFence(tt.in))
		})
	}
}
