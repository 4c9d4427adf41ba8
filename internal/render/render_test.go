package render

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-paper-manga/internal/engine"
	"github.com/shouni/go-paper-manga/internal/progress"
	"github.com/shouni/go-paper-manga/pkg/domain"
)

// mockImageEngine は呼び出し回数を数え、指定回数だけ失敗するテスト用エンジンです。
type mockImageEngine struct {
	calls    int
	failures int
	requests []engine.ImageRequest
}

func (m *mockImageEngine) GenerateImage(_ context.Context, req engine.ImageRequest) (*engine.ImageResult, error) {
	m.calls++
	m.requests = append(m.requests, req)
	if m.calls <= m.failures {
		return nil, errors.New("upstream refused")
	}
	return &engine.ImageResult{Data: []byte("png-bytes"), MimeType: "image/png"}, nil
}

// mockHTTPClient は参照画像の取得を模倣します。
type mockHTTPClient struct {
	err error
}

func (m *mockHTTPClient) FetchBytes(_ context.Context, url string) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []byte("raw-image:" + url), nil
}

func shortPanel(n int) domain.Panel {
	return domain.Panel{
		PanelNumber: n,
		PanelType:   domain.PanelTypeExplanation,
		Scene:       fmt.Sprintf("scene %d", n),
		Dialogue:    map[string]string{"hachiware": "短いセリフ"},
	}
}

func longPanel(n int, runes int) domain.Panel {
	line := make([]rune, runes)
	for i := range line {
		line[i] = 'あ'
	}
	return domain.Panel{
		PanelNumber: n,
		PanelType:   domain.PanelTypeExplanation,
		Scene:       fmt.Sprintf("scene %d", n),
		Dialogue:    map[string]string{"hachiware": string(line)},
	}
}

func newTestRenderer(eng *mockImageEngine, client *mockHTTPClient) (*BatchRenderer, *progress.Tracker) {
	tracker := progress.NewTracker()
	r := NewBatchRenderer(eng, client, tracker, time.Millisecond, 1)
	return r, tracker
}

func TestBatchSize(t *testing.T) {
	tests := []struct {
		name   string
		panels domain.Panels
		want   int
	}{
		{"セリフが短ければ4コマまとめる", domain.Panels{shortPanel(1), shortPanel(2), shortPanel(3), shortPanel(4)}, 4},
		{"合計が100ルーンを超えたら2コマ", domain.Panels{longPanel(1, 60), longPanel(2, 60), shortPanel(3), shortPanel(4)}, 2},
		{"合計が200ルーンを超えたら1コマ", domain.Panels{longPanel(1, 250), shortPanel(2), shortPanel(3), shortPanel(4)}, 1},
		{"残りが4未満なら残り全部", domain.Panels{shortPanel(1), shortPanel(2)}, 2},
		{"残り1コマ", domain.Panels{shortPanel(1)}, 1},
	}
	policy := defaultBatchPolicy()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.size(tt.panels))
		})
	}
}

func TestBatchAspectRatio(t *testing.T) {
	assert.Equal(t, "3:4", batchAspectRatio(1))
	assert.Equal(t, "16:9", batchAspectRatio(2))
	assert.Equal(t, "1:1", batchAspectRatio(4))
}

func TestBatchRenderer_Render(t *testing.T) {
	storyboard := func(panels ...domain.Panel) *domain.Storyboard {
		return &domain.Storyboard{
			Title:  "Transformer入門",
			Theme:  "chiikawa",
			Panels: domain.Panels(panels),
		}
	}

	t.Run("短い6コマは4+2の2バッチで描画される", func(t *testing.T) {
		eng := &mockImageEngine{}
		r, tracker := newTestRenderer(eng, &mockHTTPClient{})

		rendered, err := r.Render(context.Background(), storyboard(
			shortPanel(1), shortPanel(2), shortPanel(3),
			shortPanel(4), shortPanel(5), shortPanel(6),
		))

		require.NoError(t, err)
		require.Len(t, rendered, 2)
		assert.Equal(t, 1, rendered[0].PanelNumber)
		assert.Equal(t, 4, rendered[0].Span)
		assert.Equal(t, 5, rendered[1].PanelNumber)
		assert.Equal(t, 2, rendered[1].Span)
		assert.Equal(t, 2, eng.calls)

		snap := tracker.Snapshot()
		assert.Equal(t, 6, snap.TotalPanels)
		assert.Equal(t, 6, snap.CurrentPanel)
	})

	t.Run("参照画像がプロンプトに添付される", func(t *testing.T) {
		eng := &mockImageEngine{}
		r, _ := newTestRenderer(eng, &mockHTTPClient{})

		_, err := r.Render(context.Background(), storyboard(shortPanel(1)))

		require.NoError(t, err)
		require.Len(t, eng.requests, 1)
		// chiikawaテーマは3キャラクター分の参照画像を持つ
		assert.Len(t, eng.requests[0].ReferenceImages, 3)
	})

	t.Run("参照画像の取得に失敗しても描画は続行する", func(t *testing.T) {
		eng := &mockImageEngine{}
		r, _ := newTestRenderer(eng, &mockHTTPClient{err: errors.New("network down")})

		rendered, err := r.Render(context.Background(), storyboard(shortPanel(1)))

		require.NoError(t, err)
		require.Len(t, rendered, 1)
		assert.Empty(t, eng.requests[0].ReferenceImages)
	})

	t.Run("1回の失敗は再試行で吸収される", func(t *testing.T) {
		eng := &mockImageEngine{failures: 1}
		r, _ := newTestRenderer(eng, &mockHTTPClient{})

		rendered, err := r.Render(context.Background(), storyboard(shortPanel(1), shortPanel(2)))

		require.NoError(t, err)
		require.Len(t, rendered, 1)
		assert.Equal(t, 2, eng.calls)
	})

	t.Run("再試行しても失敗したらRenderErrorで部分結果は返さない", func(t *testing.T) {
		eng := &mockImageEngine{failures: 10}
		r, _ := newTestRenderer(eng, &mockHTTPClient{})

		rendered, err := r.Render(context.Background(), storyboard(shortPanel(1), shortPanel(2)))

		var renderErr *domain.RenderError
		require.ErrorAs(t, err, &renderErr)
		assert.Equal(t, []int{1, 2}, renderErr.PanelNumbers)
		assert.Nil(t, rendered)
		// 初回 + 再試行1回
		assert.Equal(t, 2, eng.calls)
	})

	t.Run("セリフの多いコマは1コマずつ描画される", func(t *testing.T) {
		eng := &mockImageEngine{}
		r, _ := newTestRenderer(eng, &mockHTTPClient{})

		rendered, err := r.Render(context.Background(), storyboard(
			longPanel(1, 250), longPanel(2, 250),
		))

		require.NoError(t, err)
		require.Len(t, rendered, 2)
		for i, rp := range rendered {
			assert.Equal(t, i+1, rp.PanelNumber)
			assert.Equal(t, 1, rp.Span)
		}
	})
}

func TestBuildBatchPrompt(t *testing.T) {
	theme, err := domain.GetTheme("chiikawa")
	require.NoError(t, err)

	storyboard := &domain.Storyboard{Title: "Attention解説", Theme: theme.ID}
	batch := domain.Panels{shortPanel(1), shortPanel(2), shortPanel(3), shortPanel(4)}

	prompt := buildBatchPrompt(storyboard, batch, theme)

	assert.Contains(t, prompt, "exactly 4 distinct manga panel(s)")
	assert.Contains(t, prompt, "2x2 grid")
	assert.Contains(t, prompt, "Attention解説")
	assert.Contains(t, prompt, "#### PANEL 1 [TOP-LEFT] ####")
	assert.Contains(t, prompt, "#### PANEL 4 [BOTTOM-RIGHT] ####")
	assert.Contains(t, prompt, theme.StylePrompt)
}
