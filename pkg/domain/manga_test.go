package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestPanels_SortByNumber(t *testing.T) {
	t.Run("モデルの出力順に関係なく番号順に並ぶのだ", func(t *testing.T) {
		ps := Panels{
			{PanelNumber: 3, Scene: "three"},
			{PanelNumber: 1, Scene: "one"},
			{PanelNumber: 2, Scene: "two"},
		}

		sorted := ps.SortByNumber()

		for i, want := range []int{1, 2, 3} {
			if sorted[i].PanelNumber != want {
				t.Errorf("位置 %d のパネル番号が %d になっているのだ（期待: %d）", i, sorted[i].PanelNumber, want)
			}
		}

		// 元のスライスは変更しない
		if ps[0].PanelNumber != 3 {
			t.Error("SortByNumber が元のスライスを破壊しているのだ")
		}
	})
}

func TestStoryboard_Validate(t *testing.T) {
	board := func(numbers ...int) *Storyboard {
		panels := make(Panels, len(numbers))
		for i, n := range numbers {
			panels[i] = Panel{PanelNumber: n}
		}
		return &Storyboard{Title: "t", Theme: "chiikawa", Panels: panels}
	}

	t.Run("1..Nの連番は順不同でも通るのだ", func(t *testing.T) {
		if err := board(3, 1, 2).Validate(); err != nil {
			t.Errorf("連番の構成案が弾かれたのだ: %v", err)
		}
	})

	tests := []struct {
		name       string
		numbers    []int
		wantReason string
	}{
		{"空のコマ一覧", nil, "empty panel list"},
		{"0以下の番号", []int{0, 1}, "invalid panel_number"},
		{"番号の重複", []int{1, 1, 2}, "duplicate panel_number"},
		{"先頭の抜け", []int{2, 3}, "missing panel 1"},
		{"途中の抜け", []int{1, 3}, "missing panel 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name+"はPlannerErrorなのだ", func(t *testing.T) {
			err := board(tt.numbers...).Validate()
			var plannerErr *PlannerError
			if !errors.As(err, &plannerErr) {
				t.Fatalf("PlannerError が返っていないのだ: %v", err)
			}
			if !strings.Contains(plannerErr.Reason, tt.wantReason) {
				t.Errorf("理由が %q なのだ（期待に含む: %q）", plannerErr.Reason, tt.wantReason)
			}
		})
	}
}

func TestPanel_DialogueLength(t *testing.T) {
	t.Run("CJKの文字数はバイト数ではなくrune数で数えるのだ", func(t *testing.T) {
		p := Panel{Dialogue: map[string]string{
			"hachiware": "今日は面白いことを学ぶのだ",
			"chiikawa":  "えっ",
		}}
		// 13 + 2 runes
		if got := p.DialogueLength(); got != 15 {
			t.Errorf("DialogueLength = %d, 期待は 15 なのだ", got)
		}
	})

	t.Run("セリフなしは0なのだ", func(t *testing.T) {
		if got := (Panel{}).DialogueLength(); got != 0 {
			t.Errorf("DialogueLength = %d, 期待は 0 なのだ", got)
		}
	})
}

func TestPanels_UniqueSpeakers(t *testing.T) {
	ps := Panels{
		{Dialogue: map[string]string{"chiikawa": "a", "hachiware": "b"}},
		{Dialogue: map[string]string{"hachiware": "c"}},
		{Dialogue: map[string]string{"usagi": "d"}},
	}

	got := ps.UniqueSpeakers()
	want := []string{"chiikawa", "hachiware", "usagi"}
	if len(got) != len(want) {
		t.Fatalf("話者数が %d になっているのだ（期待: %d）", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("話者 %d = %q, 期待は %q なのだ", i, got[i], want[i])
		}
	}
}

func TestPanelTypeFromString(t *testing.T) {
	cases := map[string]PanelType{
		"explain":      PanelTypeExplanation,
		"EXPLAIN":      PanelTypeExplanation,
		"introduction": PanelTypeIntro,
		"concept":      PanelTypeExplanation,
		"summary":      PanelTypeConclusion,
		"gag":          PanelTypeOther,
		"":             PanelTypeOther,
	}
	for in, want := range cases {
		if got := PanelTypeFromString(in); got != want {
			t.Errorf("PanelTypeFromString(%q) = %q, 期待は %q なのだ", in, got, want)
		}
	}
}

func TestStoryboard_JSON(t *testing.T) {
	t.Run("AIからのレスポンス形式をシミュレートするのだ", func(t *testing.T) {
		inputJSON := `{
			"title": "ずんだもんの論文入門",
			"panels": [
				{
					"panel_number": 1,
					"panel_type": "title",
					"scene": "Hachiware holding a paper",
					"dialogue": {"hachiware": "始めるのだ！"}
				}
			]
		}`

		var sb Storyboard
		if err := json.Unmarshal([]byte(inputJSON), &sb); err != nil {
			t.Fatalf("パース失敗なのだ: %v", err)
		}

		if sb.Title != "ずんだもんの論文入門" {
			t.Errorf("タイトルが違うのだ: %s", sb.Title)
		}
		if len(sb.Panels) != 1 || sb.Panels[0].Dialogue["hachiware"] != "始めるのだ！" {
			t.Error("パネル内容が正しくパースされていないのだ")
		}
	})
}

func TestMakePreview(t *testing.T) {
	t.Run("短い全文はそのまま返すのだ", func(t *testing.T) {
		if got := MakePreview("short text"); got != "short text" {
			t.Errorf("MakePreview = %q", got)
		}
	})

	t.Run("長い全文は500文字+省略記号になるのだ", func(t *testing.T) {
		long := ""
		for i := 0; i < 600; i++ {
			long += "あ"
		}
		got := MakePreview(long)
		runes := []rune(got)
		if len(runes) != PreviewLength+3 {
			t.Errorf("プレビュー長が %d になっているのだ（期待: %d）", len(runes), PreviewLength+3)
		}
		if string(runes[:PreviewLength]) != string([]rune(long)[:PreviewLength]) {
			t.Error("プレビューが全文のプレフィックスになっていないのだ")
		}
	})
}

func TestGetTheme(t *testing.T) {
	t.Run("空のIDはデフォルトテーマを返すのだ", func(t *testing.T) {
		th, err := GetTheme("")
		if err != nil {
			t.Fatalf("GetTheme失敗なのだ: %v", err)
		}
		if th.ID != DefaultThemeID {
			t.Errorf("テーマが %q になっているのだ（期待: %q）", th.ID, DefaultThemeID)
		}
	})

	t.Run("未知のIDはエラーなのだ", func(t *testing.T) {
		if _, err := GetTheme("nonexistent"); err == nil {
			t.Error("未知のテーマでエラーが返らないのだ")
		}
	})

	t.Run("大文字小文字は区別しないのだ", func(t *testing.T) {
		th, err := GetTheme("Zundamon")
		if err != nil {
			t.Fatalf("GetTheme失敗なのだ: %v", err)
		}
		if th.ID != "zundamon" {
			t.Errorf("テーマが %q になっているのだ", th.ID)
		}
	})
}
