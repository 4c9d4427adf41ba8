package server

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shouni/go-paper-manga/internal/compose"
	"github.com/shouni/go-paper-manga/internal/extract"
	"github.com/shouni/go-paper-manga/internal/pipeline"
	"github.com/shouni/go-paper-manga/pkg/domain"
)

// generateRequest は構成案の生成と漫画生成の共通リクエストです。
// storyboard が指定されている場合は構成案の生成を省略し、描画から始めます。
type generateRequest struct {
	Text       string             `json:"text"`
	Title      string             `json:"title"`
	Theme      string             `json:"theme"`
	Language   string             `json:"language"`
	PanelCount int                `json:"panel_count"`
	Storyboard *domain.Storyboard `json:"storyboard,omitempty"`
}

func (r *generateRequest) toStoryboardRequest() domain.StoryboardRequest {
	panelCount := r.PanelCount
	if panelCount <= 0 {
		panelCount = 8
	}
	return domain.StoryboardRequest{
		Text:       r.Text,
		Title:      r.Title,
		Theme:      r.Theme,
		Language:   r.Language,
		PanelCount: panelCount,
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	providers := gin.H{}
	for _, p := range s.cfg.Providers() {
		providers[p.Name] = p.Enabled
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "providers": providers})
}

// handleConfig は、フロントエンドが必要とする設定情報を返します。APIキーの値は含めません。
func (s *Server) handleConfig(c *gin.Context) {
	providers := make([]gin.H, 0, 2)
	for _, p := range s.cfg.Providers() {
		providers = append(providers, gin.H{
			"name":        p.Name,
			"enabled":     p.Enabled,
			"has_api_key": p.HasAPIKey(),
			"text_model":  p.TextModel,
			"image_model": p.ImageModel,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"active_provider": s.cfg.ActiveProvider().Name,
		"providers":       providers,
		"themes":          domain.ThemeIDs(),
		"default_theme":   domain.DefaultThemeID,
	})
}

// handleUploadPDF はPDFを受け取り、テキストを抽出して返します。
func (s *Server) handleUploadPDF(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' is required"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("cannot open uploaded file: %v", err)})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxUploadSize))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("cannot read uploaded file: %v", err)})
		return
	}

	doc, err := extract.Extract(data, fileHeader.Filename)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// handleStoryboard は構成案だけを生成して返します。描画は行いません。
func (s *Server) handleStoryboard(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	storyboard, err := s.pipe.Plan(c.Request.Context(), req.toStoryboardRequest())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, storyboard)
}

// handleGenerate は漫画を最後まで生成し、完成したストリップをbase64で返します。
// 進行状況の置き場は1つだけなので、同時に受け付ける生成は1件に制限します。
func (s *Server) handleGenerate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Text == "" && req.Storyboard == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "either text or storyboard is required"})
		return
	}

	if !s.generating.CompareAndSwap(false, true) {
		c.JSON(http.StatusConflict, gin.H{"error": "another generation is already in progress"})
		return
	}
	defer s.generating.Store(false)

	var (
		result *pipeline.Result
		err    error
	)
	if req.Storyboard != nil {
		result, err = s.pipe.GenerateFromStoryboard(c.Request.Context(), req.Storyboard)
	} else {
		result, err = s.pipe.Generate(c.Request.Context(), req.toStoryboardRequest())
	}
	if err != nil {
		s.respondError(c, err)
		return
	}

	manga := domain.Manga{
		Title:         result.Storyboard.Title,
		Theme:         result.Storyboard.Theme,
		Language:      result.Storyboard.Language,
		Panels:        result.Panels,
		CombinedImage: result.Image,
		MimeType:      result.MimeType,
	}
	c.JSON(http.StatusOK, struct {
		domain.Manga
		PanelCount int                `json:"panel_count"`
		Storyboard *domain.Storyboard `json:"storyboard"`
	}{manga, len(result.Storyboard.Panels), result.Storyboard})
}

// exportRequest は完成画像のダウンロード要求です。
// panels_base64 が指定された場合はレイアウト指定に従ってサーバー側で合成し直します。
type exportRequest struct {
	PanelsBase64 []string `json:"panels_base64"`
	ImageBase64  string   `json:"image_base64"`
	Layout       string   `json:"layout"`
	Title        string   `json:"title"`
	Filename     string   `json:"filename"`
}

// handleExport は画像をダウンロード用のPNGバイナリとして返します。
func (s *Server) handleExport(c *gin.Context) {
	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var data []byte
	switch {
	case len(req.PanelsBase64) > 0:
		images := make([][]byte, len(req.PanelsBase64))
		for i, encoded := range req.PanelsBase64 {
			decoded, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("panels_base64[%d] is not valid base64", i)})
				return
			}
			images[i] = decoded
		}

		var err error
		if req.Layout == "grid" {
			data, err = compose.ComposeGrid(images, compose.GridColumns)
		} else {
			data, err = compose.ComposeVertical(images)
		}
		if err != nil {
			s.respondError(c, err)
			return
		}
	case req.ImageBase64 != "":
		decoded, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "image_base64 is not valid base64"})
			return
		}
		data = decoded
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "either panels_base64 or image_base64 is required"})
		return
	}

	filename := req.Filename
	if filename == "" && req.Title != "" {
		filename = req.Title + ".png"
	}
	if filename == "" {
		filename = "manga.png"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "image/png", data)
}

func (s *Server) handleProgress(c *gin.Context) {
	c.JSON(http.StatusOK, s.tracker.Snapshot())
}

func (s *Server) handleClearCache(c *gin.Context) {
	cleared := s.pipe.ClearCache()
	c.JSON(http.StatusOK, gin.H{"cleared": cleared})
}

// respondError はドメインエラーをHTTPステータスに対応づけて返します。
// 入力起因は4xx、上流モデル起因は502、こちらの合成処理の失敗は500です。
func (s *Server) respondError(c *gin.Context, err error) {
	var (
		extractionErr  *domain.ExtractionError
		plannerErr     *domain.PlannerError
		renderErr      *domain.RenderError
		compositionErr *domain.CompositionError
	)

	status := http.StatusInternalServerError
	errType := "internal"
	body := gin.H{}

	switch {
	case errors.As(err, &extractionErr):
		status = http.StatusBadRequest
		errType = "extraction"
	case errors.As(err, &plannerErr):
		status = http.StatusBadGateway
		errType = "planner"
	case errors.As(err, &renderErr):
		status = http.StatusBadGateway
		errType = "render"
		body["failed_panels"] = renderErr.PanelNumbers
	case errors.As(err, &compositionErr):
		status = http.StatusInternalServerError
		errType = "composition"
	}

	body["error"] = err.Error()
	body["error_type"] = errType
	c.JSON(status, body)
}
