// Package server は、漫画生成パイプラインをHTTP APIとして公開します。
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shouni/go-paper-manga/internal/config"
	"github.com/shouni/go-paper-manga/internal/pipeline"
	"github.com/shouni/go-paper-manga/internal/progress"
)

// maxUploadSize はPDFアップロードの上限サイズです。
const maxUploadSize = 50 << 20 // 50MB

// Server はHTTP APIの本体です。生成は一度に1件だけ受け付けます。
type Server struct {
	cfg        *config.Config
	pipe       *pipeline.Pipeline
	tracker    *progress.Tracker
	generating atomic.Bool
}

// New は新しい Server を生成します。
func New(cfg *config.Config, pipe *pipeline.Pipeline, tracker *progress.Tracker) *Server {
	return &Server{cfg: cfg, pipe: pipe, tracker: tracker}
}

// Router はルーティング済みの gin エンジンを返します。
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(), corsMiddleware())
	router.MaxMultipartMemory = maxUploadSize

	router.GET("/health", s.handleHealth)
	router.Static("/output", s.cfg.OutputDir)

	api := router.Group("/api")
	api.GET("/config", s.handleConfig)

	manga := api.Group("/manga")
	manga.POST("/upload-pdf", s.handleUploadPDF)
	manga.POST("/storyboard", s.handleStoryboard)
	manga.POST("/generate", s.handleGenerate)
	manga.POST("/export", s.handleExport)
	manga.GET("/progress", s.handleProgress)
	manga.POST("/clear-cache", s.handleClearCache)

	return router
}

// Run はHTTPサーバーを起動し、コンテキストのキャンセルで安全に停止します。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTPサーバーを起動します", "addr", s.cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("シャットダウン要求を受け取りました")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// requestLogger はリクエストごとの構造化ログを出力するミドルウェアです。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}

// corsMiddleware はブラウザのフロントエンドからの呼び出しを許可します。
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
