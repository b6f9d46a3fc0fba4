// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/slide-forge/internal/config"
	"github.com/yourusername/slide-forge/internal/jobs"
	"github.com/yourusername/slide-forge/internal/slides"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	origins := strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowOrigins = origins
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
	}
	router.Use(cors.New(corsConfig))

	// ジョブ基盤（レコードストア・Blobストア・キュー・ワーカー・ブリッジ）の配線
	app, err := setupJobs(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("ジョブ基盤の初期化に失敗しました", zap.Error(err))
	}
	defer app.Close()

	app.manager.StartWorkers()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("ワーカーの停止に失敗しました", zap.Error(err))
		}
	}()

	// ルーティングの設定
	setupRoutes(router, cfg, app)

	// サーバーの起動
	addr := ":" + cfg.Port
	logger.Info("Starting API server", zap.String("addr", addr), zap.String("mode", cfg.GinMode))
	if err := router.Run(addr); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.GinMode == gin.ReleaseMode {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "slide-forge-api",
		"version": "0.1.0",
	})
}

// setupRoutes はAPIルートの配線を行います。
func setupRoutes(router *gin.Engine, cfg *config.Config, app *application) {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	v1 := router.Group("/v1")
	{
		v1.POST("/slides", slides.CreateHandler(app.service, slides.CreateLimits{
			MaxFileSize: cfg.MaxFileSize,
			MaxFiles:    cfg.MaxFiles,
		}))
		v1.GET("/jobs/:id", jobs.StatusHandler(app.service, app.bridge))
		v1.GET("/results/:id", jobs.ResultHandler(app.service))
	}
}
