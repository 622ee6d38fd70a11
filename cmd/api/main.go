// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/print-preflight/internal/config"
	"github.com/yourusername/print-preflight/internal/preflight"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

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
	// ダウンロード用ヘッダーをフロントエンドから読めるように公開
	corsConfig.ExposeHeaders = []string{
		"Content-Disposition",
		"X-Job-Id",
		"X-Color-Mode",
		"X-Resolution",
		"X-Bleed-Px",
	}
	router.Use(cors.New(corsConfig))

	// 検査サービスの初期化
	service, err := preflight.NewService(cfg)
	if err != nil {
		log.Fatalf("Failed to init preflight service: %v", err)
	}

	// ルーティングの設定
	setupRoutes(router, service)

	// サーバーの起動
	addr := ":" + cfg.Port
	log.Printf("Starting API server on %s (mode: %s)", addr, cfg.GinMode)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "print-preflight-api",
		"version": "0.1.0",
	})
}

// setupRoutes は API グループの配線を行います。
func setupRoutes(router *gin.Engine, service *preflight.Service) {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	api := router.Group("/api")
	{
		pf := api.Group("/preflight")
		{
			pf.POST("/analyze", preflight.AnalyzeHandler(service))
			pf.POST("/dpi", preflight.DPIHandler(service))
			pf.POST("/enhance", preflight.EnhanceHandler(service))
			pf.POST("/report", preflight.ReportHandler(service))
		}
	}
}
