package server

import (
	"net/http"
	"time"

	"github.com/englefamily/Django-CRF-Chat/internal/auth"
	"github.com/englefamily/Django-CRF-Chat/internal/config"
	"github.com/englefamily/Django-CRF-Chat/internal/metrics"
	"github.com/englefamily/Django-CRF-Chat/internal/mw"
	"github.com/englefamily/Django-CRF-Chat/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
func SetupRouter(cfg config.Config, h *Handler, wsDeps ws.Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	// 控制单个 IP+路由的速率，避免被刷爆。
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/refresh", h.RefreshToken)

	// 需要 Bearer Token 的业务接口。
	authed := api.Group("")
	authed.Use(auth.AuthMiddleware(cfg, wsDeps.DB))
	authed.POST("/rooms", h.CreateRoom)
	authed.GET("/rooms", h.ListRooms)
	authed.GET("/rooms/:id", h.RoomDetail)
	authed.GET("/rooms/:id/messages", h.ListMessages)

	r.GET("/ws", ws.Serve(wsDeps))

	return r
}
