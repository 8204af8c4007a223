package router

import (
	"net/http"

	"nodelink/internal/admin/api"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 配置 Gin 路由，gatherer 为 nil 时不暴露 /metrics
func SetupRouter(h *api.Handler, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// 配置 CORS
	config := cors.DefaultConfig()
	config.AllowOrigins = []string{"*"}
	config.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	r.Use(cors.New(config))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	apiV1 := r.Group("/api/v1")
	{
		nodes := apiV1.Group("/nodes")
		{
			nodes.GET("", h.ListNodes)                              // GET /api/v1/nodes
			nodes.GET("/:id", h.GetNode)                            // GET /api/v1/nodes/:id
			nodes.DELETE("/:id", h.DisconnectNode)                  // DELETE /api/v1/nodes/:id
			nodes.POST("/:id/commands", h.SendCommand)              // POST /api/v1/nodes/:id/commands
			nodes.POST("/:id/refresh", h.RequestRefresh)            // POST /api/v1/nodes/:id/refresh
			nodes.GET("/:id/sensors/:key/average", h.SensorAverage) // GET /api/v1/nodes/:id/sensors/:key/average?window=30s
			nodes.GET("/:id/sensors/:key/history", h.SensorHistory) // GET /api/v1/nodes/:id/sensors/:key/history
		}
	}

	return r
}
