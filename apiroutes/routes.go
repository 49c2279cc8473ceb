package apiroutes

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keyturn/go-keyturn-server/api"
	restinterceptors "github.com/keyturn/go-keyturn-server/api/interceptors"
	"github.com/keyturn/go-keyturn-server/global"
	"github.com/keyturn/go-keyturn-server/metrics"
	"github.com/keyturn/go-keyturn-server/services"
)

// REST API routes
func ConfigRoutes(router *gin.Engine, rotationService *services.RotationService) *gin.Engine {
	// init metrics
	if global.Conf.Prometheus.Enabled {
		metrics.InitMetrics()

		authorized := router.Group("/metrics", gin.BasicAuth(gin.Accounts{
			global.Conf.Prometheus.Username: global.Conf.Prometheus.Password,
		}))

		authorized.GET("", gin.WrapH(promhttp.Handler()))
	}

	corsConfig := cors.DefaultConfig()
	if len(global.Conf.Cors.AllowOrigins) > 0 {
		corsConfig.AllowOrigins = global.Conf.Cors.AllowOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	router.Use(cors.New(corsConfig))

	// API definitions
	rotationApi := api.NewRotationApi(rotationService)
	healthApi := api.NewHealthCheckAPI()

	// PUBLIC API
	publicApi := router.Group("/api", metrics.MetricsMiddleware(), restinterceptors.RateLimitMiddleware())
	{
		publicApi.GET("/v1/healthcheck", healthApi.HealthCheck)
	}

	// AUTHENTICATED API (bearer JWS token)
	rootApi := router.Group("/api", metrics.MetricsMiddleware(), restinterceptors.RateLimitMiddleware(), restinterceptors.JWSMiddleware())
	{
		rootApi.POST("/v1/rotation", rotationApi.Rotation)
	}

	return router
}
