package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/GitaiQAQ/render-dispatch/internal/handlers"
	"github.com/GitaiQAQ/render-dispatch/internal/middleware"
	"github.com/GitaiQAQ/render-dispatch/internal/ratelimit"
)

// Setup builds the Gin engine: a single screenshot/pdf route pair shared
// across all buckets (dispatched by the :bucket path parameter, each
// checked against its own rate limiter inside the handler), plus the shared
// static and stats routes.
func Setup(deps *handlers.Deps, globalLimiter *ratelimit.Keyed) *gin.Engine {
	r := setupBaseRouter(globalLimiter)

	r.GET("/health", middleware.SecurityHeaders(), healthCheck())
	r.GET("/stats", middleware.SecurityHeaders(), handlers.Stats(deps))
	r.GET("/static/*filepath", middleware.ArtifactHeaders(), handlers.Static(deps))
	r.GET("/screenshot/:bucket", middleware.SecurityHeaders(), handlers.Screenshot(deps))
	r.GET("/pdf/:bucket", middleware.SecurityHeaders(), handlers.PDF(deps))

	return r
}

func setupBaseRouter(globalLimiter *ratelimit.Keyed) *gin.Engine {
	r := gin.New()

	r.Use(middleware.Observability())
	r.Use(middleware.GlobalRateLimit(globalLimiter))

	// Rendered artifacts are meant to be embedded (<img>, <iframe>) from any
	// origin, so this is deliberately permissive rather than an allowlist.
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "HEAD"}
	r.Use(cors.New(corsConfig))

	// No reverse proxy is assumed by default; set explicit trusted ranges
	// when running behind one.
	r.SetTrustedProxies(nil)

	return r
}

func healthCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().Unix(),
		})
	}
}
