package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hiremebahamas/hirebahamas-api/internal/handlers"
	"github.com/hiremebahamas/hirebahamas-api/internal/middleware"
	"github.com/hiremebahamas/hirebahamas-api/internal/models"
)

// CORSMiddleware tells the browser that it is safe for the configured
// frontend origin to call us.
func CORSMiddleware(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Accept, Origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		// The browser sends this empty request first to check permissions.
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func SetupRouter(h *handlers.Handlers, allowedOrigin string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(h.Log))
	router.Use(CORSMiddleware(allowedOrigin))

	read := middleware.DBRead(h.DB, h.Log)
	write := middleware.DBWrite(h.DB, h.Log)
	requireAuth := middleware.AuthMiddleware(h.Tokens)

	// --- Diagnostics (Public) ---
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)

	// --- Auth Routes ---
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", write, h.Register)
		authGroup.POST("/login", middleware.ReadYourWrites(), read, h.Login)
		authGroup.GET("/me", requireAuth, read, h.GetProfile)
	}

	// --- Job Routes ---
	api := router.Group("/api")
	{
		api.GET("/jobs", read, h.ListJobs)
		api.GET("/jobs/:slug", read, h.GetJob)
		api.POST("/jobs",
			requireAuth,
			middleware.RequireUserType(models.UserTypeEmployer, models.UserTypeRecruiter),
			write,
			h.CreateJob,
		)
	}

	return router
}
